package ukrealty

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/yourorg/invest-api/listing"
	"github.com/yourorg/invest-api/provider"
)

// Client calls the generic UK realty API on RapidAPI.
type Client struct {
	key     string
	host    string
	baseURL string
	http    *retryablehttp.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		key:     apiKey,
		host:    "uk-real-estate.p.rapidapi.com",
		baseURL: "https://uk-real-estate.p.rapidapi.com",
		http:    provider.NewHTTPClient(),
	}
}

func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

func (c *Client) Name() string { return listing.SourceUKAPI }

// Search queries sale properties by location. The API supports price and
// bedroom bounds server-side; property type is filtered client-side after
// mapping because its type taxonomy doesn't line up with ours.
func (c *Client) Search(ctx context.Context, f listing.SearchFilters) ([]listing.Listing, error) {
	q := url.Values{}
	loc := f.Location
	if loc == "" {
		loc = f.Postcode
	}
	q.Set("location", loc)
	if f.MinPrice > 0 {
		q.Set("min_price", fmt.Sprintf("%.0f", f.MinPrice))
	}
	if f.MaxPrice > 0 {
		q.Set("max_price", fmt.Sprintf("%.0f", f.MaxPrice))
	}
	if f.MinBedrooms > 0 {
		q.Set("min_bedroom", fmt.Sprintf("%d", f.MinBedrooms))
	}
	if f.MaxBedrooms > 0 {
		q.Set("max_bedroom", fmt.Sprintf("%d", f.MaxBedrooms))
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	q.Set("page", fmt.Sprintf("%d", page))

	u := fmt.Sprintf("%s/properties/for-sale?%s", c.baseURL, q.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("X-RapidAPI-Key", c.key)
	req.Header.Set("X-RapidAPI-Host", c.host)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, provider.ErrQuotaExceeded
	}
	if resp.StatusCode >= 400 {
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("uk realty error %d: %v", resp.StatusCode, body)
	}
	raw, err := provider.ReadAllLimit(resp.Body, 4<<20)
	if err != nil {
		return nil, err
	}
	cards, err := MapPayload(raw)
	if err != nil {
		return nil, err
	}
	out := cards[:0]
	for i := range cards {
		if f.Matches(&cards[i]) {
			out = append(out, cards[i])
		}
	}
	return out, nil
}
