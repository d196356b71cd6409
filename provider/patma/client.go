package patma

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

// Client calls the PaTMa prospector API for UK sale prospects.
type Client struct {
	key     string
	baseURL string
	http    *retryablehttp.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		key:     apiKey,
		baseURL: "https://www.patma.co.uk",
		http:    provider.NewHTTPClient(),
	}
}

func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

func (c *Client) Name() string { return listing.SourcePaTMa }

// Search queries prospect listings by postcode area. PaTMa only filters by
// location and bedrooms server-side; price bounds are applied client-side.
func (c *Client) Search(ctx context.Context, f listing.SearchFilters) ([]listing.Listing, error) {
	q := url.Values{}
	loc := f.Postcode
	if loc == "" {
		loc = f.Location
	}
	q.Set("postcode", loc)
	if f.MinBedrooms > 0 {
		q.Set("min_bedrooms", fmt.Sprintf("%d", f.MinBedrooms))
	}
	if f.Limit > 0 {
		q.Set("page_size", fmt.Sprintf("%d", f.Limit))
	}
	if f.Page > 1 {
		q.Set("page", fmt.Sprintf("%d", f.Page))
	}

	u := fmt.Sprintf("%s/api/prospector/v1/properties/?%s", c.baseURL, q.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("Authorization", "Token "+c.key)

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
		return nil, fmt.Errorf("patma error %d: %v", resp.StatusCode, body)
	}
	raw, err := provider.ReadAllLimit(resp.Body, 4<<20)
	if err != nil {
		return nil, err
	}
	cards, err := MapPayload(raw)
	if err != nil {
		return nil, err
	}
	// client-side post-filter for the dimensions PaTMa ignores
	out := cards[:0]
	for i := range cards {
		if f.Matches(&cards[i]) {
			out = append(out, cards[i])
		}
	}
	return out, nil
}
