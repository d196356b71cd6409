package zoopla

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

// Client calls the Zoopla property listings API.
type Client struct {
	key     string
	baseURL string
	http    *retryablehttp.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		key:     apiKey,
		baseURL: "https://api.zoopla.co.uk",
		http:    provider.NewHTTPClient(),
	}
}

// WithBaseURL points the client at a different host. Tests use it with
// httptest servers.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

func (c *Client) Name() string { return listing.SourceZoopla }

// Search queries property_listings by area. Zoopla supports price and
// bedroom bounds server-side; anything it can't filter is handled
// client-side after mapping.
func (c *Client) Search(ctx context.Context, f listing.SearchFilters) ([]listing.Listing, error) {
	q := url.Values{}
	q.Set("api_key", c.key)
	area := f.Location
	if area == "" {
		area = f.Postcode
	}
	q.Set("area", area)
	if f.MinPrice > 0 {
		q.Set("minimum_price", fmt.Sprintf("%.0f", f.MinPrice))
	}
	if f.MaxPrice > 0 {
		q.Set("maximum_price", fmt.Sprintf("%.0f", f.MaxPrice))
	}
	if f.MinBedrooms > 0 {
		q.Set("minimum_beds", fmt.Sprintf("%d", f.MinBedrooms))
	}
	if f.MaxBedrooms > 0 {
		q.Set("maximum_beds", fmt.Sprintf("%d", f.MaxBedrooms))
	}
	if f.RadiusMiles > 0 {
		q.Set("radius", fmt.Sprintf("%.1f", f.RadiusMiles))
	}
	pagesize := f.Limit
	if pagesize <= 0 {
		pagesize = 20
	}
	q.Set("page_size", fmt.Sprintf("%d", pagesize))
	if f.Page > 1 {
		q.Set("page_number", fmt.Sprintf("%d", f.Page))
	}
	q.Set("listing_status", "sale")

	u := fmt.Sprintf("%s/api/v1/property_listings.js?%s", c.baseURL, q.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, provider.ErrQuotaExceeded
	}
	if resp.StatusCode >= 400 {
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("zoopla error %d: %v", resp.StatusCode, body)
	}
	raw, err := provider.ReadAllLimit(resp.Body, 4<<20)
	if err != nil {
		return nil, err
	}
	out, err := MapPayload(raw)
	if err != nil {
		return nil, err
	}
	return out, nil
}
