// Package geo resolves free-text locations and UK postcodes to coordinates,
// with a Redis-backed TTL cache in front of the upstream geocoders.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/yourorg/invest-api/internal/redisx"
	"github.com/yourorg/invest-api/provider"
)

// ErrNotFound means the query geocoded to nothing. Callers surface it as
// "location not found", distinct from upstream/network failure.
var ErrNotFound = errors.New("location not found")

var reUKPostcode = regexp.MustCompile(`(?i)^[A-Z]{1,2}\d[A-Z\d]?\s*\d?[A-Z]{0,2}$`)

// Location is one resolved place.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"display_name"`
	Postcode    string  `json:"postcode,omitempty"`
}

// Geocoder picks postcodes.io for UK postcode queries and Nominatim for
// everything else.
type Geocoder struct {
	nominatimBase string
	postcodesBase string
	http          *retryablehttp.Client

	cache       *redisx.Client
	cacheTTL    time.Duration
	negativeTTL time.Duration
}

func New(nominatimBase, postcodesBase string, cache *redisx.Client, cacheTTL, negativeTTL time.Duration) *Geocoder {
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	if negativeTTL <= 0 {
		negativeTTL = time.Hour
	}
	return &Geocoder{
		nominatimBase: nominatimBase,
		postcodesBase: postcodesBase,
		http:          provider.NewHTTPClient(),
		cache:         cache,
		cacheTTL:      cacheTTL,
		negativeTTL:   negativeTTL,
	}
}

// Lookup resolves a query, serving from cache when possible. A cached miss
// returns ErrNotFound without touching the upstream until the negative TTL
// expires. Concurrent lookups of the same query are collapsed onto one
// upstream fetch via a short-lived SetNX lock; losers wait for the winner's
// cache write instead of stampeding the geocoder.
func (g *Geocoder) Lookup(ctx context.Context, query string) (Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Location{}, ErrNotFound
	}
	key := "geo:q:" + strings.ToLower(query)
	missKey := "geo:miss:" + strings.ToLower(query)

	if g.cache != nil {
		if loc, hit, err := g.fromCache(ctx, key, missKey); hit {
			return loc, err
		}
		lockKey := "geo:lock:" + strings.ToLower(query)
		if won, _ := g.cache.SetNX(ctx, lockKey, "1", lockTTL); won {
			defer func() { _ = g.cache.Del(ctx, lockKey) }()
		} else if loc, hit, err := g.waitForPeer(ctx, key, missKey); hit {
			return loc, err
		}
		// lock holder died or timed out waiting, fetch ourselves
	}

	loc, err := g.resolve(ctx, query)
	if err != nil {
		if errors.Is(err, ErrNotFound) && g.cache != nil {
			_ = g.cache.Set(ctx, missKey, "1", g.negativeTTL)
		}
		return Location{}, err
	}
	if g.cache != nil {
		if b, err := json.Marshal(loc); err == nil {
			_ = g.cache.Set(ctx, key, string(b), g.cacheTTL)
		}
	}
	return loc, nil
}

const (
	lockTTL      = 10 * time.Second
	peerWait     = 2 * time.Second
	peerInterval = 50 * time.Millisecond
)

func (g *Geocoder) fromCache(ctx context.Context, key, missKey string) (Location, bool, error) {
	if ok, _ := g.cache.Exists(ctx, missKey); ok {
		return Location{}, true, ErrNotFound
	}
	if val, err := g.cache.Get(ctx, key); err == nil && val != "" {
		var loc Location
		if err := json.Unmarshal([]byte(val), &loc); err == nil {
			return loc, true, nil
		}
	}
	return Location{}, false, nil
}

// waitForPeer polls the cache while another request resolves the same query.
func (g *Geocoder) waitForPeer(ctx context.Context, key, missKey string) (Location, bool, error) {
	ticker := time.NewTicker(peerInterval)
	defer ticker.Stop()
	deadline := time.After(peerWait)
	for {
		select {
		case <-ctx.Done():
			return Location{}, false, nil
		case <-deadline:
			return Location{}, false, nil
		case <-ticker.C:
			if loc, hit, err := g.fromCache(ctx, key, missKey); hit {
				return loc, hit, err
			}
		}
	}
}

func (g *Geocoder) resolve(ctx context.Context, query string) (Location, error) {
	if reUKPostcode.MatchString(query) {
		return g.lookupPostcode(ctx, query)
	}
	return g.lookupFreeText(ctx, query)
}

func (g *Geocoder) lookupPostcode(ctx context.Context, postcode string) (Location, error) {
	u := fmt.Sprintf("%s/postcodes/%s", g.postcodesBase, url.PathEscape(strings.ReplaceAll(postcode, " ", "")))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Location{}, err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Location{}, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return Location{}, fmt.Errorf("postcodes.io error %d", resp.StatusCode)
	}
	var body struct {
		Result struct {
			Postcode      string  `json:"postcode"`
			Latitude      float64 `json:"latitude"`
			Longitude     float64 `json:"longitude"`
			AdminDistrict string  `json:"admin_district"`
			Region        string  `json:"region"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, err
	}
	display := body.Result.AdminDistrict
	if body.Result.Region != "" {
		display = display + ", " + body.Result.Region
	}
	return Location{
		Latitude:    body.Result.Latitude,
		Longitude:   body.Result.Longitude,
		DisplayName: strings.Trim(display, ", "),
		Postcode:    body.Result.Postcode,
	}, nil
}

func (g *Geocoder) lookupFreeText(ctx context.Context, query string) (Location, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")
	u := fmt.Sprintf("%s/search?%s", g.nominatimBase, q.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Location{}, err
	}
	// Nominatim usage policy requires an identifying UA
	req.Header.Set("User-Agent", "invest-api/1.0")

	resp, err := g.http.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Location{}, fmt.Errorf("nominatim error %d", resp.StatusCode)
	}
	var results []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Location{}, err
	}
	if len(results) == 0 {
		return Location{}, ErrNotFound
	}
	var loc Location
	if _, err := fmt.Sscanf(results[0].Lat, "%f", &loc.Latitude); err != nil {
		return Location{}, fmt.Errorf("nominatim bad latitude %q", results[0].Lat)
	}
	if _, err := fmt.Sscanf(results[0].Lon, "%f", &loc.Longitude); err != nil {
		return Location{}, fmt.Errorf("nominatim bad longitude %q", results[0].Lon)
	}
	loc.DisplayName = results[0].DisplayName
	return loc, nil
}
