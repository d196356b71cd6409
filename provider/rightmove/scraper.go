package rightmove

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/yourorg/invest-api/listing"
)

const resultsPerPage = 24

// Scraper pulls sale listings from Rightmove search result pages. Rightmove
// has no public API, so this parses the server-rendered HTML; the rate
// limiter keeps the crawl polite.
type Scraper struct {
	baseURL  string
	hc       *http.Client
	limiter  *rate.Limiter
	maxPages int
}

func New() *Scraper {
	return &Scraper{
		baseURL:  "https://www.rightmove.co.uk",
		hc:       &http.Client{Timeout: 20 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(1500*time.Millisecond), 1),
		maxPages: 3,
	}
}

func (s *Scraper) WithBaseURL(base string) *Scraper {
	s.baseURL = base
	return s
}

// WithMaxPages caps how many result pages one search walks.
func (s *Scraper) WithMaxPages(n int) *Scraper {
	if n > 0 {
		s.maxPages = n
	}
	return s
}

func (s *Scraper) Name() string { return listing.SourceRightmove }

// Search walks paginated results until the filter limit, the page cap, or an
// empty page. One bad page stops pagination but keeps what was already
// collected; listings that fail normalization are dropped individually.
func (s *Scraper) Search(ctx context.Context, f listing.SearchFilters) ([]listing.Listing, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 25
	}

	var out []listing.Listing
	for page := 0; page < s.maxPages; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return out, err
		}
		raws, err := s.fetchPage(ctx, f, page*resultsPerPage)
		if err != nil {
			if len(out) > 0 {
				return out, nil
			}
			return nil, err
		}
		if len(raws) == 0 {
			break
		}
		for _, r := range raws {
			l, ok := listing.Normalize(r, listing.SourceRightmove)
			if !ok {
				continue
			}
			if !f.Matches(l) {
				continue
			}
			out = append(out, *l)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (s *Scraper) fetchPage(ctx context.Context, f listing.SearchFilters, index int) ([]listing.Raw, error) {
	q := url.Values{}
	loc := f.Location
	if loc == "" {
		loc = f.Postcode
	}
	q.Set("searchLocation", loc)
	q.Set("channel", "BUY")
	if f.MinPrice > 0 {
		q.Set("minPrice", fmt.Sprintf("%.0f", f.MinPrice))
	}
	if f.MaxPrice > 0 {
		q.Set("maxPrice", fmt.Sprintf("%.0f", f.MaxPrice))
	}
	if f.MinBedrooms > 0 {
		q.Set("minBedrooms", fmt.Sprintf("%d", f.MinBedrooms))
	}
	if index > 0 {
		q.Set("index", fmt.Sprintf("%d", index))
	}

	u := fmt.Sprintf("%s/property-for-sale/find.html?%s", s.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	res, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rightmove get results: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("rightmove results status %d", res.StatusCode)
	}
	return ParseSearchPage(res.Body, s.baseURL)
}
