// Package search dispatches a search to the right data source and feeds
// results through the normalize -> estimate -> score pipeline.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/invest-api/internal/canon"
	"github.com/yourorg/invest-api/internal/crawler"
	"github.com/yourorg/invest-api/internal/events"
	"github.com/yourorg/invest-api/internal/geo"
	"github.com/yourorg/invest-api/internal/redisx"
	"github.com/yourorg/invest-api/internal/store"
	"github.com/yourorg/invest-api/listing"
	"github.com/yourorg/invest-api/provider"
)

// Mode selects the data source for one search.
type Mode string

const (
	ModeDatabase Mode = "database"
	ModeAPI      Mode = "api"
	ModeCrawler  Mode = "crawler"
)

var (
	// ErrSuperseded marks a search whose results arrived after a newer
	// search took over; its output must be discarded.
	ErrSuperseded = errors.New("search superseded by a newer one")

	ErrUnknownMode = errors.New("unknown search mode")
	ErrNoDatabase  = errors.New("database not configured")
	ErrNoProviders = errors.New("no providers configured")
)

const cachePrefix = "search:res:"

// Result is one search outcome. Warnings carry partial-failure notes
// ("2 of 3 providers failed") without emptying the result set.
type Result struct {
	Listings  []listing.Listing `json:"listings"`
	Warnings  []string          `json:"warnings,omitempty"`
	FromCache bool              `json:"from_cache,omitempty"`
}

// Orchestrator owns mode dispatch and the superseding-search discipline:
// each new search cancels the previous one's context, and a search that
// finishes stale reports ErrSuperseded instead of leaking old results.
type Orchestrator struct {
	providers []provider.Provider
	store     *store.Store
	crawls    *crawler.Manager
	geocoder  *geo.Geocoder
	cache     *redisx.Client
	cacheTTL  time.Duration
	log       zerolog.Logger

	mu         sync.Mutex
	generation uint64
	cancelPrev context.CancelFunc
}

type Options struct {
	Providers []provider.Provider
	Store     *store.Store
	Crawls    *crawler.Manager
	Geocoder  *geo.Geocoder
	Cache     *redisx.Client
	CacheTTL  time.Duration
	Log       zerolog.Logger
}

func New(opts Options) *Orchestrator {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Orchestrator{
		providers: opts.Providers,
		store:     opts.Store,
		crawls:    opts.Crawls,
		geocoder:  opts.Geocoder,
		cache:     opts.Cache,
		cacheTTL:  ttl,
		log:       opts.Log,
	}
}

// Search runs one search. Issuing a new search invalidates any still-running
// one; the superseded call returns ErrSuperseded.
func (o *Orchestrator) Search(ctx context.Context, mode Mode, f listing.SearchFilters) (*Result, error) {
	ctx, cancel, gen := o.begin(ctx)
	defer cancel()

	res, err := o.dispatch(ctx, mode, f)
	if !o.current(gen) {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, mode Mode, f listing.SearchFilters) (*Result, error) {
	switch mode {
	case ModeDatabase:
		return o.searchDatabase(ctx, f)
	case ModeAPI:
		return o.searchProviders(ctx, f)
	case ModeCrawler:
		return o.searchCrawler(ctx, f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

func (o *Orchestrator) begin(parent context.Context) (context.Context, context.CancelFunc, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelPrev != nil {
		o.cancelPrev()
	}
	ctx, cancel := context.WithCancel(parent)
	o.generation++
	o.cancelPrev = cancel
	return ctx, cancel, o.generation
}

func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen == o.generation
}

// searchDatabase is read-only: filtered rows mapped back through the
// normalizer so stored listings and vendor listings share one pipeline.
func (o *Orchestrator) searchDatabase(ctx context.Context, f listing.SearchFilters) (*Result, error) {
	if o.store == nil {
		return nil, ErrNoDatabase
	}
	if res := o.cached(ctx, ModeDatabase, f); res != nil {
		return res, nil
	}
	records, err := o.store.QueryListings(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("database search: %w", err)
	}
	out := make([]listing.Listing, 0, len(records))
	for _, rec := range records {
		l, ok := listing.Normalize(rec.Raw(), rec.Source)
		if !ok {
			continue
		}
		out = append(out, *l)
	}
	res := &Result{Listings: out}
	sortListings(res.Listings)
	o.storeCache(ctx, ModeDatabase, f, res)
	return res, nil
}

// searchProviders fans out across every registered provider with all-settled
// semantics: one failing provider contributes a warning, not an abort.
func (o *Orchestrator) searchProviders(ctx context.Context, f listing.SearchFilters) (*Result, error) {
	if len(o.providers) == 0 {
		return nil, ErrNoProviders
	}
	if res := o.cached(ctx, ModeAPI, f); res != nil {
		return res, nil
	}

	var (
		mu       sync.Mutex
		merged   []listing.Listing
		failures []string
	)
	var g errgroup.Group
	g.SetLimit(4)
	for _, p := range o.providers {
		p := p
		g.Go(func() error {
			results, err := p.Search(ctx, f)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, provider.ErrQuotaExceeded) {
					failures = append(failures, p.Name()+": quota exceeded")
				} else {
					failures = append(failures, p.Name()+": unavailable")
				}
				o.log.Warn().Err(err).Str("provider", p.Name()).Msg("provider search failed")
				return nil
			}
			for i := range results {
				if f.Matches(&results[i]) {
					merged = append(merged, results[i])
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == len(o.providers) {
		return nil, fmt.Errorf("all %d providers failed", len(o.providers))
	}

	res := &Result{Listings: merged}
	if len(failures) > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%d of %d providers failed", len(failures), len(o.providers)))
		res.Warnings = append(res.Warnings, failures...)
	}
	if warn := o.enrich(ctx, res.Listings); warn != "" {
		res.Warnings = append(res.Warnings, warn)
	}
	sortListings(res.Listings)
	res.Listings = dedupListings(res.Listings)
	if f.Limit > 0 && len(res.Listings) > f.Limit {
		res.Listings = res.Listings[:f.Limit]
	}
	o.storeCache(ctx, ModeAPI, f, res)
	return res, nil
}

// dedupListings collapses the same property listed by several providers onto
// one entry, keyed by canonical address + postcode. Runs after sorting, so
// the best-scored copy survives. Listings without an address never collide.
func dedupListings(ls []listing.Listing) []listing.Listing {
	seen := make(map[string]struct{}, len(ls))
	out := ls[:0]
	for _, l := range ls {
		if l.Address == "" {
			out = append(out, l)
			continue
		}
		_, _, key := canon.Canonicalize(l.Address, l.Postcode)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}

// searchCrawler starts a scrape job, waits for it, then reads the rows it
// inserted. The write side belongs to the crawler; this path never writes.
func (o *Orchestrator) searchCrawler(ctx context.Context, f listing.SearchFilters) (*Result, error) {
	if o.crawls == nil {
		return nil, errors.New("crawler not configured")
	}
	job, err := o.crawls.Start(f)
	if err != nil {
		return nil, fmt.Errorf("start crawl: %w", err)
	}
	job, err = o.crawls.Wait(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("crawl wait: %w", err)
	}
	if job.State == crawler.StateFailed {
		return nil, fmt.Errorf("crawl failed: %s", job.Error)
	}
	// the events subscriber invalidates asynchronously; drop the stale
	// database-mode entry here so the re-query sees the crawled rows
	if o.cache != nil {
		_ = o.cache.Del(ctx, cacheKey(ModeDatabase, f))
	}
	res, err := o.searchDatabase(ctx, f)
	if err != nil {
		return nil, err
	}
	if job.Failed > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%d crawl sources failed", job.Failed))
	}
	return res, nil
}

// enrich geocodes listings missing coordinates as an unordered batch.
// All-settled: individual failures are tallied, siblings keep running.
func (o *Orchestrator) enrich(ctx context.Context, ls []listing.Listing) string {
	if o.geocoder == nil {
		return ""
	}
	var (
		mu      sync.Mutex
		failed  int
		pending int
	)
	var g errgroup.Group
	g.SetLimit(8)
	for i := range ls {
		l := &ls[i]
		if l.Latitude != 0 || l.Longitude != 0 {
			continue
		}
		query := l.Postcode
		if query == "" {
			query = l.Address
		}
		if query == "" {
			continue
		}
		pending++
		g.Go(func() error {
			loc, err := o.geocoder.Lookup(ctx, query)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			l.Latitude = loc.Latitude
			l.Longitude = loc.Longitude
			return nil
		})
	}
	_ = g.Wait()
	if failed > 0 {
		return fmt.Sprintf("%d of %d listings failed enrichment", failed, pending)
	}
	return ""
}

// RunCacheInvalidator drops cached search results whenever the crawler
// publishes a listing update. Blocks until ctx is done.
func (o *Orchestrator) RunCacheInvalidator(ctx context.Context, pub events.Publisher) {
	if o.cache == nil || pub == nil {
		return
	}
	sub := pub.SubscribeListingUpdated()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-sub:
			if err := o.cache.DelByPrefix(ctx, cachePrefix); err != nil {
				o.log.Warn().Err(err).Msg("cache invalidation failed")
				continue
			}
			o.log.Debug().Str("listing", evt.ListingID).Str("source", evt.Source).Msg("search cache invalidated")
		}
	}
}

func (o *Orchestrator) cached(ctx context.Context, mode Mode, f listing.SearchFilters) *Result {
	if o.cache == nil {
		return nil
	}
	val, err := o.cache.Get(ctx, cacheKey(mode, f))
	if err != nil || val == "" {
		return nil
	}
	var res Result
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		return nil
	}
	res.FromCache = true
	return &res
}

func (o *Orchestrator) storeCache(ctx context.Context, mode Mode, f listing.SearchFilters, res *Result) {
	if o.cache == nil || len(res.Listings) == 0 {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	_ = o.cache.Set(ctx, cacheKey(mode, f), string(b), o.cacheTTL)
}

func cacheKey(mode Mode, f listing.SearchFilters) string {
	b, _ := json.Marshal(f)
	sum := sha256.Sum256(append([]byte(mode), b...))
	return cachePrefix + hex.EncodeToString(sum[:16])
}

// sortListings orders by investment score, best first; price breaks ties.
func sortListings(ls []listing.Listing) {
	sort.SliceStable(ls, func(i, j int) bool {
		if ls[i].InvestmentScore != ls[j].InvestmentScore {
			return ls[i].InvestmentScore > ls[j].InvestmentScore
		}
		return ls[i].Price < ls[j].Price
	})
}
