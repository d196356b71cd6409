package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/invest-api/internal/crawler"
	"github.com/yourorg/invest-api/internal/events"
	"github.com/yourorg/invest-api/internal/redisx"
	"github.com/yourorg/invest-api/internal/store"
	"github.com/yourorg/invest-api/listing"
	"github.com/yourorg/invest-api/provider"
)

type fakeProvider struct {
	name    string
	results []listing.Listing
	err     error
	delay   time.Duration
	calls   atomic.Int64
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, _ listing.SearchFilters) ([]listing.Listing, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func mustNormalize(t *testing.T, raw listing.Raw, source string) listing.Listing {
	t.Helper()
	l, ok := listing.Normalize(raw, source)
	require.True(t, ok)
	return *l
}

func TestSearchProviders_MergesAndSorts(t *testing.T) {
	cheap := mustNormalize(t, listing.Raw{ID: "a", Address: "1 Low St, Hull", AskingPrice: 150000}, "zoopla")
	dear := mustNormalize(t, listing.Raw{ID: "b", Address: "2 High St, Bath", AskingPrice: 600000}, "patma")

	o := New(Options{
		Providers: []provider.Provider{
			&fakeProvider{name: "zoopla", results: []listing.Listing{dear}},
			&fakeProvider{name: "patma", results: []listing.Listing{cheap}},
		},
		Log: zerolog.Nop(),
	})

	res, err := o.Search(context.Background(), ModeAPI, listing.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, res.Listings, 2)
	// cheap listing earns the under-200k bonus and sorts first
	assert.Equal(t, "a", res.Listings[0].ID)
	assert.Empty(t, res.Warnings)
}

func TestSearchProviders_PartialFailureWarns(t *testing.T) {
	ok := mustNormalize(t, listing.Raw{ID: "a", Address: "1 Mill Rd, Cambridge", AskingPrice: 300000}, "zoopla")

	o := New(Options{
		Providers: []provider.Provider{
			&fakeProvider{name: "zoopla", results: []listing.Listing{ok}},
			&fakeProvider{name: "rightmove", err: errors.New("boom")},
			&fakeProvider{name: "patma", err: provider.ErrQuotaExceeded},
		},
		Log: zerolog.Nop(),
	})

	res, err := o.Search(context.Background(), ModeAPI, listing.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, res.Listings, 1)
	assert.Contains(t, res.Warnings, "2 of 3 providers failed")
	assert.Contains(t, res.Warnings, "patma: quota exceeded")
}

func TestSearchProviders_AllFail(t *testing.T) {
	o := New(Options{
		Providers: []provider.Provider{
			&fakeProvider{name: "zoopla", err: errors.New("boom")},
			&fakeProvider{name: "patma", err: errors.New("boom")},
		},
		Log: zerolog.Nop(),
	})
	_, err := o.Search(context.Background(), ModeAPI, listing.SearchFilters{})
	assert.Error(t, err)
}

func TestSearchProviders_PostFilters(t *testing.T) {
	flat := mustNormalize(t, listing.Raw{ID: "f", Address: "Flat 1, Leeds", AskingPrice: 100000, PropertyType: "Flat"}, "zoopla")
	house := mustNormalize(t, listing.Raw{ID: "h", Address: "5 Oak Ave, Leeds", AskingPrice: 400000, PropertyType: "Detached"}, "zoopla")

	o := New(Options{
		Providers: []provider.Provider{
			&fakeProvider{name: "zoopla", results: []listing.Listing{flat, house}},
		},
		Log: zerolog.Nop(),
	})
	res, err := o.Search(context.Background(), ModeAPI, listing.SearchFilters{PropertyType: "flat"})
	require.NoError(t, err)
	require.Len(t, res.Listings, 1)
	assert.Equal(t, "f", res.Listings[0].ID)
}

func TestSearch_SupersededReturnsError(t *testing.T) {
	slowListing := mustNormalize(t, listing.Raw{ID: "s", Address: "9 Slow Lane, York", AskingPrice: 250000}, "zoopla")
	slow := &fakeProvider{name: "zoopla", results: []listing.Listing{slowListing}, delay: 300 * time.Millisecond}

	o := New(Options{Providers: []provider.Provider{slow}, Log: zerolog.Nop()})

	firstErr := make(chan error, 1)
	go func() {
		_, err := o.Search(context.Background(), ModeAPI, listing.SearchFilters{Location: "york"})
		firstErr <- err
	}()

	time.Sleep(50 * time.Millisecond)
	res, err := o.Search(context.Background(), ModeAPI, listing.SearchFilters{Location: "leeds"})
	require.NoError(t, err)
	require.Len(t, res.Listings, 1)

	assert.ErrorIs(t, <-firstErr, ErrSuperseded)
}

func TestSearch_UnknownMode(t *testing.T) {
	o := New(Options{Log: zerolog.Nop()})
	_, err := o.Search(context.Background(), Mode("telepathy"), listing.SearchFilters{})
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestSearchProviders_ResultCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	l := mustNormalize(t, listing.Raw{ID: "c", Address: "3 Cache Row, Bristol", AskingPrice: 180000}, "zoopla")
	p := &fakeProvider{name: "zoopla", results: []listing.Listing{l}}

	o := New(Options{
		Providers: []provider.Provider{p},
		Cache:     redisx.New(mr.Addr(), "", 0),
		CacheTTL:  time.Minute,
		Log:       zerolog.Nop(),
	})

	f := listing.SearchFilters{Location: "bristol"}
	res, err := o.Search(context.Background(), ModeAPI, f)
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	res2, err := o.Search(context.Background(), ModeAPI, f)
	require.NoError(t, err)
	assert.True(t, res2.FromCache)
	assert.Equal(t, int64(1), p.calls.Load())
	require.Len(t, res2.Listings, 1)
	assert.Equal(t, "c", res2.Listings[0].ID)
}

func TestSearchDatabase_NoStore(t *testing.T) {
	o := New(Options{Log: zerolog.Nop()})
	_, err := o.Search(context.Background(), ModeDatabase, listing.SearchFilters{})
	assert.ErrorIs(t, err, ErrNoDatabase)
}

func TestSearchProviders_DedupsAcrossProviders(t *testing.T) {
	a := mustNormalize(t, listing.Raw{ID: "z-1", Address: "12, Mill Road, Cambridge", Postcode: "CB1 2AD", AskingPrice: 180000}, "zoopla")
	b := mustNormalize(t, listing.Raw{ID: "p-9", Address: "12 Mill Rd Cambridge", Postcode: "cb12ad", AskingPrice: 180000}, "patma")
	c := mustNormalize(t, listing.Raw{ID: "p-10", Address: "14 Mill Road, Cambridge", Postcode: "CB1 2AD", AskingPrice: 200000}, "patma")

	o := New(Options{
		Providers: []provider.Provider{
			&fakeProvider{name: "zoopla", results: []listing.Listing{a}},
			&fakeProvider{name: "patma", results: []listing.Listing{b, c}},
		},
		Log: zerolog.Nop(),
	})

	res, err := o.Search(context.Background(), ModeAPI, listing.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, res.Listings, 2)
	ids := []string{res.Listings[0].ID, res.Listings[1].ID}
	assert.Contains(t, ids, "p-10")
	// z-1 and p-9 share a canonical address, exactly one survives
	if ids[0] != "p-10" {
		assert.Contains(t, []string{"z-1", "p-9"}, ids[0])
	} else {
		assert.Contains(t, []string{"z-1", "p-9"}, ids[1])
	}
}

func TestSearchCrawler_BypassesStaleDatabaseCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redisx.New(mr.Addr(), "", 0)

	st := &store.Store{}
	mgr := crawler.NewManager([]provider.Provider{&fakeProvider{name: "rightmove"}},
		st, events.NewInMemory(1), zerolog.Nop(), 1)
	o := New(Options{Store: st, Crawls: mgr, Cache: cache, Log: zerolog.Nop()})

	f := listing.SearchFilters{Location: "york"}
	stale, err := json.Marshal(Result{Listings: []listing.Listing{{ID: "stale"}}})
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), cacheKey(ModeDatabase, f), string(stale), time.Minute))

	// the crawl completes, so the re-query must hit the database, not the
	// pre-crawl cache entry; without a real database that surfaces as an
	// error rather than the stale rows
	_, err = o.Search(context.Background(), ModeCrawler, f)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "crawl")
	assert.False(t, mr.Exists(cacheKey(ModeDatabase, f)))
}
