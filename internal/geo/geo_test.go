package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/invest-api/internal/redisx"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *redisx.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr, redisx.New(mr.Addr(), "", 0)
}

func TestLookup_PostcodeRoute(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "/postcodes/CT51AG", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":{"postcode":"CT5 1AG","latitude":51.36,"longitude":1.02,"admin_district":"Canterbury","region":"South East"}}`))
	}))
	defer srv.Close()

	_, cache := newTestCache(t)
	g := New("http://unused.invalid", srv.URL, cache, time.Hour, time.Minute)

	loc, err := g.Lookup(context.Background(), "CT5 1AG")
	require.NoError(t, err)
	assert.Equal(t, 51.36, loc.Latitude)
	assert.Equal(t, "Canterbury, South East", loc.DisplayName)
	assert.Equal(t, "CT5 1AG", loc.Postcode)

	// second call served from cache
	_, err = g.Lookup(context.Background(), "CT5 1AG")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}

func TestLookup_FreeTextRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "whitstable", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`[{"lat":"51.3607","lon":"1.0257","display_name":"Whitstable, Kent, England"}]`))
	}))
	defer srv.Close()

	g := New(srv.URL, "http://unused.invalid", nil, 0, 0)
	loc, err := g.Lookup(context.Background(), "whitstable")
	require.NoError(t, err)
	assert.InDelta(t, 51.3607, loc.Latitude, 1e-6)
	assert.Equal(t, "Whitstable, Kent, England", loc.DisplayName)
}

func TestLookup_NotFoundIsNegativeCached(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, cache := newTestCache(t)
	g := New(srv.URL, "http://unused.invalid", cache, time.Hour, time.Minute)

	_, err := g.Lookup(context.Background(), "nowhere at all")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = g.Lookup(context.Background(), "nowhere at all")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, hits)
}

func TestLookup_EmptyQuery(t *testing.T) {
	g := New("http://unused.invalid", "http://unused.invalid", nil, 0, 0)
	_, err := g.Lookup(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookup_ReleasesFetchLock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"lat":"53.8","lon":"-1.55","display_name":"Leeds, England"}]`))
	}))
	defer srv.Close()

	mr, cache := newTestCache(t)
	g := New(srv.URL, "http://unused.invalid", cache, time.Hour, time.Minute)

	_, err := g.Lookup(context.Background(), "leeds")
	require.NoError(t, err)
	assert.False(t, mr.Exists("geo:lock:leeds"))
	assert.True(t, mr.Exists("geo:q:leeds"))
}

func TestLookup_WaitsForConcurrentFetch(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`[{"lat":"53.8","lon":"-1.55","display_name":"Leeds, England"}]`))
	}))
	defer srv.Close()

	mr, cache := newTestCache(t)
	g := New(srv.URL, "http://unused.invalid", cache, time.Hour, time.Minute)

	// another request holds the fetch lock; it writes its result shortly
	require.NoError(t, mr.Set("geo:lock:leeds", "1"))
	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = mr.Set("geo:q:leeds", `{"latitude":53.8,"longitude":-1.55,"display_name":"Leeds, England"}`)
	}()

	loc, err := g.Lookup(context.Background(), "leeds")
	require.NoError(t, err)
	assert.Equal(t, "Leeds, England", loc.DisplayName)
	assert.Equal(t, 0, hits) // served by the lock holder's write, not upstream
}
