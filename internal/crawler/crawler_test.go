package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/invest-api/internal/events"
	"github.com/yourorg/invest-api/internal/store"
	"github.com/yourorg/invest-api/listing"
	"github.com/yourorg/invest-api/provider"
)

type stubSource struct {
	name    string
	err     error
	results []listing.Listing
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) Search(context.Context, listing.SearchFilters) ([]listing.Listing, error) {
	return s.results, s.err
}

func TestManager_StartRequiresStore(t *testing.T) {
	m := NewManager(nil, nil, nil, zerolog.Nop(), 1)
	_, err := m.Start(listing.SearchFilters{Location: "leeds"})
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestManager_JobLifecycle(t *testing.T) {
	src := &stubSource{name: "rightmove"}
	m := NewManager([]provider.Provider{src}, &store.Store{}, events.NewInMemory(8), zerolog.Nop(), 1)

	job, err := m.Start(listing.SearchFilters{Location: "cambridge"})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := m.Wait(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateDone, done.State)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, 0, done.Failed)
}

func TestManager_AllSourcesFailedMarksJobFailed(t *testing.T) {
	src := &stubSource{name: "rightmove", err: errors.New("blocked")}
	m := NewManager([]provider.Provider{src}, &store.Store{}, nil, zerolog.Nop(), 1)

	job, err := m.Start(listing.SearchFilters{Location: "york"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := m.Wait(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, done.State)
	assert.Equal(t, 1, done.Failed)
	assert.NotEmpty(t, done.Error)
}

func TestManager_DedupsIdenticalInFlightCrawls(t *testing.T) {
	block := make(chan struct{})
	src := &blockingSource{release: block}
	m := NewManager([]provider.Provider{src}, &store.Store{}, nil, zerolog.Nop(), 1)

	f := listing.SearchFilters{Location: "bristol"}
	first, err := m.Start(f)
	require.NoError(t, err)
	second, err := m.Start(f)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	close(block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = m.Wait(ctx, first.ID)
	require.NoError(t, err)

	// finished job releases the dedup key
	third, err := m.Start(f)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

type blockingSource struct{ release chan struct{} }

func (b *blockingSource) Name() string { return "slow" }
func (b *blockingSource) Search(ctx context.Context, _ listing.SearchFilters) ([]listing.Listing, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil, nil
}

func TestManager_GetUnknownJob(t *testing.T) {
	m := NewManager(nil, &store.Store{}, nil, zerolog.Nop(), 1)
	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
