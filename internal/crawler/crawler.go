// Package crawler runs asynchronous scraping jobs that write listings into
// the store. A search in crawler mode starts a job, waits on it, then
// re-reads the database; the UI polls job progress over HTTP.
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourorg/invest-api/internal/events"
	"github.com/yourorg/invest-api/internal/store"
	"github.com/yourorg/invest-api/listing"
	"github.com/yourorg/invest-api/provider"
)

// Job states.
const (
	StatePending = "pending"
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

var (
	ErrNoStore     = errors.New("crawler requires a store")
	ErrJobNotFound = errors.New("crawl job not found")
)

// Job is one crawl request and its live progress. Progress counts completed
// sources, not a simulated percentage.
type Job struct {
	ID        string                `json:"id"`
	Filters   listing.SearchFilters `json:"filters"`
	State     string                `json:"state"`
	Progress  int                   `json:"progress"` // 0-100
	Found     int                   `json:"found"`
	Failed    int                   `json:"failed_sources"`
	Error     string                `json:"error,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Manager owns the job table and the worker pool draining it.
type Manager struct {
	sources []provider.Provider
	store   *store.Store
	pub     events.Publisher
	log     zerolog.Logger

	mu    sync.Mutex
	jobs  map[string]*Job
	inFly map[string]string // filter key -> job id, dedups concurrent identical crawls

	ch chan string
}

func NewManager(sources []provider.Provider, st *store.Store, pub events.Publisher, log zerolog.Logger, workers int) *Manager {
	if workers <= 0 {
		workers = 2
	}
	m := &Manager{
		sources: sources,
		store:   st,
		pub:     pub,
		log:     log,
		jobs:    make(map[string]*Job),
		inFly:   make(map[string]string),
		ch:      make(chan string, 64),
	}
	for i := 0; i < workers; i++ {
		go m.worker()
	}
	return m
}

// Start enqueues a crawl for the given filters. An identical crawl already
// in flight returns its existing job instead of queuing a duplicate.
func (m *Manager) Start(f listing.SearchFilters) (*Job, error) {
	if m.store == nil {
		return nil, ErrNoStore
	}
	key := filterKey(f)

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, busy := m.inFly[key]; busy {
		if j, ok := m.jobs[id]; ok {
			cp := *j
			return &cp, nil
		}
	}
	j := &Job{
		ID:        uuid.NewString(),
		Filters:   f,
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	m.jobs[j.ID] = j
	m.inFly[key] = j.ID

	select {
	case m.ch <- j.ID:
	default:
		delete(m.jobs, j.ID)
		delete(m.inFly, key)
		return nil, errors.New("crawl queue saturated")
	}
	cp := *j
	return &cp, nil
}

// Get returns a snapshot of one job.
func (m *Manager) Get(id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// Wait blocks until the job finishes or ctx is cancelled.
func (m *Manager) Wait(ctx context.Context, id string) (*Job, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		j, err := m.Get(id)
		if err != nil {
			return nil, err
		}
		if j.State == StateDone || j.State == StateFailed {
			return j, nil
		}
		select {
		case <-ctx.Done():
			return j, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) worker() {
	for id := range m.ch {
		m.run(id)
	}
}

func (m *Manager) run(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	j, err := m.Get(id)
	if err != nil {
		return
	}
	m.update(id, func(j *Job) { j.State = StateRunning })

	total := len(m.sources)
	found, failed := 0, 0
	for i, src := range m.sources {
		n, err := m.crawlSource(ctx, src, j.Filters)
		if err != nil {
			failed++
			m.log.Warn().Err(err).Str("source", src.Name()).Str("job", id).Msg("crawl source failed")
		}
		found += n
		done := i + 1
		m.update(id, func(j *Job) {
			j.Progress = done * 100 / total
			j.Found = found
			j.Failed = failed
		})
	}

	// release the dedup key before the terminal state lands, so a caller
	// seeing "done" can immediately start a fresh crawl
	m.release(id)
	m.update(id, func(j *Job) {
		j.Progress = 100
		if failed == total && total > 0 {
			j.State = StateFailed
			j.Error = "all sources failed"
		} else {
			j.State = StateDone
		}
	})
	m.log.Info().Str("job", id).Int("found", found).Int("failed_sources", failed).Msg("crawl finished")
}

// crawlSource pulls one source and upserts every listing; a bad listing is
// logged and skipped without sinking the source.
func (m *Manager) crawlSource(ctx context.Context, src provider.Provider, f listing.SearchFilters) (int, error) {
	results, err := src.Search(ctx, f)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range results {
		l := &results[i]
		payload, _ := json.Marshal(l)
		if err := m.store.UpsertListing(ctx, l, payload); err != nil {
			m.log.Warn().Err(err).Str("listing", l.ID).Msg("upsert failed")
			continue
		}
		n++
		if m.pub != nil {
			m.pub.PublishListingUpdated(ctx, events.ListingUpdated{
				ListingID: l.ID,
				Source:    l.Source,
				Location:  f.Location,
			})
		}
	}
	return n, nil
}

func (m *Manager) update(id string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		fn(j)
		j.UpdatedAt = time.Now().UTC()
	}
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return
	}
	key := filterKey(j.Filters)
	if m.inFly[key] == id {
		delete(m.inFly, key)
	}
}

func filterKey(f listing.SearchFilters) string {
	b, _ := json.Marshal(f)
	return string(b)
}
