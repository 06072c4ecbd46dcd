package jobs

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"courtside/internal/logging"
	"courtside/internal/services"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultMaxAttempts  = 3
	defaultRetryDelay   = time.Second
)

// ErrListingUnsupported is returned by Sync when the fetcher cannot list jobs.
var ErrListingUnsupported = errors.New("job listing not supported by fetcher")

// Fetcher retrieves the authoritative record for one job.
type Fetcher interface {
	FetchJob(ctx context.Context, id string) (Job, error)
}

// Lister retrieves every job visible to the current credential.
type Lister interface {
	ListJobs(ctx context.Context) ([]Job, error)
}

// Change describes a job update applied to the store.
type Change struct {
	Previous Job
	Current  Job
	Created  bool
}

// Transitioned reports whether the status changed.
func (c Change) Transitioned() bool {
	return c.Created || c.Previous.Status != c.Current.Status
}

// Store caches jobs for the session and keeps them consistent with the remote
// pipeline. A job that reached a terminal status is never replaced by a later
// non-terminal record.
type Store struct {
	fetcher Fetcher
	logger  *slog.Logger

	fetchTimeout time.Duration
	maxAttempts  int
	retryDelay   time.Duration
	sleeper      func(time.Duration)

	group singleflight.Group

	mu        sync.Mutex
	jobs      map[string]Job
	observers []func(Change)
}

// Option customizes the store.
type Option func(*Store)

// WithFetchTimeout bounds each status fetch attempt.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout > 0 {
			s.fetchTimeout = timeout
		}
	}
}

// WithMaxAttempts sets how many failed fetches a subscription tolerates per
// polling cycle (defaults to 3).
func WithMaxAttempts(attempts int) Option {
	return func(s *Store) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// WithRetryDelay sets the pause between failed attempts within one cycle.
func WithRetryDelay(delay time.Duration) Option {
	return func(s *Store) {
		if delay >= 0 {
			s.retryDelay = delay
		}
	}
}

// WithSleeper overrides how subscription waits are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(s *Store) {
		s.sleeper = sleeper
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers a callback invoked after every applied change.
func WithObserver(fn func(Change)) Option {
	return func(s *Store) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// NewStore constructs an empty store backed by fetcher.
func NewStore(fetcher Fetcher, opts ...Option) *Store {
	s := &Store{
		fetcher:      fetcher,
		logger:       logging.NewNop(),
		fetchTimeout: defaultFetchTimeout,
		maxAttempts:  defaultMaxAttempts,
		retryDelay:   defaultRetryDelay,
		jobs:         make(map[string]Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "jobs")
	return s
}

// Register records a freshly submitted job as queued. Registering a known id
// returns the cached job unchanged.
func (s *Store) Register(id, sourceName string, createdAt time.Time) (Job, bool) {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	if existing, ok := s.jobs[id]; ok {
		s.mu.Unlock()
		return existing, false
	}
	job := Job{ID: id, SourceName: sourceName, Status: StatusQueued, CreatedAt: createdAt}
	s.jobs[id] = job
	s.mu.Unlock()

	s.logger.Debug("job registered", logging.String(logging.FieldJobID, id))
	s.notify([]Change{{Current: job, Created: true}})
	return job, true
}

// Get returns the cached job.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[strings.TrimSpace(id)]
	return job, ok
}

// Refresh fetches the job and applies the result. Concurrent refreshes of the
// same id share a single fetch. An unknown id is adopted from the fetched
// record.
func (s *Store) Refresh(ctx context.Context, id string) (Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Job{}, errors.New("refresh: empty job id")
	}
	if s.fetcher == nil {
		return Job{}, errors.New("refresh: no fetcher configured")
	}
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	base := context.WithoutCancel(ctx)
	ch := s.group.DoChan(id, func() (any, error) {
		return s.fetchAndApply(base, id)
	})
	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Job{}, res.Err
		}
		return res.Val.(Job), nil
	}
}

func (s *Store) fetchAndApply(ctx context.Context, id string) (Job, error) {
	fetchCtx, cancel := context.WithTimeout(services.WithJobID(ctx, id), s.fetchTimeout)
	defer cancel()

	fetched, err := s.fetcher.FetchJob(fetchCtx, id)
	if err != nil {
		if fetchCtx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", fetchCtx.Err(), err)
		}
		return Job{}, fmt.Errorf("fetch job %s: %w", id, err)
	}
	if fetched.ID == "" {
		fetched.ID = id
	}
	if fetched.ID != id {
		return Job{}, fmt.Errorf("fetch job %s: pipeline returned job %s", id, fetched.ID)
	}
	job, change := s.apply(fetched)
	if change != nil {
		s.notify([]Change{*change})
	}
	return job, nil
}

// Apply merges an externally obtained record under the same rules as Refresh.
func (s *Store) Apply(job Job) Job {
	current, change := s.apply(job)
	if change != nil {
		s.notify([]Change{*change})
	}
	return current
}

// Restore seeds the store from a persisted snapshot without notifying observers.
func (s *Store) Restore(jobs ...Job) {
	for _, job := range jobs {
		s.apply(job)
	}
}

// Sync merges the remote job listing into the store and returns the merged view.
func (s *Store) Sync(ctx context.Context) ([]Job, error) {
	lister, ok := s.fetcher.(Lister)
	if !ok {
		return nil, ErrListingUnsupported
	}
	remote, err := lister.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync jobs: %w", err)
	}
	changes := make([]Change, 0, len(remote))
	for _, job := range remote {
		if strings.TrimSpace(job.ID) == "" {
			continue
		}
		if _, change := s.apply(job); change != nil {
			changes = append(changes, *change)
		}
	}
	s.notify(changes)
	return s.ListAll(), nil
}

func (s *Store) apply(incoming Job) (Job, *Change) {
	incoming = incoming.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[incoming.ID]
	if !ok {
		s.jobs[incoming.ID] = incoming
		return incoming, &Change{Current: incoming, Created: true}
	}
	if current.Status.IsTerminal() {
		if incoming.Status != current.Status {
			s.logger.Debug("ignoring update for terminal job",
				logging.String(logging.FieldJobID, current.ID),
				logging.String("cached_status", string(current.Status)),
				logging.String("fetched_status", string(incoming.Status)),
			)
		}
		return current, nil
	}

	merged := incoming
	if current.SourceName != "" {
		merged.SourceName = current.SourceName
	}
	if !current.CreatedAt.IsZero() {
		merged.CreatedAt = current.CreatedAt
	}
	if merged.equal(current) {
		return current, nil
	}
	s.jobs[merged.ID] = merged
	return merged, &Change{Previous: current, Current: merged}
}

func (s *Store) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	s.mu.Lock()
	observers := slices.Clone(s.observers)
	s.mu.Unlock()
	for _, change := range changes {
		if change.Transitioned() {
			s.logger.Info("job status changed",
				logging.String(logging.FieldJobID, change.Current.ID),
				logging.String("from", string(change.Previous.Status)),
				logging.String("to", string(change.Current.Status)),
			)
		}
		for _, fn := range observers {
			fn(change)
		}
	}
}

// Observe registers fn after construction.
func (s *Store) Observe(fn func(Change)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// ListAll returns every cached job, most recently created first.
func (s *Store) ListAll() []Job {
	s.mu.Lock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(len(b.ID), len(a.ID)); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out
}

// Stats counts cached jobs per status.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := Stats{Total: len(s.jobs)}
	for _, job := range s.jobs {
		switch job.Status {
		case StatusQueued:
			stats.Queued++
		case StatusProcessing:
			stats.Processing++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

func (s *Store) sleep(ctx context.Context, delay time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if delay <= 0 {
		return nil
	}
	if s.sleeper != nil {
		s.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
