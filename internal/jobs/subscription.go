package jobs

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"courtside/internal/logging"
	"courtside/internal/services"
)

const defaultPollInterval = 2 * time.Second

// ErrFetchExhausted marks a subscription that stopped because every attempt
// in one polling cycle failed.
var ErrFetchExhausted = errors.New("status fetch attempts exhausted")

// FetchError reports a polling cycle in which no fetch succeeded. The cached
// job is left as it was.
type FetchError struct {
	JobID    string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("job %s: %d status fetch attempt(s) failed: %v", e.JobID, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() []error {
	out := []error{ErrFetchExhausted, services.ErrFetch}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func (e *FetchError) ErrorKind() string { return "fetch" }

// Update is one observation delivered to a subscriber. Either Job is set or
// Err describes a failed attempt that will be retried.
type Update struct {
	Job     Job
	Err     error
	Attempt int
}

// Subscription polls one job until it reaches a terminal status, the retry
// budget is exhausted, or the subscriber closes it.
type Subscription struct {
	store    *Store
	id       string
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	used   bool
	closed bool
	err    error
}

// Subscribe starts a polling subscription for id. Polling begins when the
// caller ranges over Updates. A non-positive interval uses the default.
func (s *Store) Subscribe(ctx context.Context, id string, interval time.Duration) *Subscription {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	subCtx, cancel := context.WithCancel(services.WithJobID(ctx, id))
	return &Subscription{store: s, id: id, interval: interval, ctx: subCtx, cancel: cancel}
}

// JobID returns the subscribed job id.
func (sub *Subscription) JobID() string { return sub.id }

// Close stops polling. It is safe to call more than once and from any goroutine.
func (sub *Subscription) Close() {
	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()
	sub.cancel()
}

// Err reports why the subscription ended. It is nil after a terminal status
// or an explicit Close.
func (sub *Subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

func (sub *Subscription) finish(err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.err = err
}

// Updates yields job observations. A job that is already terminal in the
// store is yielded once without a fetch. Otherwise every changed record is
// yielded, failed attempts are yielded with Err set, and the sequence ends
// after a terminal record. The sequence can be consumed once.
func (sub *Subscription) Updates() iter.Seq[Update] {
	return func(yield func(Update) bool) {
		sub.mu.Lock()
		if sub.used {
			sub.mu.Unlock()
			return
		}
		sub.used = true
		sub.mu.Unlock()
		defer sub.cancel()

		if job, ok := sub.store.Get(sub.id); ok && job.Status.IsTerminal() {
			yield(Update{Job: job})
			return
		}
		sub.poll(yield)
	}
}

func (sub *Subscription) poll(yield func(Update) bool) {
	store := sub.store
	logger := logging.WithContext(sub.ctx, store.logger)
	var last Job
	delivered := false

	for {
		job, err := sub.cycle(yield)
		if err != nil {
			if errors.Is(err, errStopped) {
				return
			}
			sub.finish(err)
			return
		}
		if !delivered || !job.equal(last) {
			if !yield(Update{Job: job}) {
				return
			}
			delivered = true
			last = job
		}
		if job.Status.IsTerminal() {
			logger.Debug("subscription reached terminal status", logging.String("status", string(job.Status)))
			return
		}
		if err := store.sleep(sub.ctx, sub.interval); err != nil {
			sub.finish(err)
			return
		}
	}
}

var errStopped = errors.New("subscriber stopped")

// cycle performs up to maxAttempts fetches and returns the first success.
func (sub *Subscription) cycle(yield func(Update) bool) (Job, error) {
	store := sub.store
	logger := logging.WithContext(sub.ctx, store.logger)
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= store.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := store.sleep(sub.ctx, store.retryDelay); err != nil {
				return Job{}, err
			}
		}
		attempts = attempt
		job, err := store.Refresh(sub.ctx, sub.id)
		if err == nil {
			return job, nil
		}
		if sub.ctx.Err() != nil {
			return Job{}, sub.ctx.Err()
		}
		lastErr = err
		logging.WarnWithContext(logger, "status fetch failed", "status_fetch_failed",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Int("max_attempts", store.maxAttempts),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job status may be stale"),
			logging.String(logging.FieldErrorHint, "check connectivity to the pipeline"),
		)
		if !yield(Update{Err: err, Attempt: attempt}) {
			return Job{}, errStopped
		}
		if !retryableFetch(err) {
			break
		}
	}
	return Job{}, &FetchError{JobID: sub.id, Attempts: attempts, Err: lastErr}
}

// retryableFetch rejects failures that repeating the request cannot fix.
func retryableFetch(err error) bool {
	return !errors.Is(err, services.ErrUnauthorized) && !errors.Is(err, services.ErrNotFound)
}
