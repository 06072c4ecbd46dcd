package upload

import (
	"context"
	"iter"
	"sync"
	"time"
)

const (
	defaultProgressCeiling  = 90
	defaultProgressStep     = 10
	defaultProgressInterval = 200 * time.Millisecond
)

// Estimator produces synthetic upload progress when the transport cannot
// report transferred bytes. Values stay strictly below the ceiling; the
// final 100 is reserved for a confirmed submission.
type Estimator struct {
	ceiling  float64
	step     float64
	interval time.Duration
	sleeper  func(time.Duration)
}

// EstimatorOption customizes an Estimator.
type EstimatorOption func(*Estimator)

// WithEstimatorSleeper replaces the wait between values (useful for tests).
func WithEstimatorSleeper(sleeper func(time.Duration)) EstimatorOption {
	return func(e *Estimator) {
		e.sleeper = sleeper
	}
}

// NewEstimator returns an estimator. Non-positive arguments fall back to a
// ceiling of 90, a step of 10 and a 200ms interval.
func NewEstimator(ceiling, step float64, interval time.Duration, opts ...EstimatorOption) *Estimator {
	if ceiling <= 0 || ceiling >= 100 {
		ceiling = defaultProgressCeiling
	}
	if step <= 0 {
		step = defaultProgressStep
	}
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	e := &Estimator{ceiling: ceiling, step: step, interval: interval}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ceiling returns the exclusive upper bound of estimated values.
func (e *Estimator) Ceiling() float64 { return e.ceiling }

// Start begins a new estimate for one upload.
func (e *Estimator) Start() *Estimate {
	return &Estimate{estimator: e}
}

// Estimate is a single, non-restartable run of the estimator.
type Estimate struct {
	estimator *Estimator

	mu   sync.Mutex
	used bool
}

// Values yields 0, step, 2*step... while the value is below the ceiling, one
// value per interval, then stops. Iterating a second time yields nothing.
func (est *Estimate) Values(ctx context.Context) iter.Seq[float64] {
	return func(yield func(float64) bool) {
		est.mu.Lock()
		if est.used {
			est.mu.Unlock()
			return
		}
		est.used = true
		est.mu.Unlock()

		e := est.estimator
		for i := 0; ; i++ {
			value := float64(i) * e.step
			if value >= e.ceiling {
				return
			}
			if i > 0 && e.wait(ctx) != nil {
				return
			}
			if !yield(value) {
				return
			}
		}
	}
}

func (e *Estimator) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.sleeper != nil {
		e.sleeper(e.interval)
		return ctx.Err()
	}
	timer := time.NewTimer(e.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
