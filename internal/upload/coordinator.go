package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"courtside/internal/config"
	"courtside/internal/jobs"
	"courtside/internal/logging"
	"courtside/internal/pipeline"
	"courtside/internal/services"
)

// ErrUploadInProgress is returned when Submit is called while another session
// is running.
var ErrUploadInProgress = errors.New("an upload is already in progress")

// Phase is the lifecycle step of an upload session.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseUploading  Phase = "uploading"
	PhaseSubmitted  Phase = "submitted"
	PhaseFailed     Phase = "failed"
)

// Session is a snapshot of the running upload.
type Session struct {
	File     Candidate
	Progress float64
	Phase    Phase
}

// UploadError reports a failed or cancelled submission.
type UploadError struct {
	Phase Phase
	File  string
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s (%s): %v", e.File, e.Phase, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) ErrorKind() string {
	if errors.Is(e.Err, context.Canceled) {
		return "cancelled"
	}
	return services.KindName(e.Err)
}

// Transport submits media to the pipeline.
type Transport interface {
	CreateVideo(ctx context.Context, req pipeline.UploadRequest) (jobs.Job, error)
}

// Coordinator drives one upload session at a time.
type Coordinator struct {
	transport    Transport
	validator    Validator
	estimator    *Estimator
	realProgress bool
	logger       *slog.Logger
	onProgress   func(float64)
	onPhase      func(Phase)
	now          func() time.Time

	mu      sync.Mutex
	session *Session
	cancel  context.CancelFunc
}

// Option customizes the coordinator.
type Option func(*Coordinator)

// WithValidator overrides the default 100 MiB video validator.
func WithValidator(v Validator) Option {
	return func(c *Coordinator) { c.validator = v }
}

// WithEstimator overrides the synthetic progress estimator.
func WithEstimator(e *Estimator) Option {
	return func(c *Coordinator) {
		if e != nil {
			c.estimator = e
		}
	}
}

// WithRealProgress reports transferred bytes instead of estimated progress.
func WithRealProgress(enabled bool) Option {
	return func(c *Coordinator) { c.realProgress = enabled }
}

// WithProgressHandler receives every emitted progress value in [0,100].
func WithProgressHandler(fn func(float64)) Option {
	return func(c *Coordinator) { c.onProgress = fn }
}

// WithPhaseHandler receives every phase transition.
func WithPhaseHandler(fn func(Phase)) Option {
	return func(c *Coordinator) { c.onPhase = fn }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator constructs a coordinator backed by transport.
func NewCoordinator(transport Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		transport: transport,
		validator: NewValidator(DefaultMaxBytes),
		estimator: NewEstimator(defaultProgressCeiling, defaultProgressStep, defaultProgressInterval),
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "upload")
	return c
}

// ConfigOptions derives coordinator options from application config.
func ConfigOptions(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithValidator(NewValidator(cfg.Upload.MaxBytes)),
		WithEstimator(NewEstimator(float64(cfg.Upload.ProgressCeiling), float64(cfg.Upload.ProgressStep), cfg.ProgressInterval())),
		WithRealProgress(cfg.RealProgress()),
	}
}

// Session returns the running session, if any.
func (c *Coordinator) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Cancel aborts the running upload. It is a no-op when idle.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Submit validates the candidate, uploads it and returns the created job.
// On cancellation the returned error wraps context.Canceled and the session
// reverts to idle.
func (c *Coordinator) Submit(ctx context.Context, candidate Candidate) (jobs.Job, error) {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return jobs.Job{}, ErrUploadInProgress
	}
	ctx, cancel := context.WithCancel(ctx)
	c.session = &Session{File: candidate, Phase: PhaseIdle}
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.session = nil
		c.cancel = nil
		c.mu.Unlock()
	}()

	logger := logging.WithContext(ctx, c.logger).With(logging.String("filename", candidate.Name))

	c.setPhase(PhaseValidating)
	if err := c.validator.Validate(candidate); err != nil {
		c.setPhase(PhaseFailed)
		logging.WarnWithContext(logger, "upload rejected", "upload_invalid",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "choose a video file within the size limit"),
		)
		return jobs.Job{}, &UploadError{Phase: PhaseValidating, File: candidate.Name, Err: err}
	}

	if candidate.Open == nil {
		c.setPhase(PhaseFailed)
		return jobs.Job{}, &UploadError{Phase: PhaseUploading, File: candidate.Name, Err: errors.New("candidate has no content")}
	}
	body, err := candidate.Open()
	if err != nil {
		c.setPhase(PhaseFailed)
		return jobs.Job{}, &UploadError{Phase: PhaseUploading, File: candidate.Name, Err: err}
	}
	defer body.Close()

	c.setPhase(PhaseUploading)
	c.resetProgress()
	logger.Info("upload started",
		logging.String("content_type", candidate.ContentType),
		logging.String("size", FormatFileSize(candidate.Size)),
	)

	req := pipeline.UploadRequest{
		Filename:    candidate.Name,
		ContentType: candidate.ContentType,
		Size:        candidate.Size,
		Body:        body,
	}
	stopEstimate := func() {}
	if c.realProgress {
		req.OnProgress = func(sent, total int64) {
			if total > 0 {
				c.emit(clampPercent(float64(sent) / float64(total) * 100))
			}
		}
	} else {
		stopEstimate = c.runEstimate(ctx)
	}

	started := c.now()
	job, err := c.transport.CreateVideo(ctx, req)
	stopEstimate()

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			if !errors.Is(err, context.Canceled) {
				err = fmt.Errorf("%w: %w", context.Canceled, err)
			}
			c.setPhase(PhaseIdle)
			logger.Info("upload cancelled")
			return jobs.Job{}, &UploadError{Phase: PhaseUploading, File: candidate.Name, Err: err}
		}
		c.setPhase(PhaseFailed)
		logging.ErrorWithContext(logger, "upload failed", "upload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.UserMessage(err)),
		)
		return jobs.Job{}, &UploadError{Phase: PhaseUploading, File: candidate.Name, Err: err}
	}

	c.emit(100)
	c.setPhase(PhaseSubmitted)

	if job.SourceName == "" {
		job.SourceName = candidate.Name
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = started.UTC()
	}
	job = job.Normalize()
	logger.Info("upload submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("status", string(job.Status)),
		logging.Duration("elapsed", c.now().Sub(started)),
	)
	return job, nil
}

// runEstimate feeds estimated values until the returned stop function is
// called. stop waits for the feeder to exit so no value can follow it.
func (c *Coordinator) runEstimate(ctx context.Context) func() {
	estCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	estimate := c.estimator.Start()
	wg.Go(func() {
		for value := range estimate.Values(estCtx) {
			c.emit(value)
		}
	})
	return func() {
		cancel()
		wg.Wait()
	}
}

// emit records progress and notifies the handler. Values that do not advance
// progress are dropped.
func (c *Coordinator) emit(value float64) {
	c.mu.Lock()
	if c.session == nil || value <= c.session.Progress {
		c.mu.Unlock()
		return
	}
	c.session.Progress = value
	handler := c.onProgress
	c.mu.Unlock()

	if handler != nil {
		handler(value)
	}
}

func (c *Coordinator) resetProgress() {
	c.mu.Lock()
	if c.session != nil {
		c.session.Progress = 0
	}
	handler := c.onProgress
	c.mu.Unlock()

	if handler != nil {
		handler(0)
	}
}

func (c *Coordinator) setPhase(phase Phase) {
	c.mu.Lock()
	if c.session != nil {
		c.session.Phase = phase
		if phase == PhaseIdle {
			c.session.Progress = 0
		}
	}
	handler := c.onPhase
	c.mu.Unlock()

	c.logger.Debug("upload phase", logging.String(logging.FieldPhase, string(phase)))
	if handler != nil {
		handler(phase)
	}
}

func clampPercent(value float64) float64 {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	return math.Min(value, 100)
}
