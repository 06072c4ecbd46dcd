package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"courtside/internal/jobs"
	"courtside/internal/logging"
)

// ErrNotCompleted is returned when playback is requested for a job without
// an artifact.
var ErrNotCompleted = errors.New("job has not completed")

// State is the in-memory playback state of one artifact.
type State struct {
	Playing          bool
	PositionFraction float64
	DurationSeconds  float64
	DurationKnown    bool
}

// Position returns the current offset into the artifact.
func (s State) Position() time.Duration {
	return time.Duration(s.PositionFraction * s.DurationSeconds * float64(time.Second))
}

// Controller owns playback state for a completed job.
type Controller struct {
	job    jobs.Job
	source string
	prober Prober
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

// Option customizes the controller.
type Option func(*Controller)

// WithSource sets the media location to probe and play, typically the
// resolved artifact URL. It defaults to the job's artifact reference.
func WithSource(source string) Option {
	return func(c *Controller) {
		if source = strings.TrimSpace(source); source != "" {
			c.source = source
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New returns a controller for job. The job must be completed.
func New(job jobs.Job, prober Prober, opts ...Option) (*Controller, error) {
	if job.Status != jobs.StatusCompleted || strings.TrimSpace(job.ArtifactRef) == "" {
		return nil, fmt.Errorf("play job %s (%s): %w", job.ID, job.Status, ErrNotCompleted)
	}
	if prober == nil {
		prober = FFprobeProber{}
	}
	c := &Controller{
		job:    job,
		source: job.ArtifactRef,
		prober: prober,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "playback").With(logging.String(logging.FieldJobID, job.ID))
	return c, nil
}

// Source returns the media location being played.
func (c *Controller) Source() string { return c.source }

// Probe resolves the artifact duration in the background. The returned
// channel receives the outcome and is then closed.
func (c *Controller) Probe(ctx context.Context) <-chan error {
	out := make(chan error, 1)
	c.mu.Lock()
	known := c.state.DurationKnown
	c.mu.Unlock()
	if known {
		out <- nil
		close(out)
		return out
	}

	go func() {
		defer close(out)
		seconds, err := c.prober.ProbeDuration(ctx, c.source)
		if err == nil && (math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0) {
			err = fmt.Errorf("probe %s: invalid duration %v", c.source, seconds)
		}
		if err != nil {
			logging.WarnWithContext(c.logger, "duration probe failed", "probe_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check playback.ffprobe_binary"),
			)
			out <- err
			return
		}
		c.mu.Lock()
		c.state.DurationSeconds = seconds
		c.state.DurationKnown = true
		c.mu.Unlock()
		c.logger.Debug("duration resolved", logging.Float64("seconds", seconds))
		out <- nil
	}()
	return out
}

// TogglePlay flips between playing and paused. It does nothing until the
// duration is known.
func (c *Controller) TogglePlay() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.DurationKnown {
		return c.state
	}
	c.state.Playing = !c.state.Playing
	if c.state.Playing && c.state.PositionFraction >= 1 {
		c.state.PositionFraction = 0
	}
	return c.state
}

// Seek moves to fraction of the artifact, clamped to [0,1].
func (c *Controller) Seek(fraction float64) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.PositionFraction = clampFraction(fraction)
	return c.state
}

// OnProgress records the position reported by the playback clock. Reaching
// the end pauses playback.
func (c *Controller) OnProgress(fraction float64) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.PositionFraction = clampFraction(fraction)
	if c.state.PositionFraction >= 1 {
		c.state.Playing = false
	}
	return c.state
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PlayerCommand builds the command that plays the artifact in an external
// player from the current position.
func (c *Controller) PlayerCommand(ctx context.Context, player string) *exec.Cmd {
	player = strings.TrimSpace(player)
	if player == "" {
		player = "mpv"
	}
	start := strconv.FormatFloat(c.State().Position().Seconds(), 'f', 3, 64)

	var args []string
	switch strings.TrimSuffix(filepath.Base(player), filepath.Ext(player)) {
	case "ffplay":
		args = []string{"-autoexit", "-ss", start, c.source}
	case "vlc", "cvlc":
		args = []string{"--start-time=" + start, "--play-and-exit", c.source}
	default:
		args = []string{"--start=" + start, "--force-window=yes", c.source}
	}
	return exec.CommandContext(ctx, player, args...)
}

func clampFraction(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	return math.Max(0, math.Min(1, value))
}

// FormatTime renders seconds as m:ss.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
