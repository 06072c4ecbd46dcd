package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"courtside/internal/jobs"
	"courtside/internal/logging"
	"courtside/internal/services"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "watch <id>...",
		Short: "Poll jobs until they finish",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				progress := cmd.OutOrStdout()
				if jsonOut {
					progress = cmd.ErrOrStderr()
				}
				final, err := watchJobs(cmd.Context(), s, args, interval, progress)
				if jsonOut && len(final) > 0 {
					if encErr := writeJSON(cmd, newJobViews(final, s.client)); encErr != nil {
						return encErr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Polling interval (default from poll.interval_ms)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print final job records as JSON")
	return cmd
}

// watchJobs subscribes to every id concurrently and returns the last known
// record of each job, in argument order. Jobs whose polling ended without a
// terminal status contribute to the joined error.
func watchJobs(ctx context.Context, s *session, ids []string, interval time.Duration, out io.Writer) ([]jobs.Job, error) {
	if interval <= 0 {
		interval = s.cfg.PollInterval()
	}

	var (
		wg      sync.WaitGroup
		writeMu sync.Mutex
		final   = make([]jobs.Job, len(ids))
		errs    = make([]error, len(ids))
	)
	colorize := shouldColorize(out)
	printf := func(format string, args ...any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	for i, raw := range ids {
		id := strings.TrimSpace(raw)
		wg.Go(func() {
			final[i], errs[i] = watchOne(ctx, s, id, interval, colorize, printf)
		})
	}
	wg.Wait()

	kept := final[:0]
	for _, job := range final {
		if job.ID != "" {
			kept = append(kept, job)
		}
	}
	return kept, errors.Join(errs...)
}

func watchOne(ctx context.Context, s *session, id string, interval time.Duration, colorize bool, printf func(string, ...any)) (jobs.Job, error) {
	logger := logging.WithContext(services.WithJobID(ctx, id), s.logger)
	sub := s.store.Subscribe(ctx, id, interval)
	defer sub.Close()

	var last jobs.Job
	for update := range sub.Updates() {
		if update.Err != nil {
			printf("job %s: attempt %d failed: %s\n", id, update.Attempt, services.UserMessage(update.Err))
			continue
		}
		last = update.Job
		printf("job %s: %s\n", id, statusLabel(last.Status, colorize))
	}

	if err := sub.Err(); err != nil {
		if !errors.Is(err, context.Canceled) {
			if notifyErr := s.notifier.NotifyWatchAbandoned(context.WithoutCancel(ctx), id, err); notifyErr != nil {
				logger.Warn("watch abandoned notification failed", logging.Error(notifyErr))
			}
		}
		return last, err
	}

	switch last.Status {
	case jobs.StatusCompleted:
		if err := s.notifier.NotifyCompleted(ctx, last); err != nil {
			logger.Warn("completion notification failed", logging.Error(err))
		}
	case jobs.StatusFailed:
		if err := s.notifier.NotifyFailed(ctx, last); err != nil {
			logger.Warn("failure notification failed", logging.Error(err))
		}
		return last, fmt.Errorf("job %s failed during processing", id)
	}
	return last, nil
}
