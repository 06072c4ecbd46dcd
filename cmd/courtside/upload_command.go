package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"courtside/internal/config"
	"courtside/internal/jobs"
	"courtside/internal/logging"
	"courtside/internal/upload"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var contentType string
	var watch bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a match video for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			candidate, err := upload.CandidateFromPath(path, contentType)
			if err != nil {
				return err
			}

			return ctx.withSession(cmd, func(s *session) error {
				progress := cmd.OutOrStdout()
				if jsonOut {
					progress = cmd.ErrOrStderr()
				}

				opts := upload.ConfigOptions(s.cfg)
				opts = append(opts,
					upload.WithLogger(s.logger),
					upload.WithProgressHandler(progressPrinter(progress, candidate.Name)),
				)
				coordinator := upload.NewCoordinator(s.client, opts...)

				job, err := coordinator.Submit(cmd.Context(), candidate)
				if err != nil {
					return err
				}
				s.store.Register(job.ID, job.SourceName, job.CreatedAt)
				job = s.store.Apply(job)
				fmt.Fprintf(progress, "Submitted %s as job %s (%s)\n", candidate.Name, job.ID, job.Status.Label())

				if err := s.notifier.NotifyUploaded(cmd.Context(), job); err != nil {
					s.logger.Warn("upload notification failed",
						logging.String(logging.FieldJobID, job.ID),
						logging.Error(err),
					)
				}

				var watchErr error
				if watch {
					var final []jobs.Job
					final, watchErr = watchJobs(cmd.Context(), s, []string{job.ID}, 0, progress)
					if len(final) == 1 {
						job = final[0]
					}
				}
				if jsonOut {
					if err := writeJSON(cmd, newJobView(job, s.client)); err != nil {
						return err
					}
				}
				return watchErr
			})
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "Override the detected media type (for example video/mp4)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll the job until it finishes")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the job record as JSON")
	return cmd
}

// progressPrinter writes one line per 10% bucket.
func progressPrinter(out io.Writer, name string) func(float64) {
	sampler := logging.NewProgressSampler(10)
	return func(percent float64) {
		if percent == 0 {
			sampler.Reset()
		}
		if sampler.ShouldLog(percent, "") {
			fmt.Fprintf(out, "Uploading %s: %3.0f%%\n", name, percent)
		}
	}
}
