package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"courtside/internal/config"
	"courtside/internal/fileutil"
	"courtside/internal/jobs"
	"courtside/internal/logging"
	"courtside/internal/playback"
	"courtside/internal/preflight"
	"courtside/internal/upload"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Save the analyzed video of a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				job, err := s.store.Refresh(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if job.Status != jobs.StatusCompleted || job.ArtifactRef == "" {
					return fmt.Errorf("download job %s (%s): %w", job.ID, job.Status.Label(), playback.ErrNotCompleted)
				}

				target := strings.TrimSpace(dir)
				if target == "" {
					target = s.cfg.Paths.DownloadDir
				} else if target, err = config.ExpandPath(target); err != nil {
					return err
				}
				if err := os.MkdirAll(target, 0o755); err != nil {
					return fmt.Errorf("create download directory %q: %w", target, err)
				}
				for _, check := range []preflight.Result{
					preflight.CheckDirectoryAccess("Download directory", target),
					preflight.CheckFreeSpace("Download space", target, uint64(s.cfg.Upload.MaxBytes)),
				} {
					if !check.Passed {
						return fmt.Errorf("%s: %s", check.Name, check.Detail)
					}
				}

				dest := filepath.Join(target, analyzedFilename(job))
				written, err := fileutil.WriteAtomic(dest, func(w io.Writer) (int64, error) {
					return s.client.DownloadArtifact(cmd.Context(), job.ArtifactRef, w)
				})
				if err != nil {
					return err
				}
				s.logger.Info("artifact saved",
					logging.String(logging.FieldJobID, job.ID),
					logging.String("path", written.Path),
					logging.Int64("bytes", written.Bytes),
					logging.String("sha256", written.SHA256),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", written.Path, upload.FormatFileSize(written.Bytes))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Destination directory (default paths.download_dir)")
	return cmd
}

// analyzedFilename names the saved artifact after the original upload.
func analyzedFilename(job jobs.Job) string {
	name := fileutil.SanitizeFileName(filepath.Base(strings.TrimSpace(job.SourceName)))
	if name == "" || name == "." || name == "-" {
		name = fileutil.SanitizeFileName(path.Base(job.ArtifactRef))
	}
	return "analyzed_" + name
}
