package preflight

import (
	"context"

	"courtside/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// minFreeBytes is the free space the download directory should keep for one
// analyzed artifact of the maximum upload size.
func minFreeBytes(cfg *config.Config) uint64 {
	if cfg.Upload.MaxBytes <= 0 {
		return 0
	}
	return uint64(cfg.Upload.MaxBytes)
}

// RunAll executes every check that applies to cfg. The pipeline check is
// skipped when lister is nil.
func RunAll(ctx context.Context, cfg *config.Config, lister Lister) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	if lister != nil {
		results = append(results, CheckPipeline(ctx, cfg.API.BaseURL, lister))
	}

	results = append(results, CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir))
	results = append(results, CheckFreeSpace("Download space", cfg.Paths.DownloadDir, minFreeBytes(cfg)))

	if cfg.Cache.Enabled {
		results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	}

	results = append(results, CheckFFprobe(ctx, cfg.Playback.FFprobeBinary))
	results = append(results, CheckBinaries([]Requirement{
		{
			Name:        "Player",
			Command:     cfg.Playback.Player,
			Description: "Plays analyzed videos",
			Optional:    true,
		},
	})...)
	return results
}

// Failed reports whether any required check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}
