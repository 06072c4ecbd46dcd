package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"courtside/internal/jobs"
	"courtside/internal/playback"
	"courtside/internal/services"
	"courtside/internal/upload"
)

// Lister is the part of the pipeline client the connectivity check needs.
type Lister interface {
	ListJobs(ctx context.Context) ([]jobs.Job, error)
}

// CheckPipeline verifies that the pipeline is reachable and accepts the
// configured credential. It makes a single listing request with a 10-second
// timeout.
func CheckPipeline(ctx context.Context, baseURL string, lister Lister) Result {
	const name = "Pipeline API"

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	list, err := lister.ListJobs(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizePipelineError(baseURL, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable, %d jobs visible)", baseURL, len(list))}
}

func summarizePipelineError(baseURL string, err error) string {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return fmt.Sprintf("%s (auth failed: check api.token)", baseURL)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s (timed out)", baseURL)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("%s (timed out)", baseURL)
	}
	var remote *services.RemoteError
	if errors.As(err, &remote) && remote.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d: %s)", baseURL, remote.StatusCode, remote.Detail)
	}
	return fmt.Sprintf("%s (unreachable: %v)", baseURL, err)
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// FreeBytes returns the space available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// CheckFreeSpace verifies that at least need bytes are free under path.
func CheckFreeSpace(name, path string, need uint64) Result {
	free, err := FreeBytes(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	detail := fmt.Sprintf("%s (%s free)", path, upload.FormatFileSize(int64(free)))
	if free < need {
		return Result{Name: name, Detail: fmt.Sprintf("%s, need %s", detail, upload.FormatFileSize(int64(need)))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckFFprobe verifies that ffprobe resolves on PATH and runs.
func CheckFFprobe(ctx context.Context, binary string) Result {
	const name = "FFprobe"
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found (required to read artifact duration for playback)", binary)}
	}

	versionCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	version, err := playback.FFprobeProber{Binary: resolved}.Version(versionCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", resolved, err)}
	}
	if version == "" {
		return Result{Name: name, Passed: true, Detail: resolved}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", resolved, version)}
}

// Requirement defines an external executable Courtside relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Result {
	results := make([]Result, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		result := Result{Name: req.Name, Optional: req.Optional}
		switch {
		case cmd == "":
			result.Detail = "command not configured"
		default:
			if resolved, err := exec.LookPath(cmd); err != nil {
				result.Detail = fmt.Sprintf("binary %q not found (%s)", cmd, strings.TrimSpace(req.Description))
			} else {
				result.Passed = true
				result.Detail = resolved
			}
		}
		results = append(results, result)
	}
	return results
}
