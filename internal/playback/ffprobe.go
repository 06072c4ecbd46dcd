package playback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"courtside/internal/services"
)

// Prober resolves the duration of a media source in seconds.
type Prober interface {
	ProbeDuration(ctx context.Context, source string) (float64, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, source string) (float64, error)

func (f ProberFunc) ProbeDuration(ctx context.Context, source string) (float64, error) {
	return f(ctx, source)
}

// FFprobeProber inspects media with the ffprobe binary. Sources may be local paths
// or HTTP URLs.
type FFprobeProber struct {
	Binary string
}

type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
}

type probeFormat struct {
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

// ProbeDuration runs ffprobe and returns the container duration, falling back
// to the longest video stream when the container does not report one.
func (p FFprobeProber) ProbeDuration(ctx context.Context, source string) (float64, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return 0, errors.New("ffprobe: empty source")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", source)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		detail := ""
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return 0, services.Wrap(services.ErrExternalTool, "ffprobe", detail, err)
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "ffprobe", "parse output", err)
	}
	seconds := result.durationSeconds()
	if seconds <= 0 {
		return 0, services.Wrap(services.ErrExternalTool, "ffprobe", "no duration reported for "+source, nil)
	}
	return seconds, nil
}

func (r probeResult) durationSeconds() float64 {
	if seconds := parseSeconds(r.Format.Duration); seconds > 0 {
		return seconds
	}
	longest := 0.0
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "video") {
			continue
		}
		longest = math.Max(longest, parseSeconds(stream.Duration))
	}
	return longest
}

func parseSeconds(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed < 0 {
		return 0
	}
	return parsed
}

// Version reports the first line of `ffprobe -version`.
func (p FFprobeProber) Version(ctx context.Context) (string, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	output, err := exec.CommandContext(ctx, binary, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("%s -version: %w", binary, err)
	}
	line, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(line), nil
}
