package jobs

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the lifecycle state reported by the analysis pipeline.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}

// ParseStatus maps a wire value onto a Status. Unknown values are rejected so
// they never leak into the store.
func ParseStatus(value string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "queued", "pending":
		return StatusQueued, nil
	case "processing", "running":
		return StatusProcessing, nil
	case "completed", "complete":
		return StatusCompleted, nil
	case "failed", "error":
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("unknown job status %q", value)
	}
}

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Label returns the user-facing text for the status.
func (s Status) Label() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusProcessing:
		return "Processing..."
	case StatusCompleted:
		return "Analysis Complete"
	case StatusFailed:
		return "Processing Failed"
	default:
		return cases.Title(language.Und).String(string(s))
	}
}

// Job is a single remote analysis run as known to this client.
type Job struct {
	ID                string
	SourceName        string
	Status            Status
	ArtifactRef       string
	CreatedAt         time.Time
	ProcessingSeconds *float64
}

// Normalize strips the completion-only fields from jobs that are not
// completed.
func (j Job) Normalize() Job {
	j.ID = strings.TrimSpace(j.ID)
	if j.Status == "" {
		j.Status = StatusQueued
	}
	if j.Status != StatusCompleted {
		j.ArtifactRef = ""
		j.ProcessingSeconds = nil
		return j
	}
	j.ArtifactRef = strings.TrimSpace(j.ArtifactRef)
	if j.ProcessingSeconds != nil {
		seconds := *j.ProcessingSeconds
		if seconds < 0 {
			seconds = 0
		}
		j.ProcessingSeconds = &seconds
	}
	return j
}

// ProcessingDuration returns the server-side processing time if known.
func (j Job) ProcessingDuration() (time.Duration, bool) {
	if j.ProcessingSeconds == nil {
		return 0, false
	}
	return time.Duration(*j.ProcessingSeconds * float64(time.Second)), true
}

// DisplayTitle derives a readable title from the source filename.
func (j Job) DisplayTitle() string {
	base := filepath.Base(strings.TrimSpace(j.SourceName))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var cleaned strings.Builder
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" || title == "." {
		return "Untitled Video"
	}
	return cases.Title(language.Und).String(title)
}

func (j Job) equal(other Job) bool {
	if j.ID != other.ID || j.SourceName != other.SourceName || j.Status != other.Status || j.ArtifactRef != other.ArtifactRef {
		return false
	}
	if !j.CreatedAt.Equal(other.CreatedAt) {
		return false
	}
	switch {
	case j.ProcessingSeconds == nil && other.ProcessingSeconds == nil:
		return true
	case j.ProcessingSeconds == nil || other.ProcessingSeconds == nil:
		return false
	default:
		return *j.ProcessingSeconds == *other.ProcessingSeconds
	}
}

// Stats summarizes cached jobs by status.
type Stats struct {
	Total      int
	Queued     int
	Processing int
	Completed  int
	Failed     int
}

// InFlight counts jobs that have not reached a terminal state.
func (s Stats) InFlight() int {
	return s.Queued + s.Processing
}
