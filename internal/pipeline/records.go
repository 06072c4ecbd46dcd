package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"courtside/internal/jobs"
)

// videoRecord is the wire shape of a job returned by the pipeline.
type videoRecord struct {
	ID                recordID   `json:"id"`
	OriginalFilename  string     `json:"original_filename"`
	ProcessedFilename *string    `json:"processed_filename"`
	Status            string     `json:"status"`
	CreatedAt         recordTime `json:"created_at"`
	ProcessingTime    *float64   `json:"processing_time"`
}

func (r videoRecord) toJob() (jobs.Job, error) {
	id := strings.TrimSpace(string(r.ID))
	if id == "" {
		return jobs.Job{}, fmt.Errorf("record has no id")
	}
	status, err := jobs.ParseStatus(r.Status)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("job %s: %w", id, err)
	}
	job := jobs.Job{
		ID:                id,
		SourceName:        r.OriginalFilename,
		Status:            status,
		CreatedAt:         time.Time(r.CreatedAt),
		ProcessingSeconds: r.ProcessingTime,
	}
	if r.ProcessedFilename != nil {
		job.ArtifactRef = strings.TrimSpace(*r.ProcessedFilename)
	}
	return job.Normalize(), nil
}

// recordID accepts either a JSON number or string.
type recordID string

func (id *recordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = recordID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = recordID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = recordID(n.String())
	return nil
}

// recordTime accepts RFC 3339 timestamps as well as the offset-less form
// emitted by the pipeline, which is interpreted as UTC.
type recordTime time.Time

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *recordTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = recordTime{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode created_at: %w", err)
	}
	parsed, err := parseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = recordTime(parsed)
	return nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("decode created_at: unrecognized timestamp %q", raw)
}
