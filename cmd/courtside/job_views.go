package main

import (
	"fmt"
	"strings"
	"time"

	"courtside/internal/jobs"
	"courtside/internal/pipeline"
)

// jobView is the JSON shape emitted by --json flags.
type jobView struct {
	ID                string   `json:"id"`
	SourceName        string   `json:"source_name"`
	Title             string   `json:"title"`
	Status            string   `json:"status"`
	StatusLabel       string   `json:"status_label"`
	ArtifactRef       string   `json:"artifact_ref,omitempty"`
	ArtifactURL       string   `json:"artifact_url,omitempty"`
	CreatedAt         string   `json:"created_at,omitempty"`
	ProcessingSeconds *float64 `json:"processing_seconds,omitempty"`
}

func newJobView(job jobs.Job, client *pipeline.Client) jobView {
	view := jobView{
		ID:                job.ID,
		SourceName:        job.SourceName,
		Title:             job.DisplayTitle(),
		Status:            string(job.Status),
		StatusLabel:       job.Status.Label(),
		ArtifactRef:       job.ArtifactRef,
		ProcessingSeconds: job.ProcessingSeconds,
	}
	if !job.CreatedAt.IsZero() {
		view.CreatedAt = job.CreatedAt.UTC().Format(time.RFC3339)
	}
	if client != nil && job.ArtifactRef != "" {
		view.ArtifactURL = client.ArtifactURL(job.ArtifactRef)
	}
	return view
}

func newJobViews(list []jobs.Job, client *pipeline.Client) []jobView {
	views := make([]jobView, 0, len(list))
	for _, job := range list {
		views = append(views, newJobView(job, client))
	}
	return views
}

func renderJobTable(list []jobs.Job) string {
	headers := []string{"ID", "Title", "File", "Status", "Uploaded", "Processing"}
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			job.ID,
			job.DisplayTitle(),
			job.SourceName,
			job.Status.Label(),
			formatCreated(job.CreatedAt),
			formatProcessing(job),
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
}

func renderJobDetail(job jobs.Job, client *pipeline.Client) string {
	pairs := [][2]string{
		{"ID", job.ID},
		{"Title", job.DisplayTitle()},
		{"File", dashIfEmpty(job.SourceName)},
		{"Status", job.Status.Label()},
		{"Uploaded", formatCreated(job.CreatedAt)},
		{"Processing", formatProcessing(job)},
	}
	if job.ArtifactRef != "" {
		pairs = append(pairs, [2]string{"Artifact", client.ArtifactURL(job.ArtifactRef)})
	}
	return renderKeyValues(pairs)
}

func formatCreated(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04")
}

func formatProcessing(job jobs.Job) string {
	elapsed, ok := job.ProcessingDuration()
	if !ok {
		return "-"
	}
	return elapsed.Round(time.Second).String()
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

// filterByStatus keeps jobs whose status matches one of the comma-separated
// values. An empty filter keeps everything.
func filterByStatus(list []jobs.Job, filter []string) ([]jobs.Job, error) {
	if len(filter) == 0 {
		return list, nil
	}
	wanted := make(map[jobs.Status]struct{}, len(filter))
	for _, raw := range filter {
		for part := range strings.SplitSeq(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := jobs.ParseStatus(part)
			if err != nil {
				return nil, fmt.Errorf("--status: %w", err)
			}
			wanted[status] = struct{}{}
		}
	}
	out := make([]jobs.Job, 0, len(list))
	for _, job := range list {
		if _, ok := wanted[job.Status]; ok {
			out = append(out, job)
		}
	}
	return out, nil
}
