package main

import (
	"strings"
	"testing"

	"courtside/internal/jobs"
)

func TestAnalyzedFilename(t *testing.T) {
	tests := []struct {
		name string
		job  jobs.Job
		want string
	}{
		{name: "source name", job: jobs.Job{SourceName: "match.mp4", ArtifactRef: "x_processed.mp4"}, want: "analyzed_match.mp4"},
		{name: "nested source", job: jobs.Job{SourceName: "clips/semi.mov"}, want: "analyzed_semi.mov"},
		{name: "artifact fallback", job: jobs.Job{ArtifactRef: "abc_processed.mp4"}, want: "analyzed_abc_processed.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := analyzedFilename(tt.job); got != tt.want {
				t.Fatalf("analyzedFilename = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilterByStatus(t *testing.T) {
	list := []jobs.Job{
		{ID: "1", Status: jobs.StatusQueued},
		{ID: "2", Status: jobs.StatusProcessing},
		{ID: "3", Status: jobs.StatusCompleted},
		{ID: "4", Status: jobs.StatusFailed},
	}
	got, err := filterByStatus(list, []string{"completed,failed"})
	if err != nil {
		t.Fatalf("filterByStatus: %v", err)
	}
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "4" {
		t.Fatalf("unexpected filter result %+v", got)
	}
	if got, _ := filterByStatus(list, nil); len(got) != 4 {
		t.Fatalf("empty filter should keep everything, got %d", len(got))
	}
	if _, err := filterByStatus(list, []string{"archived"}); err == nil {
		t.Fatal("expected unknown status error")
	}
}

func TestRenderJobTableShowsLabels(t *testing.T) {
	seconds := 75.0
	out := renderJobTable([]jobs.Job{
		{ID: "9", SourceName: "quarter_final.mp4", Status: jobs.StatusCompleted, ProcessingSeconds: &seconds},
	})
	for _, want := range []string{"Quarter Final", "Analysis Complete", "1m15s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in table:\n%s", want, out)
		}
	}
}
