package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"courtside/internal/jobs"
	"courtside/internal/pipeline"
	"courtside/internal/pipeline/pipelinetest"
	"courtside/internal/services"
)

func newClient(t *testing.T, server *pipelinetest.Server, token string) *pipeline.Client {
	t.Helper()
	client, err := pipeline.NewClient(pipeline.Config{
		BaseURL:        server.URL + "/",
		Token:          token,
		UserAgent:      "Courtside/test",
		RequestTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestCreateVideoStreamsMultipartUpload(t *testing.T) {
	server := pipelinetest.NewServer(t, pipelinetest.WithToken("secret"))
	client := newClient(t, server, "secret")

	payload := bytes.Repeat([]byte("x"), 256<<10)
	var lastSent, lastTotal int64
	ctx := services.WithRequestID(context.Background(), "req-123")
	job, err := client.CreateVideo(ctx, pipeline.UploadRequest{
		Filename:    "match.mp4",
		ContentType: "video/mp4",
		Size:        int64(len(payload)),
		Body:        bytes.NewReader(payload),
		OnProgress: func(sent, total int64) {
			lastSent, lastTotal = sent, total
		},
	})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	if job.ID != "1" || job.SourceName != "match.mp4" || job.Status != jobs.StatusProcessing {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.ArtifactRef != "" {
		t.Fatalf("expected no artifact before completion, got %q", job.ArtifactRef)
	}
	if lastSent != int64(len(payload)) || lastTotal != int64(len(payload)) {
		t.Fatalf("expected final progress %d/%d, got %d/%d", len(payload), len(payload), lastSent, lastTotal)
	}

	uploads := server.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("expected one upload, got %d", len(uploads))
	}
	got := uploads[0]
	if got.Filename != "match.mp4" || got.ContentType != "video/mp4" || got.Size != int64(len(payload)) {
		t.Fatalf("unexpected upload %+v", got)
	}
	if got.RequestID != "req-123" || got.UserAgent != "Courtside/test" {
		t.Fatalf("expected request headers, got %+v", got)
	}
}

func TestCreateVideoRejectedByServer(t *testing.T) {
	server := pipelinetest.NewServer(t)
	client := newClient(t, server, "")

	_, err := client.CreateVideo(context.Background(), pipeline.UploadRequest{
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Size:        4,
		Body:        strings.NewReader("text"),
	})
	if !errors.Is(err, services.ErrServerRejected) {
		t.Fatalf("expected server rejection, got %v", err)
	}
	var remote *services.RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusBadRequest || remote.Detail != "File must be a video" {
		t.Fatalf("unexpected remote error %+v", remote)
	}
	if services.IsRetryable(err) {
		t.Fatal("client error must not be retryable")
	}
}

func TestUnauthorizedRequests(t *testing.T) {
	server := pipelinetest.NewServer(t, pipelinetest.WithToken("secret"))
	client := newClient(t, server, "wrong")

	_, err := client.ListJobs(context.Background())
	if !errors.Is(err, services.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if msg := services.UserMessage(err); !strings.Contains(strings.ToLower(msg), "credential") {
		t.Fatalf("expected credentials message, got %q", msg)
	}
}

func TestFetchJobDecodesCompletedRecord(t *testing.T) {
	server := pipelinetest.NewServer(t)
	created := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	id := server.AddVideo("final.mov", "completed", created)
	client := newClient(t, server, "")

	job, err := client.FetchJob(context.Background(), pipelinetest.JobID(id))
	if err != nil {
		t.Fatalf("FetchJob: %v", err)
	}
	if job.Status != jobs.StatusCompleted || job.ArtifactRef != "processed_final.mov" {
		t.Fatalf("unexpected job %+v", job)
	}
	if !job.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at %s, got %s", created, job.CreatedAt)
	}
	if job.ProcessingSeconds == nil || *job.ProcessingSeconds != 42 {
		t.Fatalf("expected processing time, got %v", job.ProcessingSeconds)
	}
}

func TestFetchJobNotFound(t *testing.T) {
	server := pipelinetest.NewServer(t)
	client := newClient(t, server, "")

	_, err := client.FetchJob(context.Background(), "99")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if services.IsRetryable(err) {
		t.Fatal("404 must not be retryable")
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	server := pipelinetest.NewServer(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	server.AddVideo("old.mp4", "failed", base)
	server.AddVideo("new.mp4", "processing", base.Add(time.Hour))
	client := newClient(t, server, "")

	list, err := client.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 2 || list[0].SourceName != "new.mp4" || list[1].Status != jobs.StatusFailed {
		t.Fatalf("unexpected listing %+v", list)
	}
}

func TestServerErrorsAreRetryable(t *testing.T) {
	server := pipelinetest.NewServer(t)
	server.FailNext("GET /videos", http.StatusServiceUnavailable, "maintenance")
	client := newClient(t, server, "")

	_, err := client.ListJobs(context.Background())
	if !errors.Is(err, services.ErrServerRejected) || !services.IsRetryable(err) {
		t.Fatalf("expected retryable rejection, got %v", err)
	}
	if _, err := client.ListJobs(context.Background()); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
}

func TestTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := pipeline.NewClient(pipeline.Config{BaseURL: url})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.FetchJob(context.Background(), "1")
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !services.IsRetryable(err) {
		t.Fatal("transport errors should be retryable")
	}
}

func TestCancelledUploadReportsCancellation(t *testing.T) {
	server := pipelinetest.NewServer(t)
	client := newClient(t, server, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.CreateVideo(ctx, pipeline.UploadRequest{
		Filename:    "match.mp4",
		ContentType: "video/mp4",
		Body:        strings.NewReader("data"),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if errors.Is(err, services.ErrTransport) {
		t.Fatal("cancellation must not be classified as a transport failure")
	}
}

func TestArtifactURLAndDownload(t *testing.T) {
	server := pipelinetest.NewServer(t)
	server.SetArtifact("out.mp4", []byte("annotated"))
	client := newClient(t, server, "")

	if got, want := client.ArtifactURL("out.mp4"), server.URL+"/processed/out.mp4"; got != want {
		t.Fatalf("ArtifactURL = %q, want %q", got, want)
	}
	if got := client.ArtifactURL("https://cdn.example.com/a.mp4"); got != "https://cdn.example.com/a.mp4" {
		t.Fatalf("absolute refs should pass through, got %q", got)
	}
	if got := client.ArtifactURL(""); got != "" {
		t.Fatalf("expected empty url, got %q", got)
	}

	var buf bytes.Buffer
	n, err := client.DownloadArtifact(context.Background(), "out.mp4", &buf)
	if err != nil {
		t.Fatalf("DownloadArtifact: %v", err)
	}
	if n != int64(len("annotated")) || buf.String() != "annotated" {
		t.Fatalf("unexpected download %d %q", n, buf.String())
	}
	if _, err := client.DownloadArtifact(context.Background(), "missing.mp4", &buf); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	if _, err := pipeline.NewClient(pipeline.Config{BaseURL: "localhost"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := pipeline.NewClient(pipeline.Config{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClientDrivesStoreSubscription(t *testing.T) {
	server := pipelinetest.NewServer(t)
	id := server.AddVideo("rally.mp4", "processing", time.Now().UTC())
	server.Script(id, "processing", "completed")
	client := newClient(t, server, "")

	store := jobs.NewStore(client, jobs.WithSleeper(func(time.Duration) {}))
	store.Register(pipelinetest.JobID(id), "rally.mp4", time.Now())

	sub := store.Subscribe(context.Background(), pipelinetest.JobID(id), time.Millisecond)
	var last jobs.Update
	for update := range sub.Updates() {
		last = update
	}
	if sub.Err() != nil {
		t.Fatalf("subscription failed: %v", sub.Err())
	}
	if last.Job.Status != jobs.StatusCompleted || last.Job.ArtifactRef == "" {
		t.Fatalf("expected completed job with artifact, got %+v", last.Job)
	}
	if server.GetCalls(id) != 2 {
		t.Fatalf("expected two fetches, got %d", server.GetCalls(id))
	}
}
