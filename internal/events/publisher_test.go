package events_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"courtside/internal/config"
	"courtside/internal/events"
	"courtside/internal/jobs"
	"courtside/internal/services"
)

type recordingPublisher struct {
	mu   sync.Mutex
	sent []events.Transition
	err  error
}

func (r *recordingPublisher) PublishTransition(_ context.Context, t events.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, t)
	return r.err
}

func (r *recordingPublisher) Close() {}

func TestFromChange(t *testing.T) {
	seconds := 12.0
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	change := jobs.Change{
		Previous: jobs.Job{ID: "3", Status: jobs.StatusProcessing},
		Current:  jobs.Job{ID: "3", SourceName: "m.mp4", Status: jobs.StatusCompleted, ArtifactRef: "o.mp4", ProcessingSeconds: &seconds},
	}
	got := events.FromChange(change, at)
	if got.From != "processing" || got.To != "completed" || got.ArtifactRef != "o.mp4" || got.At != "2026-04-01T09:00:00Z" {
		t.Fatalf("unexpected transition %+v", got)
	}
	created := events.FromChange(jobs.Change{Current: jobs.Job{ID: "4", Status: jobs.StatusQueued}, Created: true}, at)
	if created.From != "" {
		t.Fatalf("created jobs have no previous status, got %q", created.From)
	}
}

func TestSubject(t *testing.T) {
	tr := events.Transition{To: "failed"}
	if got := events.Subject("courtside.jobs.", tr); got != "courtside.jobs.failed" {
		t.Fatalf("unexpected subject %q", got)
	}
	if got := events.Subject("", tr); got != "failed" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestObserverPublishesOnlyTransitions(t *testing.T) {
	pub := &recordingPublisher{}
	store := jobs.NewStore(nil, jobs.WithObserver(events.Observer(context.Background(), pub, nil)))

	store.Register("1", "a.mp4", time.Now())
	store.Apply(jobs.Job{ID: "1", Status: jobs.StatusQueued, SourceName: "renamed.mp4"})
	store.Apply(jobs.Job{ID: "1", Status: jobs.StatusProcessing})
	store.Apply(jobs.Job{ID: "1", Status: jobs.StatusFailed})

	pub.mu.Lock()
	defer pub.mu.Unlock()
	var statuses []string
	for _, tr := range pub.sent {
		statuses = append(statuses, tr.To)
	}
	if len(statuses) != 3 || statuses[0] != "queued" || statuses[1] != "processing" || statuses[2] != "failed" {
		t.Fatalf("unexpected published statuses %v", statuses)
	}
}

func TestObserverSurvivesPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("disconnected")}
	store := jobs.NewStore(nil, jobs.WithObserver(events.Observer(context.Background(), pub, nil)))
	store.Register("9", "a.mp4", time.Now())
	if job, ok := store.Get("9"); !ok || job.Status != jobs.StatusQueued {
		t.Fatalf("store should be unaffected, got %+v", job)
	}
}

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	cfg := config.Default()
	pub, err := events.NewPublisher(&cfg)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	defer pub.Close()
	if err := pub.PublishTransition(context.Background(), events.Transition{JobID: "1", To: "queued"}); err != nil {
		t.Fatalf("noop publish failed: %v", err)
	}
}

func TestConnectFailureIsTransportError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	_, err = events.Connect("nats://"+addr, "courtside.jobs")
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
