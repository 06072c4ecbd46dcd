package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courtside/internal/config"
	"courtside/internal/jobs"
	"courtside/internal/notifications"
	"courtside/internal/services"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if notifications.IsEnabled(svc) {
		t.Fatal("expected noop service")
	}
	if err := svc.NotifyCompleted(context.Background(), jobs.Job{ID: "1"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	seconds := 125.0
	completed := jobs.Job{ID: "4", SourceName: "semi_final-set2.mp4", Status: jobs.StatusCompleted, ArtifactRef: "x.mp4", ProcessingSeconds: &seconds}

	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "uploaded",
			send: func(s notifications.Service) error {
				return s.NotifyUploaded(context.Background(), jobs.Job{ID: "4", SourceName: "semi_final-set2.mp4"})
			},
			expectTitle:   "Courtside - Uploaded",
			expectMessage: "📤 Submitted for analysis: Semi Final Set2 (job 4)",
			expectTags:    "courtside,upload,submitted",
		},
		{
			name: "completed",
			send: func(s notifications.Service) error {
				return s.NotifyCompleted(context.Background(), completed)
			},
			expectTitle:    "Courtside - Analysis Complete",
			expectMessage:  "✅ Analysis complete: Semi Final Set2\nProcessing time: 2m5s",
			expectTags:     "courtside,analysis,completed",
			expectPriority: "high",
		},
		{
			name: "failed",
			send: func(s notifications.Service) error {
				return s.NotifyFailed(context.Background(), jobs.Job{ID: "5", SourceName: "warmup.mov", Status: jobs.StatusFailed})
			},
			expectTitle:    "Courtside - Processing Failed",
			expectMessage:  "❌ Processing failed: Warmup (job 5)",
			expectTags:     "courtside,analysis,failed",
			expectPriority: "high",
		},
		{
			name: "watch abandoned",
			send: func(s notifications.Service) error {
				return s.NotifyWatchAbandoned(context.Background(), "6", &services.RemoteError{Kind: services.ErrTransport})
			},
			expectTitle:   "Courtside - Tracking Stopped",
			expectMessage: "⚠️ Stopped tracking job 6: Could not reach the analysis pipeline. Check the connection or api.base_url and retry later.",
			expectTags:    "courtside,watch,error",
		},
		{
			name: "test",
			send: func(s notifications.Service) error {
				return s.TestNotification(context.Background())
			},
			expectTitle:    "Courtside - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "courtside,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			if err := tc.send(notifications.NewService(&cfg)); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed notification: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Uploads = false
	cfg.Notifications.Completions = false
	cfg.Notifications.Failures = false

	svc := notifications.NewService(&cfg)
	ctx := context.Background()
	job := jobs.Job{ID: "1", SourceName: "a.mp4", Status: jobs.StatusCompleted, ArtifactRef: "b.mp4"}
	for _, err := range []error{
		svc.NotifyUploaded(ctx, job),
		svc.NotifyCompleted(ctx, job),
		svc.NotifyFailed(ctx, job),
		svc.NotifyWatchAbandoned(ctx, "1", nil),
	} {
		if err != nil {
			t.Fatalf("expected suppressed notification to return nil, got %v", err)
		}
	}
}

func TestNtfyServiceReportsRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic reserved", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.RequestTimeout = int((2 * time.Second).Seconds())

	err := notifications.NewService(&cfg).TestNotification(context.Background())
	var remote *services.RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusForbidden || remote.Detail != "topic reserved" {
		t.Fatalf("unexpected error %v", err)
	}
}
