package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"courtside/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "ffprobe", "inspect failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"ffprobe", "inspect failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestRemoteErrorClassification(t *testing.T) {
	notFound := &services.RemoteError{Kind: services.ErrServerRejected, Op: "get video", StatusCode: 404, Detail: "Video not found"}
	if !errors.Is(notFound, services.ErrServerRejected) {
		t.Fatal("expected server rejected kind")
	}
	if !errors.Is(notFound, services.ErrNotFound) {
		t.Fatal("expected 404 to match ErrNotFound")
	}
	if notFound.ErrorKind() != "server_rejected" {
		t.Fatalf("unexpected kind %q", notFound.ErrorKind())
	}
	wrapped := fmt.Errorf("refresh: %w", notFound)
	var classifier services.ErrorClassifier
	if !errors.As(wrapped, &classifier) {
		t.Fatal("expected classifier through wrap")
	}

	transport := &services.RemoteError{Kind: services.ErrTransport, Op: "list videos", Err: context.DeadlineExceeded}
	if !errors.Is(transport, context.DeadlineExceeded) {
		t.Fatal("expected cause to be retained")
	}
	if errors.Is(transport, services.ErrNotFound) {
		t.Fatal("transport error must not match ErrNotFound")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", &services.RemoteError{Kind: services.ErrTransport}, true},
		{"server 500", &services.RemoteError{Kind: services.ErrServerRejected, StatusCode: 500}, true},
		{"server 429", &services.RemoteError{Kind: services.ErrServerRejected, StatusCode: 429}, true},
		{"server 400", &services.RemoteError{Kind: services.ErrServerRejected, StatusCode: 400}, false},
		{"unauthorized", &services.RemoteError{Kind: services.ErrUnauthorized, StatusCode: 401}, false},
		{"validation", services.Wrap(services.ErrValidation, "validate", "too large", nil), false},
		{"fetch", services.Wrap(services.ErrFetch, "poll", "exhausted", nil), true},
		{"cancelled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable = %v, want %v", got, tt.want)
			}
		})
	}
}

type detailErr struct{ detail string }

func (e detailErr) Error() string      { return "validation error: " + e.detail }
func (e detailErr) Unwrap() error      { return services.ErrValidation }
func (e detailErr) UserDetail() string { return e.detail }

func TestUserMessageDistinguishesClientAndServerFailures(t *testing.T) {
	fileMsg := services.UserMessage(detailErr{detail: "file is 150.00 MB, limit is 100.00 MB"})
	if !strings.Contains(fileMsg, "file is 150.00 MB") || !strings.Contains(fileMsg, "Choose a video file") {
		t.Fatalf("unexpected validation message %q", fileMsg)
	}

	serverMsg := services.UserMessage(&services.RemoteError{Kind: services.ErrServerRejected, StatusCode: 503, Detail: "maintenance"})
	if !strings.Contains(serverMsg, "server-side") || !strings.Contains(serverMsg, "maintenance") {
		t.Fatalf("unexpected server message %q", serverMsg)
	}
	if serverMsg == fileMsg {
		t.Fatal("expected distinct messages")
	}

	rejected := services.UserMessage(&services.RemoteError{Kind: services.ErrServerRejected, StatusCode: 400, Detail: "File must be a video"})
	if rejected != "The pipeline rejected the request: File must be a video." {
		t.Fatalf("unexpected rejected message %q", rejected)
	}

	authMsg := services.UserMessage(&services.RemoteError{Kind: services.ErrUnauthorized, StatusCode: 401})
	if !strings.Contains(authMsg, "credentials") {
		t.Fatalf("unexpected auth message %q", authMsg)
	}

	fetchMsg := services.UserMessage(services.Wrap(services.ErrFetch, "poll", "3 attempts", nil))
	if !strings.Contains(fetchMsg, "retry later") {
		t.Fatalf("unexpected fetch message %q", fetchMsg)
	}

	transportMsg := services.UserMessage(&services.RemoteError{Kind: services.ErrTransport, Err: errors.New("dial tcp")})
	if !strings.Contains(transportMsg, "Could not reach") {
		t.Fatalf("unexpected transport message %q", transportMsg)
	}

	if services.UserMessage(fmt.Errorf("upload: %w", context.Canceled)) != "Cancelled." {
		t.Fatal("expected cancellation message")
	}
	if services.UserMessage(nil) != "" {
		t.Fatal("expected empty message for nil")
	}
}
