package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"courtside/internal/config"
	"courtside/internal/jobs"
	"courtside/internal/services"
)

const userAgent = "Courtside/0.1.0"

// Service defines the notification surface used by the CLI.
type Service interface {
	NotifyUploaded(ctx context.Context, job jobs.Job) error
	NotifyCompleted(ctx context.Context, job jobs.Job) error
	NotifyFailed(ctx context.Context, job jobs.Job) error
	NotifyWatchAbandoned(ctx context.Context, jobID string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		uploads:     cfg.Notifications.Uploads,
		completions: cfg.Notifications.Completions,
		failures:    cfg.Notifications.Failures,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client

	uploads     bool
	completions bool
	failures    bool
}

func (n *ntfyService) NotifyUploaded(ctx context.Context, job jobs.Job) error {
	if !n.uploads {
		return nil
	}
	data := payload{
		title:   "Courtside - Uploaded",
		message: fmt.Sprintf("📤 Submitted for analysis: %s (job %s)", job.DisplayTitle(), job.ID),
		tags:    []string{"courtside", "upload", "submitted"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCompleted(ctx context.Context, job jobs.Job) error {
	if !n.completions {
		return nil
	}
	message := fmt.Sprintf("✅ Analysis complete: %s", job.DisplayTitle())
	if elapsed, ok := job.ProcessingDuration(); ok {
		message = fmt.Sprintf("%s\nProcessing time: %s", message, elapsed.Round(time.Second))
	}
	data := payload{
		title:    "Courtside - Analysis Complete",
		message:  message,
		tags:     []string{"courtside", "analysis", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyFailed(ctx context.Context, job jobs.Job) error {
	if !n.failures {
		return nil
	}
	data := payload{
		title:    "Courtside - Processing Failed",
		message:  fmt.Sprintf("❌ Processing failed: %s (job %s)", job.DisplayTitle(), job.ID),
		tags:     []string{"courtside", "analysis", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyWatchAbandoned(ctx context.Context, jobID string, err error) error {
	if !n.failures {
		return nil
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "⚠️ Stopped tracking job %s", strings.TrimSpace(jobID))
	if err != nil {
		builder.WriteString(": ")
		builder.WriteString(services.UserMessage(err))
	}
	data := payload{
		title:   "Courtside - Tracking Stopped",
		message: builder.String(),
		tags:    []string{"courtside", "watch", "error"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Courtside - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"courtside", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransport, "ntfy", "send notification", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &services.RemoteError{
			Kind:       services.ErrServerRejected,
			Op:         "ntfy",
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(body)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyUploaded(context.Context, jobs.Job) error            { return nil }
func (noopService) NotifyCompleted(context.Context, jobs.Job) error           { return nil }
func (noopService) NotifyFailed(context.Context, jobs.Job) error              { return nil }
func (noopService) NotifyWatchAbandoned(context.Context, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }

// IsEnabled reports whether svc delivers notifications.
func IsEnabled(svc Service) bool {
	_, noop := svc.(noopService)
	return svc != nil && !noop
}
