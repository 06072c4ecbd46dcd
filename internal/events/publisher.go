package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"courtside/internal/config"
	"courtside/internal/jobs"
	"courtside/internal/logging"
	"courtside/internal/services"
)

// Transition is the published form of a job status change.
type Transition struct {
	JobID             string   `json:"job_id"`
	SourceName        string   `json:"source_name,omitempty"`
	From              string   `json:"from,omitempty"`
	To                string   `json:"to"`
	ArtifactRef       string   `json:"artifact_ref,omitempty"`
	ProcessingSeconds *float64 `json:"processing_seconds,omitempty"`
	At                string   `json:"at"`
}

// FromChange builds a Transition from a store change.
func FromChange(change jobs.Change, at time.Time) Transition {
	t := Transition{
		JobID:             change.Current.ID,
		SourceName:        change.Current.SourceName,
		To:                string(change.Current.Status),
		ArtifactRef:       change.Current.ArtifactRef,
		ProcessingSeconds: change.Current.ProcessingSeconds,
		At:                at.UTC().Format(time.RFC3339Nano),
	}
	if !change.Created {
		t.From = string(change.Previous.Status)
	}
	return t
}

// Publisher emits job transitions.
type Publisher interface {
	PublishTransition(ctx context.Context, t Transition) error
	Close()
}

// NewPublisher connects to the configured NATS server, or returns a no-op
// publisher when none is configured.
func NewPublisher(cfg *config.Config) (Publisher, error) {
	if cfg == nil || strings.TrimSpace(cfg.Events.NATSURL) == "" {
		return noopPublisher{}, nil
	}
	return Connect(cfg.Events.NATSURL, cfg.Events.Subject)
}

// NATSPublisher publishes transitions on a NATS connection.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// Connect dials url and publishes under subject.
func Connect(url, subject string, opts ...nats.Option) (*NATSPublisher, error) {
	base := []nats.Option{
		nats.Name("courtside"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
	}
	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "nats", "connect "+url, err)
	}
	return &NATSPublisher{nc: nc, subject: strings.Trim(subject, ".")}, nil
}

// Subject returns the subject a transition is published on.
func (p *NATSPublisher) Subject(t Transition) string {
	return Subject(p.subject, t)
}

// Subject joins the base subject and the transition's target status.
func Subject(base string, t Transition) string {
	base = strings.Trim(strings.TrimSpace(base), ".")
	if base == "" {
		return t.To
	}
	return base + "." + t.To
}

// PublishTransition publishes t and waits for the server to acknowledge the
// flush so a short-lived CLI invocation does not drop it.
func (p *NATSPublisher) PublishTransition(ctx context.Context, t Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transition: %w", err)
	}
	msg := nats.NewMsg(p.Subject(t))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, t.JobID+":"+t.To)
	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		msg.Header.Set("X-Request-ID", requestID)
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return services.Wrap(services.ErrTransport, "nats", "publish "+msg.Subject, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return services.Wrap(services.ErrTransport, "nats", "flush", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p != nil && p.nc != nil {
		_ = p.nc.Drain()
	}
}

// Observer adapts a publisher to a jobs.Store observer. Only status
// transitions are published; failures are logged and never interrupt job
// tracking.
func Observer(ctx context.Context, publisher Publisher, logger *slog.Logger) func(jobs.Change) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "events")
	return func(change jobs.Change) {
		if !change.Transitioned() {
			return
		}
		t := FromChange(change, time.Now())
		if err := publisher.PublishTransition(ctx, t); err != nil {
			logging.WarnWithContext(logger, "event publish failed", "event_publish_failed",
				logging.String(logging.FieldJobID, t.JobID),
				logging.String("to", t.To),
				logging.Error(err),
				logging.String(logging.FieldImpact, "downstream consumers miss this transition"),
			)
		}
	}
}

type noopPublisher struct{}

func (noopPublisher) PublishTransition(context.Context, Transition) error { return nil }
func (noopPublisher) Close()                                              {}
