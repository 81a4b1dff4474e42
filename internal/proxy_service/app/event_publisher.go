package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

// EventPublisher announces session lifecycle changes. Implementations never
// fail the caller; publish errors are logged.
type EventPublisher interface {
	SessionCreated(ctx context.Context, s domain.Session)
	SessionEnded(ctx context.Context, s domain.Session, cause string)
	MessageRelayed(ctx context.Context, s domain.Session, from, to string)
}

// NoopEventPublisher is used when NATS is disabled.
type NoopEventPublisher struct{}

func (NoopEventPublisher) SessionCreated(context.Context, domain.Session) {}
func (NoopEventPublisher) SessionEnded(context.Context, domain.Session, string) {}
func (NoopEventPublisher) MessageRelayed(context.Context, domain.Session, string, string) {}

// Publisher is satisfied by *messagebroker.NATSClient.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// SessionEvent is the JSON payload published on <prefix>.<event>.
type SessionEvent struct {
	Event         string    `json:"event"`
	SessionID     string    `json:"session_id"`
	VirtualNumber string    `json:"virtual_number"`
	ParticipantA  string    `json:"participant_a"`
	ParticipantB  string    `json:"participant_b"`
	Cause         string    `json:"cause,omitempty"`
	From          string    `json:"from,omitempty"`
	To            string    `json:"to,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

const (
	EventSessionCreated = "session.created"
	EventSessionEnded   = "session.ended"
	EventMessageRelayed = "message.relayed"
)

type NATSEventPublisher struct {
	client Publisher
	prefix string
	logger *slog.Logger
}

func NewNATSEventPublisher(client Publisher, prefix string, logger *slog.Logger) *NATSEventPublisher {
	return &NATSEventPublisher{client: client, prefix: prefix, logger: logger.With("component", "event_publisher")}
}

func (p *NATSEventPublisher) SessionCreated(ctx context.Context, s domain.Session) {
	p.publish(ctx, newSessionEvent(EventSessionCreated, s))
}

func (p *NATSEventPublisher) SessionEnded(ctx context.Context, s domain.Session, cause string) {
	evt := newSessionEvent(EventSessionEnded, s)
	evt.Cause = cause
	p.publish(ctx, evt)
}

func (p *NATSEventPublisher) MessageRelayed(ctx context.Context, s domain.Session, from, to string) {
	evt := newSessionEvent(EventMessageRelayed, s)
	evt.From = from
	evt.To = to
	p.publish(ctx, evt)
}

func newSessionEvent(name string, s domain.Session) SessionEvent {
	return SessionEvent{
		Event:         name,
		SessionID:     s.ID,
		VirtualNumber: s.VirtualNumber,
		ParticipantA:  s.ParticipantA,
		ParticipantB:  s.ParticipantB,
		OccurredAt:    time.Now().UTC(),
	}
}

func (p *NATSEventPublisher) publish(ctx context.Context, evt SessionEvent) {
	subject := p.prefix + "." + evt.Event
	data, err := json.Marshal(evt)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to marshal session event", "event", evt.Event, "error", err)
		eventsPublishedCounter.WithLabelValues(evt.Event, "error").Inc()
		return
	}
	if err := p.client.Publish(ctx, subject, data); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish session event", "subject", subject, "session_id", evt.SessionID, "error", err)
		eventsPublishedCounter.WithLabelValues(evt.Event, "error").Inc()
		return
	}
	eventsPublishedCounter.WithLabelValues(evt.Event, "success").Inc()
	p.logger.DebugContext(ctx, "Published session event", "subject", subject, "session_id", evt.SessionID)
}
