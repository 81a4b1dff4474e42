package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

type DecisionKind string

const (
	DecisionRelay      DecisionKind = "relay"
	DecisionTerminated DecisionKind = "terminated"
	DecisionUnroutable DecisionKind = "unroutable"
)

// Reasons carried by an unroutable decision.
const (
	ReasonNoSession       = "no_session"
	ReasonNotAParticipant = "not_a_participant"
)

// Decision is the outcome of routing one inbound message. To, From and Body
// are set for DecisionRelay; Session is set for relay and terminated
// decisions; Reason is set for DecisionUnroutable.
type Decision struct {
	Kind    DecisionKind
	To      string
	From    string
	Body    string
	Session *domain.Session
	Reason  string
}

// MessageRouter resolves an inbound message to its counterpart. It never
// dispatches anything itself.
type MessageRouter struct {
	registry   *SessionRegistry
	reaper     *ExpiryReaper
	endTrigger string
	logger     *slog.Logger
}

// NewMessageRouter builds a router. An empty endTrigger disables
// participant-initiated termination.
func NewMessageRouter(registry *SessionRegistry, reaper *ExpiryReaper, endTrigger string, logger *slog.Logger) *MessageRouter {
	return &MessageRouter{
		registry:   registry,
		reaper:     reaper,
		endTrigger: endTrigger,
		logger:     logger.With("component", "message_router"),
	}
}

func (r *MessageRouter) Route(ctx context.Context, number, sender, body string) (Decision, error) {
	if res := r.reaper.Sweep(ctx); res.Err != nil {
		r.logger.WarnContext(ctx, "Sweep before routing reported failures", "error", res.Err)
	}

	s, err := r.registry.LookupByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			r.logger.InfoContext(ctx, "A session with this virtual number could not be found", "virtual_number", number)
			messagesRoutedCounter.WithLabelValues(ReasonNoSession).Inc()
			return Decision{Kind: DecisionUnroutable, Reason: ReasonNoSession}, nil
		}
		return Decision{}, err
	}

	counterpart, ok := s.Counterpart(sender)
	if !ok {
		r.logger.InfoContext(ctx, "Sender is not a participant of the session", "sender", sender, "session_id", s.ID)
		messagesRoutedCounter.WithLabelValues(ReasonNotAParticipant).Inc()
		return Decision{Kind: DecisionUnroutable, Reason: ReasonNotAParticipant}, nil
	}

	if r.endTrigger != "" && body == r.endTrigger {
		ended, err := r.registry.Terminate(ctx, s.ID)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				// Ended concurrently between lookup and terminate.
				messagesRoutedCounter.WithLabelValues(ReasonNoSession).Inc()
				return Decision{Kind: DecisionUnroutable, Reason: ReasonNoSession}, nil
			}
			return Decision{}, err
		}
		sessionsTerminatedCounter.WithLabelValues("trigger").Inc()
		messagesRoutedCounter.WithLabelValues(string(DecisionTerminated)).Inc()
		return Decision{Kind: DecisionTerminated, Session: ended}, nil
	}

	messagesRoutedCounter.WithLabelValues(string(DecisionRelay)).Inc()
	return Decision{Kind: DecisionRelay, To: counterpart, From: number, Body: body, Session: s}, nil
}
