package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

const defaultCreateMaxAttempts = 3

// CreateSessionRequest is the input to SessionLifecycle.Create.
// ExpiryMinutes nil means no expiry.
type CreateSessionRequest struct {
	ParticipantA  string
	ParticipantB  string
	ExpiryMinutes *int
}

// InboundMessage is an SMS received on a virtual number.
type InboundMessage struct {
	To   string
	From string
	Body string
}

// SessionLifecycle orchestrates session creation, termination and inbound
// message handling across the pool, registry, router and notifier.
type SessionLifecycle struct {
	pool        *NumberPool
	registry    *SessionRegistry
	reaper      *ExpiryReaper
	router      *MessageRouter
	notifier    *Notifier
	publisher   EventPublisher
	maxAttempts int
	logger      *slog.Logger
}

func NewSessionLifecycle(
	pool *NumberPool,
	registry *SessionRegistry,
	reaper *ExpiryReaper,
	router *MessageRouter,
	notifier *Notifier,
	publisher EventPublisher,
	maxAttempts int,
	logger *slog.Logger,
) *SessionLifecycle {
	if maxAttempts <= 0 {
		maxAttempts = defaultCreateMaxAttempts
	}
	if publisher == nil {
		publisher = NoopEventPublisher{}
	}
	return &SessionLifecycle{
		pool:        pool,
		registry:    registry,
		reaper:      reaper,
		router:      router,
		notifier:    notifier,
		publisher:   publisher,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "session_lifecycle"),
	}
}

func validateCreate(req CreateSessionRequest) error {
	if err := domain.ValidatePhoneIdentifier("participant_a", req.ParticipantA); err != nil {
		return err
	}
	if err := domain.ValidatePhoneIdentifier("participant_b", req.ParticipantB); err != nil {
		return err
	}
	if req.ParticipantA == req.ParticipantB {
		return domain.ErrSameParticipant
	}
	return domain.ValidateExpiryMinutes(req.ExpiryMinutes)
}

// Create sweeps expired sessions, binds a free number to a new session and
// sends the start notice. If the notice cannot be delivered the session is
// terminated again and a *domain.DispatchError is returned.
func (l *SessionLifecycle) Create(ctx context.Context, req CreateSessionRequest) (*domain.Session, error) {
	if err := validateCreate(req); err != nil {
		sessionsCreatedCounter.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if res := l.reaper.Sweep(ctx); res.Err != nil {
		l.logger.WarnContext(ctx, "Sweep before session creation reported failures", "error", res.Err)
	}

	s, err := l.bind(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPoolExhausted):
			l.logger.InfoContext(ctx, "Could not create session, no virtual numbers available")
			sessionsCreatedCounter.WithLabelValues("pool_exhausted").Inc()
		case errors.Is(err, domain.ErrReservationConflict):
			sessionsCreatedCounter.WithLabelValues("reservation_conflict").Inc()
		default:
			sessionsCreatedCounter.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	if err := l.notifier.NotifyStarted(ctx, *s); err != nil {
		sessionsCreatedCounter.WithLabelValues("dispatch_failed").Inc()
		return nil, l.compensate(ctx, s, err)
	}

	sessionsCreatedCounter.WithLabelValues("success").Inc()
	l.publisher.SessionCreated(ctx, *s)
	l.logger.InfoContext(ctx, "Session started",
		"session_id", s.ID, "virtual_number", s.VirtualNumber,
		"participant_a", s.ParticipantA, "participant_b", s.ParticipantB)
	return s, nil
}

// bind acquires a candidate and reserves it, retrying when another request
// wins the race for the same number.
func (l *SessionLifecycle) bind(ctx context.Context, req CreateSessionRequest) (*domain.Session, error) {
	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		n, err := l.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		s, err := l.registry.Create(ctx, n.Value, req.ParticipantA, req.ParticipantB, req.ExpiryMinutes)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, domain.ErrReservationConflict) {
			return nil, err
		}
		reservationConflictsCounter.Inc()
		l.logger.WarnContext(ctx, "Lost race for virtual number, retrying",
			"virtual_number", n.Value, "attempt", attempt, "max_attempts", l.maxAttempts)
		lastErr = err
	}
	return nil, lastErr
}

func (l *SessionLifecycle) compensate(ctx context.Context, s *domain.Session, dispatchErr error) error {
	l.logger.WarnContext(ctx, "Start notice failed, rolling back session", "session_id", s.ID, "error", dispatchErr)
	if _, err := l.registry.Terminate(context.WithoutCancel(ctx), s.ID); err != nil {
		l.logger.ErrorContext(ctx, "Rollback of session failed", "session_id", s.ID, "error", err)
		return errors.Join(dispatchErr, fmt.Errorf("rolling back session %s: %w", s.ID, err))
	}
	sessionsTerminatedCounter.WithLabelValues("compensation").Inc()
	return dispatchErr
}

// Terminate ends a session and sends the end notice. A notice failure is
// returned as *domain.DispatchError together with the ended session; the
// termination stands.
func (l *SessionLifecycle) Terminate(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, domain.NewValidationError("session_id is required")
	}
	s, err := l.registry.Terminate(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			l.logger.InfoContext(ctx, "Could not delete session because it does not exist", "session_id", sessionID)
		}
		return nil, err
	}
	sessionsTerminatedCounter.WithLabelValues("explicit").Inc()
	l.publisher.SessionEnded(ctx, *s, "explicit")

	if err := l.notifier.NotifyEnded(ctx, *s); err != nil {
		return s, err
	}
	return s, nil
}

// List returns every stored session, including expired ones not yet swept.
func (l *SessionLifecycle) List(ctx context.Context) ([]domain.Session, error) {
	return l.registry.ListAll(ctx)
}

// HandleInbound routes msg and performs the resulting dispatch: the relay to
// the counterpart, the end notices, or the no-session notice to the sender.
func (l *SessionLifecycle) HandleInbound(ctx context.Context, msg InboundMessage) (Decision, error) {
	if err := domain.ValidatePhoneIdentifier("to", msg.To); err != nil {
		return Decision{}, err
	}
	if err := domain.ValidatePhoneIdentifier("from", msg.From); err != nil {
		return Decision{}, err
	}

	d, err := l.router.Route(ctx, msg.To, msg.From, msg.Body)
	if err != nil {
		return Decision{}, err
	}

	switch d.Kind {
	case DecisionRelay:
		if err := l.notifier.Relay(ctx, *d.Session, d.To, d.Body); err != nil {
			return d, err
		}
		l.publisher.MessageRelayed(ctx, *d.Session, msg.From, d.To)
		l.logger.InfoContext(ctx, "Proxied message", "session_id", d.Session.ID, "from", msg.From, "to", d.To)
	case DecisionTerminated:
		l.publisher.SessionEnded(ctx, *d.Session, "trigger")
		if err := l.notifier.NotifyEnded(ctx, *d.Session); err != nil {
			return d, err
		}
	case DecisionUnroutable:
		if err := l.notifier.NotifyNoSession(ctx, msg.From, msg.To); err != nil {
			return d, err
		}
		l.logger.InfoContext(ctx, "Session not found, or sender is not authorized to participate",
			"sender", msg.From, "virtual_number", msg.To, "reason", d.Reason)
	}
	return d, nil
}

