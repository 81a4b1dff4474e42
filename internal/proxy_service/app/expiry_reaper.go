package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

// SessionEndNotifier is told about every session the reaper ends.
type SessionEndNotifier interface {
	NotifyEnded(ctx context.Context, s domain.Session) error
}

// SweepResult lists what a sweep terminated and the per-session failures.
type SweepResult struct {
	Terminated []domain.Session
	Err        error
}

// ExpiryReaper terminates expired sessions on demand. There is no background
// timer; callers sweep before they allocate or route.
type ExpiryReaper struct {
	registry  *SessionRegistry
	notifier  SessionEndNotifier
	publisher EventPublisher
	logger    *slog.Logger
}

func NewExpiryReaper(registry *SessionRegistry, notifier SessionEndNotifier, publisher EventPublisher, logger *slog.Logger) *ExpiryReaper {
	if publisher == nil {
		publisher = NoopEventPublisher{}
	}
	return &ExpiryReaper{
		registry:  registry,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger.With("component", "expiry_reaper"),
	}
}

// Sweep terminates every session whose expiry is at or before now. One failed
// termination does not stop the others; a session another caller already
// ended is skipped silently.
func (r *ExpiryReaper) Sweep(ctx context.Context) SweepResult {
	start := time.Now()
	defer func() { sweepDurationHist.Observe(time.Since(start).Seconds()) }()

	now := r.registry.clock()
	expired, err := r.registry.ListExpired(ctx, now)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list expired sessions", "error", err)
		return SweepResult{Err: fmt.Errorf("listing expired sessions: %w", err)}
	}

	var (
		result SweepResult
		errs   []error
	)
	for _, s := range expired {
		ended, err := r.registry.Terminate(ctx, s.ID)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				continue
			}
			r.logger.ErrorContext(ctx, "Failed to terminate expired session", "session_id", s.ID, "error", err)
			errs = append(errs, fmt.Errorf("terminating session %s: %w", s.ID, err))
			continue
		}
		sessionsTerminatedCounter.WithLabelValues("expired").Inc()
		result.Terminated = append(result.Terminated, *ended)
		r.publisher.SessionEnded(ctx, *ended, "expired")

		if r.notifier != nil {
			if err := r.notifier.NotifyEnded(ctx, *ended); err != nil {
				r.logger.WarnContext(ctx, "End notice for expired session failed", "session_id", ended.ID, "error", err)
			}
		}
	}
	result.Err = errors.Join(errs...)

	if len(result.Terminated) > 0 {
		r.logger.InfoContext(ctx, "Expired sessions reaped", "count", len(result.Terminated), "now", now)
	}
	return result
}
