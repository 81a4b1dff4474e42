package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

// SessionRegistry owns session records and binds them to virtual numbers.
type SessionRegistry struct {
	repo   domain.SessionRepository
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewSessionRegistry(repo domain.SessionRepository, logger *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		repo:   repo,
		logger: logger.With("component", "session_registry"),
		now:    time.Now,
		newID:  newSessionID,
	}
}

// newSessionID returns the 32 hex characters of a random UUID.
func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (r *SessionRegistry) clock() time.Time {
	return r.now().UTC()
}

// Create reserves number for a new session and stores it. expiryMinutes nil
// means the session never expires; zero makes it immediately expired.
func (r *SessionRegistry) Create(ctx context.Context, number, participantA, participantB string, expiryMinutes *int) (*domain.Session, error) {
	if err := domain.ValidateExpiryMinutes(expiryMinutes); err != nil {
		return nil, err
	}
	created := r.clock()
	s := &domain.Session{
		ID:            r.newID(),
		CreatedAt:     created,
		VirtualNumber: number,
		ParticipantA:  participantA,
		ParticipantB:  participantB,
	}
	if expiryMinutes != nil {
		expires := created.Add(time.Duration(*expiryMinutes) * time.Minute)
		s.ExpiresAt = &expires
	}

	if err := r.repo.Create(ctx, s); err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "Session bound",
		"session_id", s.ID, "virtual_number", number,
		"participant_a", participantA, "participant_b", participantB)
	return s, nil
}

func (r *SessionRegistry) LookupByNumber(ctx context.Context, number string) (*domain.Session, error) {
	return r.repo.FindByNumber(ctx, number)
}

// Terminate deletes the session and releases its number. Not idempotent: a
// second call returns ErrSessionNotFound.
func (r *SessionRegistry) Terminate(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := r.repo.Delete(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "Ended session and released virtual number back to pool",
		"session_id", s.ID, "virtual_number", s.VirtualNumber)
	return s, nil
}

func (r *SessionRegistry) ListAll(ctx context.Context) ([]domain.Session, error) {
	return r.repo.List(ctx)
}

func (r *SessionRegistry) ListExpired(ctx context.Context, now time.Time) ([]domain.Session, error) {
	return r.repo.ListExpired(ctx, now)
}
