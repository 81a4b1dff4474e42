package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

const sessionColumns = `id, created_at, virtual_number, participant_a, participant_b, expires_at`

type PgSessionRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgSessionRepository(db DB, logger *slog.Logger) domain.SessionRepository {
	return &PgSessionRepository{db: db, logger: logger.With("component", "session_repository_pg")}
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(&s.ID, &s.CreatedAt, &s.VirtualNumber, &s.ParticipantA, &s.ParticipantB, &s.ExpiresAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create binds the number and inserts the session in one transaction.
func (r *PgSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE virtual_numbers SET session_id = $1 WHERE value = $2 AND session_id IS NULL`,
			s.ID, s.VirtualNumber)
		if err != nil {
			return fmt.Errorf("reserving virtual number: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrReservationConflict
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			s.ID, s.CreatedAt, s.VirtualNumber, s.ParticipantA, s.ParticipantB, s.ExpiresAt)
		if err != nil {
			if isPgError(err, uniqueViolation) {
				return domain.ErrReservationConflict
			}
			return fmt.Errorf("inserting session: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrReservationConflict) {
			r.logger.WarnContext(ctx, "Virtual number reserved concurrently", "virtual_number", s.VirtualNumber, "session_id", s.ID)
			return err
		}
		r.logger.ErrorContext(ctx, "Error creating session", "session_id", s.ID, "error", err)
		return err
	}
	r.logger.InfoContext(ctx, "Session created", "session_id", s.ID, "virtual_number", s.VirtualNumber)
	return nil
}

func (r *PgSessionRepository) FindByNumber(ctx context.Context, number string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE virtual_number = $1`
	s, err := scanSession(r.db.QueryRow(ctx, query, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		r.logger.ErrorContext(ctx, "Error finding session by number", "virtual_number", number, "error", err)
		return nil, fmt.Errorf("finding session by number: %w", err)
	}
	return s, nil
}

// Delete removes the session and clears the reservation it held in one transaction.
func (r *PgSessionRepository) Delete(ctx context.Context, id string) (*domain.Session, error) {
	var removed *domain.Session
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		s, err := scanSession(tx.QueryRow(ctx,
			`DELETE FROM sessions WHERE id = $1 RETURNING `+sessionColumns, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrSessionNotFound
			}
			return fmt.Errorf("deleting session: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE virtual_numbers SET session_id = NULL WHERE value = $1 AND session_id = $2`,
			s.VirtualNumber, s.ID); err != nil {
			return fmt.Errorf("releasing virtual number: %w", err)
		}
		removed = s
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			r.logger.ErrorContext(ctx, "Error terminating session", "session_id", id, "error", err)
		}
		return nil, err
	}
	r.logger.InfoContext(ctx, "Session terminated", "session_id", id, "virtual_number", removed.VirtualNumber)
	return removed, nil
}

func (r *PgSessionRepository) List(ctx context.Context) ([]domain.Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at`)
}

func (r *PgSessionRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.Session, error) {
	return r.list(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= $1 ORDER BY expires_at`,
		now)
}

func (r *PgSessionRepository) list(ctx context.Context, query string, args ...any) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing sessions", "error", err)
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}
