package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

type PgNumberRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgNumberRepository(db DB, logger *slog.Logger) domain.NumberRepository {
	return &PgNumberRepository{db: db, logger: logger.With("component", "number_repository_pg")}
}

func (r *PgNumberRepository) FindAvailable(ctx context.Context) (*domain.VirtualNumber, error) {
	query := `SELECT value, session_id, created_at FROM virtual_numbers
		WHERE session_id IS NULL
		AND NOT EXISTS (SELECT 1 FROM sessions s WHERE s.virtual_number = virtual_numbers.value)
		ORDER BY random() LIMIT 1`
	var n domain.VirtualNumber
	err := r.db.QueryRow(ctx, query).Scan(&n.Value, &n.SessionID, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPoolExhausted
		}
		r.logger.ErrorContext(ctx, "Error finding available virtual number", "error", err)
		return nil, fmt.Errorf("finding available virtual number: %w", err)
	}
	return &n, nil
}

func (r *PgNumberRepository) Create(ctx context.Context, value string) (*domain.VirtualNumber, error) {
	query := `INSERT INTO virtual_numbers (value) VALUES ($1) RETURNING created_at`
	n := domain.VirtualNumber{Value: value}
	if err := r.db.QueryRow(ctx, query, value).Scan(&n.CreatedAt); err != nil {
		if isPgError(err, uniqueViolation) {
			return nil, domain.ErrDuplicateNumber
		}
		r.logger.ErrorContext(ctx, "Error inserting virtual number", "value", value, "error", err)
		return nil, fmt.Errorf("inserting virtual number: %w", err)
	}
	r.logger.InfoContext(ctx, "Virtual number added", "value", value)
	return &n, nil
}

func (r *PgNumberRepository) ClearReservation(ctx context.Context, value string) error {
	query := `UPDATE virtual_numbers SET session_id = NULL WHERE value = $1`
	tag, err := r.db.Exec(ctx, query, value)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error clearing reservation", "value", value, "error", err)
		return fmt.Errorf("clearing reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNumberNotFound
	}
	return nil
}

func (r *PgNumberRepository) Delete(ctx context.Context, value string) error {
	query := `DELETE FROM virtual_numbers WHERE value = $1 AND session_id IS NULL`
	tag, err := r.db.Exec(ctx, query, value)
	if err != nil {
		if isPgError(err, foreignKeyViolation) {
			return domain.ErrNumberInUse
		}
		r.logger.ErrorContext(ctx, "Error deleting virtual number", "value", value, "error", err)
		return fmt.Errorf("deleting virtual number: %w", err)
	}
	if tag.RowsAffected() > 0 {
		r.logger.InfoContext(ctx, "Virtual number removed", "value", value)
		return nil
	}

	// Nothing deleted: either absent or reserved.
	var sessionID *string
	err = r.db.QueryRow(ctx, `SELECT session_id FROM virtual_numbers WHERE value = $1`, value).Scan(&sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNumberNotFound
		}
		return fmt.Errorf("checking virtual number after delete: %w", err)
	}
	r.logger.WarnContext(ctx, "Refusing to remove reserved virtual number", "value", value, "session_id", sessionID)
	if sessionID != nil {
		return fmt.Errorf("%w: session %s", domain.ErrNumberInUse, *sessionID)
	}
	return domain.ErrNumberInUse
}

func (r *PgNumberRepository) List(ctx context.Context) ([]domain.VirtualNumber, error) {
	query := `SELECT value, session_id, created_at FROM virtual_numbers ORDER BY value`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing virtual numbers", "error", err)
		return nil, fmt.Errorf("listing virtual numbers: %w", err)
	}
	defer rows.Close()

	numbers := []domain.VirtualNumber{}
	for rows.Next() {
		var n domain.VirtualNumber
		if err := rows.Scan(&n.Value, &n.SessionID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning virtual number: %w", err)
		}
		numbers = append(numbers, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating virtual numbers: %w", err)
	}
	return numbers, nil
}
