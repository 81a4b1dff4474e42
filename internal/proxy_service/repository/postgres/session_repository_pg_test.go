package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

var (
	reserveQuery       = regexp.QuoteMeta(`UPDATE virtual_numbers SET session_id = $1 WHERE value = $2 AND session_id IS NULL`)
	insertSessionQuery = regexp.QuoteMeta(`INSERT INTO sessions (id, created_at, virtual_number, participant_a, participant_b, expires_at) VALUES ($1, $2, $3, $4, $5, $6)`)
	deleteSessionQuery = regexp.QuoteMeta(`DELETE FROM sessions WHERE id = $1 RETURNING id, created_at, virtual_number, participant_a, participant_b, expires_at`)
	releaseQuery       = regexp.QuoteMeta(`UPDATE virtual_numbers SET session_id = NULL WHERE value = $1 AND session_id = $2`)
	sessionCols        = []string{"id", "created_at", "virtual_number", "participant_a", "participant_b", "expires_at"}
)

func newTestSession() *domain.Session {
	expires := time.Date(2024, 1, 2, 4, 4, 5, 0, time.UTC)
	return &domain.Session{
		ID:            "5f1d0b6a9c6e4f3c8d7b2a1e0f9c8b7a",
		CreatedAt:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		VirtualNumber: "12065551234",
		ParticipantA:  "15555550100",
		ParticipantB:  "15555550101",
		ExpiresAt:     &expires,
	}
}

// pgx.BeginFunc issues a trailing Rollback after Commit, and a second one
// after an explicit Rollback; both are no-ops on a real connection.
func expectCommit(mockPool pgxmock.PgxPoolIface) {
	mockPool.ExpectCommit()
	mockPool.ExpectRollback()
}

func expectRollback(mockPool pgxmock.PgxPoolIface) {
	mockPool.ExpectRollback()
	mockPool.ExpectRollback()
}

func TestPgSessionRepository_Create(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgSessionRepository(mockPool, testLogger())
		s := newTestSession()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(reserveQuery).WithArgs(s.ID, s.VirtualNumber).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectExec(insertSessionQuery).
			WithArgs(s.ID, s.CreatedAt, s.VirtualNumber, s.ParticipantA, s.ParticipantB, s.ExpiresAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		expectCommit(mockPool)

		assert.NoError(t, repo.Create(context.Background(), s))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NumberAlreadyReserved", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgSessionRepository(mockPool, testLogger())
		s := newTestSession()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(reserveQuery).WithArgs(s.ID, s.VirtualNumber).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		expectRollback(mockPool)

		assert.ErrorIs(t, repo.Create(context.Background(), s), domain.ErrReservationConflict)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("UniqueViolationOnInsert", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgSessionRepository(mockPool, testLogger())
		s := newTestSession()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(reserveQuery).WithArgs(s.ID, s.VirtualNumber).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectExec(insertSessionQuery).
			WithArgs(s.ID, s.CreatedAt, s.VirtualNumber, s.ParticipantA, s.ParticipantB, s.ExpiresAt).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		expectRollback(mockPool)

		assert.ErrorIs(t, repo.Create(context.Background(), s), domain.ErrReservationConflict)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("InsertFails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgSessionRepository(mockPool, testLogger())
		s := newTestSession()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(reserveQuery).WithArgs(s.ID, s.VirtualNumber).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockPool.ExpectExec(insertSessionQuery).
			WithArgs(s.ID, s.CreatedAt, s.VirtualNumber, s.ParticipantA, s.ParticipantB, s.ExpiresAt).
			WillReturnError(errors.New("disk full"))
		expectRollback(mockPool)

		err = repo.Create(context.Background(), s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Equal(t, domain.KindInternal, domain.KindOf(err))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgSessionRepository_FindByNumber(t *testing.T) {
	query := regexp.QuoteMeta(`SELECT id, created_at, virtual_number, participant_a, participant_b, expires_at FROM sessions WHERE virtual_number = $1`)

	t.Run("Found", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgSessionRepository(mockPool, testLogger())
		s := newTestSession()

		mockPool.ExpectQuery(query).WithArgs(s.VirtualNumber).WillReturnRows(
			mockPool.NewRows(sessionCols).AddRow(s.ID, s.CreatedAt, s.VirtualNumber, s.ParticipantA, s.ParticipantB, s.ExpiresAt))

		got, err := repo.FindByNumber(context.Background(), s.VirtualNumber)
		require.NoError(t, err)
		assert.Equal(t, s, got)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgSessionRepository(mockPool, testLogger())

		mockPool.ExpectQuery(query).WithArgs("12065550000").WillReturnError(pgx.ErrNoRows)

		got, err := repo.FindByNumber(context.Background(), "12065550000")
		assert.Nil(t, got)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgSessionRepository_Delete(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgSessionRepository(mockPool, testLogger())
		s := newTestSession()

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(deleteSessionQuery).WithArgs(s.ID).WillReturnRows(
			mockPool.NewRows(sessionCols).AddRow(s.ID, s.CreatedAt, s.VirtualNumber, s.ParticipantA, s.ParticipantB, s.ExpiresAt))
		mockPool.ExpectExec(releaseQuery).WithArgs(s.VirtualNumber, s.ID).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		expectCommit(mockPool)

		removed, err := repo.Delete(context.Background(), s.ID)
		require.NoError(t, err)
		assert.Equal(t, s, removed)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgSessionRepository(mockPool, testLogger())

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(deleteSessionQuery).WithArgs("missing").WillReturnError(pgx.ErrNoRows)
		expectRollback(mockPool)

		removed, err := repo.Delete(context.Background(), "missing")
		assert.Nil(t, removed)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("ReleaseFailsRollsBack", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewPgSessionRepository(mockPool, testLogger())
		s := newTestSession()

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(deleteSessionQuery).WithArgs(s.ID).WillReturnRows(
			mockPool.NewRows(sessionCols).AddRow(s.ID, s.CreatedAt, s.VirtualNumber, s.ParticipantA, s.ParticipantB, s.ExpiresAt))
		mockPool.ExpectExec(releaseQuery).WithArgs(s.VirtualNumber, s.ID).WillReturnError(errors.New("lock timeout"))
		expectRollback(mockPool)

		removed, err := repo.Delete(context.Background(), s.ID)
		assert.Nil(t, removed)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lock timeout")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgSessionRepository_ListExpired(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewPgSessionRepository(mockPool, testLogger())
	s := newTestSession()
	now := s.ExpiresAt.Add(time.Minute)

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT id, created_at, virtual_number, participant_a, participant_b, expires_at FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= $1 ORDER BY expires_at`)).
		WithArgs(now).
		WillReturnRows(mockPool.NewRows(sessionCols).AddRow(s.ID, s.CreatedAt, s.VirtualNumber, s.ParticipantA, s.ParticipantB, s.ExpiresAt))

	expired, err := repo.ListExpired(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, s.ID, expired[0].ID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgSessionRepository_List(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewPgSessionRepository(mockPool, testLogger())
	s := newTestSession()

	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT id, created_at, virtual_number, participant_a, participant_b, expires_at FROM sessions ORDER BY created_at`)).
		WillReturnRows(mockPool.NewRows(sessionCols).
			AddRow(s.ID, s.CreatedAt, s.VirtualNumber, s.ParticipantA, s.ParticipantB, s.ExpiresAt).
			AddRow("other", s.CreatedAt, "12065555678", "1", "2", (*time.Time)(nil)))

	sessions, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.NotNil(t, sessions[0].ExpiresAt)
	assert.Nil(t, sessions[1].ExpiresAt)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
