package domain

import (
	"context"
	"time"
)

// NumberRepository persists the virtual number pool.
type NumberRepository interface {
	// FindAvailable returns any number without a reservation, or ErrPoolExhausted.
	FindAvailable(ctx context.Context) (*VirtualNumber, error)
	// Create inserts an unreserved number. ErrDuplicateNumber if it exists.
	Create(ctx context.Context, value string) (*VirtualNumber, error)
	// ClearReservation unconditionally unreserves value. ErrNumberNotFound if absent.
	ClearReservation(ctx context.Context, value string) error
	// Delete removes an unreserved number. ErrNumberInUse or ErrNumberNotFound otherwise.
	Delete(ctx context.Context, value string) error
	// List returns every number with its reservation state.
	List(ctx context.Context) ([]VirtualNumber, error)
}

// SessionRepository persists sessions. Create and Delete touch the bound number
// in the same transaction.
type SessionRepository interface {
	// Create reserves s.VirtualNumber for s.ID and inserts s atomically.
	// ErrReservationConflict if the number is no longer unreserved.
	Create(ctx context.Context, s *Session) error
	// FindByNumber returns the live session bound to number, or ErrSessionNotFound.
	FindByNumber(ctx context.Context, number string) (*Session, error)
	// Delete removes the session and clears its number's reservation atomically,
	// returning the removed row. ErrSessionNotFound if absent.
	Delete(ctx context.Context, id string) (*Session, error)
	// List returns all live sessions.
	List(ctx context.Context) ([]Session, error)
	// ListExpired returns sessions whose expiry is at or before now.
	ListExpired(ctx context.Context, now time.Time) ([]Session, error)
}
