package memory

import (
	"sync"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

// state is shared by both sub-stores so that a session bind or release and
// the number update happen under one lock.
type state struct {
	sync.RWMutex
	numbers  map[string]domain.VirtualNumber
	sessions map[string]domain.Session
	byNumber map[string]string // virtual number -> session id
}

// Store holds the memory-based sub-stores.
type Store struct {
	numbers  *numberStore
	sessions *sessionStore
}

// NewStore creates an empty memory-based store.
func NewStore() *Store {
	st := &state{
		numbers:  make(map[string]domain.VirtualNumber),
		sessions: make(map[string]domain.Session),
		byNumber: make(map[string]string),
	}
	return &Store{
		numbers:  &numberStore{st: st},
		sessions: &sessionStore{st: st},
	}
}

// Numbers returns the sub-store for the virtual number pool.
func (s *Store) Numbers() domain.NumberRepository {
	return s.numbers
}

// Sessions returns the sub-store for sessions.
func (s *Store) Sessions() domain.SessionRepository {
	return s.sessions
}
