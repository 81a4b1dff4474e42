package memory

import (
	"context"
	"sort"
	"time"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

type sessionStore struct {
	st *state
}

func (s *sessionStore) Create(_ context.Context, m *domain.Session) error {
	s.st.Lock()
	defer s.st.Unlock()

	n, ok := s.st.numbers[m.VirtualNumber]
	if !ok || !n.Available() {
		return domain.ErrReservationConflict
	}
	if _, bound := s.st.byNumber[m.VirtualNumber]; bound {
		return domain.ErrReservationConflict
	}
	if _, exists := s.st.sessions[m.ID]; exists {
		return domain.ErrReservationConflict
	}

	id := m.ID
	n.SessionID = &id
	s.st.numbers[n.Value] = n
	s.st.sessions[m.ID] = *m
	s.st.byNumber[m.VirtualNumber] = m.ID
	return nil
}

func (s *sessionStore) FindByNumber(_ context.Context, number string) (*domain.Session, error) {
	s.st.RLock()
	defer s.st.RUnlock()

	id, ok := s.st.byNumber[number]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	m := s.st.sessions[id]
	return &m, nil
}

func (s *sessionStore) Delete(_ context.Context, id string) (*domain.Session, error) {
	s.st.Lock()
	defer s.st.Unlock()

	m, ok := s.st.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	delete(s.st.sessions, id)
	delete(s.st.byNumber, m.VirtualNumber)

	if n, ok := s.st.numbers[m.VirtualNumber]; ok && n.SessionID != nil && *n.SessionID == id {
		n.SessionID = nil
		s.st.numbers[n.Value] = n
	}
	return &m, nil
}

func (s *sessionStore) List(_ context.Context) ([]domain.Session, error) {
	return s.filter(func(domain.Session) bool { return true }), nil
}

func (s *sessionStore) ListExpired(_ context.Context, now time.Time) ([]domain.Session, error) {
	return s.filter(func(m domain.Session) bool { return m.Expired(now) }), nil
}

func (s *sessionStore) filter(keep func(domain.Session) bool) []domain.Session {
	s.st.RLock()
	defer s.st.RUnlock()

	sessions := []domain.Session{}
	for _, m := range s.st.sessions {
		if keep(m) {
			sessions = append(sessions, m)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}
