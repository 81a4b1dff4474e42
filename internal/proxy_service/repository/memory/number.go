package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

type numberStore struct {
	st *state
}

// FindAvailable returns the lowest number that is neither reserved nor held
// by a stored session, so results are deterministic.
func (s *numberStore) FindAvailable(_ context.Context) (*domain.VirtualNumber, error) {
	s.st.RLock()
	defer s.st.RUnlock()

	var found *domain.VirtualNumber
	for _, n := range s.st.numbers {
		if !n.Available() {
			continue
		}
		if _, held := s.st.byNumber[n.Value]; held {
			continue
		}
		if found == nil || n.Value < found.Value {
			n := n
			found = &n
		}
	}
	if found == nil {
		return nil, domain.ErrPoolExhausted
	}
	return found, nil
}

func (s *numberStore) Create(_ context.Context, value string) (*domain.VirtualNumber, error) {
	s.st.Lock()
	defer s.st.Unlock()

	if _, ok := s.st.numbers[value]; ok {
		return nil, domain.ErrDuplicateNumber
	}
	n := domain.VirtualNumber{Value: value, CreatedAt: time.Now().UTC()}
	s.st.numbers[value] = n
	return &n, nil
}

func (s *numberStore) ClearReservation(_ context.Context, value string) error {
	s.st.Lock()
	defer s.st.Unlock()

	n, ok := s.st.numbers[value]
	if !ok {
		return domain.ErrNumberNotFound
	}
	n.SessionID = nil
	s.st.numbers[value] = n
	return nil
}

func (s *numberStore) Delete(_ context.Context, value string) error {
	s.st.Lock()
	defer s.st.Unlock()

	n, ok := s.st.numbers[value]
	if !ok {
		return domain.ErrNumberNotFound
	}
	// A live session row references the number even after a manual release.
	if id, bound := s.st.byNumber[value]; bound {
		return fmt.Errorf("%w: session %s", domain.ErrNumberInUse, id)
	}
	if !n.Available() {
		return domain.ErrNumberInUse
	}
	delete(s.st.numbers, value)
	return nil
}

func (s *numberStore) List(_ context.Context) ([]domain.VirtualNumber, error) {
	s.st.RLock()
	defer s.st.RUnlock()

	numbers := make([]domain.VirtualNumber, 0, len(s.st.numbers))
	for _, n := range s.st.numbers {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i].Value < numbers[j].Value })
	return numbers, nil
}
