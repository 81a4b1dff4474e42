package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
	"github.com/aradsms/sms_proxy/internal/proxy_service/repository/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(v int) *int { return &v }

// --- Dispatcher doubles ---

type sentMessage struct {
	To   string
	From string
	Body string
}

// recordingDispatcher records every message and fails for recipients in failFor.
type recordingDispatcher struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]bool
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{failFor: map[string]bool{}}
}

func (d *recordingDispatcher) Dispatch(_ context.Context, to, from, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failFor[to] {
		return errors.New("provider returned 500")
	}
	d.sent = append(d.sent, sentMessage{To: to, From: from, Body: body})
	return nil
}

func (d *recordingDispatcher) fail(recipient string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failFor[recipient] = true
}

func (d *recordingDispatcher) messages() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]sentMessage, len(d.sent))
	copy(out, d.sent)
	return out
}

func (d *recordingDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = nil
}

// --- Repository mocks ---

type MockNumberRepository struct {
	mock.Mock
}

func (m *MockNumberRepository) FindAvailable(ctx context.Context) (*domain.VirtualNumber, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VirtualNumber), args.Error(1)
}

func (m *MockNumberRepository) Create(ctx context.Context, value string) (*domain.VirtualNumber, error) {
	args := m.Called(ctx, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VirtualNumber), args.Error(1)
}

func (m *MockNumberRepository) ClearReservation(ctx context.Context, value string) error {
	args := m.Called(ctx, value)
	return args.Error(0)
}

func (m *MockNumberRepository) Delete(ctx context.Context, value string) error {
	args := m.Called(ctx, value)
	return args.Error(0)
}

func (m *MockNumberRepository) List(ctx context.Context) ([]domain.VirtualNumber, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.VirtualNumber), args.Error(1)
}

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSessionRepository) FindByNumber(ctx context.Context, number string) (*domain.Session, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) Delete(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) List(ctx context.Context) ([]domain.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *MockSessionRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.Session, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Session), args.Error(1)
}

// --- Event publisher double ---

type recordedEvent struct {
	Name      string
	SessionID string
	Cause     string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) record(e recordedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) SessionCreated(_ context.Context, s domain.Session) {
	p.record(recordedEvent{Name: EventSessionCreated, SessionID: s.ID})
}

func (p *recordingPublisher) SessionEnded(_ context.Context, s domain.Session, cause string) {
	p.record(recordedEvent{Name: EventSessionEnded, SessionID: s.ID, Cause: cause})
}

func (p *recordingPublisher) MessageRelayed(_ context.Context, s domain.Session, _, _ string) {
	p.record(recordedEvent{Name: EventMessageRelayed, SessionID: s.ID})
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []string{}
	for _, e := range p.events {
		out = append(out, e.Name)
	}
	return out
}

// --- Engine fixture over the memory store ---

type fixture struct {
	store      *memory.Store
	dispatcher *recordingDispatcher
	publisher  *recordingPublisher
	pool       *NumberPool
	registry   *SessionRegistry
	reaper     *ExpiryReaper
	router     *MessageRouter
	notifier   *Notifier
	lifecycle  *SessionLifecycle

	mu  sync.Mutex
	now time.Time
}

func defaultNotifierConfig() NotifierConfig {
	return NotifierConfig{
		OrgName:         "Acme Rides",
		SessionStartMsg: "Your new session has started, send a message!",
		SessionEndMsg:   "This session has ended, talk to you again soon!",
		NoSessionMsg:    "An active session was not found.",
		SendStartMsg:    true,
		SendEndMsg:      true,
	}
}

func newFixture(t *testing.T, cfg NotifierConfig, numbers ...string) *fixture {
	t.Helper()
	logger := testLogger()
	f := &fixture{
		store:      memory.NewStore(),
		dispatcher: newRecordingDispatcher(),
		publisher:  &recordingPublisher{},
		now:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.pool = NewNumberPool(f.store.Numbers(), logger)
	f.registry = NewSessionRegistry(f.store.Sessions(), logger)
	f.registry.now = f.clock
	f.notifier = NewNotifier(f.dispatcher, cfg, logger)
	f.reaper = NewExpiryReaper(f.registry, f.notifier, f.publisher, logger)
	f.router = NewMessageRouter(f.registry, f.reaper, cfg.EndTrigger, logger)
	f.lifecycle = NewSessionLifecycle(f.pool, f.registry, f.reaper, f.router, f.notifier, f.publisher, 3, logger)

	for _, n := range numbers {
		_, err := f.pool.Add(context.Background(), n)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) numberState(t *testing.T, value string) domain.VirtualNumber {
	t.Helper()
	report, err := f.pool.List(context.Background())
	require.NoError(t, err)
	for _, n := range report.Numbers {
		if n.Value == value {
			return n
		}
	}
	t.Fatalf("virtual number %s not in pool", value)
	return domain.VirtualNumber{}
}
