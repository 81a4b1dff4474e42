package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

func TestNATSEventPublisher_SessionEnded(t *testing.T) {
	client := new(MockPublisher)
	p := NewNATSEventPublisher(client, "sms_proxy", testLogger())
	s := domain.Session{ID: "s1", VirtualNumber: "12065551234", ParticipantA: "A", ParticipantB: "B"}

	var payload []byte
	client.On("Publish", mock.Anything, "sms_proxy.session.ended", mock.AnythingOfType("[]uint8")).
		Run(func(args mock.Arguments) { payload = args.Get(2).([]byte) }).
		Return(nil).Once()

	p.SessionEnded(context.Background(), s, "expired")

	var evt SessionEvent
	require.NoError(t, json.Unmarshal(payload, &evt))
	assert.Equal(t, EventSessionEnded, evt.Event)
	assert.Equal(t, "s1", evt.SessionID)
	assert.Equal(t, "expired", evt.Cause)
	assert.False(t, evt.OccurredAt.IsZero())
	client.AssertExpectations(t)
}

func TestNATSEventPublisher_PublishErrorIsSwallowed(t *testing.T) {
	client := new(MockPublisher)
	p := NewNATSEventPublisher(client, "proxy", testLogger())
	s := domain.Session{ID: "s1"}

	client.On("Publish", mock.Anything, "proxy.session.created", mock.Anything).Return(errors.New("nats: connection closed")).Once()
	client.On("Publish", mock.Anything, "proxy.message.relayed", mock.Anything).Return(nil).Once()

	assert.NotPanics(t, func() {
		p.SessionCreated(context.Background(), s)
		p.MessageRelayed(context.Background(), s, "A", "B")
	})
	client.AssertExpectations(t)
}
