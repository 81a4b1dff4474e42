package smsprovider

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// SentMessage is a message accepted by MockProvider.
type SentMessage struct {
	ID   string
	To   string
	From string
	Body string
}

// MockProvider logs messages instead of sending them and keeps a copy.
type MockProvider struct {
	logger         *slog.Logger
	FailSend       bool
	SimulatedDelay time.Duration

	mu   sync.Mutex
	sent []SentMessage
}

func NewMockProvider(logger *slog.Logger, failSend bool, delay time.Duration) *MockProvider {
	return &MockProvider{
		logger:         logger.With("provider", "mock"),
		FailSend:       failSend,
		SimulatedDelay: delay,
	}
}

func (p *MockProvider) Dispatch(ctx context.Context, to, from, body string) (err error) {
	timer := prometheus.NewTimer(providerRequestDurationHist.WithLabelValues(p.GetName()))
	defer timer.ObserveDuration()
	defer func() { observe(p.GetName(), err) }()

	if p.SimulatedDelay > 0 {
		select {
		case <-time.After(p.SimulatedDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if p.FailSend {
		p.logger.WarnContext(ctx, "Mock provider simulated send failure", "to", to)
		return errors.New("mock provider simulated send failure")
	}

	msg := SentMessage{ID: "mock-" + uuid.NewString(), To: to, From: from, Body: body}
	p.mu.Lock()
	p.sent = append(p.sent, msg)
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "Mock provider accepted SMS", "to", to, "from", from, "provider_message_id", msg.ID, "content_length", len(body))
	return nil
}

// Sent returns a copy of every accepted message.
func (p *MockProvider) Sent() []SentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SentMessage, len(p.sent))
	copy(out, p.sent)
	return out
}

func (p *MockProvider) GetName() string {
	return "mock"
}
