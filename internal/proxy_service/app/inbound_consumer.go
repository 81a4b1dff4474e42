package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

// Subscriber is satisfied by *messagebroker.NATSClient.
type Subscriber interface {
	SubscribeToSubjectWithQueue(ctx context.Context, subject, queueGroup string, handler nats.MsgHandler) error
}

// InboundHandler processes one inbound SMS end to end.
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg InboundMessage) (Decision, error)
}

// ProviderIncomingSMS is the JSON body published on sms.incoming.raw.<provider>.
type ProviderIncomingSMS struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Text      string `json:"text"`
	MessageID string `json:"message_id,omitempty"`
}

// InboundSMSEvent pairs a decoded message with the provider taken from the subject.
type InboundSMSEvent struct {
	ProviderName string
	Data         ProviderIncomingSMS
}

// InboundConsumer feeds SMS received over NATS into the lifecycle. Messages
// are handed to a single worker through a channel so they are handled in
// arrival order.
type InboundConsumer struct {
	subscriber  Subscriber
	handler     InboundHandler
	logger      *slog.Logger
	events      chan InboundSMSEvent
	sendTimeout time.Duration
}

func NewInboundConsumer(subscriber Subscriber, handler InboundHandler, bufferSize int, logger *slog.Logger) *InboundConsumer {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InboundConsumer{
		subscriber:  subscriber,
		handler:     handler,
		logger:      logger.With("component", "inbound_consumer"),
		events:      make(chan InboundSMSEvent, bufferSize),
		sendTimeout: 5 * time.Second,
	}
}

// Run subscribes to subject and processes messages until ctx is cancelled.
func (c *InboundConsumer) Run(ctx context.Context, subject, queueGroup string) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.work(gCtx)
		return nil
	})
	g.Go(func() error {
		c.logger.InfoContext(gCtx, "Starting NATS subscription", "subject", subject, "queue_group", queueGroup)
		handler := func(msg *nats.Msg) { c.handleMsg(gCtx, subject, msg) }
		if err := c.subscriber.SubscribeToSubjectWithQueue(gCtx, subject, queueGroup, handler); err != nil {
			c.logger.ErrorContext(gCtx, "NATS subscription failed", "subject", subject, "error", err)
			return err
		}
		c.logger.InfoContext(gCtx, "NATS subscription ended", "subject", subject)
		return nil
	})
	return g.Wait()
}

// providerFromSubject extracts <provider> from sms.incoming.raw.<provider>.
func providerFromSubject(subject string) (string, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) < 4 || parts[0] != "sms" || parts[1] != "incoming" || parts[2] != "raw" {
		return "", false
	}
	name := parts[3]
	if name == "" || name == "*" || name == ">" {
		return "", false
	}
	return name, true
}

func (c *InboundConsumer) handleMsg(ctx context.Context, subjectPattern string, msg *nats.Msg) {
	natsInboundReceivedCounter.WithLabelValues(subjectPattern).Inc()

	providerName, ok := providerFromSubject(msg.Subject)
	if !ok {
		c.logger.ErrorContext(ctx, "Invalid NATS subject format for incoming SMS", "subject", msg.Subject)
		return
	}

	var data ProviderIncomingSMS
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		c.logger.ErrorContext(ctx, "Failed to deserialize incoming SMS", "subject", msg.Subject, "error", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	select {
	case c.events <- InboundSMSEvent{ProviderName: providerName, Data: data}:
	case <-sendCtx.Done():
		c.logger.ErrorContext(ctx, "Timed out queueing incoming SMS", "provider_name", providerName, "message_id", data.MessageID)
	}
}

func (c *InboundConsumer) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-c.events:
			c.process(ctx, evt)
		}
	}
}

func (c *InboundConsumer) process(ctx context.Context, evt InboundSMSEvent) {
	d, err := c.handler.HandleInbound(ctx, InboundMessage{To: evt.Data.To, From: evt.Data.From, Body: evt.Data.Text})
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle incoming SMS",
			"provider_name", evt.ProviderName, "message_id", evt.Data.MessageID, "error", err)
		return
	}
	c.logger.InfoContext(ctx, "Handled incoming SMS",
		"provider_name", evt.ProviderName, "message_id", evt.Data.MessageID, "decision", d.Kind)
}
