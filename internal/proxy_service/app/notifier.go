package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

// NotifierConfig carries the system message texts and switches.
type NotifierConfig struct {
	OrgName         string
	SessionStartMsg string
	SessionEndMsg   string
	NoSessionMsg    string
	EndTrigger      string
	SendStartMsg    bool
	SendEndMsg      bool
}

// Notifier formats and dispatches system messages to participants.
type Notifier struct {
	dispatcher domain.Dispatcher
	cfg        NotifierConfig
	logger     *slog.Logger
}

func NewNotifier(dispatcher domain.Dispatcher, cfg NotifierConfig, logger *slog.Logger) *Notifier {
	return &Notifier{dispatcher: dispatcher, cfg: cfg, logger: logger.With("component", "notifier")}
}

// FormatSystemMessage prefixes msg with the upper-cased organisation name.
func (n *Notifier) FormatSystemMessage(msg string) string {
	return fmt.Sprintf("[%s]: %s", strings.ToUpper(n.cfg.OrgName), msg)
}

// StartMessage is the notice sent when a session begins.
func (n *Notifier) StartMessage() string {
	msg := n.cfg.SessionStartMsg
	if n.cfg.EndTrigger != "" {
		msg += fmt.Sprintf(" Send '%s' to end this session.", n.cfg.EndTrigger)
	}
	return n.FormatSystemMessage(msg)
}

// NotifyStarted sends the start notice to both participants. It stops at the
// first failure.
func (n *Notifier) NotifyStarted(ctx context.Context, s domain.Session) error {
	if !n.cfg.SendStartMsg {
		return nil
	}
	return n.sendAll(ctx, s, n.StartMessage(), "start_notice")
}

// NotifyEnded sends the end notice to both participants.
func (n *Notifier) NotifyEnded(ctx context.Context, s domain.Session) error {
	if !n.cfg.SendEndMsg {
		return nil
	}
	return n.sendAll(ctx, s, n.FormatSystemMessage(n.cfg.SessionEndMsg), "end_notice")
}

// NotifyNoSession tells sender that number has no session for them.
func (n *Notifier) NotifyNoSession(ctx context.Context, sender, number string) error {
	return n.send(ctx, sender, number, n.FormatSystemMessage(n.cfg.NoSessionMsg), "", "no_session_notice")
}

// Relay forwards a participant's message unchanged.
func (n *Notifier) Relay(ctx context.Context, s domain.Session, to, body string) error {
	return n.send(ctx, to, s.VirtualNumber, body, s.ID, "relay")
}

func (n *Notifier) sendAll(ctx context.Context, s domain.Session, body, messageType string) error {
	for _, recipient := range s.Participants() {
		if err := n.send(ctx, recipient, s.VirtualNumber, body, s.ID, messageType); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, to, from, body, sessionID, messageType string) error {
	if err := n.dispatcher.Dispatch(ctx, to, from, body); err != nil {
		dispatchFailuresCounter.WithLabelValues(messageType).Inc()
		n.logger.ErrorContext(ctx, "Dispatch failed",
			"message_type", messageType, "to", to, "from", from, "session_id", sessionID, "error", err)
		return &domain.DispatchError{Recipient: to, Err: err}
	}
	n.logger.InfoContext(ctx, "Message sent", "message_type", messageType, "to", to, "session_id", sessionID)
	return nil
}
