package smsprovider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// SMSProvider sends one SMS per call through an external gateway. Every
// provider satisfies domain.Dispatcher.
type SMSProvider interface {
	Dispatch(ctx context.Context, to, from, body string) error
	GetName() string
}

// Config selects and configures the outbound provider.
type Config struct {
	Name               string
	FlowrouteAccessKey string
	FlowrouteSecretKey string
	FlowrouteAPIURL    string
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioAPIURL       string
	Timeout            time.Duration
}

// New builds the provider named by cfg.Name.
func New(cfg Config, logger *slog.Logger) (SMSProvider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch cfg.Name {
	case "flowroute":
		return NewFlowrouteProvider(logger, cfg.FlowrouteAPIURL, cfg.FlowrouteAccessKey, cfg.FlowrouteSecretKey, client), nil
	case "twilio":
		return NewTwilioProvider(logger, cfg.TwilioAPIURL, cfg.TwilioAccountSID, cfg.TwilioAuthToken, client), nil
	case "mock":
		return NewMockProvider(logger, false, 0), nil
	default:
		return nil, fmt.Errorf("unknown sms provider %q", cfg.Name)
	}
}

// readErrorBody returns a short excerpt of a failed response for error messages.
func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return string(b)
}
