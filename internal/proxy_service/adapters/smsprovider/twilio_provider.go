package smsprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// TwilioProvider sends messages through the Twilio Messages resource, or any
// service that speaks the same form-encoded API.
type TwilioProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	accountSID string
	authToken  string
}

func NewTwilioProvider(logger *slog.Logger, baseURL, accountSID, authToken string, httpClient *http.Client) *TwilioProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &TwilioProvider{
		logger:     logger.With("provider", "twilio"),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
	}
}

type twilioMessageResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (p *TwilioProvider) messagesURL() string {
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, url.PathEscape(p.accountSID))
}

func (p *TwilioProvider) Dispatch(ctx context.Context, to, from, body string) (err error) {
	timer := prometheus.NewTimer(providerRequestDurationHist.WithLabelValues(p.GetName()))
	defer timer.ObserveDuration()
	defer func() { observe(p.GetName(), err) }()

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.messagesURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to send request to Twilio", "to", to, "error", err)
		return fmt.Errorf("sending to twilio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr twilioErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			p.logger.WarnContext(ctx, "Twilio send failed", "to", to, "status_code", resp.StatusCode, "code", apiErr.Code, "message", apiErr.Message)
			return fmt.Errorf("twilio API error: status %d, code %d: %s", resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		p.logger.WarnContext(ctx, "Twilio send failed", "to", to, "status_code", resp.StatusCode)
		return fmt.Errorf("twilio API error: status %d", resp.StatusCode)
	}

	var msg twilioMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		p.logger.WarnContext(ctx, "Sent via Twilio but could not parse response", "to", to, "error", err)
		return nil
	}
	p.logger.InfoContext(ctx, "Sent SMS via Twilio", "to", to, "provider_message_id", msg.SID, "status", msg.Status)
	return nil
}

func (p *TwilioProvider) GetName() string {
	return "twilio"
}
