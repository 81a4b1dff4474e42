package smsprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// FlowrouteProvider sends messages through the Flowroute v2.1 messaging API.
type FlowrouteProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	accessKey  string
	secretKey  string
}

func NewFlowrouteProvider(logger *slog.Logger, apiURL, accessKey, secretKey string, httpClient *http.Client) *FlowrouteProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &FlowrouteProvider{
		logger:     logger.With("provider", "flowroute"),
		httpClient: httpClient,
		apiURL:     apiURL,
		accessKey:  accessKey,
		secretKey:  secretKey,
	}
}

// FlowrouteMessage is the request body for POST /v2.1/messages.
type FlowrouteMessage struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

type flowrouteResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *FlowrouteProvider) Dispatch(ctx context.Context, to, from, body string) (err error) {
	timer := prometheus.NewTimer(providerRequestDurationHist.WithLabelValues(p.GetName()))
	defer timer.ObserveDuration()
	defer func() { observe(p.GetName(), err) }()

	payload, err := json.Marshal(FlowrouteMessage{To: to, From: from, Body: body})
	if err != nil {
		return fmt.Errorf("marshalling flowroute message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating flowroute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.SetBasicAuth(p.accessKey, p.secretKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to send request to Flowroute", "to", to, "error", err)
		return fmt.Errorf("sending to flowroute: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := readErrorBody(resp.Body)
		p.logger.WarnContext(ctx, "Flowroute send failed", "to", to, "status_code", resp.StatusCode, "body", excerpt)
		return fmt.Errorf("flowroute API error: status %d: %s", resp.StatusCode, excerpt)
	}

	var parsed flowrouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		p.logger.WarnContext(ctx, "Sent via Flowroute but could not parse response", "to", to, "error", err)
		return nil
	}
	p.logger.InfoContext(ctx, "Sent SMS via Flowroute", "to", to, "provider_message_id", parsed.Data.ID)
	return nil
}

func (p *FlowrouteProvider) GetName() string {
	return "flowroute"
}
