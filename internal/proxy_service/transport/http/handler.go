package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/aradsms/sms_proxy/internal/proxy_service/app"
	"github.com/aradsms/sms_proxy/internal/proxy_service/domain"
)

const timestampLayout = "2006-01-02 15:04:05"

// NumberService manages the virtual number pool.
type NumberService interface {
	Add(ctx context.Context, number string) (*domain.VirtualNumber, error)
	Remove(ctx context.Context, number string) error
	List(ctx context.Context) (domain.PoolReport, error)
}

// SessionService creates, ends and routes sessions.
type SessionService interface {
	Create(ctx context.Context, req app.CreateSessionRequest) (*domain.Session, error)
	Terminate(ctx context.Context, sessionID string) (*domain.Session, error)
	List(ctx context.Context) ([]domain.Session, error)
	HandleInbound(ctx context.Context, msg app.InboundMessage) (app.Decision, error)
}

type ProxyHandler struct {
	numbers  NumberService
	sessions SessionService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewProxyHandler(numbers NumberService, sessions SessionService, logger *slog.Logger, validate *validator.Validate) *ProxyHandler {
	return &ProxyHandler{
		numbers:  numbers,
		sessions: sessions,
		logger:   logger.With("handler", "proxy"),
		validate: validate,
	}
}

// RegisterRoutes mounts the admin routes behind adminAuth and the inbound
// webhook without authentication.
func (h *ProxyHandler) RegisterRoutes(r chi.Router, adminAuth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if adminAuth != nil {
			r.Use(adminAuth)
		}
		r.Post("/tn", h.AddNumber)
		r.Get("/tn", h.ListNumbers)
		r.Delete("/tn", h.RemoveNumber)

		r.Post("/session", h.CreateSession)
		r.Get("/session", h.ListSessions)
		r.Delete("/session", h.TerminateSession)
	})
	r.Post("/", h.Inbound)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to write JSON response", "error", err)
		}
	}
}

func respondWithError(w http.ResponseWriter, code int, message, reason string) {
	respondWithJSON(w, code, ErrorResponse{Error: message, Reason: reason})
}

// statusForKind maps an error classification to an HTTP status.
func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindExhausted:
		return http.StatusServiceUnavailable
	case domain.KindDispatch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *ProxyHandler) respondWithDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, operation string) {
	kind := domain.KindOf(err)
	code := statusForKind(kind)
	message := err.Error()
	if kind == domain.KindInternal {
		logger.ErrorContext(r.Context(), "Request failed", "operation", operation, "error", err)
		message = "internal server error"
	} else {
		logger.InfoContext(r.Context(), "Request rejected", "operation", operation, "reason", domain.ReasonOf(err), "error", err)
	}
	respondWithError(w, code, message, domain.ReasonOf(err))
}

// decode reads a JSON body into dst and validates it. It writes the 400
// response itself and reports whether the caller should continue.
func (h *ProxyHandler) decode(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.InfoContext(r.Context(), "Failed to decode request body", "error", err)
		respondWithError(w, http.StatusBadRequest, "Invalid JSON format: "+err.Error(), "invalid_request")
		return false
	}
	if err := h.validate.StructCtx(r.Context(), dst); err != nil {
		logger.InfoContext(r.Context(), "Request validation failed", "error", err)
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error(), "invalid_request")
		return false
	}
	return true
}

func (h *ProxyHandler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
}

func formatTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timestampLayout)
	return &s
}

func (h *ProxyHandler) AddNumber(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	var req NumberRequest
	if !h.decode(w, r, logger, &req) {
		return
	}
	n, err := h.numbers.Add(r.Context(), req.Value)
	if err != nil {
		h.respondWithDomainError(w, r, logger, err, "add_number")
		return
	}
	respondWithJSON(w, http.StatusOK, NumberResponse{Message: "successfully added TN to pool", Value: n.Value})
}

func (h *ProxyHandler) ListNumbers(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	report, err := h.numbers.List(r.Context())
	if err != nil {
		h.respondWithDomainError(w, r, logger, err, "list_numbers")
		return
	}
	resp := PoolResponse{
		VirtualTNs: make([]VirtualNumberDTO, 0, len(report.Numbers)),
		PoolSize:   report.PoolSize,
		Available:  report.Available,
		InUse:      report.InUse,
	}
	for _, n := range report.Numbers {
		resp.VirtualTNs = append(resp.VirtualTNs, VirtualNumberDTO{Value: n.Value, SessionID: n.SessionID})
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *ProxyHandler) RemoveNumber(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	var req NumberRequest
	if !h.decode(w, r, logger, &req) {
		return
	}
	if err := h.numbers.Remove(r.Context(), req.Value); err != nil {
		h.respondWithDomainError(w, r, logger, err, "remove_number")
		return
	}
	respondWithJSON(w, http.StatusOK, NumberResponse{Message: "successfully removed TN from pool", Value: req.Value})
}

func (h *ProxyHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	var req CreateSessionRequest
	if !h.decode(w, r, logger, &req) {
		return
	}
	s, err := h.sessions.Create(r.Context(), app.CreateSessionRequest{
		ParticipantA:  req.ParticipantA,
		ParticipantB:  req.ParticipantB,
		ExpiryMinutes: req.ExpiryWindow,
	})
	if err != nil {
		h.respondWithDomainError(w, r, logger, err, "create_session")
		return
	}
	respondWithJSON(w, http.StatusOK, CreateSessionResponse{
		Message:      "created session",
		SessionID:    s.ID,
		ExpiryDate:   formatTimestamp(s.ExpiresAt),
		VirtualTN:    s.VirtualNumber,
		ParticipantA: s.ParticipantA,
		ParticipantB: s.ParticipantB,
	})
}

func (h *ProxyHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	sessions, err := h.sessions.List(r.Context())
	if err != nil {
		h.respondWithDomainError(w, r, logger, err, "list_sessions")
		return
	}
	resp := ListSessionsResponse{TotalSessions: len(sessions), Sessions: make([]SessionDTO, 0, len(sessions))}
	for _, s := range sessions {
		created := s.CreatedAt
		resp.Sessions = append(resp.Sessions, SessionDTO{
			ID:           s.ID,
			DateCreated:  *formatTimestamp(&created),
			VirtualTN:    s.VirtualNumber,
			ParticipantA: s.ParticipantA,
			ParticipantB: s.ParticipantB,
			ExpiryDate:   formatTimestamp(s.ExpiresAt),
		})
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *ProxyHandler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	var req TerminateSessionRequest
	if !h.decode(w, r, logger, &req) {
		return
	}
	if _, err := h.sessions.Terminate(r.Context(), req.SessionID); err != nil {
		h.respondWithDomainError(w, r, logger, err, "terminate_session")
		return
	}
	respondWithJSON(w, http.StatusOK, SessionEndedResponse{Message: "successfully ended session", SessionID: req.SessionID})
}

// Inbound handles the provider webhook. Unroutable messages are answered with
// a notice to the sender and still return 200.
func (h *ProxyHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	var req InboundMessageRequest
	if !h.decode(w, r, logger, &req) {
		return
	}

	d, err := h.sessions.HandleInbound(r.Context(), app.InboundMessage{To: req.To, From: req.From, Body: req.Body})
	if err != nil {
		h.respondWithDomainError(w, r, logger, err, "inbound_message")
		return
	}

	switch d.Kind {
	case app.DecisionRelay:
		respondWithJSON(w, http.StatusOK, ProxiedMessageResponse{
			Message:   "successfully proxied message",
			SessionID: d.Session.ID,
			From:      req.From,
			To:        d.To,
		})
	case app.DecisionTerminated:
		respondWithJSON(w, http.StatusOK, SessionEndedResponse{Message: "successfully ended session", SessionID: d.Session.ID})
	default:
		respondWithJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("Session not found, or %s is not authorized to participate", req.From),
			"reason":  d.Reason,
		})
	}
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// NewHealthHandler returns 200 when every check passes and 503 otherwise.
func NewHealthHandler(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		var failed error
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				logger.WarnContext(r.Context(), "Health check failed", "check", name, "error", err)
				status[name] = "unavailable"
				failed = errors.Join(failed, err)
				continue
			}
			status[name] = "ok"
		}
		if failed != nil {
			status["status"] = "degraded"
			respondWithJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		respondWithJSON(w, http.StatusOK, status)
	}
}
