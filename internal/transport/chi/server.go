package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Jikima/VBot/internal/domain"
	dombudget "github.com/Jikima/VBot/internal/domain/usage/budget"
	dommetrics "github.com/Jikima/VBot/internal/domain/usage/metrics"
	budgetuc "github.com/Jikima/VBot/internal/usecase/budget"
	dedupuc "github.com/Jikima/VBot/internal/usecase/dedup"
	healthuc "github.com/Jikima/VBot/internal/usecase/health"
	meteruc "github.com/Jikima/VBot/internal/usecase/meter"
	relayuc "github.com/Jikima/VBot/internal/usecase/relay"
)

// maxAudioUploadBytes matches the provider's own upload cap.
const maxAudioUploadBytes = 25 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server implements the HTTP API over the usecase layer.
type Server struct {
	meter         *meteruc.Service
	relay         *relayuc.Service
	gate          *budgetuc.Gate
	health        *healthuc.Service
	dedup         *dedupuc.Claimer
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	meter *meteruc.Service,
	relay *relayuc.Service,
	gate *budgetuc.Gate,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		meter:  meter,
		relay:  relay,
		gate:   gate,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		storageErrorHandler,
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNotAllowed, http.StatusForbidden, codeNotAllowed),
		sentinelHandler(domain.ErrNoAllowance, http.StatusForbidden, codeNoAllowance),
		sentinelHandler(domain.ErrBudgetExceeded, http.StatusPaymentRequired, codeBudgetExceeded),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeIdentityNotFound),
		sentinelHandler(domain.ErrProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrNotImplemented, http.StatusNotImplemented, codeNotImplemented),
	}
	return s
}

// WithDedup enables Idempotency-Key deduplication for billing events.
func (s *Server) WithDedup(claimer *dedupuc.Claimer) *Server {
	s.dedup = claimer
	return s
}

// Register attaches all API routes to the router.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/events", s.RecordEvent)
		r.Route("/identities/{identity}", func(r chi.Router) {
			r.Get("/usage", s.GetUsage)
			r.Get("/budget", s.GetBudget)
		})
		r.Route("/relay", func(r chi.Router) {
			r.Post("/chat", s.RelayChat)
			r.Post("/transcriptions", s.RelayTranscription)
			r.Post("/images", s.RelayImage)
		})
	})
}

// RecordEvent handles POST /api/v1/events.
func (s *Server) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "identity is required")
		return
	}

	kind, err := meteruc.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "unknown event kind: "+req.Kind)
		return
	}

	if s.dedup != nil {
		if key := r.Header.Get("Idempotency-Key"); key != "" {
			first, err := s.dedup.Claim(r.Context(), key)
			if err != nil {
				s.handleDomainError(w, err)
				return
			}
			if !first {
				writeJSON(w, http.StatusOK, receiptResponse{Duplicate: true})
				return
			}
		}
	}

	receipt, err := s.meter.RecordEvent(r.Context(), meteruc.Event{
		Identity:    req.Identity,
		DisplayName: req.DisplayName,
		Group:       req.Group,
		Kind:        kind,
		Tokens:      req.Tokens,
		Seconds:     req.Seconds,
		Size:        req.Size,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receiptToJSON(receipt))
}

// GetUsage handles GET /api/v1/identities/{identity}/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	group, err := parseGroup(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	report, err := s.meter.Report(r.Context(), identity, group)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	costs := report.Costs()
	writeJSON(w, http.StatusOK, usageResponse{
		Period:      string(report.Period()),
		Identity:    report.Identity(),
		DisplayName: report.DisplayName(),
		Costs: costsJSON{
			Day:     costs.Day,
			Month:   costs.Month,
			AllTime: costs.AllTime,
		},
		Today:  metricsToJSON(report.Day()),
		Month:  metricsToJSON(report.Month()),
		Budget: budgetToJSON(report.Budget()),
	})
}

// GetBudget handles GET /api/v1/identities/{identity}/budget.
func (s *Server) GetBudget(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	group, err := parseGroup(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	b, err := s.gate.Describe(r.Context(), identity, group)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := budgetResponse{
		Identity:     identity,
		Period:       string(s.gate.Period()),
		Spent:        b.Spent(),
		Unlimited:    b.Unlimited(),
		WithinBudget: !b.IsExhausted(),
	}
	if !b.Unlimited() {
		allowance := b.Allowance()
		remaining := b.Remaining()
		resp.Allowance = &allowance
		resp.Remaining = &remaining
	}

	writeJSON(w, http.StatusOK, resp)
}

// RelayChat handles POST /api/v1/relay/chat.
func (s *Server) RelayChat(w http.ResponseWriter, r *http.Request) {
	var req chatRelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "identity is required")
		return
	}

	messages := make([]domain.ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = domain.ChatMessage{Role: m.Role, Content: m.Content}
	}

	ctx, bu := domain.NewContextWithBilling(r.Context())
	completion, err := s.relay.Chat(ctx, callerFromRequest(req.Identity, req.DisplayName, req.Group), messages)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setBillingHeaders(w, bu)
	writeJSON(w, http.StatusOK, chatRelayResponse{
		Content:          completion.Content,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		TotalTokens:      completion.TotalTokens,
	})
}

// RelayTranscription handles POST /api/v1/relay/transcriptions (multipart form).
func (s *Server) RelayTranscription(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid multipart body: "+err.Error())
		return
	}
	defer func() { _ = file.Close() }()

	identity := r.FormValue("identity")
	if identity == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "identity is required")
		return
	}

	group := false
	if raw := r.FormValue("group"); raw != "" {
		group, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "group must be a boolean")
			return
		}
	}

	ctx, bu := domain.NewContextWithBilling(r.Context())
	transcript, err := s.relay.Transcribe(ctx, callerFromRequest(identity, r.FormValue("display_name"), group), domain.AudioInput{
		Reader:   file,
		FileName: header.Filename,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setBillingHeaders(w, bu)
	writeJSON(w, http.StatusOK, transcriptResponse{
		Text:            transcript.Text,
		DurationSeconds: transcript.DurationSeconds,
	})
}

// RelayImage handles POST /api/v1/relay/images.
func (s *Server) RelayImage(w http.ResponseWriter, r *http.Request) {
	var req imageRelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "identity is required")
		return
	}

	ctx, bu := domain.NewContextWithBilling(r.Context())
	img, err := s.relay.GenerateImage(ctx, callerFromRequest(req.Identity, req.DisplayName, req.Group), req.Prompt, req.Size)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setBillingHeaders(w, bu)
	writeJSON(w, http.StatusOK, imageRelayResponse{URL: img.URL})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func callerFromRequest(identity, displayName string, group bool) relayuc.Caller {
	return relayuc.Caller{
		Identity:    identity,
		DisplayName: displayName,
		Group:       group,
	}
}

func parseGroup(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("group")
	if raw == "" {
		return false, nil
	}
	group, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("group parameter %q: %w", raw, domain.ErrInvalidInput)
	}
	return group, nil
}

// setBillingHeaders exposes the billed cost so the calling bot can show it.
func setBillingHeaders(w http.ResponseWriter, bu *domain.BillingUsage) {
	if bu == nil || !bu.Billed {
		return
	}
	w.Header().Set("X-Usage-Cost", strconv.FormatFloat(bu.Cost, 'f', -1, 64))
	if !math.IsInf(bu.Remaining, 1) {
		w.Header().Set("X-Budget-Remaining", strconv.FormatFloat(bu.Remaining, 'f', -1, 64))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidInput,
		domain.ErrNotAllowed,
		domain.ErrNoAllowance,
		domain.ErrBudgetExceeded,
		domain.ErrNotFound,
		domain.ErrProviderError,
		domain.ErrNotImplemented,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// storageErrorHandler maps persistence failures to 503 so callers retry.
func storageErrorHandler(w http.ResponseWriter, err error, _ string) bool {
	var se *domain.StorageError
	if !errors.As(err, &se) {
		return false
	}
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusServiceUnavailable, codeStorageUnavailable, "storage unavailable, retry later")
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func receiptToJSON(receipt meteruc.Receipt) receiptResponse {
	resp := receiptResponse{
		Cost:        receipt.Cost,
		GuestBilled: receipt.GuestBilled,
	}
	if math.IsInf(receipt.Remaining, 1) {
		resp.Unlimited = true
	} else {
		remaining := receipt.Remaining
		resp.Remaining = &remaining
	}
	return resp
}

func budgetToJSON(b dombudget.Budget) budgetJSON {
	out := budgetJSON{
		Spent:     b.Spent(),
		Unlimited: b.Unlimited(),
		Exhausted: b.IsExhausted(),
	}
	if !b.Unlimited() {
		allowance := b.Allowance()
		remaining := b.Remaining()
		out.Allowance = &allowance
		out.Remaining = &remaining
	}
	return out
}

func metricsToJSON(m dommetrics.Metrics) usageMetricsJSON {
	images := m.Images()
	return usageMetricsJSON{
		ChatTokens:           m.ChatTokens(),
		TranscriptionSeconds: m.TranscriptionSeconds(),
		Images:               images[:],
	}
}
