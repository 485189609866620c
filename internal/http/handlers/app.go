package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"genflow/internal/domain"
	"genflow/internal/infra"
	"genflow/internal/middleware"
	"genflow/internal/orchestrator"
	"genflow/internal/providers"
	"genflow/internal/telemetry"
)

// App carries the dependencies shared by every handler.
type App struct {
	Jobs    *orchestrator.Service
	Metrics *telemetry.Metrics
	Logger  *infra.Logger
	// Ready reports whether backing services are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

func NewApp(jobs *orchestrator.Service, metrics *telemetry.Metrics, logger *infra.Logger) *App {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &App{Jobs: jobs, Metrics: metrics, Logger: logger}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, errorResponse{Error: errCode, Message: msg})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// serviceError maps domain and provider errors onto HTTP responses.
func (a *App) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	code, errCode := classify(err)
	if code >= http.StatusInternalServerError {
		a.Logger.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("request failed")
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	a.error(w, code, errCode, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrUnsupportedProvider):
		return http.StatusBadRequest, "unsupported_provider"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient_credits"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	}
	switch providers.KindOf(err) {
	case providers.KindValidation:
		return http.StatusBadRequest, "provider_rejected"
	case providers.KindAuth:
		return http.StatusBadGateway, "provider_auth"
	case providers.KindRateLimit, providers.KindAPI, providers.KindNetwork:
		return http.StatusServiceUnavailable, "provider_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}
