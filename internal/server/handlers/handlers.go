// Package handlers implements the HTTP handlers of the test run API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dwsmith1983/runledger/internal/runs"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// RunService is the run lifecycle the handlers expose.
type RunService interface {
	Trigger(ctx context.Context, req runs.TriggerRequest) (*runs.TriggerResponse, error)
	List(ctx context.Context, p runs.ListParams) (*runs.ListResponse, error)
	Result(ctx context.Context, runID, brand string) (*types.RunResult, error)
	Webhook(ctx context.Context, req runs.WebhookRequest) (*runs.WebhookResponse, error)
}

// Pinger is a dependency whose reachability is reported by Health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check names a dependency pinged by Health.
type Check struct {
	Name   string
	Pinger Pinger
}

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	runs   RunService
	checks []Check
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new Handlers instance.
func New(svc RunService, checks ...Check) *Handlers {
	return &Handlers{
		runs:   svc,
		checks: checks,
		logger: slog.Default(),
		now:    time.Now,
	}
}

// SetLogger overrides the default logger.
func (h *Handlers) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

type requestIDKey struct{}

// WithRequestID returns ctx carrying the request's correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

type errorBody struct {
	Error   string   `json:"error"`
	Field   string   `json:"field,omitempty"`
	Allowed []string `json:"allowed,omitempty"`
}

func statusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status code and a sanitized JSON body. Server
// side failures are logged with their cause.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
		return
	}

	body := errorBody{Error: "internal server error"}
	var e *types.Error
	if errors.As(err, &e) {
		body = errorBody{Error: e.Message, Field: e.Field, Allowed: e.Allowed}
	}
	status := statusFor(types.KindOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), body.Error, "error", err, "status", status,
			"method", r.Method, "path", r.URL.Path, "requestId", RequestIDFromContext(r.Context()))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
