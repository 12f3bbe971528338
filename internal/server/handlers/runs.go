package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/runledger/internal/github"
	"github.com/dwsmith1983/runledger/internal/runs"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// ListRuns returns one page of runs filtered by the query string.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cursor := q.Get("cursor")
	if cursor == "" {
		cursor = q.Get("lastEvaluatedKey")
	}
	resp, err := h.runs.List(r.Context(), runs.ListParams{
		Brand:     q.Get("brand"),
		Status:    q.Get("status"),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		Limit:     q.Get("limit"),
		Cursor:    cursor,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerTests starts a test run.
func (h *Handlers) TriggerTests(w http.ResponseWriter, r *http.Request) {
	var req runs.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.writeError(w, r, err)
			return
		}
		h.writeError(w, r, types.Validation("body", "Invalid JSON in request body"))
		return
	}
	req.Actor = clientIP(r)

	resp, err := h.runs.Trigger(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetResult returns a run with its artifacts.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.runs.Result(r.Context(), chi.URLParam(r, "runId"), r.URL.Query().Get("brand"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Webhook applies a GitHub webhook delivery. The raw body is kept for
// signature verification.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.runs.Webhook(r.Context(), runs.WebhookRequest{
		Event:     r.Header.Get(github.EventHeader),
		Delivery:  r.Header.Get(github.DeliveryHeader),
		Signature: r.Header.Get(github.SignatureHeader),
		Body:      body,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// clientIP is the first X-Forwarded-For hop, else the connection address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
