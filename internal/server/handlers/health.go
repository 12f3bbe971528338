package handlers

import (
	"net/http"
	"time"

	"github.com/dwsmith1983/runledger/internal/telemetry"
)

type healthBody struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// Health reports healthy, or degraded when a dependency does not answer.
// It always responds 200.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	for _, c := range h.checks {
		if err := c.Pinger.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", "check", c.Name, "error", err)
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, healthBody{
		Status:    status,
		Timestamp: h.now().UTC(),
		Service:   telemetry.ServiceName,
	})
}
