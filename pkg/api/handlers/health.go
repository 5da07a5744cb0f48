package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/iec104d/pkg/adapter"
)

// SessionSource is the view of the IEC 104 server the API reports on.
// *adapter.BaseAdapter satisfies it.
type SessionSource interface {
	Sessions() []adapter.ConnInfo
	Admission() *adapter.Admission
	IsShuttingDown() bool
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	source  SessionSource
	started time.Time
}

// NewHealthHandler creates a health handler. A nil source makes readiness
// fail.
func NewHealthHandler(source SessionSource) *HealthHandler {
	return &HealthHandler{source: source, started: time.Now()}
}

// Liveness handles GET /health. It succeeds as long as the HTTP server
// responds.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.started)
	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"service":    "iec104d",
		"started_at": h.started.UTC(),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready.
//
// Returns 503 while the IEC 104 server is missing or shutting down.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("server not initialized"))
		return
	}
	if h.source.IsShuttingDown() {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("server shutting down"))
		return
	}

	admission := h.source.Admission()
	writeJSON(w, http.StatusOK, healthyResponse(map[string]int{
		"active_sessions": admission.Active(),
		"max_connections": admission.Limit(),
	}))
}
