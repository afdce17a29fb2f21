package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	mode   string
	checks map[string]HealthCheck
	state  func() string
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. checks and state may be nil.
func NewHealthHandler(mode string, checks map[string]HealthCheck, state func() string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{mode: mode, checks: checks, state: state, logger: logger}
}

type healthResponse struct {
	Status      string            `json:"status"`
	Mode        string            `json:"mode,omitempty"`
	EngineState string            `json:"engine_state,omitempty"`
	Checks      map[string]string `json:"checks,omitempty"`
	Timestamp   string            `json:"timestamp"`
}

// HealthCheck reports "ok", or "degraded" with a 503 when any dependency
// check fails.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Mode:      h.mode,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.state != nil {
		resp.EngineState = h.state()
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	for _, name := range names {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(names))
		}
		if err := h.checks[name](ctx); err != nil {
			h.logger.WarnContext(ctx, "handler: health check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
			resp.Checks[name] = "error"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}
