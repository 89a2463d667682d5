package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mpark1306/TempMate12/internal/collector"
	"github.com/mpark1306/TempMate12/internal/controller"
	"github.com/mpark1306/TempMate12/internal/lifecycle"
	"github.com/mpark1306/TempMate12/internal/observability"
	"github.com/mpark1306/TempMate12/internal/outcome"
	"github.com/mpark1306/TempMate12/internal/store"
)

// ModeReporter exposes the current delivery mode. Implemented by the controller.
type ModeReporter interface {
	Mode() controller.Mode
}

// AdminHandler serves the always-on health, metrics, and collector-reset
// endpoints. Unlike the status server it runs in both modes.
type AdminHandler struct {
	ctrl          ModeReporter
	collector     collector.Collector
	store         *store.Store
	logger        *zap.Logger
	outcomeWindow time.Duration
	startTime     time.Time
}

// NewAdminHandler returns an AdminHandler. outcomeWindow bounds the recent
// delivery history reported by /health.
func NewAdminHandler(ctrl ModeReporter, c collector.Collector, st *store.Store, outcomeWindow time.Duration, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		ctrl:          ctrl,
		collector:     c,
		store:         st,
		logger:        logger,
		outcomeWindow: outcomeWindow,
		startTime:     time.Now(),
	}
}

// Router builds the admin router with middleware applied.
func (h *AdminHandler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(h.logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	router.HandleFunc("/admin/reset", h.PostReset).Methods("POST")
	return router
}

// GetHealth handles GET /health. Degraded while in fallback mode: the
// buffer is growing and the collector is unreachable.
func (h *AdminHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	switch {
	case lifecycle.IsShuttingDown():
		status = "shutting-down"
		statusCode = http.StatusServiceUnavailable
	case h.ctrl.Mode() == controller.ModeFallback:
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	failures, total := outcome.Counts(h.outcomeWindow)
	resp := map[string]interface{}{
		"status":        status,
		"service":       "tempmate-logger",
		"version":       "dev",
		"mode":          h.ctrl.Mode().String(),
		"buffer_length": h.store.Len(),
		"delivery": map[string]interface{}{
			"failures_in_window": failures,
			"passes_in_window":   total,
			"window":             h.outcomeWindow.String(),
		},
		"uptime":    time.Since(h.startTime).Truncate(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, statusCode, resp)
}

// PostReset handles POST /admin/reset: asks the collector to drop its
// stored data. The software stand-in for the long button hold on the
// original hardware. No retry and no mode change; the delivery state
// machine never hears about it.
func (h *AdminHandler) PostReset(w http.ResponseWriter, r *http.Request) {
	if err := h.collector.Reset(r.Context()); err != nil {
		h.logger.Warn("collector reset failed", zap.Error(err))
		writeError(w, r, http.StatusBadGateway, "RESET_FAILED", "collector did not accept the reset")
		return
	}
	h.logger.Info("collector data reset")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"action":  "reset",
		"message": "Collector data reset",
	})
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with
// code, message, and requestId (correlation ID) when available.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
