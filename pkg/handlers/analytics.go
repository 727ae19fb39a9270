package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/auth"
	"github.com/resortgenius/concierge-engine/pkg/services"
)

// AnalyticsHandler reports a tenant's query metrics.
type AnalyticsHandler struct {
	analytics services.AnalyticsService
	logger    *zap.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(analytics services.AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, logger: logger}
}

// RegisterRoutes registers the analytics routes on the given mux.
func (h *AnalyticsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware, limit Limit) {
	mux.HandleFunc("GET /api/analytics/stats",
		authMiddleware.RequireAuth(limited(limit, tenantMiddleware(h.Stats))))
	mux.HandleFunc("GET /api/analytics/recent",
		authMiddleware.RequireAuth(limited(limit, tenantMiddleware(h.Recent))))
}

// Stats handles GET /api/analytics/stats?days=
func (h *AnalyticsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days, ok := h.intParam(w, r, "days", 7)
	if !ok {
		return
	}

	stats, err := h.analytics.Stats(r.Context(), days)
	if err != nil {
		writeServiceError(w, err, "stats_failed", h.logger)
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: stats}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Recent handles GET /api/analytics/recent?limit=
func (h *AnalyticsHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.intParam(w, r, "limit", 0)
	if !ok {
		return
	}

	recent, err := h.analytics.Recent(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err, "recent_failed", h.logger)
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: recent}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *AnalyticsHandler) intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_"+name, name+" must be an integer"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return 0, false
	}
	return n, true
}
