package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/auth"
	"github.com/resortgenius/concierge-engine/pkg/models"
	"github.com/resortgenius/concierge-engine/pkg/services"
)

// CreateSessionRequest for POST /api/history/session
type CreateSessionRequest struct {
	Title string `json:"title,omitempty"`
}

// SessionListResponse for GET /api/history/sessions
type SessionListResponse struct {
	Sessions []*models.ChatSession `json:"sessions"`
	Total    int                   `json:"total"`
}

// HistoryHandler serves a guest's own chat sessions.
type HistoryHandler struct {
	history services.HistoryService
	logger  *zap.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(history services.HistoryService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger}
}

// RegisterRoutes registers the history routes on the given mux.
func (h *HistoryHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware, limit Limit) {
	wrap := func(fn http.HandlerFunc) http.HandlerFunc {
		return authMiddleware.RequireAuth(limited(limit, tenantMiddleware(fn)))
	}
	mux.HandleFunc("POST /api/history/session", wrap(h.Create))
	mux.HandleFunc("GET /api/history/sessions", wrap(h.List))
	mux.HandleFunc("GET /api/history/session/{id}", wrap(h.Get))
	mux.HandleFunc("DELETE /api/history/session/{id}", wrap(h.Delete))
}

// Create handles POST /api/history/session. An empty body is allowed.
func (h *HistoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req, h.logger) {
		return
	}

	session, err := h.history.CreateSession(r.Context(), auth.GetUserIDFromContext(r.Context()), req.Title)
	if err != nil {
		writeServiceError(w, err, "create_session_failed", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: session}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/history/sessions?limit=
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		limit = n
	}

	sessions, err := h.history.ListSessions(r.Context(), auth.GetUserIDFromContext(r.Context()), limit)
	if err != nil {
		writeServiceError(w, err, "list_sessions_failed", h.logger)
		return
	}

	response := SessionListResponse{Sessions: sessions, Total: len(sessions)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/history/session/{id}
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.history.GetSession(r.Context(), auth.GetUserIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "get_session_failed", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: detail}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/history/session/{id}
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.history.DeleteSession(r.Context(), auth.GetUserIDFromContext(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, err, "delete_session_failed", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
