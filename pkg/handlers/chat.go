package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/auth"
	"github.com/resortgenius/concierge-engine/pkg/services"
)

// ChatRequest for POST /api/chat
type ChatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	Language  string `json:"language,omitempty"`
}

// ChatHandler answers guest questions.
type ChatHandler struct {
	concierge services.ConciergeService
	logger    *zap.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(concierge services.ConciergeService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{concierge: concierge, logger: logger}
}

// RegisterRoutes registers the chat route. Authentication is optional; an
// anonymous caller is answered from the shared public scope.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, limit Limit) {
	mux.Handle("POST /api/chat", authMiddleware.ResolveTenant(limited(limit, h.Chat)))
}

// Chat handles POST /api/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	resp, err := h.concierge.Ask(r.Context(), services.AskRequest{
		Query:     req.Query,
		SessionID: req.SessionID,
		Language:  req.Language,
		UserID:    auth.GetUserIDFromContext(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err, "chat_failed", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
