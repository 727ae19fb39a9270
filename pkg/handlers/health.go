package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/config"
	"github.com/resortgenius/concierge-engine/pkg/translation"
)

const serviceName = "concierge-engine"

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse for GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Mode     string `json:"mode"`
	Database string `json:"database,omitempty"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// InfoResponse for GET /
type InfoResponse struct {
	Service  string          `json:"service"`
	Version  string          `json:"version"`
	Mode     string          `json:"mode"`
	DemoMode bool            `json:"demo_mode"`
	Features map[string]bool `json:"features"`
}

// HealthHandler handles health, ping, info and language endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     Pinger
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil.
func NewHealthHandler(cfg *config.Config, db Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, logger: logger}
}

// RegisterRoutes registers the handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
	mux.HandleFunc("GET /{$}", h.Info)
	mux.HandleFunc("GET /api/languages", h.Languages)
}

func (h *HealthHandler) mode() string {
	if h.cfg.Demo.Enabled {
		return "demo"
	}
	return "production"
}

// Health handles GET /health. An unreachable database answers 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "healthy", Mode: h.mode()}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("Health check database ping failed", zap.Error(err))
			response.Status = "degraded"
			response.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			response.Database = "ok"
		}
	}

	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     serviceName,
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}

// Info handles GET /
func (h *HealthHandler) Info(w http.ResponseWriter, r *http.Request) {
	response := InfoResponse{
		Service:  "Resort Genius API",
		Version:  h.cfg.Version,
		Mode:     h.mode(),
		DemoMode: h.cfg.Demo.Enabled,
		Features: map[string]bool{
			"nearby_places":  h.cfg.Places.APIKey != "",
			"multi_language": h.cfg.Orchestrator.MultiLanguage,
			"response_cache": h.cfg.Cache.Enabled,
			"rate_limiting":  h.cfg.RateLimit.Enabled && !h.cfg.Demo.Enabled,
			"chat_history":   true,
		},
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode info response", zap.Error(err))
	}
}

// Languages handles GET /api/languages
func (h *HealthHandler) Languages(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"languages": translation.SupportedLanguages(),
		"default":   translation.English,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode languages response", zap.Error(err))
	}
}
