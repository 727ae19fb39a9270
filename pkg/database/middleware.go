package database

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/tenant"
)

// WithTenantContext creates middleware that sets up a tenant-scoped DB connection.
// It runs AFTER auth middleware and binds the tenant that auth resolved.
// The connection is held for the whole handler, so only use it on routes that
// do quick storage work (history), never on the chat route.
func WithTenantContext(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			orgID := tenant.FromContext(r.Context())
			if orgID == tenant.None {
				logger.Warn("Missing tenant for tenant-scoped route", zap.String("path", r.URL.Path))
				writeError(w, http.StatusUnauthorized, "unauthorized", "Missing organization context")
				return
			}

			scope, err := db.Acquire(r.Context())
			if err != nil {
				logger.Error("Failed to acquire tenant connection",
					zap.String("org_id", orgID.String()),
					zap.Error(err))
				writeError(w, http.StatusInternalServerError, "database_error", "Database connection error")
				return
			}
			defer scope.Close()

			ctx := SetTenantScope(r.Context(), scope)
			next(w, r.WithContext(ctx))
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
