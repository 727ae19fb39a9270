package handlers

import "net/http"

// TenantMiddleware binds a tenant-scoped database connection for the handler.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// Limit admits or rejects a request before the handler runs.
type Limit func(http.Handler) http.Handler

// limited applies limit to h. A nil limit leaves h unchanged.
func limited(limit Limit, h http.HandlerFunc) http.HandlerFunc {
	if limit == nil {
		return h
	}
	return limit(h).ServeHTTP
}
