package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/tenant"
)

// DemoUserID is the subject of demo-mode claims.
const DemoUserID = "demo-user"

// Middleware provides HTTP authentication middleware.
// It is thin and delegates authentication logic to AuthService.
type Middleware struct {
	authService AuthService
	demo        *Claims
	demoOrg     tenant.ID
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// WithDemo switches the middleware to demo mode: tokens are ignored and every
// request runs as orgID with the given plan.
func (m *Middleware) WithDemo(orgID tenant.ID, plan string) *Middleware {
	m.demoOrg = orgID
	m.demo = &Claims{OrgID: orgID.String(), Plan: plan, Demo: true}
	m.demo.Subject = DemoUserID
	return m
}

// RequireAuth validates the JWT and requires an organization id.
// Sets claims, token and tenant in context for downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.demo != nil {
			next(w, r.WithContext(WithClaims(r.Context(), m.demo, "", m.demoOrg)))
			return
		}

		claims, token, err := m.authService.ValidateRequest(r)
		if err != nil {
			m.unauthorized(w, "Authentication required")
			return
		}
		m.serveWithClaims(w, r, claims, token, next)
	}
}

// ResolveTenant is the optional variant of RequireAuth for public routes:
// a request without an Authorization header proceeds with no tenant, while a
// token that is present must be valid.
func (m *Middleware) ResolveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.demo != nil {
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), m.demo, "", m.demoOrg)))
			return
		}

		claims, token, err := m.authService.ValidateRequest(r)
		if errors.Is(err, ErrMissingAuthorization) {
			next.ServeHTTP(w, r.WithContext(tenant.WithTenant(r.Context(), tenant.None)))
			return
		}
		if err != nil {
			m.unauthorized(w, "Invalid or expired token")
			return
		}
		m.serveWithClaims(w, r, claims, token, next.ServeHTTP)
	})
}

func (m *Middleware) serveWithClaims(w http.ResponseWriter, r *http.Request, claims *Claims, token string, next http.HandlerFunc) {
	if err := m.authService.RequireOrgID(claims); err != nil {
		m.badRequest(w, "Missing or invalid org_id in token")
		return
	}
	orgID, _ := claims.TenantID()
	next(w, r.WithContext(WithClaims(r.Context(), claims, token, orgID)))
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}

// badRequest returns a 400 response with JSON error body.
func (m *Middleware) badRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "bad_request",
		"message": message,
	})
}
