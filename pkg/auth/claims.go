// Package auth resolves the tenant of an inbound request from a bearer JWT.
// Tokens are validated against JWKS endpoints or a shared HMAC secret.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/resortgenius/concierge-engine/pkg/tenant"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// PlanFree is assumed when a token carries no plan.
const PlanFree = "free"

// Claims represents the JWT claims issued to resort staff and guests.
// It embeds RegisteredClaims for standard JWT fields (sub, iss, exp, etc.)
// and adds the organization the caller belongs to.
type Claims struct {
	jwt.RegisteredClaims
	OrgID string `json:"org_id,omitempty"` // Organization UUID
	Plan  string `json:"plan,omitempty"`   // free | pro | enterprise
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`

	// Demo is set on claims injected in demo mode, never on parsed tokens.
	Demo bool `json:"-"`
}

// TenantID parses the organization id.
func (c *Claims) TenantID() (tenant.ID, error) {
	if c.OrgID == "" {
		return tenant.None, ErrMissingOrgID
	}
	id, err := tenant.Parse(c.OrgID)
	if err != nil {
		return tenant.None, fmt.Errorf("invalid org_id in token: %w", err)
	}
	return id, nil
}

// PlanOrDefault returns the plan, or PlanFree when none was issued.
func (c *Claims) PlanOrDefault() string {
	if c == nil || c.Plan == "" {
		return PlanFree
	}
	return c.Plan
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok && claims != nil
}

// GetToken retrieves the raw JWT token string from the request context.
// Returns empty string and false if token is not present.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// WithClaims returns a context carrying claims, the raw token and the
// tenant they resolve to.
func WithClaims(ctx context.Context, claims *Claims, token string, orgID tenant.ID) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	if token != "" {
		ctx = context.WithValue(ctx, TokenKey, token)
	}
	return tenant.WithTenant(ctx, orgID)
}
