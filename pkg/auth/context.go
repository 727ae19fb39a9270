package auth

import (
	"context"
	"fmt"
)

// GetUserIDFromContext extracts the user ID from JWT claims in the context.
// Returns empty string if not authenticated or claims are missing.
func GetUserIDFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok {
		return ""
	}
	return claims.Subject
}

// GetPlanFromContext returns the caller's plan, PlanFree when unauthenticated.
func GetPlanFromContext(ctx context.Context) string {
	claims, _ := GetClaims(ctx)
	return claims.PlanOrDefault()
}

// IsDemo reports whether the request runs under demo-mode claims.
func IsDemo(ctx context.Context) bool {
	claims, ok := GetClaims(ctx)
	return ok && claims.Demo
}

// RequireUserIDFromContext extracts the user ID from context and returns an error if not found.
func RequireUserIDFromContext(ctx context.Context) (string, error) {
	userID := GetUserIDFromContext(ctx)
	if userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}
