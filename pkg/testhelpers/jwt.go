// Package testhelpers provides utilities for testing concierge-engine components.
package testhelpers

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateTestJWT creates a test JWT token for use when verification is disabled.
// The token has a valid structure but no signature (alg: none).
func GenerateTestJWT(sub, orgID, plan string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	payload := fmt.Sprintf(`{"sub":"%s"`, sub)
	if orgID != "" {
		payload += fmt.Sprintf(`,"org_id":"%s"`, orgID)
	}
	if plan != "" {
		payload += fmt.Sprintf(`,"plan":"%s"`, plan)
	}
	payload += "}"

	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(sub, orgID, plan string) string {
	return "Bearer " + GenerateTestJWT(sub, orgID, plan)
}

// SignHS256 issues an HS256 token valid for ttl, as the service's own token
// issuer would.
func SignHS256(secret, sub, orgID, plan string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    sub,
		"org_id": orgID,
		"plan":   plan,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
