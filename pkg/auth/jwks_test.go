package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/resortgenius/concierge-engine/pkg/testhelpers"
)

const testOrgID = "550e8400-e29b-41d4-a716-446655440000"

func TestJWKSClient_ValidateToken_DevMode(t *testing.T) {
	client, err := NewJWKSClient(&JWKSConfig{EnableVerification: false})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	defer client.Close()

	claims, err := client.ValidateToken(testhelpers.GenerateTestJWT("user-123", testOrgID, "pro"))
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("expected Subject 'user-123', got %q", claims.Subject)
	}
	if claims.OrgID != testOrgID {
		t.Errorf("expected OrgID %q, got %q", testOrgID, claims.OrgID)
	}
	if claims.Plan != "pro" {
		t.Errorf("expected Plan 'pro', got %q", claims.Plan)
	}
}

func TestJWKSClient_ValidateToken_Malformed(t *testing.T) {
	client, err := NewJWKSClient(&JWKSConfig{EnableVerification: false})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}

	for _, token := range []string{"", "not-a-valid-token", "a.!!!.c"} {
		if _, err := client.ValidateToken(token); err == nil {
			t.Errorf("expected error for token %q", token)
		}
	}
}

func TestNewJWKSClient_RequiresKeyMaterial(t *testing.T) {
	_, err := NewJWKSClient(&JWKSConfig{EnableVerification: true})
	if err == nil {
		t.Fatal("expected error when verification has no endpoints and no secret")
	}
}

func TestJWKSClient_HMAC(t *testing.T) {
	client, err := NewJWKSClient(&JWKSConfig{EnableVerification: true, HMACSecret: "s3cret"})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}

	token, err := testhelpers.SignHS256("s3cret", "staff-1", testOrgID, "enterprise", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := client.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.OrgID != testOrgID || claims.Plan != "enterprise" {
		t.Errorf("unexpected claims: %+v", claims)
	}

	forged, _ := testhelpers.SignHS256("wrong", "staff-1", testOrgID, "enterprise", time.Hour)
	if _, err := client.ValidateToken(forged); err == nil {
		t.Error("expected error for token signed with another secret")
	}

	expired, _ := testhelpers.SignHS256("s3cret", "staff-1", testOrgID, "free", -time.Minute)
	if _, err := client.ValidateToken(expired); err == nil {
		t.Error("expected error for expired token")
	}

	if _, err := client.ValidateToken(testhelpers.GenerateTestJWT("u", testOrgID, "")); err == nil {
		t.Error("expected unsigned token to be rejected when verification is enabled")
	}
}

// jwksServer serves the public half of key as a single-key JWKS.
func jwksServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	set := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid, issuer string) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "guest-9",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		OrgID: testOrgID,
		Plan:  "pro",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestJWKSClient_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := jwksServer(t, key, "k1")
	issuer := "https://auth.resortgenius.test"

	client, err := NewJWKSClient(&JWKSConfig{
		EnableVerification: true,
		JWKSEndpoints:      map[string]string{issuer: srv.URL},
	})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}

	claims, err := client.ValidateToken(signRS256(t, key, "k1", issuer))
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Subject != "guest-9" {
		t.Errorf("expected Subject 'guest-9', got %q", claims.Subject)
	}

	if _, err := client.ValidateToken(signRS256(t, key, "k1", "https://evil.test")); err == nil {
		t.Error("expected error for unauthorized issuer")
	}

	hmacToken, _ := testhelpers.SignHS256("anything", "u", testOrgID, "pro", time.Hour)
	if _, err := client.ValidateToken(hmacToken); err == nil {
		t.Error("expected HMAC token to be rejected without a configured secret")
	}
}
