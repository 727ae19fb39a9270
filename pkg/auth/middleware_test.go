package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/tenant"
	"github.com/resortgenius/concierge-engine/pkg/testhelpers"
)

// mockAuthService is a mock implementation of AuthService for testing.
type mockAuthService struct {
	claims      *Claims
	token       string
	validateErr error
}

func (m *mockAuthService) ValidateRequest(*http.Request) (*Claims, string, error) {
	if m.validateErr != nil {
		return nil, "", m.validateErr
	}
	return m.claims, m.token, nil
}

func (m *mockAuthService) RequireOrgID(claims *Claims) error {
	_, err := claims.TenantID()
	return err
}

type captured struct {
	called bool
	claims *Claims
	token  string
	tenant tenant.ID
}

func (c *captured) handler(w http.ResponseWriter, r *http.Request) {
	c.called = true
	c.claims, _ = GetClaims(r.Context())
	c.token, _ = GetToken(r.Context())
	c.tenant = tenant.FromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func TestMiddleware_RequireAuth_Success(t *testing.T) {
	claims := &Claims{OrgID: testOrgID, Plan: "pro"}
	m := NewMiddleware(&mockAuthService{claims: claims, token: "test-token"}, zap.NewNop())

	var got captured
	rec := httptest.NewRecorder()
	m.RequireAuth(got.handler)(rec, httptest.NewRequest(http.MethodGet, "/api/history/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got.claims == nil || got.claims.OrgID != testOrgID {
		t.Error("expected claims to be set in context")
	}
	if got.token != "test-token" {
		t.Errorf("expected token 'test-token' in context, got %q", got.token)
	}
	if got.tenant.String() != testOrgID {
		t.Errorf("expected tenant %s, got %s", testOrgID, got.tenant)
	}
}

func TestMiddleware_RequireAuth_Unauthorized(t *testing.T) {
	m := NewMiddleware(&mockAuthService{validateErr: ErrMissingAuthorization}, zap.NewNop())

	var got captured
	rec := httptest.NewRecorder()
	m.RequireAuth(got.handler)(rec, httptest.NewRequest(http.MethodGet, "/api/history/sessions", nil))

	if got.called {
		t.Error("handler should not be called")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "unauthorized" {
		t.Errorf("expected error 'unauthorized', got %q", body["error"])
	}
}

func TestMiddleware_RequireAuth_MissingOrg(t *testing.T) {
	for _, orgID := range []string{"", "not-a-uuid"} {
		m := NewMiddleware(&mockAuthService{claims: &Claims{OrgID: orgID}}, zap.NewNop())

		var got captured
		rec := httptest.NewRecorder()
		m.RequireAuth(got.handler)(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if got.called {
			t.Errorf("org %q: handler should not be called", orgID)
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("org %q: expected status 400, got %d", orgID, rec.Code)
		}
	}
}

func TestMiddleware_ResolveTenant(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantTenant string
	}{
		{"anonymous", "", http.StatusOK, uuid.Nil.String()},
		{"valid token", testhelpers.GenerateTestJWTWithBearer("guest", testOrgID, "pro"), http.StatusOK, testOrgID},
		{"garbage token", "Bearer nonsense", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, ""},
		{"token without org", testhelpers.GenerateTestJWTWithBearer("guest", "", ""), http.StatusBadRequest, ""},
	}

	client, err := NewJWKSClient(&JWKSConfig{EnableVerification: false})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	m := NewMiddleware(NewAuthService(client, zap.NewNop()), zap.NewNop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got captured
			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			m.ResolveTenant(http.HandlerFunc(got.handler)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusOK && got.tenant.String() != tt.wantTenant {
				t.Errorf("expected tenant %s, got %s", tt.wantTenant, got.tenant)
			}
		})
	}
}

func TestMiddleware_DemoMode(t *testing.T) {
	demoOrg := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	m := NewMiddleware(&mockAuthService{validateErr: ErrMissingAuthorization}, zap.NewNop()).
		WithDemo(demoOrg, "enterprise")

	var got captured
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ignored")
	m.RequireAuth(got.handler)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got.tenant != demoOrg {
		t.Errorf("expected demo tenant, got %s", got.tenant)
	}
	if !got.claims.Demo || got.claims.Plan != "enterprise" || got.claims.Subject != DemoUserID {
		t.Errorf("unexpected demo claims: %+v", got.claims)
	}

	var public captured
	m.ResolveTenant(http.HandlerFunc(public.handler)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if public.tenant != demoOrg {
		t.Errorf("expected demo tenant on public route, got %s", public.tenant)
	}
}
