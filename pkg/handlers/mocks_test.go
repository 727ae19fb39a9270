package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/apperrors"
	"github.com/resortgenius/concierge-engine/pkg/auth"
	"github.com/resortgenius/concierge-engine/pkg/models"
	"github.com/resortgenius/concierge-engine/pkg/services"
	"github.com/resortgenius/concierge-engine/pkg/tenant"
)

var testOrg = uuid.MustParse("6f1c2c1e-3f4b-4d8a-9c55-0f6a3c2b1d10")

// staticAuth accepts any "Bearer ok" request as a guest of testOrg.
type staticAuth struct{}

func (staticAuth) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	switch r.Header.Get("Authorization") {
	case "":
		return nil, "", auth.ErrMissingAuthorization
	case "Bearer ok":
		claims := &auth.Claims{OrgID: testOrg.String(), Plan: "pro"}
		claims.Subject = "guest-1"
		return claims, "ok", nil
	default:
		return nil, "", auth.ErrInvalidAuthFormat
	}
}

func (staticAuth) RequireOrgID(claims *auth.Claims) error {
	_, err := claims.TenantID()
	return err
}

func testAuthMiddleware() *auth.Middleware {
	return auth.NewMiddleware(staticAuth{}, zap.NewNop())
}

// passTenant stands in for the database tenant middleware.
func passTenant(next http.HandlerFunc) http.HandlerFunc { return next }

type fakeConcierge struct {
	mu       sync.Mutex
	requests []services.AskRequest
	tenants  []tenant.ID
	resp     *services.AskResponse
	err      error
}

func (f *fakeConcierge) Ask(ctx context.Context, req services.AskRequest) (*services.AskResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.tenants = append(f.tenants, tenant.FromContext(ctx))
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeHistoryService struct {
	sessions map[string]*models.ChatSession
	users    []string
}

func newFakeHistoryService() *fakeHistoryService {
	return &fakeHistoryService{sessions: map[string]*models.ChatSession{}}
}

func (f *fakeHistoryService) CreateSession(_ context.Context, userID, title string) (*models.ChatSession, error) {
	f.users = append(f.users, userID)
	if title == "" {
		title = models.DefaultSessionTitle
	}
	s := &models.ChatSession{ID: uuid.New(), OrgID: testOrg, UserID: userID, Title: title}
	f.sessions[s.ID.String()] = s
	return s, nil
}

func (f *fakeHistoryService) ListSessions(_ context.Context, userID string, limit int) ([]*models.ChatSession, error) {
	f.users = append(f.users, userID)
	var out []*models.ChatSession
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeHistoryService) GetSession(_ context.Context, userID, sessionID string) (*services.SessionDetail, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, apperrors.ErrInvalidInput
	}
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	return &services.SessionDetail{Session: s}, nil
}

func (f *fakeHistoryService) DeleteSession(_ context.Context, userID, sessionID string) error {
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID {
		return apperrors.ErrNotFound
	}
	delete(f.sessions, sessionID)
	return nil
}

type fakeAnalytics struct {
	days  int
	limit int
	err   error
}

func (f *fakeAnalytics) Stats(_ context.Context, days int) (*models.QueryStats, error) {
	f.days = days
	if f.err != nil {
		return nil, f.err
	}
	return &models.QueryStats{Total: 3, BySource: map[string]int{"knowledge": 3}}, nil
}

func (f *fakeAnalytics) Recent(_ context.Context, limit int) ([]*models.QueryMetric, error) {
	f.limit = limit
	return []*models.QueryMetric{{QueryText: "spa hours", SourceType: "knowledge"}}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }
