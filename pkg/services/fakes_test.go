package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/resortgenius/concierge-engine/pkg/apperrors"
	"github.com/resortgenius/concierge-engine/pkg/knowledge"
	"github.com/resortgenius/concierge-engine/pkg/metrics"
	"github.com/resortgenius/concierge-engine/pkg/models"
	"github.com/resortgenius/concierge-engine/pkg/places"
	"github.com/resortgenius/concierge-engine/pkg/repositories"
)

type fakeAnswerer struct {
	mu     sync.Mutex
	scopes []string
	asked  []string
	fn     func(ctx context.Context, query, scopeKey string) (*knowledge.Answer, error)
}

func (f *fakeAnswerer) Answer(ctx context.Context, query, scopeKey string) (*knowledge.Answer, error) {
	f.mu.Lock()
	f.scopes = append(f.scopes, scopeKey)
	f.asked = append(f.asked, query)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, query, scopeKey)
	}
	return &knowledge.Answer{Text: "The pool opens at 7am.", SourceRefs: []string{"facilities.md"}}, nil
}

func (f *fakeAnswerer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scopes)
}

func (f *fakeAnswerer) scopeKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scopes...)
}

func (f *fakeAnswerer) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.asked...)
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []places.Query
	results []places.Place
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, q places.Query) ([]places.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.results, f.err
}

type fakeTranslator struct {
	detected     string
	translations map[string]string
	err          error
}

func (f *fakeTranslator) DetectLanguage(context.Context, string) (string, error) {
	if f.err != nil {
		return "en", f.err
	}
	return f.detected, nil
}

func (f *fakeTranslator) Translate(_ context.Context, text, source, target string) (string, error) {
	if source == target {
		return text, nil
	}
	if f.err != nil {
		return text, f.err
	}
	if out, ok := f.translations[text]; ok {
		return out, nil
	}
	return text, nil
}

// passthroughScopes runs fn on ctx as if a scope were bound.
type passthroughScopes struct{}

func (passthroughScopes) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeOrganizations struct {
	org *models.Organization
}

func (f *fakeOrganizations) Current(context.Context) (*models.Organization, error) {
	if f.org == nil {
		return nil, apperrors.ErrNotFound
	}
	return f.org, nil
}

type historyEntry struct {
	sessionID uuid.UUID
	role      models.ChatRole
	content   string
}

type fakeHistory struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*models.ChatSession
	messages  []historyEntry
	appendErr error
}

var _ repositories.ChatHistoryRepository = (*fakeHistory)(nil)

func newFakeHistory() *fakeHistory {
	return &fakeHistory{sessions: make(map[uuid.UUID]*models.ChatSession)}
}

func (f *fakeHistory) CreateSession(_ context.Context, userID, title string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if title == "" {
		title = models.DefaultSessionTitle
	}
	s := &models.ChatSession{ID: uuid.New(), UserID: userID, Title: title, CreatedAt: time.Now()}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeHistory) EnsureSession(_ context.Context, sessionID uuid.UUID, userID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionID]; !ok {
		f.sessions[sessionID] = &models.ChatSession{ID: sessionID, UserID: userID, Title: title}
	}
	return nil
}

func (f *fakeHistory) AppendMessage(_ context.Context, sessionID uuid.UUID, role models.ChatRole, content string) (*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	if _, ok := f.sessions[sessionID]; !ok {
		return nil, apperrors.ErrNotFound
	}
	f.messages = append(f.messages, historyEntry{sessionID, role, content})
	return &models.ChatMessage{ID: uuid.New(), SessionID: sessionID, Role: role, Content: content}, nil
}

func (f *fakeHistory) ListSessions(_ context.Context, userID string, _ int) ([]*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ChatSession
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeHistory) GetSession(_ context.Context, sessionID uuid.UUID, userID string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

func (f *fakeHistory) ListMessages(_ context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.ChatMessage, 0)
	for _, m := range f.messages {
		if m.sessionID == sessionID {
			out = append(out, &models.ChatMessage{SessionID: sessionID, Role: m.role, Content: m.content})
		}
	}
	return out, nil
}

func (f *fakeHistory) DeleteSession(_ context.Context, sessionID uuid.UUID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID {
		return apperrors.ErrNotFound
	}
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeHistory) entries() []historyEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]historyEntry(nil), f.messages...)
}

type fakeQueryMetrics struct {
	mu      sync.Mutex
	logged  []*models.QueryMetric
	stats   *models.QueryStats
	since   time.Time
	recent  []*models.QueryMetric
	limit   int
	statErr error
}

var _ repositories.QueryMetricRepository = (*fakeQueryMetrics)(nil)

func (f *fakeQueryMetrics) Log(_ context.Context, m *models.QueryMetric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, m)
	return nil
}

func (f *fakeQueryMetrics) Stats(_ context.Context, since time.Time) (*models.QueryStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = since
	return f.stats, f.statErr
}

func (f *fakeQueryMetrics) Recent(_ context.Context, limit int) ([]*models.QueryMetric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
	return f.recent, nil
}

func (f *fakeQueryMetrics) all() []*models.QueryMetric {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.QueryMetric(nil), f.logged...)
}

type recordingMetrics struct {
	metrics.Nop
	mu        sync.Mutex
	fallbacks []string
	lookups   []bool
}

func (r *recordingMetrics) RecordFallback(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, reason)
}

func (r *recordingMetrics) RecordCacheLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups = append(r.lookups, hit)
}

func (r *recordingMetrics) fallbackReasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fallbacks...)
}
