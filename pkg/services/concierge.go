package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/resortgenius/concierge-engine/pkg/apperrors"
	"github.com/resortgenius/concierge-engine/pkg/cache"
	"github.com/resortgenius/concierge-engine/pkg/classifier"
	"github.com/resortgenius/concierge-engine/pkg/database"
	"github.com/resortgenius/concierge-engine/pkg/knowledge"
	"github.com/resortgenius/concierge-engine/pkg/logging"
	"github.com/resortgenius/concierge-engine/pkg/metrics"
	"github.com/resortgenius/concierge-engine/pkg/models"
	"github.com/resortgenius/concierge-engine/pkg/places"
	"github.com/resortgenius/concierge-engine/pkg/repositories"
	"github.com/resortgenius/concierge-engine/pkg/sideeffect"
	"github.com/resortgenius/concierge-engine/pkg/tenant"
	"github.com/resortgenius/concierge-engine/pkg/translation"
)

var tracer = otel.Tracer("concierge-engine/services")

// Source identifies where an answer came from.
type Source int

const (
	SourceCache Source = iota
	SourcePlaces
	SourceKnowledge
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourcePlaces:
		return "places"
	case SourceKnowledge:
		return "knowledge"
	case SourceFallback:
		return "fallback"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

const (
	// FallbackAnswer is served when no answer source produced a result in time.
	FallbackAnswer = "I'm sorry, I'm having trouble finding that information right now. " +
		"Please try again in a moment, or contact the front desk for immediate assistance."

	placesSourceRef   = "Google Maps Places API"
	fallbackSourceRef = "fallback"

	sessionTitleRunes = 60
)

// AskRequest is one guest question.
type AskRequest struct {
	Query string
	// SessionID continues an existing conversation; empty starts a new one.
	SessionID string
	// Language is the guest's chosen language. Empty means detect.
	Language string
	UserID   string
}

// AskResponse is the answer returned to the guest.
type AskResponse struct {
	Answer           string   `json:"answer"`
	Sources          []string `json:"sources"`
	DetectedLanguage string   `json:"detected_language,omitempty"`
	SessionID        string   `json:"session_id"`

	Source   Source `json:"-"`
	Category string `json:"-"`
}

// ConciergeService answers guest questions for the tenant carried by ctx.
type ConciergeService interface {
	Ask(ctx context.Context, req AskRequest) (*AskResponse, error)
}

// Scheduler hands work to the background side-effect pool.
type Scheduler interface {
	Schedule(ctx context.Context, key, name string, fn sideeffect.Task) bool
}

var _ Scheduler = (*sideeffect.Sink)(nil)

// ConciergeConfig bounds and parameterizes the pipeline.
type ConciergeConfig struct {
	DispatchTimeout  time.Duration
	TranslateTimeout time.Duration
	MaxQueryLength   int
	MultiLanguage    bool

	CacheEnabled bool
	CacheTTL     time.Duration

	// Default property, used for place search when the tenant has no
	// location on record.
	PropertyName     string
	PropertyLocation places.LatLng
	RadiusMeters     int
	MaxResults       int
}

// ConciergeDeps are the collaborators of the pipeline. Places, Translator,
// History, QueryMetrics and Organizations may be nil; the corresponding
// step is then skipped.
type ConciergeDeps struct {
	Cache         cache.ResponseCache
	Places        places.Searcher
	Knowledge     knowledge.Answerer
	Translator    translation.Translator
	History       repositories.ChatHistoryRepository
	QueryMetrics  repositories.QueryMetricRepository
	Organizations repositories.OrganizationRepository
	Scopes        ScopeRunner
	Sink          Scheduler
	Metrics       metrics.Recorder
}

type conciergeService struct {
	cfg    ConciergeConfig
	deps   ConciergeDeps
	flight singleflight.Group
	logger *zap.Logger
}

// NewConciergeService creates a ConciergeService.
func NewConciergeService(cfg ConciergeConfig, deps ConciergeDeps, logger *zap.Logger) ConciergeService {
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 20 * time.Second
	}
	if cfg.TranslateTimeout <= 0 {
		cfg.TranslateTimeout = 8 * time.Second
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 2000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &conciergeService{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("concierge"),
	}
}

var _ ConciergeService = (*conciergeService)(nil)

// outcome is the shareable result of one pipeline run.
type outcome struct {
	Answer           string   `json:"answer"`
	Sources          []string `json:"sources"`
	DetectedLanguage string   `json:"detected_language,omitempty"`
	Category         string   `json:"category,omitempty"`

	source Source
	err    error
}

func (s *conciergeService) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", apperrors.ErrInvalidInput)
	}
	if utf8.RuneCountInString(query) > s.cfg.MaxQueryLength {
		return nil, fmt.Errorf("query exceeds %d characters: %w", s.cfg.MaxQueryLength, apperrors.ErrInvalidInput)
	}
	sessionID, err := parseSessionID(req.SessionID)
	if err != nil {
		return nil, err
	}
	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language != "" && !translation.IsSupported(language) {
		return nil, fmt.Errorf("unsupported language %q: %w", req.Language, apperrors.ErrInvalidInput)
	}

	orgID := tenant.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "concierge.Ask")
	defer span.End()
	span.SetAttributes(attribute.String("tenant", tenant.PartitionKey(orgID)))

	subject := cacheSubject(query, language)

	out, hit := s.lookup(ctx, orgID, subject)
	if !hit {
		out = s.coalesced(ctx, orgID, subject, query, language)
	}

	elapsed := time.Since(start)
	s.deps.Metrics.RecordAnswer(out.source.String(), elapsed)
	span.SetAttributes(attribute.String("source", out.source.String()))
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, "fallback")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	s.persist(ctx, orgID, sessionID, req.UserID, query, out, elapsed)

	return &AskResponse{
		Answer:           out.Answer,
		Sources:          append([]string(nil), out.Sources...),
		DetectedLanguage: out.DetectedLanguage,
		SessionID:        sessionID.String(),
		Source:           out.source,
		Category:         out.Category,
	}, nil
}

func parseSessionID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session_id %q: %w", raw, apperrors.ErrInvalidInput)
	}
	return id, nil
}

// cacheSubject folds an explicit language choice into the cached text so
// answers rendered for different languages never share an entry.
func cacheSubject(query, language string) string {
	if language == "" {
		return query
	}
	return language + "|" + query
}

func (s *conciergeService) lookup(ctx context.Context, orgID tenant.ID, subject string) (*outcome, bool) {
	if !s.cfg.CacheEnabled || s.deps.Cache == nil {
		return nil, false
	}
	raw, ok := s.deps.Cache.Get(ctx, orgID, subject)
	s.deps.Metrics.RecordCacheLookup(ok)
	if !ok {
		return nil, false
	}
	out := &outcome{}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Warn("Discarding unreadable cache entry", zap.Error(err))
		return nil, false
	}
	out.source = SourceCache
	return out, true
}

// coalesced runs the pipeline once per concurrent (tenant, query) miss. The
// shared run is detached from every caller's cancellation and bounded by its
// own budget; a waiter that gives up early gets a fallback while the run
// continues for the others.
func (s *conciergeService) coalesced(ctx context.Context, orgID tenant.ID, subject, query, language string) *outcome {
	key := cache.Key(orgID, subject)
	ch := s.flight.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runBudget())
		defer cancel()
		return s.run(runCtx, orgID, subject, query, language), nil
	})

	select {
	case res := <-ch:
		shared := res.Val.(*outcome)
		out := *shared
		return &out
	case <-ctx.Done():
		return s.fallback(ctx, query, "", language, language, ctx.Err())
	}
}

// runBudget covers detection, both translations and the dispatch.
func (s *conciergeService) runBudget() time.Duration {
	return s.cfg.DispatchTimeout + 3*s.cfg.TranslateTimeout
}

// run executes classify, translate, dispatch and translate back for a miss.
// It never fails: any error becomes a fallback outcome.
func (s *conciergeService) run(ctx context.Context, orgID tenant.ID, subject, query, language string) *outcome {
	var analysis classifier.Result
	detected := language

	g, gctx := errgroup.WithContext(ctx)
	if detected == "" && s.cfg.MultiLanguage && s.deps.Translator != nil {
		g.Go(func() error {
			detected = s.detect(gctx, query)
			return nil
		})
	}
	g.Go(func() error {
		analysis = classifier.Analyze(query)
		return nil
	})
	_ = g.Wait()
	if detected == "" {
		detected = translation.English
	}

	// Routing vocabulary is English, so a translated query is classified again.
	english := query
	if detected != translation.English {
		english = s.translate(ctx, query, detected, translation.English)
		analysis = classifier.Analyze(english)
	}
	category := analysis.Category

	source := s.route(analysis.Label)
	answer, sources, err := s.dispatch(ctx, orgID, source, english, analysis)
	if err != nil {
		return s.fallback(ctx, query, category, detected, language, err)
	}

	if detected != translation.English {
		answer = s.translate(ctx, answer, translation.English, detected)
	}

	out := &outcome{
		Answer:   answer,
		Sources:  sources,
		Category: category,
		source:   source,
	}
	if s.cfg.MultiLanguage || language != "" {
		out.DetectedLanguage = detected
	}
	s.store(ctx, orgID, subject, out)
	return out
}

func (s *conciergeService) route(label classifier.Label) Source {
	if label == classifier.ExternalAmenity && s.deps.Places != nil {
		return SourcePlaces
	}
	return SourceKnowledge
}

// dispatch calls the answer source under the dispatch timeout. The adapter
// runs in its own goroutine so one that ignores cancellation still cannot
// hold the request past the deadline.
func (s *conciergeService) dispatch(ctx context.Context, orgID tenant.ID, source Source, query string, analysis classifier.Result) (string, []string, error) {
	ctx, span := tracer.Start(ctx, "concierge.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("source", source.String())))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	defer cancel()

	type result struct {
		answer  string
		sources []string
		err     error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		var r result
		switch source {
		case SourcePlaces:
			r.answer, r.err = s.askPlaces(ctx, analysis.PlaceType)
			r.sources = []string{placesSourceRef}
		case SourceKnowledge:
			var a *knowledge.Answer
			a, r.err = s.askKnowledge(ctx, orgID, query)
			if r.err == nil {
				r.answer, r.sources = a.Text, a.SourceRefs
			}
		case SourceCache, SourceFallback:
			r.err = fmt.Errorf("%s is not a dispatchable source", source)
		}
		done <- r
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.err = fmt.Errorf("%s: %w", source, apperrors.ErrAdapterTimeout)
		} else {
			r.err = ctx.Err()
		}
	}

	outcomeLabel := "ok"
	switch {
	case errors.Is(r.err, apperrors.ErrAdapterTimeout):
		outcomeLabel = "timeout"
	case errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil:
		// The adapter noticed the deadline before the select did.
		outcomeLabel = "timeout"
		r.err = fmt.Errorf("%s: %w", source, apperrors.ErrAdapterTimeout)
	case r.err != nil:
		outcomeLabel = "error"
		r.err = fmt.Errorf("%s: %w: %w", source, apperrors.ErrAdapterFailure, r.err)
	}
	s.deps.Metrics.RecordDispatch(source.String(), outcomeLabel, time.Since(start))

	if r.err != nil {
		span.RecordError(r.err)
		span.SetStatus(codes.Error, outcomeLabel)
		return "", nil, r.err
	}
	if r.sources == nil {
		r.sources = []string{}
	}
	return r.answer, r.sources, nil
}

func (s *conciergeService) askKnowledge(ctx context.Context, orgID tenant.ID, query string) (*knowledge.Answer, error) {
	if s.deps.Knowledge == nil {
		return nil, errors.New("no knowledge source configured")
	}
	a, err := s.deps.Knowledge.Answer(ctx, query, tenant.PartitionKey(orgID))
	if err != nil {
		return nil, err
	}
	if a == nil || strings.TrimSpace(a.Text) == "" {
		return nil, errors.New("knowledge source returned an empty answer")
	}
	return a, nil
}

func (s *conciergeService) askPlaces(ctx context.Context, placeType string) (string, error) {
	name, origin := s.property(ctx)
	results, err := s.deps.Places.Search(ctx, places.Query{
		Origin:       origin,
		PlaceType:    placeType,
		RadiusMeters: s.cfg.RadiusMeters,
		MaxResults:   s.cfg.MaxResults,
	})
	if err != nil {
		return "", err
	}
	return places.FormatNearby(results, placeType, name), nil
}

// property resolves the tenant's property name and location, falling back to
// the configured default when the tenant has none on record.
func (s *conciergeService) property(ctx context.Context) (string, places.LatLng) {
	name, loc := s.cfg.PropertyName, s.cfg.PropertyLocation
	if !tenant.IsSet(ctx) || s.deps.Organizations == nil || s.deps.Scopes == nil {
		return name, loc
	}

	var org *models.Organization
	err := s.deps.Scopes.Run(ctx, func(ctx context.Context) error {
		var err error
		org, err = s.deps.Organizations.Current(ctx)
		return err
	})
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Warn("Failed to load property location, using default", zap.Error(err))
		}
		return name, loc
	}
	if org.PropertyName != "" {
		name = org.PropertyName
	}
	if org.HasLocation() {
		loc = places.LatLng{Lat: *org.Latitude, Lng: *org.Longitude}
	}
	return name, loc
}

func (s *conciergeService) detect(ctx context.Context, text string) string {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TranslateTimeout)
	defer cancel()
	lang, err := s.deps.Translator.DetectLanguage(ctx, text)
	if err != nil {
		s.logger.Warn("Language detection failed, assuming English", zap.Error(err))
		return translation.English
	}
	return lang
}

// translate degrades to the untranslated text on failure.
func (s *conciergeService) translate(ctx context.Context, text, from, to string) string {
	if s.deps.Translator == nil {
		return text
	}
	ctx, span := tracer.Start(ctx, "concierge.translate")
	defer span.End()
	span.SetAttributes(attribute.String("from", from), attribute.String("to", to))

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TranslateTimeout)
	defer cancel()
	translated, err := s.deps.Translator.Translate(ctx, text, from, to)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("Translation failed, using original text",
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err))
		return text
	}
	return translated
}

func (s *conciergeService) fallback(ctx context.Context, query, category, detected, language string, cause error) *outcome {
	reason := "error"
	if errors.Is(cause, apperrors.ErrAdapterTimeout) || errors.Is(cause, context.DeadlineExceeded) {
		reason = "timeout"
	} else if errors.Is(cause, context.Canceled) {
		reason = "canceled"
	}
	s.deps.Metrics.RecordFallback(reason)
	s.logger.Warn("Serving fallback answer",
		zap.String("tenant", tenant.PartitionKey(tenant.FromContext(ctx))),
		zap.String("query", logging.SanitizeGuestQuery(query)),
		zap.String("reason", reason),
		zap.Error(cause))

	if category == "" {
		category = classifier.Category(query)
	}
	answer := FallbackAnswer
	if detected != "" && detected != translation.English && ctx.Err() == nil {
		answer = s.translate(ctx, answer, translation.English, detected)
	}
	out := &outcome{
		Answer:   answer,
		Sources:  []string{fallbackSourceRef},
		Category: category,
		source:   SourceFallback,
		err:      cause,
	}
	if s.cfg.MultiLanguage || language != "" {
		out.DetectedLanguage = detected
	}
	return out
}

func (s *conciergeService) store(ctx context.Context, orgID tenant.ID, subject string, out *outcome) {
	if !s.cfg.CacheEnabled || s.deps.Cache == nil || out.source == SourceFallback {
		return
	}
	raw, err := json.Marshal(out)
	if err != nil {
		s.logger.Warn("Failed to encode answer for cache", zap.Error(err))
		return
	}
	s.deps.Cache.Put(ctx, orgID, subject, raw, s.cfg.CacheTTL)
}

// persist schedules history and analytics writes. Requests without a tenant
// are not persisted: every table is tenant-owned.
func (s *conciergeService) persist(ctx context.Context, orgID tenant.ID, sessionID uuid.UUID, userID, query string, out *outcome, elapsed time.Duration) {
	if orgID == tenant.None || s.deps.Sink == nil || s.deps.Scopes == nil {
		return
	}
	key := sessionID.String()
	// Tasks open their own short-lived scope; never reuse one tied to the request.
	ctx = database.SetTenantScope(ctx, nil)

	if s.deps.History != nil {
		history := s.deps.History
		answer := out.Answer
		s.deps.Sink.Schedule(ctx, key, "history.user_message", func(ctx context.Context) error {
			return s.deps.Scopes.Run(ctx, func(ctx context.Context) error {
				if err := history.EnsureSession(ctx, sessionID, userID, sessionTitle(query)); err != nil {
					return err
				}
				_, err := history.AppendMessage(ctx, sessionID, models.ChatRoleUser, query)
				return err
			})
		})
		s.deps.Sink.Schedule(ctx, key, "history.assistant_message", func(ctx context.Context) error {
			return s.deps.Scopes.Run(ctx, func(ctx context.Context) error {
				_, err := history.AppendMessage(ctx, sessionID, models.ChatRoleAssistant, answer)
				return err
			})
		})
	}

	if s.deps.QueryMetrics != nil {
		m := &models.QueryMetric{
			SessionID:        &sessionID,
			QueryText:        query,
			Category:         out.Category,
			SourceType:       out.source.String(),
			ResponseTimeMs:   int(elapsed.Milliseconds()),
			Success:          out.err == nil,
			CacheHit:         out.source == SourceCache,
			DetectedLanguage: out.DetectedLanguage,
		}
		if out.err != nil {
			m.ErrorMessage = logging.TruncateString(out.err.Error(), 500)
		}
		if m.Category == "" {
			m.Category = classifier.Category(query)
		}
		repo := s.deps.QueryMetrics
		s.deps.Sink.Schedule(ctx, key, "query_metric", func(ctx context.Context) error {
			return s.deps.Scopes.Run(ctx, func(ctx context.Context) error {
				return repo.Log(ctx, m)
			})
		})
	}
}

func sessionTitle(query string) string {
	if utf8.RuneCountInString(query) <= sessionTitleRunes {
		return query
	}
	return string([]rune(query)[:sessionTitleRunes]) + "..."
}
