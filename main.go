package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/resortgenius/concierge-engine/pkg/auth"
	"github.com/resortgenius/concierge-engine/pkg/cache"
	"github.com/resortgenius/concierge-engine/pkg/config"
	"github.com/resortgenius/concierge-engine/pkg/database"
	"github.com/resortgenius/concierge-engine/pkg/handlers"
	"github.com/resortgenius/concierge-engine/pkg/knowledge"
	"github.com/resortgenius/concierge-engine/pkg/llm"
	"github.com/resortgenius/concierge-engine/pkg/logging"
	"github.com/resortgenius/concierge-engine/pkg/metrics"
	"github.com/resortgenius/concierge-engine/pkg/middleware"
	"github.com/resortgenius/concierge-engine/pkg/places"
	"github.com/resortgenius/concierge-engine/pkg/ratelimit"
	"github.com/resortgenius/concierge-engine/pkg/repositories"
	"github.com/resortgenius/concierge-engine/pkg/retry"
	"github.com/resortgenius/concierge-engine/pkg/services"
	"github.com/resortgenius/concierge-engine/pkg/sideeffect"
	"github.com/resortgenius/concierge-engine/pkg/tenant"
	"github.com/resortgenius/concierge-engine/pkg/translation"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("demo_mode", cfg.Demo.Enabled),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("rate_limit_backend", cfg.RateLimit.Backend),
		zap.String("cache_backend", cfg.Cache.Backend))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	// Database: migrate first, then open the guarded pool.
	dbURL := cfg.Database.ConnectionString()
	if _, err := retry.DoWithResult(ctx, retry.StartupConfig(), func() (struct{}, error) {
		sqlDB, err := database.OpenMigrationDB(dbURL, 60*time.Second)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, database.RunMigrations(sqlDB, logger)
	}); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	db, err := retry.DoWithResult(ctx, retry.StartupConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:                  dbURL,
			MaxConnections:       cfg.Database.MaxConnections,
			MaxConnLifetime:      cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:      cfg.Database.MaxConnIdleTime,
			OnIsolationViolation: recorder.RecordIsolationViolation,
		}, logger)
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Backend == "redis" || cfg.RateLimit.Backend == "redis" {
		redisClient, err = retry.DoWithResult(ctx, retry.StartupConfig(), func() (*redis.Client, error) {
			return database.NewRedisClient(ctx, &cfg.Redis)
		})
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
	}

	// Answer sources
	clients, err := llm.NewClients(&cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("create llm clients: %w", err)
	}
	if clients.Embedder == nil {
		return errors.New("knowledge retrieval requires an embedding client; set OPENAI_API_KEY")
	}
	weaviateClient, err := knowledge.NewWeaviateClient(cfg.Knowledge.WeaviateURL)
	if err != nil {
		return err
	}
	answerer := knowledge.NewRAGAnswerer(
		knowledge.NewWeaviateRetriever(weaviateClient, clients.Embedder, logger),
		clients.Chat, cfg.Knowledge.TopK, cfg.Places.PropertyName, logger)

	var searcher places.Searcher
	if cfg.Places.APIKey != "" {
		google, err := places.NewGoogleClient(places.GoogleConfig{
			APIKey:  cfg.Places.APIKey,
			BaseURL: cfg.Places.BaseURL,
			QPS:     cfg.Places.QPS,
		}, logger)
		if err != nil {
			return fmt.Errorf("create places client: %w", err)
		}
		searcher = google
	} else {
		logger.Warn("GOOGLE_MAPS_API_KEY not set, nearby questions are answered from the knowledge base")
	}

	var translator translation.Translator
	if cfg.Orchestrator.MultiLanguage {
		translator = translation.NewLLMTranslator(clients.Chat, cfg.Translation.CacheSize, logger)
	}

	var responseCache cache.ResponseCache
	if cfg.Cache.Backend == "redis" {
		responseCache = cache.NewRedis(redisClient, logger)
	} else {
		responseCache = cache.NewMemory(cfg.Cache.MaxEntries)
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Backend == "redis" {
		limiter = ratelimit.NewRedis(redisClient)
	} else {
		memory := ratelimit.NewMemory(ratelimit.MemoryConfig{
			MaxKeys:       cfg.RateLimit.MaxKeys,
			SweepInterval: cfg.RateLimit.SweepInterval,
		}, logger)
		defer memory.Stop()
		limiter = memory
	}
	policy := ratelimit.NewPolicy(cfg.RateLimit.Limits(), cfg.RateLimit.Window,
		!cfg.RateLimit.Enabled || cfg.Demo.Enabled, cfg.RateLimit.ExemptPaths)
	if policy.Proxies, err = ratelimit.ParseProxies(cfg.RateLimit.TrustedProxies); err != nil {
		return fmt.Errorf("rate_limit.trusted_proxies: %w", err)
	}

	sink := sideeffect.New(sideeffect.Config{
		Workers:     cfg.SideEffects.Workers,
		QueueSize:   cfg.SideEffects.QueueSize,
		TaskTimeout: cfg.SideEffects.TaskTimeout,
	}, logger, recorder)

	// Repositories and services
	chatRepo := repositories.NewChatHistoryRepository()
	metricRepo := repositories.NewQueryMetricRepository()

	concierge := services.NewConciergeService(services.ConciergeConfig{
		DispatchTimeout:  cfg.Orchestrator.DispatchTimeout,
		TranslateTimeout: cfg.Orchestrator.TranslateTimeout,
		MaxQueryLength:   cfg.Orchestrator.MaxQueryLength,
		MultiLanguage:    cfg.Orchestrator.MultiLanguage,
		CacheEnabled:     cfg.Cache.Enabled,
		CacheTTL:         cfg.Cache.TTL,
		PropertyName:     cfg.Places.PropertyName,
		PropertyLocation: places.LatLng{Lat: cfg.Places.Latitude, Lng: cfg.Places.Longitude},
		RadiusMeters:     cfg.Places.RadiusMeters,
		MaxResults:       cfg.Places.MaxResults,
	}, services.ConciergeDeps{
		Cache:         responseCache,
		Places:        searcher,
		Knowledge:     answerer,
		Translator:    translator,
		History:       chatRepo,
		QueryMetrics:  metricRepo,
		Organizations: repositories.NewOrganizationRepository(),
		Scopes:        database.NewTenantScopeProvider(db),
		Sink:          sink,
		Metrics:       recorder,
	}, logger)
	historyService := services.NewHistoryService(chatRepo, logger)
	analyticsService := services.NewAnalyticsService(metricRepo, logger)

	// Auth
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		HMACSecret:         cfg.Auth.HMACSecret,
	})
	if err != nil {
		return fmt.Errorf("create jwks client: %w", err)
	}
	defer jwksClient.Close()

	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, logger), logger)
	if cfg.Demo.Enabled {
		demoOrg, err := tenant.Parse(cfg.Demo.OrgID)
		if err != nil {
			return fmt.Errorf("demo.org_id: %w", err)
		}
		authMiddleware.WithDemo(demoOrg, cfg.Demo.Plan)
		logger.Warn("Demo mode enabled: authentication bypassed and rate limiting open",
			zap.String("org_id", demoOrg.String()))
	}
	tenantMiddleware := handlers.TenantMiddleware(database.WithTenantContext(db, logger))
	limit := handlers.Limit(middleware.RateLimit(limiter, policy, recorder, logger))

	// Routes
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(concierge, logger).RegisterRoutes(mux, authMiddleware, limit)
	handlers.NewHistoryHandler(historyService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware, limit)
	handlers.NewAnalyticsHandler(analyticsService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware, limit)
	mux.Handle("GET /metrics", metrics.Handler(registry))

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Orchestrator.DispatchTimeout + cfg.Orchestrator.TranslateTimeout*2 + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting concierge-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	// Drain queued history and metric writes before the pool closes.
	if err := sink.Close(shutdownCtx); err != nil {
		logger.Error("Side-effect sink did not drain", zap.Error(err))
	}

	logger.Info("Server stopped")
	return nil
}
