package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for concierge-engine.
// Configuration comes from config.yaml with environment variable overrides.
// Secrets (passwords, API keys) only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`

	Auth         AuthConfig         `yaml:"auth"`
	Demo         DemoConfig         `yaml:"demo"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Cache        CacheConfig        `yaml:"cache"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	SideEffects  SideEffectsConfig  `yaml:"side_effects"`
	Places       PlacesConfig       `yaml:"places"`
	LLM          LLMConfig          `yaml:"llm"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge"`
	Translation  TranslationConfig  `yaml:"translation"`
}

// AuthConfig holds tenant-resolution settings for bearer tokens.
type AuthConfig struct {
	// EnableVerification controls whether JWT signatures are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is parsed from JWKSEndpointsStr.
	JWKSEndpoints map[string]string `yaml:"-"`

	// HMACSecret enables HS256 tokens when no JWKS endpoint is configured.
	HMACSecret string `yaml:"-" env:"JWT_SECRET_KEY"`
}

// DemoConfig switches the service to single-tenant demo operation: every
// request is served as the demo organization and rate limiting is open.
type DemoConfig struct {
	Enabled bool   `yaml:"enabled" env:"DEMO_MODE" env-default:"false"`
	OrgID   string `yaml:"org_id" env:"DEMO_ORG_ID" env-default:"00000000-0000-0000-0000-000000000001"`
	Plan    string `yaml:"plan" env:"DEMO_PLAN" env-default:"enterprise"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port            int           `yaml:"port" env:"PGPORT" env-default:"5432"`
	User            string        `yaml:"user" env:"PGUSER" env-default:"concierge_app"`
	Password        string        `yaml:"-" env:"PGPASSWORD"`
	Database        string        `yaml:"database" env:"PGDATABASE" env-default:"concierge"`
	SSLMode         string        `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections  int32         `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"PGMAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"PGMAX_CONN_IDLE_TIME" env-default:"30m"`
}

// RedisConfig holds Redis configuration. Redis is only dialed when a backend selects it.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// RateLimitConfig configures per-tenant admission control.
type RateLimitConfig struct {
	// Enabled=false is the open operating mode: nothing is counted.
	Enabled bool `yaml:"enabled" env:"RATE_LIMIT_ENABLED" env-default:"true"`
	// Backend is "memory" (default) or "redis".
	Backend string        `yaml:"backend" env:"RATE_LIMIT_BACKEND" env-default:"memory"`
	Window  time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"60s"`

	FreeLimit       int `yaml:"free_limit" env:"RATE_LIMIT_FREE" env-default:"20"`
	ProLimit        int `yaml:"pro_limit" env:"RATE_LIMIT_PRO" env-default:"100"`
	EnterpriseLimit int `yaml:"enterprise_limit" env:"RATE_LIMIT_ENTERPRISE" env-default:"1000"`

	SweepInterval time.Duration `yaml:"sweep_interval" env:"RATE_LIMIT_SWEEP_INTERVAL" env-default:"1m"`
	MaxKeys       int           `yaml:"max_keys" env:"RATE_LIMIT_MAX_KEYS" env-default:"100000"`

	// ExemptPathsStr is a comma-separated list of paths never rate limited.
	ExemptPathsStr string   `yaml:"exempt_paths" env:"RATE_LIMIT_EXEMPT_PATHS" env-default:"/,/health,/ping,/metrics"`
	ExemptPaths    []string `yaml:"-"`

	// TrustedProxiesStr lists proxy addresses or CIDRs whose X-Forwarded-For
	// is believed. Empty means the socket peer is the client.
	TrustedProxiesStr string   `yaml:"trusted_proxies" env:"RATE_LIMIT_TRUSTED_PROXIES"`
	TrustedProxies    []string `yaml:"-"`
}

// Limits returns the requests-per-window ceiling by plan.
func (c *RateLimitConfig) Limits() map[string]int {
	return map[string]int{
		"free":       c.FreeLimit,
		"pro":        c.ProLimit,
		"enterprise": c.EnterpriseLimit,
	}
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" env:"CACHE_ENABLED" env-default:"true"`
	Backend    string        `yaml:"backend" env:"CACHE_BACKEND" env-default:"memory"`
	TTL        time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"24h"`
	MaxEntries int           `yaml:"max_entries" env:"CACHE_MAX_ENTRIES" env-default:"10000"`
}

// OrchestratorConfig bounds the answer pipeline.
type OrchestratorConfig struct {
	DispatchTimeout  time.Duration `yaml:"dispatch_timeout" env:"DISPATCH_TIMEOUT" env-default:"20s"`
	TranslateTimeout time.Duration `yaml:"translate_timeout" env:"TRANSLATE_TIMEOUT" env-default:"8s"`
	MaxQueryLength   int           `yaml:"max_query_length" env:"MAX_QUERY_LENGTH" env-default:"2000"`
	// MultiLanguage enables detection and translation around dispatch.
	MultiLanguage bool `yaml:"multi_language" env:"ENABLE_MULTI_LANGUAGE" env-default:"false"`
}

// SideEffectsConfig sizes the background write pool.
type SideEffectsConfig struct {
	Workers     int           `yaml:"workers" env:"SIDE_EFFECT_WORKERS" env-default:"4"`
	QueueSize   int           `yaml:"queue_size" env:"SIDE_EFFECT_QUEUE_SIZE" env-default:"256"`
	TaskTimeout time.Duration `yaml:"task_timeout" env:"SIDE_EFFECT_TASK_TIMEOUT" env-default:"10s"`
}

// PlacesConfig configures external place search.
type PlacesConfig struct {
	APIKey       string  `yaml:"-" env:"GOOGLE_MAPS_API_KEY"`
	BaseURL      string  `yaml:"base_url" env:"PLACES_BASE_URL" env-default:"https://maps.googleapis.com/maps/api/place/nearbysearch/json"`
	RadiusMeters int     `yaml:"radius_meters" env:"PLACES_RADIUS_METERS" env-default:"10000"`
	MaxResults   int     `yaml:"max_results" env:"PLACES_MAX_RESULTS" env-default:"5"`
	QPS          float64 `yaml:"qps" env:"PLACES_QPS" env-default:"10"`

	// Default property location, used when a tenant has none on record.
	PropertyName string  `yaml:"property_name" env:"PROPERTY_NAME" env-default:"Club Med Cherating"`
	Latitude     float64 `yaml:"latitude" env:"PROPERTY_LAT" env-default:"4.1383924"`
	Longitude    float64 `yaml:"longitude" env:"PROPERTY_LNG" env-default:"103.4079572"`
}

// LLMConfig selects the generative provider for answers and translation.
type LLMConfig struct {
	Provider       string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"` // openai | anthropic
	Endpoint       string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model          string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	FastModel      string `yaml:"fast_model" env:"LLM_FAST_MODEL" env-default:"gpt-4o-mini"`
	EmbeddingModel string `yaml:"embedding_model" env:"LLM_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	APIKey         string `yaml:"-" env:"OPENAI_API_KEY"`
	AnthropicKey   string `yaml:"-" env:"ANTHROPIC_API_KEY"`
}

// KnowledgeConfig points at the vector store holding tenant knowledge bases.
type KnowledgeConfig struct {
	WeaviateURL string `yaml:"weaviate_url" env:"WEAVIATE_URL" env-default:"http://localhost:8081"`
	TopK        int    `yaml:"top_k" env:"KNOWLEDGE_TOP_K" env-default:"3"`
}

// TranslationConfig configures the translation cache.
type TranslationConfig struct {
	CacheSize int `yaml:"cache_size" env:"TRANSLATION_CACHE_SIZE" env-default:"1000"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error: defaults and environment apply.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	var err error
	if _, statErr := os.Stat("config.yaml"); statErr == nil {
		err = cleanenv.ReadConfig("config.yaml", cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg.parseComplexFields()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	c.RateLimit.ExemptPaths = splitList(c.RateLimit.ExemptPathsStr)
	c.RateLimit.TrustedProxies = splitList(c.RateLimit.TrustedProxiesStr)
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if c.RateLimit.FreeLimit < 1 || c.RateLimit.ProLimit < 1 || c.RateLimit.EnterpriseLimit < 1 {
		return fmt.Errorf("rate_limit plan limits must be at least 1")
	}
	if !oneOf(c.RateLimit.Backend, "memory", "redis") {
		return fmt.Errorf("rate_limit.backend must be memory or redis, got %q", c.RateLimit.Backend)
	}
	if !oneOf(c.Cache.Backend, "memory", "redis") {
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	if (c.RateLimit.Backend == "redis" || c.Cache.Backend == "redis") && c.Redis.Host == "" {
		return fmt.Errorf("redis.host is required when a redis backend is selected")
	}
	if c.Orchestrator.DispatchTimeout <= 0 {
		return fmt.Errorf("orchestrator.dispatch_timeout must be positive")
	}
	if c.SideEffects.Workers < 1 || c.SideEffects.QueueSize < 1 {
		return fmt.Errorf("side_effects.workers and queue_size must be at least 1")
	}
	if !oneOf(c.LLM.Provider, "openai", "anthropic") {
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	return nil
}

// parseJWKSEndpoints parses "issuer1=url1,issuer2=url2" into a map.
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	for _, pair := range splitList(value) {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
	}
	return endpoints
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// ConnectionString returns a PostgreSQL URL for pgx and golang-migrate.
func (c *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Addr returns host:port for the Redis client.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port)
}

var (
	inDockerOnce sync.Once
	inDocker     bool
)

// ResolveHostForDocker rewrites loopback hosts to host.docker.internal when the
// service itself runs in a container, so a local Postgres/Redis stays reachable.
func ResolveHostForDocker(host string) string {
	inDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		inDocker = err == nil
	})
	if inDocker && (host == "localhost" || host == "127.0.0.1") {
		return "host.docker.internal"
	}
	return host
}
