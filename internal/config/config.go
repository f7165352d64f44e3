package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	DBAutoMigrate      bool
	CORSAllowedOrigins []string

	PriceSourceURL         string
	PriceSourceAPIKey      string
	PriceSourceTimeout     time.Duration
	PriceSourceMaxAttempts int

	PriceSourceBreakerMinRequests  int
	PriceSourceBreakerFailureRatio float64
	PriceSourceBreakerOpenFor      time.Duration

	RebateAnyScope            string
	RebateDrugIDScheme        string
	RebateResolverConcurrency int
	RebateRuleCacheTTL        time.Duration

	RuleBreakerMinRequests  int
	RuleBreakerFailureRatio float64
	RuleBreakerOpenFor      time.Duration

	RateLimitBackend string
	RateLimitWindow  time.Duration
	RateLimitMax     int

	SecurityHeaders bool
	SecurityHSTS    bool

	HealthDBTimeout    time.Duration
	HealthRedisTimeout time.Duration
	ShutdownTimeout    time.Duration

	Obs Observability
}

// Observability groups the OBS_* settings.
type Observability struct {
	LogFormat         string
	LogLevel          string
	MetricsNamespace  string
	MetricsEnabled    bool
	MetricsBucketsMS  string
	TracingEnabled    bool
	TracingExporter   string
	OTLPEndpoint      string
	SamplingRatio     float64
	PprofEnabled      bool
	PprofUser         string
	PprofPassword     string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		DBAutoMigrate:      parseBool(k.String("DB_AUTO_MIGRATE"), false),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		PriceSourceURL:         strings.TrimSpace(k.String("PRICE_SOURCE_URL")),
		PriceSourceAPIKey:      strings.TrimSpace(k.String("PRICE_SOURCE_API_KEY")),
		PriceSourceTimeout:     parseDuration(k.String("PRICE_SOURCE_TIMEOUT"), "5s"),
		PriceSourceMaxAttempts: parseInt(k.String("PRICE_SOURCE_MAX_ATTEMPTS"), 3),

		PriceSourceBreakerMinRequests:  parseInt(k.String("PRICE_SOURCE_BREAKER_MIN_REQUESTS"), 5),
		PriceSourceBreakerFailureRatio: parseFloat(k.String("PRICE_SOURCE_BREAKER_FAILURE_RATIO"), 0.5),
		PriceSourceBreakerOpenFor:      parseDuration(k.String("PRICE_SOURCE_BREAKER_OPEN_FOR"), "15s"),

		RebateAnyScope:            valueOrDefault(k.String("REBATE_ANY_SCOPE"), "any"),
		RebateDrugIDScheme:        valueOrDefault(k.String("REBATE_DRUG_ID_SCHEME"), "ndc11"),
		RebateResolverConcurrency: parseInt(k.String("REBATE_RESOLVER_CONCURRENCY"), 8),
		RebateRuleCacheTTL:        parseDuration(k.String("REBATE_RULE_CACHE_TTL"), "60s"),

		RuleBreakerMinRequests:  parseInt(k.String("RULE_BREAKER_MIN_REQUESTS"), 10),
		RuleBreakerFailureRatio: parseFloat(k.String("RULE_BREAKER_FAILURE_RATIO"), 0.5),
		RuleBreakerOpenFor:      parseDuration(k.String("RULE_BREAKER_OPEN_FOR"), "30s"),

		RateLimitBackend: strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), "sliding")),
		RateLimitWindow:  parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:     parseInt(k.String("RATE_LIMIT_MAX"), 120),

		SecurityHeaders: parseBool(k.String("SECURITY_HEADERS_ENABLED"), true),
		SecurityHSTS:    parseBool(k.String("SECURITY_HSTS_ENABLED"), false),

		HealthDBTimeout:    parseDuration(k.String("HEALTH_READY_DB_TIMEOUT"), "500ms"),
		HealthRedisTimeout: parseDuration(k.String("HEALTH_READY_REDIS_TIMEOUT"), "300ms"),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),

		Obs: Observability{
			LogFormat:         valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:          valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace:  valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "rxrebate"),
			MetricsEnabled:    parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsBucketsMS:  strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
			TracingEnabled:    parseBool(k.String("OBS_ENABLE_TRACING"), true),
			TracingExporter:   valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:      strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:     parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
			PprofEnabled:      parseBool(k.String("OBS_ENABLE_PPROF"), false),
			PprofUser:         strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPassword:     strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.PriceSourceURL == "" {
		return nil, errors.New("PRICE_SOURCE_URL is required")
	}
	switch cfg.RateLimitBackend {
	case "sliding", "fixed":
	default:
		return nil, fmt.Errorf("RATE_LIMIT_BACKEND must be sliding or fixed, got %q", cfg.RateLimitBackend)
	}
	if cfg.RuleBreakerFailureRatio <= 0 || cfg.RuleBreakerFailureRatio > 1 {
		return nil, fmt.Errorf("RULE_BREAKER_FAILURE_RATIO must be in (0, 1], got %v", cfg.RuleBreakerFailureRatio)
	}
	if cfg.PriceSourceBreakerFailureRatio <= 0 || cfg.PriceSourceBreakerFailureRatio > 1 {
		return nil, fmt.Errorf("PRICE_SOURCE_BREAKER_FAILURE_RATIO must be in (0, 1], got %v", cfg.PriceSourceBreakerFailureRatio)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return n
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return f
	}
	return fallback
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
