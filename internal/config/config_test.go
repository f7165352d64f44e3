package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rxrebate/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":     "postgres://rx:rx@localhost:5432/rx?sslmode=disable",
		"REDIS_URL":        "redis://localhost:6379/0",
		"PRICE_SOURCE_URL": "http://prices.local/v1",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "any", cfg.RebateAnyScope)
	require.Equal(t, "ndc11", cfg.RebateDrugIDScheme)
	require.Equal(t, 8, cfg.RebateResolverConcurrency)
	require.Equal(t, time.Minute, cfg.RebateRuleCacheTTL)
	require.Equal(t, "sliding", cfg.RateLimitBackend)
	require.Equal(t, 0.5, cfg.RuleBreakerFailureRatio)
	require.Equal(t, 5, cfg.PriceSourceBreakerMinRequests)
	require.Equal(t, 15*time.Second, cfg.PriceSourceBreakerOpenFor)
	require.False(t, cfg.DBAutoMigrate)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = ":9090"
	env["REBATE_ANY_SCOPE"] = "ALL"
	env["REBATE_RESOLVER_CONCURRENCY"] = "3"
	env["REBATE_RULE_CACHE_TTL"] = "0s"
	env["RATE_LIMIT_BACKEND"] = "Fixed"
	env["DB_AUTO_MIGRATE"] = "true"
	env["CORS_ALLOWED_ORIGINS"] = "https://a.example, https://b.example"

	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, "ALL", cfg.RebateAnyScope)
	require.Equal(t, 3, cfg.RebateResolverConcurrency)
	require.Zero(t, cfg.RebateRuleCacheTTL)
	require.Equal(t, "fixed", cfg.RateLimitBackend)
	require.True(t, cfg.DBAutoMigrate)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadRequiresConnections(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "PRICE_SOURCE_URL"} {
		env := baseEnv()
		env[key] = ""
		_, err := config.LoadForTests(env)
		require.ErrorContains(t, err, key)
	}
}

func TestLoadRejectsUnknownRateLimitBackend(t *testing.T) {
	env := baseEnv()
	env["RATE_LIMIT_BACKEND"] = "leaky"
	_, err := config.LoadForTests(env)
	require.Error(t, err)
}

func TestPriceSourceBreakerIsConfiguredSeparately(t *testing.T) {
	env := baseEnv()
	env["RULE_BREAKER_MIN_REQUESTS"] = "20"
	env["PRICE_SOURCE_BREAKER_MIN_REQUESTS"] = "3"
	env["PRICE_SOURCE_BREAKER_FAILURE_RATIO"] = "0.25"
	env["PRICE_SOURCE_BREAKER_OPEN_FOR"] = "2m"

	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 20, cfg.RuleBreakerMinRequests)
	require.Equal(t, 3, cfg.PriceSourceBreakerMinRequests)
	require.Equal(t, 0.25, cfg.PriceSourceBreakerFailureRatio)
	require.Equal(t, 2*time.Minute, cfg.PriceSourceBreakerOpenFor)

	env["PRICE_SOURCE_BREAKER_FAILURE_RATIO"] = "1.5"
	_, err = config.LoadForTests(env)
	require.ErrorContains(t, err, "PRICE_SOURCE_BREAKER_FAILURE_RATIO")
}
