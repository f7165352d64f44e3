package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/rxrebate/internal/cache"
	"github.com/noah-isme/rxrebate/internal/config"
	"github.com/noah-isme/rxrebate/internal/drugs"
	"github.com/noah-isme/rxrebate/internal/pricesource"
	"github.com/noah-isme/rxrebate/internal/ratelimit"
	"github.com/noah-isme/rxrebate/internal/rebate"
	"github.com/noah-isme/rxrebate/internal/repo"
	"github.com/noah-isme/rxrebate/internal/resilience"
)

// Dependencies enumerates the infrastructure shared by the HTTP surface.
type Dependencies struct {
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Validator *validator.Validate
	Logger    zerolog.Logger
}

// Services are the wired domain components.
type Services struct {
	Engine  *rebate.Engine
	Drugs   *drugs.Service
	Limiter ratelimit.Limiter
}

// Build wires the rule store, cache, breakers, price source and services.
func Build(cfg *config.Config, deps Dependencies) (*Services, error) {
	if deps.DB == nil {
		return nil, errors.New("app: database pool is required")
	}
	rules := ChainRules(repo.RebateRules{Q: deps.DB}, deps.Redis, cfg, deps.Logger)
	engine, err := rebate.NewEngine(rebate.EngineConfig{
		Rules:       rules,
		Scope:       rebate.Scope{Any: cfg.RebateAnyScope, Scheme: cfg.RebateDrugIDScheme},
		Concurrency: cfg.RebateResolverConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("rebate engine: %w", err)
	}

	prices, err := pricesource.New(pricesource.Config{
		BaseURL:     cfg.PriceSourceURL,
		APIKey:      cfg.PriceSourceAPIKey,
		Timeout:     cfg.PriceSourceTimeout,
		MaxAttempts: cfg.PriceSourceMaxAttempts,
		Breaker:     resilience.NewBreakerWithConfig(priceSourceBreakerConfig(cfg, &deps.Logger)),
	})
	if err != nil {
		return nil, err
	}

	svc, err := drugs.NewService(drugs.ServiceConfig{
		Catalog: repo.Drugs{Q: deps.DB},
		Prices:  prices,
		Pricer:  engine,
	})
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.New(cfg.RateLimitBackend, deps.Redis, "ratelimit:")
	if err != nil {
		return nil, err
	}
	return &Services{Engine: engine, Drugs: svc, Limiter: limiter}, nil
}

// ChainRules puts the rule cache in front of a breaker-guarded store, so
// cached lookups keep working while the store is tripped.
func ChainRules(store rebate.RuleRepository, rdb *redis.Client, cfg *config.Config, logger zerolog.Logger) rebate.RuleRepository {
	guarded := resilience.GuardRules(store, resilience.NewBreakerWithConfig(ruleBreakerConfig(cfg, &logger)))
	return cache.Rules{Next: guarded, Cache: cache.NewJSONCache(rdb, cfg.RebateRuleCacheTTL)}
}

func ruleBreakerConfig(cfg *config.Config, logger *zerolog.Logger) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		MinRequests:  cfg.RuleBreakerMinRequests,
		FailureRatio: cfg.RuleBreakerFailureRatio,
		OpenFor:      cfg.RuleBreakerOpenFor,
		Target:       "rebate_rules",
		Logger:       logger,
	}
}

// The upstream price source trips independently of the rule store.
func priceSourceBreakerConfig(cfg *config.Config, logger *zerolog.Logger) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		MinRequests:  cfg.PriceSourceBreakerMinRequests,
		FailureRatio: cfg.PriceSourceBreakerFailureRatio,
		OpenFor:      cfg.PriceSourceBreakerOpenFor,
		Target:       "price_source",
		Logger:       logger,
	}
}

// PingAll checks the database and Redis within timeout.
func PingAll(ctx context.Context, deps Dependencies, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := deps.DB.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if deps.Redis != nil {
		if err := deps.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}
	return nil
}
