package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Backend names accepted by New.
const (
	BackendSliding = "sliding"
	BackendFixed   = "fixed"
)

// Decision is the outcome of registering one request against a key.
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter counts requests per key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error)
}

// New returns the Redis-backed limiter for the named backend.
func New(backend string, client *redis.Client, prefix string) (Limiter, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendSliding:
		return Sliding{Client: client, Prefix: prefix}, nil
	case BackendFixed:
		store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
		if err != nil {
			return nil, fmt.Errorf("ratelimit: redis store: %w", err)
		}
		return Fixed{Store: store}, nil
	default:
		return nil, fmt.Errorf("ratelimit: unknown backend %q", backend)
	}
}
