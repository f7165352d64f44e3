package ratelimit

import (
	"context"
	"time"

	limiter "github.com/ulule/limiter/v3"
)

// Fixed is a fixed-window limiter on top of a ulule/limiter store.
type Fixed struct {
	Store limiter.Store
}

// Allow increments the counter for key in the current window.
func (f Fixed) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	if f.Store == nil || limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: limit, Reset: time.Now().Add(window)}, nil
	}
	lim := limiter.New(f.Store, limiter.Rate{Period: window, Limit: int64(limit)})
	res, err := lim.Get(ctx, key)
	if err != nil {
		return Decision{Reset: time.Now().Add(window)}, err
	}
	return Decision{
		Allowed:   !res.Reached,
		Remaining: int(res.Remaining),
		Reset:     time.Unix(res.Reset, 0),
	}, nil
}
