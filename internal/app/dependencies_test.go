package app_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rxrebate/internal/app"
	"github.com/noah-isme/rxrebate/internal/config"
	"github.com/noah-isme/rxrebate/internal/rebate"
	"github.com/noah-isme/rxrebate/internal/resilience"
)

func testConfig() *config.Config {
	return &config.Config{
		RebateRuleCacheTTL:      time.Minute,
		RuleBreakerMinRequests:  2,
		RuleBreakerFailureRatio: 0.5,
		RuleBreakerOpenFor:      time.Minute,
	}
}

func TestChainRulesServesCachedRulesWhileStoreIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var calls atomic.Int32
	var failing atomic.Bool
	store := rebate.RuleRepositoryFunc(func(context.Context, rebate.RuleFilter) ([]rebate.Rule, error) {
		calls.Add(1)
		if failing.Load() {
			return nil, errors.New("db unavailable")
		}
		return []rebate.Rule{{PharmacyID: "P1", DrugIDName: "ndc11", DrugID: "any", PriceTypeID: 1, RebatePercent: decimal.NewFromInt(5)}}, nil
	})
	rules := app.ChainRules(store, rdb, testConfig(), zerolog.Nop())
	ctx := context.Background()
	cached := rebate.RuleFilter{PharmacyID: "P1", DrugIDName: "ndc11", DrugID: "any"}

	got, err := rules.FindRules(ctx, cached)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// One success plus one failure reaches the 50% ratio over two requests.
	failing.Store(true)
	_, err = rules.FindRules(ctx, rebate.RuleFilter{PharmacyID: "P2"})
	require.Error(t, err)
	require.NotErrorIs(t, err, resilience.ErrOpenCircuit)

	_, err = rules.FindRules(ctx, rebate.RuleFilter{PharmacyID: "P3"})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)

	got, err = rules.FindRules(ctx, cached)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].RebatePercent.Equal(decimal.NewFromInt(5)))
	require.EqualValues(t, 2, calls.Load())
}
