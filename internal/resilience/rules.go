package resilience

import (
	"context"
	"errors"

	"github.com/noah-isme/rxrebate/internal/rebate"
)

// GuardedRules wraps a rule repository with a circuit breaker. While the
// breaker is open lookups fail fast with ErrOpenCircuit.
type GuardedRules struct {
	Next    rebate.RuleRepository
	Breaker *Breaker
}

// GuardRules returns next guarded by breaker. A nil breaker returns next unchanged.
func GuardRules(next rebate.RuleRepository, breaker *Breaker) rebate.RuleRepository {
	if breaker == nil {
		return next
	}
	return GuardedRules{Next: next, Breaker: breaker}
}

// FindRules implements rebate.RuleRepository.
func (g GuardedRules) FindRules(ctx context.Context, filter rebate.RuleFilter) ([]rebate.Rule, error) {
	target := g.Breaker.Target()
	if !g.Breaker.Allow(ctx) {
		GuardedCallsTotal.WithLabelValues(target, "rejected").Inc()
		return nil, ErrOpenCircuit
	}
	rules, err := g.Next.FindRules(ctx, filter)
	// A cancelled request says nothing about the health of the store.
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)) {
		g.Breaker.release()
		GuardedCallsTotal.WithLabelValues(target, "error").Inc()
		return nil, err
	}
	g.Breaker.Report(ctx, err == nil)
	if err != nil {
		GuardedCallsTotal.WithLabelValues(target, "error").Inc()
		return nil, err
	}
	GuardedCallsTotal.WithLabelValues(target, "ok").Inc()
	return rules, nil
}
