package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// RebateRuleLookups counts rule repository lookups by tier and outcome.
	RebateRuleLookups *prometheus.CounterVec
	// RebateResolutions counts ApplyAdjustment/ResolveLowest calls by outcome.
	RebateResolutions *prometheus.CounterVec
	// RuleCacheRequests counts rule cache hits, misses and errors.
	RuleCacheRequests *prometheus.CounterVec
	// PriceSourceLatency records upstream price source latency in milliseconds.
	PriceSourceLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers the rebate collectors.
// Calling it more than once is a no-op.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		RebateRuleLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebate_rule_lookups_total",
			Help:      "Rebate rule lookups by tier and result.",
		}, []string{"tier", "result"})
		RebateResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebate_adjustments_total",
			Help:      "Rebate adjustment operations by result.",
		}, []string{"operation", "result"})
		RuleCacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebate_rule_cache_requests_total",
			Help:      "Rule cache lookups by result (hit, miss, error).",
		}, []string{"result"})
		PriceSourceLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "price_source_request_duration_ms",
			Help:      "Latency of upstream price source requests in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})

		RebateRuleLookups = registerCounterVec(reg, RebateRuleLookups)
		RebateResolutions = registerCounterVec(reg, RebateResolutions)
		RuleCacheRequests = registerCounterVec(reg, RuleCacheRequests)
		if err := reg.Register(PriceSourceLatency); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
					PriceSourceLatency = existing
				}
			} else {
				panic(fmt.Errorf("register domain metric: %w", err))
			}
		}
	})
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
			return c
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
	return c
}
