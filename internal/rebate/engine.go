package rebate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/rxrebate/internal/obs"
)

// Tier labels used for lookups, logs and metrics.
const (
	TierGeneral      = "general"
	TierPharmacy     = "pharmacy"
	TierPharmacyDrug = "pharmacy_drug"
	TierLowest       = "lowest"
)

const defaultConcurrency = 8

// Engine applies rebate rules to price quotes.
type Engine struct {
	rules       RuleRepository
	scope       Scope
	concurrency int
	tracer      trace.Tracer
}

// EngineConfig groups Engine dependencies.
type EngineConfig struct {
	Rules RuleRepository
	Scope Scope
	// Concurrency bounds the parallel lookups issued by ResolveLowest.
	Concurrency int
}

// NewEngine constructs an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Rules == nil {
		return nil, errors.New("rebate: rule repository is required")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Engine{
		rules:       cfg.Rules,
		scope:       cfg.Scope.normalised(),
		concurrency: concurrency,
		tracer:      otel.Tracer("rebate.engine"),
	}, nil
}

// ApplyAdjustment prices quotes for a purchasing pharmacy. General rules are
// applied first; then either the single pharmacy-wide rule or, when there is
// no unique one, the pharmacy's per-drug rules stack on top.
//
// Without a pharmacy, or with no quotes, the input is returned as is. The
// wildcard marker is never a purchasing pharmacy and counts as absent. On any
// lookup failure no quotes are returned.
func (e *Engine) ApplyAdjustment(ctx context.Context, pharmacyID *string, quotes []Quote) (result []Quote, err error) {
	if len(quotes) == 0 || pharmacyID == nil {
		return quotes, nil
	}
	pharmacy := strings.TrimSpace(*pharmacyID)
	if pharmacy == "" || pharmacy == e.scope.Any {
		return quotes, nil
	}

	ctx, span := e.tracer.Start(ctx, "rebate.ApplyAdjustment", trace.WithAttributes(
		attribute.String("pharmacy.id", pharmacy),
		attribute.Int("quotes", len(quotes)),
	))
	defer func() { e.finish(span, "apply_adjustment", err) }()

	out := cloneQuotes(quotes)
	if err := e.applyGeneral(ctx, out); err != nil {
		return nil, err
	}

	wide, err := e.find(ctx, TierPharmacy, RuleFilter{
		PharmacyID: pharmacy,
		DrugIDName: e.scope.Scheme,
		DrugID:     e.scope.Any,
	})
	if err != nil {
		return nil, err
	}
	logger := zerolog.Ctx(ctx)
	if len(wide) == 1 {
		rule := wide[0]
		for i := range out {
			if out[i].PriceTypeID == rule.PriceTypeID {
				out[i].apply(rule)
			}
		}
		logger.Debug().Str("pharmacy_id", pharmacy).Msg("pharmacy-wide rebate applied")
		return out, nil
	}
	if len(wide) > 1 {
		logger.Debug().Str("pharmacy_id", pharmacy).Int("rules", len(wide)).Msg("ambiguous pharmacy-wide rebates, using per-drug rules")
	}

	ids := lo.Uniq(lo.FilterMap(out, func(q Quote, _ int) (string, bool) {
		id := q.drugIdentifier(e.scope.Scheme)
		return id, id != ""
	}))
	if len(ids) == 0 {
		return out, nil
	}
	specific, err := e.find(ctx, TierPharmacyDrug, RuleFilter{
		PharmacyID: pharmacy,
		DrugIDName: e.scope.Scheme,
		DrugIDs:    ids,
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		q := out[i]
		rule, ok := lo.Find(specific, func(r Rule) bool {
			return r.PriceTypeID == q.PriceTypeID && r.DrugID != "" && r.DrugID == q.drugIdentifier(r.DrugIDName)
		})
		if ok {
			out[i].apply(rule)
		}
	}
	return out, nil
}

// ResolveLowest finds, for every quote, the pharmacy offering the highest
// rebate and prices the quote accordingly. General rules are stacked first.
// Quotes are resolved concurrently; each goroutine only touches its own quote.
func (e *Engine) ResolveLowest(ctx context.Context, quotes []Quote) (result []Quote, err error) {
	if len(quotes) == 0 {
		return quotes, nil
	}
	ctx, span := e.tracer.Start(ctx, "rebate.ResolveLowest", trace.WithAttributes(
		attribute.Int("quotes", len(quotes)),
	))
	defer func() { e.finish(span, "resolve_lowest", err) }()

	out := cloneQuotes(quotes)
	if err := e.applyGeneral(ctx, out); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range out {
		g.Go(func() error {
			priceType := out[i].PriceTypeID
			rules, err := e.find(gctx, TierLowest, RuleFilter{
				ExcludePharmacyID: e.scope.Any,
				DrugIDName:        e.scope.Scheme,
				DrugIDs:           lo.Compact([]string{out[i].drugIdentifier(e.scope.Scheme), e.scope.Any}),
				PriceTypeID:       &priceType,
				OrderByRebateDesc: true,
				Limit:             1,
			})
			if err != nil {
				return err
			}
			best, ok := highestRebate(rules)
			if !ok {
				return nil
			}
			out[i].apply(best)
			pharmacy := best.PharmacyID
			out[i].LowestPharmacyID = &pharmacy
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) applyGeneral(ctx context.Context, quotes []Quote) error {
	general, err := e.find(ctx, TierGeneral, RuleFilter{
		PharmacyID: e.scope.Any,
		DrugIDName: e.scope.Scheme,
		DrugID:     e.scope.Any,
	})
	if err != nil {
		return err
	}
	if len(general) == 0 {
		return nil
	}
	for i := range quotes {
		q := quotes[i]
		rule, ok := lo.Find(general, func(r Rule) bool { return r.PriceTypeID == q.PriceTypeID })
		if ok {
			quotes[i].apply(rule)
		}
	}
	return nil
}

func (e *Engine) find(ctx context.Context, tier string, filter RuleFilter) ([]Rule, error) {
	rules, err := e.rules.FindRules(ctx, filter)
	if err != nil {
		recordLookup(tier, "error")
		return nil, fmt.Errorf("%w: %s tier: %w", ErrRuleLookup, tier, err)
	}
	recordLookup(tier, "ok")
	return rules, nil
}

func (e *Engine) finish(span trace.Span, operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if obs.RebateResolutions != nil {
		obs.RebateResolutions.WithLabelValues(operation, result).Inc()
	}
	span.End()
}

// highestRebate returns the first rule carrying the maximum rebate percent.
func highestRebate(rules []Rule) (Rule, bool) {
	if len(rules) == 0 {
		return Rule{}, false
	}
	best := rules[0]
	for _, r := range rules[1:] {
		if r.RebatePercent.GreaterThan(best.RebatePercent) {
			best = r
		}
	}
	return best, true
}

func recordLookup(tier, result string) {
	if obs.RebateRuleLookups == nil {
		return
	}
	obs.RebateRuleLookups.WithLabelValues(tier, result).Inc()
}
