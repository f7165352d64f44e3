package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/rxrebate/internal/obs"
	"github.com/noah-isme/rxrebate/internal/rebate"
)

const rulesKeyPrefix = "rebate:rules:"

// Rules is a read-through cache in front of a rule repository. Redis errors
// are logged and bypassed; repository errors are returned untouched and never
// cached.
type Rules struct {
	Next  rebate.RuleRepository
	Cache *JSONCache
}

// FindRules implements rebate.RuleRepository.
func (c Rules) FindRules(ctx context.Context, filter rebate.RuleFilter) ([]rebate.Rule, error) {
	key := RulesKey(filter)
	logger := zerolog.Ctx(ctx)

	var cached []rebate.Rule
	hit, err := c.Cache.GetJSON(ctx, key, &cached)
	switch {
	case err != nil:
		countCache("error")
		logger.Warn().Err(err).Str("key", key).Msg("rule cache read failed")
	case hit:
		countCache("hit")
		return cached, nil
	default:
		countCache("miss")
	}

	rules, err := c.Next.FindRules(ctx, filter)
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []rebate.Rule{}
	}
	if err := c.Cache.SetJSON(ctx, key, rules); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("rule cache write failed")
	}
	return rules, nil
}

// RulesKey returns a stable cache key for a filter. The in-set drug filter is
// order independent.
func RulesKey(f rebate.RuleFilter) string {
	ids := slices.Clone(f.DrugIDs)
	slices.Sort(ids)
	priceType := "*"
	if f.PriceTypeID != nil {
		priceType = strconv.Itoa(*f.PriceTypeID)
	}
	parts := []string{
		"p=" + f.PharmacyID,
		"xp=" + f.ExcludePharmacyID,
		"s=" + f.DrugIDName,
		"d=" + f.DrugID,
		"ds=" + strings.Join(ids, ","),
		"pt=" + priceType,
		"desc=" + strconv.FormatBool(f.OrderByRebateDesc),
		"l=" + strconv.Itoa(f.Limit),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return rulesKeyPrefix + hex.EncodeToString(sum[:16])
}

func countCache(result string) {
	if obs.RuleCacheRequests != nil {
		obs.RuleCacheRequests.WithLabelValues(result).Inc()
	}
}
