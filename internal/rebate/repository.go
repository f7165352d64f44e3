package rebate

import (
	"context"
	"errors"
)

// ErrRuleLookup wraps every failure reported by a RuleRepository.
var ErrRuleLookup = errors.New("rebate: rule lookup failed")

// RuleFilter narrows a rule lookup. Empty string fields are not filtered on;
// wildcard scopes are expressed with the literal Scope.Any marker.
type RuleFilter struct {
	PharmacyID string
	// ExcludePharmacyID drops rules for the given pharmacy scope. The resolver
	// uses it to search every concrete pharmacy.
	ExcludePharmacyID string
	DrugIDName        string
	DrugID            string
	// DrugIDs is an in-set filter over the drug scope, used for batch lookups.
	DrugIDs     []string
	PriceTypeID *int
	// OrderByRebateDesc sorts the highest rebate first.
	OrderByRebateDesc bool
	Limit             int
}

// RuleRepository returns the rebate rules matching a filter.
type RuleRepository interface {
	FindRules(ctx context.Context, filter RuleFilter) ([]Rule, error)
}

// RuleRepositoryFunc adapts a function to RuleRepository.
type RuleRepositoryFunc func(ctx context.Context, filter RuleFilter) ([]Rule, error)

// FindRules calls f.
func (f RuleRepositoryFunc) FindRules(ctx context.Context, filter RuleFilter) ([]Rule, error) {
	return f(ctx, filter)
}
