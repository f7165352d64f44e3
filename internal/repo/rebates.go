package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/rxrebate/internal/rebate"
)

const selectRules = `SELECT pharmacy_id, drug_id_name, drug_id, price_type_id, rebate_percent::text FROM rebate`

// RebateRules reads rebate rules from Postgres.
type RebateRules struct {
	Q Querier
}

// FindRules implements rebate.RuleRepository.
func (r RebateRules) FindRules(ctx context.Context, filter rebate.RuleFilter) ([]rebate.Rule, error) {
	sql, args := buildRuleQuery(filter)
	rows, err := r.Q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query rebates: %w", err)
	}
	defer rows.Close()

	var rules []rebate.Rule
	for rows.Next() {
		var (
			rule    rebate.Rule
			percent string
		)
		if err := rows.Scan(&rule.PharmacyID, &rule.DrugIDName, &rule.DrugID, &rule.PriceTypeID, &percent); err != nil {
			return nil, fmt.Errorf("scan rebate: %w", err)
		}
		rule.RebatePercent, err = decimal.NewFromString(percent)
		if err != nil {
			return nil, fmt.Errorf("parse rebate percent %q: %w", percent, err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rebates: %w", err)
	}
	return rules, nil
}

func buildRuleQuery(f rebate.RuleFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.PharmacyID != "" {
		add("pharmacy_id = $%d", f.PharmacyID)
	}
	if f.ExcludePharmacyID != "" {
		add("pharmacy_id <> $%d", f.ExcludePharmacyID)
	}
	if f.DrugIDName != "" {
		add("drug_id_name = $%d", f.DrugIDName)
	}
	if f.DrugID != "" {
		add("drug_id = $%d", f.DrugID)
	}
	if len(f.DrugIDs) > 0 {
		add("drug_id = ANY($%d)", f.DrugIDs)
	}
	if f.PriceTypeID != nil {
		add("price_type_id = $%d", *f.PriceTypeID)
	}

	var b strings.Builder
	b.WriteString(selectRules)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if f.OrderByRebateDesc {
		b.WriteString(" ORDER BY rebate_percent DESC, pharmacy_id, id")
	} else {
		b.WriteString(" ORDER BY id")
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}
