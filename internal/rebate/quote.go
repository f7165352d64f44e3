package rebate

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Quote is one candidate price for a drug at a price-type tier.
type Quote struct {
	NDC11            string           `json:"ndc11"`
	PriceTypeID      int              `json:"price_type_id"`
	UnitPrice        decimal.Decimal  `json:"unit_price"`
	PackageSize      decimal.Decimal  `json:"package_size"`
	RebatePercent    *decimal.Decimal `json:"rebate_percent,omitempty"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	LowestPharmacyID *string          `json:"lowest_pharmacy_id,omitempty"`

	// Extra holds upstream attributes (drug name, price type label, effective
	// date, ...) that are passed through untouched.
	Extra map[string]json.RawMessage `json:"-"`
}

// Rule is a percentage rebate scoped by pharmacy, drug identifier and price type.
type Rule struct {
	PharmacyID    string          `json:"pharmacy_id"`
	DrugIDName    string          `json:"drug_id_name"`
	DrugID        string          `json:"drug_id"`
	PriceTypeID   int             `json:"price_type_id"`
	RebatePercent decimal.Decimal `json:"rebate_percent"`
}

// Scope holds the wildcard marker and identifier scheme used to query rules.
type Scope struct {
	Any    string
	Scheme string
}

// DefaultScope matches the values stored in the rebate table.
var DefaultScope = Scope{Any: "any", Scheme: "ndc11"}

func (s Scope) normalised() Scope {
	if s.Any == "" {
		s.Any = DefaultScope.Any
	}
	if s.Scheme == "" {
		s.Scheme = DefaultScope.Scheme
	}
	return s
}

// drugIdentifier returns the quote identifier for the given scheme. Only the
// 11-digit code is carried on quotes today.
func (q Quote) drugIdentifier(scheme string) string {
	if scheme == DefaultScope.Scheme {
		return q.NDC11
	}
	if raw, ok := q.Extra[scheme]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return ""
}

// apply prices the quote under r and accumulates the rebate percent.
func (q *Quote) apply(r Rule) {
	price := AdjustedPrice(*q, r)
	total := r.RebatePercent
	if q.RebatePercent != nil {
		total = q.RebatePercent.Add(r.RebatePercent)
	}
	q.Price = &price
	q.RebatePercent = &total
}

// MarshalJSON flattens Extra next to the known fields.
func (q Quote) MarshalJSON() ([]byte, error) {
	type plain Quote
	known, err := json.Marshal(plain(q))
	if err != nil || len(q.Extra) == 0 {
		return known, err
	}
	out := make(map[string]json.RawMessage, len(q.Extra)+7)
	for k, v := range q.Extra {
		out[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (q *Quote) UnmarshalJSON(data []byte) error {
	type plain Quote
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range []string{"ndc11", "price_type_id", "unit_price", "package_size", "rebate_percent", "price", "lowest_pharmacy_id"} {
		delete(all, k)
	}
	if len(all) > 0 {
		p.Extra = all
	} else {
		p.Extra = nil
	}
	*q = Quote(p)
	return nil
}

func cloneQuotes(quotes []Quote) []Quote {
	out := make([]Quote, len(quotes))
	for i, q := range quotes {
		if q.RebatePercent != nil {
			v := *q.RebatePercent
			q.RebatePercent = &v
		}
		if q.Price != nil {
			v := *q.Price
			q.Price = &v
		}
		if q.LowestPharmacyID != nil {
			v := *q.LowestPharmacyID
			q.LowestPharmacyID = &v
		}
		out[i] = q
	}
	return out
}
