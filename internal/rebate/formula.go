package rebate

import "github.com/shopspring/decimal"

// PricePrecision is the number of decimal places kept on adjusted prices.
const PricePrecision = 4

var hundred = decimal.NewFromInt(100)

// AdjustedPrice returns the package price for q once r is stacked on top of
// any rebate already applied to q. The result is rounded half away from zero
// to PricePrecision places.
func AdjustedPrice(q Quote, r Rule) decimal.Decimal {
	percent := r.RebatePercent
	if q.RebatePercent != nil {
		percent = percent.Add(*q.RebatePercent)
	}
	discount := percent.Div(hundred).Mul(q.UnitPrice)
	return q.UnitPrice.Sub(discount).Mul(q.PackageSize).Round(PricePrecision)
}
