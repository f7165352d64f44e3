package rebate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestAdjustedPriceFourPlaces(t *testing.T) {
	q := Quote{UnitPrice: dec("10.0"), PackageSize: dec("3")}
	r := Rule{RebatePercent: dec("12.345")}
	require.Equal(t, "26.2965", AdjustedPrice(q, r).String())
}

func TestAdjustedPriceStacksExistingRebate(t *testing.T) {
	q := Quote{UnitPrice: dec("20"), PackageSize: dec("2"), RebatePercent: decPtr("5")}
	r := Rule{RebatePercent: dec("10")}
	require.True(t, dec("34").Equal(AdjustedPrice(q, r)))
}

func TestAdjustedPriceRoundsHalfAwayFromZero(t *testing.T) {
	r := Rule{RebatePercent: decimal.Zero}

	up := Quote{UnitPrice: dec("1"), PackageSize: dec("0.00025")}
	require.Equal(t, "0.0003", AdjustedPrice(up, r).String())

	down := Quote{UnitPrice: dec("1"), PackageSize: dec("0.00024")}
	require.Equal(t, "0.0002", AdjustedPrice(down, r).String())

	// Rebates above 100% produce negative prices; rounding stays symmetric.
	negative := Quote{UnitPrice: dec("1"), PackageSize: dec("0.00025")}
	require.Equal(t, "-0.0003", AdjustedPrice(negative, Rule{RebatePercent: dec("200")}).String())
}

func TestApplyAccumulatesRebatePercent(t *testing.T) {
	q := Quote{UnitPrice: dec("100"), PackageSize: dec("1")}
	q.apply(Rule{RebatePercent: dec("2.5")})
	q.apply(Rule{RebatePercent: dec("7.5")})
	require.True(t, dec("10").Equal(*q.RebatePercent))
	require.True(t, dec("90").Equal(*q.Price))
}

func TestQuoteJSONKeepsUpstreamAttributes(t *testing.T) {
	raw := []byte(`{"ndc11":"00002322730","price_type_id":1,"unit_price":"1.5","package_size":"30","drug_name":"Amoxicillin"}`)
	var q Quote
	require.NoError(t, q.UnmarshalJSON(raw))
	require.Equal(t, "00002322730", q.NDC11)
	require.Contains(t, q.Extra, "drug_name")
	require.NotContains(t, q.Extra, "ndc11")

	out, err := q.MarshalJSON()
	require.NoError(t, err)
	require.Contains(t, string(out), `"drug_name":"Amoxicillin"`)
	require.Contains(t, string(out), `"ndc11":"00002322730"`)
}
