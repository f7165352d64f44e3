package drugs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rxrebate/internal/common"
	"github.com/noah-isme/rxrebate/internal/drugs"
	"github.com/noah-isme/rxrebate/internal/rebate"
)

type fakeCatalog map[string]bool

func (c fakeCatalog) Exists(_ context.Context, id string) (bool, error) {
	return c[id], nil
}

type fakePrices struct {
	quotes []rebate.Quote
	err    error
	calls  int
}

func (p *fakePrices) CurrentPrices(context.Context, string) ([]rebate.Quote, error) {
	p.calls++
	return p.quotes, p.err
}

func rulesRepo(rules []rebate.Rule, err error) rebate.RuleRepository {
	return rebate.RuleRepositoryFunc(func(_ context.Context, f rebate.RuleFilter) ([]rebate.Rule, error) {
		if err != nil {
			return nil, err
		}
		var out []rebate.Rule
		for _, r := range rules {
			if f.PharmacyID != "" && r.PharmacyID != f.PharmacyID {
				continue
			}
			if f.ExcludePharmacyID != "" && r.PharmacyID == f.ExcludePharmacyID {
				continue
			}
			if f.DrugID != "" && r.DrugID != f.DrugID {
				continue
			}
			if len(f.DrugIDs) > 0 && !contains(f.DrugIDs, r.DrugID) {
				continue
			}
			if f.PriceTypeID != nil && r.PriceTypeID != *f.PriceTypeID {
				continue
			}
			out = append(out, r)
		}
		return out, nil
	})
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func rule(pharmacy, drug string, percent string) rebate.Rule {
	return rebate.Rule{PharmacyID: pharmacy, DrugIDName: "ndc11", DrugID: drug, PriceTypeID: 1, RebatePercent: decimal.RequireFromString(percent)}
}

func sampleQuotes() []rebate.Quote {
	return []rebate.Quote{{
		NDC11:       "00002323230",
		PriceTypeID: 1,
		UnitPrice:   decimal.NewFromInt(10),
		PackageSize: decimal.NewFromInt(30),
	}}
}

func newRouter(t *testing.T, prices drugs.PriceSource, repo rebate.RuleRepository) http.Handler {
	t.Helper()
	engine, err := rebate.NewEngine(rebate.EngineConfig{Rules: repo, Scope: rebate.DefaultScope})
	require.NoError(t, err)
	svc, err := drugs.NewService(drugs.ServiceConfig{
		Catalog: fakeCatalog{"12345": true},
		Prices:  prices,
		Pricer:  engine,
	})
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Route("/api/v1", drugs.NewHandler(drugs.HandlerConfig{Service: svc}).Routes)
	return r
}

type quotesResponse struct {
	Data []rebate.Quote `json:"data"`
}

type errorResponse struct {
	Error common.ErrorBody `json:"error"`
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestPricesAppliesPharmacyRebate(t *testing.T) {
	router := newRouter(t, &fakePrices{quotes: sampleQuotes()}, rulesRepo([]rebate.Rule{rule("P1", "any", "10")}, nil))

	rec := get(t, router, "/api/v1/drugs/12345/prices?pharmacy_id=P1")
	require.Equal(t, http.StatusOK, rec.Code)
	var body quotesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.NotNil(t, body.Data[0].Price)
	require.Equal(t, "270", body.Data[0].Price.String())
	require.Equal(t, "10", body.Data[0].RebatePercent.String())
}

func TestPricesWithoutPharmacyAreUnadjusted(t *testing.T) {
	router := newRouter(t, &fakePrices{quotes: sampleQuotes()}, rulesRepo([]rebate.Rule{rule("P1", "any", "10")}, nil))

	rec := get(t, router, "/api/v1/drugs/12345/prices")
	require.Equal(t, http.StatusOK, rec.Code)
	var body quotesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Nil(t, body.Data[0].Price)
}

func TestPricesForWildcardPharmacyAreUnadjusted(t *testing.T) {
	router := newRouter(t, &fakePrices{quotes: sampleQuotes()}, rulesRepo([]rebate.Rule{rule("any", "any", "10")}, nil))

	rec := get(t, router, "/api/v1/drugs/12345/prices?pharmacy_id=any")
	require.Equal(t, http.StatusOK, rec.Code)
	var body quotesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Nil(t, body.Data[0].Price)
	require.Nil(t, body.Data[0].RebatePercent)
}

func TestLowestPricesReportsPharmacy(t *testing.T) {
	repo := rulesRepo([]rebate.Rule{rule("P1", "any", "5"), rule("P2", "00002323230", "12.5")}, nil)
	router := newRouter(t, &fakePrices{quotes: sampleQuotes()}, repo)

	rec := get(t, router, "/api/v1/drugs/12345/prices/lowest")
	require.Equal(t, http.StatusOK, rec.Code)
	var body quotesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.NotNil(t, body.Data[0].LowestPharmacyID)
	require.Equal(t, "P2", *body.Data[0].LowestPharmacyID)
	require.Equal(t, "262.5", body.Data[0].Price.String())
}

func TestUnknownDrugReturnsEmptyList(t *testing.T) {
	prices := &fakePrices{quotes: sampleQuotes()}
	router := newRouter(t, prices, rulesRepo(nil, nil))

	rec := get(t, router, "/api/v1/drugs/777/prices/lowest")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":[]}`, rec.Body.String())
	require.Zero(t, prices.calls)
}

func TestInvalidParameters(t *testing.T) {
	router := newRouter(t, &fakePrices{}, rulesRepo(nil, nil))

	for _, path := range []string{
		"/api/v1/drugs/abc/prices",
		"/api/v1/drugs/12345/prices?pharmacy_id=bad-id!",
		"/api/v1/drugs/12345678901234567/prices/lowest",
	} {
		rec := get(t, router, path)
		require.Equal(t, http.StatusBadRequest, rec.Code, path)
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, common.CodeValidation, body.Error.Code)
	}
}

func TestRuleLookupFailureIsBadGateway(t *testing.T) {
	router := newRouter(t, &fakePrices{quotes: sampleQuotes()}, rulesRepo(nil, errors.New("connection reset")))

	rec := get(t, router, "/api/v1/drugs/12345/prices?pharmacy_id=P1")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, common.CodeRuleLookupFailed, body.Error.Code)
	require.NotContains(t, rec.Body.String(), "connection reset")
}

func TestPriceSourceFailureIsBadGateway(t *testing.T) {
	router := newRouter(t, &fakePrices{err: errors.New("upstream down")}, rulesRepo(nil, nil))

	rec := get(t, router, "/api/v1/drugs/12345/prices/lowest")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, common.CodePriceSourceFailed, body.Error.Code)
}

func TestServiceKeepsRuleLookupCause(t *testing.T) {
	engine, err := rebate.NewEngine(rebate.EngineConfig{Rules: rulesRepo(nil, errors.New("boom"))})
	require.NoError(t, err)
	svc, err := drugs.NewService(drugs.ServiceConfig{
		Catalog: fakeCatalog{"1": true},
		Prices:  &fakePrices{quotes: sampleQuotes()},
		Pricer:  engine,
	})
	require.NoError(t, err)

	_, err = svc.LowestPrices(context.Background(), "1")
	require.ErrorIs(t, err, rebate.ErrRuleLookup)
}
