package pricesource_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rxrebate/internal/pricesource"
	"github.com/noah-isme/rxrebate/internal/resilience"
)

func newClient(t *testing.T, srv *httptest.Server, attempts int) *pricesource.Client {
	t.Helper()
	client, err := pricesource.New(pricesource.Config{
		BaseURL:     srv.URL + "/v1/",
		APIKey:      "secret",
		Timeout:     time.Second,
		MaxAttempts: attempts,
		Breaker:     resilience.NewBreaker(10, 1, time.Second).WithTarget("price_source_test"),
	})
	require.NoError(t, err)
	return client
}

func TestCurrentPricesDecodesQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/drugs/12345/prices", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"ndc11":"00002323230","price_type_id":1,"unit_price":"10.5","package_size":30,"drug_name":"Aspirin"}]`))
	}))
	defer srv.Close()

	quotes, err := newClient(t, srv, 1).CurrentPrices(context.Background(), "12345")
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	require.Equal(t, "00002323230", quotes[0].NDC11)
	require.True(t, quotes[0].UnitPrice.Equal(decimal.RequireFromString("10.5")))
	require.True(t, quotes[0].PackageSize.Equal(decimal.NewFromInt(30)))
	require.Nil(t, quotes[0].Price)
	require.JSONEq(t, `"Aspirin"`, string(quotes[0].Extra["drug_name"]))
}

func TestCurrentPricesNotFoundIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	quotes, err := newClient(t, srv, 1).CurrentPrices(context.Background(), "999")
	require.NoError(t, err)
	require.NotNil(t, quotes)
	require.Empty(t, quotes)
}

func TestCurrentPricesUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, 2).CurrentPrices(context.Background(), "1")
	require.ErrorIs(t, err, pricesource.ErrUnavailable)
}

func TestCurrentPricesBadRequestNotRetried(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "bad drug", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, 3).CurrentPrices(context.Background(), "1")
	require.ErrorIs(t, err, pricesource.ErrUnavailable)
	require.ErrorContains(t, err, "bad drug")
	require.Equal(t, 1, hits)
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	_, err := pricesource.New(pricesource.Config{})
	require.Error(t, err)
	_, err = pricesource.New(pricesource.Config{BaseURL: "ftp://example.com"})
	require.Error(t, err)
}
