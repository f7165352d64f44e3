package pricesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/rxrebate/internal/obs"
	"github.com/noah-isme/rxrebate/internal/rebate"
	"github.com/noah-isme/rxrebate/internal/resilience"
)

// ErrUnavailable wraps every failure to obtain prices from the upstream source.
var ErrUnavailable = errors.New("pricesource: unavailable")

const maxErrorBody = 512

// Config configures the upstream price source client.
type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	Breaker     *resilience.Breaker
	// Transport overrides the base round tripper; tests point it at httptest.
	Transport http.RoundTripper
}

// Client fetches current drug price quotes from the upstream drug database.
type Client struct {
	base   *url.URL
	apiKey string
	http   resilience.HTTPClient
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("pricesource: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("pricesource: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("pricesource: unsupported scheme %q", base.Scheme)
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("price_source")
	}
	return &Client{
		base:   base,
		apiKey: strings.TrimSpace(cfg.APIKey),
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(transport)},
			Breaker:     breaker,
			BaseBackoff: 100 * time.Millisecond,
			MaxAttempts: cfg.MaxAttempts,
			Jitter:      0.2,
			Timeout:     timeout,
		},
	}, nil
}

// CurrentPrices returns the current quotes for a drug. A drug unknown to the
// upstream yields an empty list.
func (c *Client) CurrentPrices(ctx context.Context, drugID string) (quotes []rebate.Quote, err error) {
	ctx, span := otel.Tracer("pricesource.Client").Start(ctx, "Client.CurrentPrices")
	span.SetAttributes(attribute.String("drug.id", drugID))
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if obs.PriceSourceLatency != nil {
			obs.PriceSourceLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
		}
		span.End()
	}()

	endpoint := c.base.JoinPath("drugs", drugID, "prices")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "rxrebate/1.0")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return []rebate.Quote{}, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, fmt.Errorf("%w: decode prices: %w", ErrUnavailable, err)
	}
	if quotes == nil {
		quotes = []rebate.Quote{}
	}
	return quotes, nil
}
