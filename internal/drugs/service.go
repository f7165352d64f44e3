package drugs

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/rxrebate/internal/common"
	"github.com/noah-isme/rxrebate/internal/rebate"
)

// PriceSource returns the current upstream quotes for a drug.
type PriceSource interface {
	CurrentPrices(ctx context.Context, drugID string) ([]rebate.Quote, error)
}

// Catalog reports whether a drug is known locally.
type Catalog interface {
	Exists(ctx context.Context, drugID string) (bool, error)
}

// Pricer applies rebate rules to quotes.
type Pricer interface {
	ApplyAdjustment(ctx context.Context, pharmacyID *string, quotes []rebate.Quote) ([]rebate.Quote, error)
	ResolveLowest(ctx context.Context, quotes []rebate.Quote) ([]rebate.Quote, error)
}

// Service serves rebate-adjusted drug prices.
type Service struct {
	catalog Catalog
	prices  PriceSource
	pricer  Pricer
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Catalog Catalog
	Prices  PriceSource
	Pricer  Pricer
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Catalog == nil:
		return nil, errors.New("drugs: catalog is required")
	case cfg.Prices == nil:
		return nil, errors.New("drugs: price source is required")
	case cfg.Pricer == nil:
		return nil, errors.New("drugs: pricer is required")
	}
	return &Service{catalog: cfg.Catalog, prices: cfg.Prices, pricer: cfg.Pricer}, nil
}

// Prices returns the current quotes for drugID adjusted for the purchasing
// pharmacy. Without a pharmacy the quotes come back unadjusted. A drug that
// is not in the catalogue yields an empty list.
func (s *Service) Prices(ctx context.Context, drugID string, pharmacyID *string) ([]rebate.Quote, error) {
	quotes, err := s.current(ctx, drugID)
	if err != nil || len(quotes) == 0 {
		return quotes, err
	}
	adjusted, err := s.pricer.ApplyAdjustment(ctx, pharmacyID, quotes)
	if err != nil {
		return nil, ruleLookupError(err)
	}
	return adjusted, nil
}

// LowestPrices returns the current quotes for drugID, each priced at the
// pharmacy offering the biggest rebate.
func (s *Service) LowestPrices(ctx context.Context, drugID string) ([]rebate.Quote, error) {
	quotes, err := s.current(ctx, drugID)
	if err != nil || len(quotes) == 0 {
		return quotes, err
	}
	resolved, err := s.pricer.ResolveLowest(ctx, quotes)
	if err != nil {
		return nil, ruleLookupError(err)
	}
	return resolved, nil
}

func (s *Service) current(ctx context.Context, drugID string) ([]rebate.Quote, error) {
	drugID = strings.TrimSpace(drugID)
	ok, err := s.catalog.Exists(ctx, drugID)
	if err != nil {
		return nil, common.NewAppError(common.CodeInternal, "drug lookup failed", http.StatusInternalServerError, err)
	}
	if !ok {
		return []rebate.Quote{}, nil
	}
	quotes, err := s.prices.CurrentPrices(ctx, drugID)
	if err != nil {
		return nil, common.NewAppError(common.CodePriceSourceFailed, "price source unavailable", http.StatusBadGateway, err)
	}
	if quotes == nil {
		quotes = []rebate.Quote{}
	}
	return quotes, nil
}

func ruleLookupError(err error) error {
	if errors.Is(err, rebate.ErrRuleLookup) {
		return common.NewAppError(common.CodeRuleLookupFailed, "rebate rules unavailable", http.StatusBadGateway, err)
	}
	return common.NewAppError(common.CodeInternal, "pricing failed", http.StatusInternalServerError, err)
}
