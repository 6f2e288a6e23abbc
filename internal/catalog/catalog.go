// Package catalog maintains the shared catalog of tradable products.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/finances/internal/domain"
)

const (
	maxSymbolLen      = 20
	maxNameLen        = 200
	maxDescriptionLen = 500
)

// UpsertInput describes a product to create or refresh.
// Nil descriptive fields keep whatever the catalog already stores.
type UpsertInput struct {
	Symbol      string                `json:"symbol"`
	Currency    string                `json:"currency"`
	Name        string                `json:"name"`
	Type        domain.InstrumentType `json:"type"`
	Description *string               `json:"description,omitempty"`
	Exchange    *string               `json:"exchange,omitempty"`
	Sector      *string               `json:"sector,omitempty"`
	Region      *string               `json:"region,omitempty"`
}

// MarketData is a price observation plus optional statistics.
// Nil or invalid statistics leave the stored values untouched.
type MarketData struct {
	Price            decimal.Decimal
	MarketCap        *int64
	PERatio          decimal.NullDecimal
	DividendYield    decimal.NullDecimal
	Beta             decimal.NullDecimal
	FiftyTwoWeekLow  decimal.NullDecimal
	FiftyTwoWeekHigh decimal.NullDecimal
	AvgVolume        *int64
	UpdatedAt        time.Time
}

// ProductFilter narrows List results. Empty fields match everything.
type ProductFilter struct {
	Type            domain.InstrumentType
	Currency        string
	Exchange        string
	Sector          string
	Region          string
	Query           string
	IncludeInactive bool
}

// Dimension names a catalog attribute with enumerable values.
type Dimension string

const (
	DimensionType     Dimension = "type"
	DimensionCurrency Dimension = "currency"
	DimensionExchange Dimension = "exchange"
	DimensionSector   Dimension = "sector"
	DimensionRegion   Dimension = "region"
)

// ParseDimension validates a dimension name.
func ParseDimension(s string) (Dimension, bool) {
	d := Dimension(strings.ToLower(s))
	_, ok := dimensionColumns[d]
	return d, ok
}

// Summary describes the active catalog.
type Summary struct {
	ActiveProducts int      `json:"activeProducts"`
	Types          []string `json:"types"`
	Currencies     []string `json:"currencies"`
	Exchanges      []string `json:"exchanges"`
	Sectors        []string `json:"sectors"`
	Regions        []string `json:"regions"`
}

// Service implements catalog operations over a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a catalog service.
func NewService(repo Repository) *Service {
	if repo == nil {
		panic("catalog.NewService: repo must not be nil")
	}
	return &Service{repo: repo, now: time.Now}
}

// Upsert creates the product or refreshes the existing one with the same symbol and currency,
// reactivating it if it was deactivated.
func (s *Service) Upsert(ctx context.Context, in UpsertInput) (domain.Product, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return domain.Product{}, err
	}
	p, err := s.repo.Upsert(ctx, in)
	if err != nil {
		return domain.Product{}, fmt.Errorf("upserting product: %w", err)
	}
	return p, nil
}

// Create inserts a new product and fails with domain.ErrProductAlreadyExists on a duplicate pair.
func (s *Service) Create(ctx context.Context, in UpsertInput) (domain.Product, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return domain.Product{}, err
	}
	p, err := s.repo.Insert(ctx, in)
	if err != nil {
		return domain.Product{}, fmt.Errorf("creating product: %w", err)
	}
	return p, nil
}

// UpdatePrice sets the current price and stamps the refresh time.
func (s *Service) UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error {
	if price.IsNegative() {
		ve := domain.NewValidationError()
		ve.Add("price", "must not be negative")
		return ve
	}
	if err := s.repo.UpdatePrice(ctx, id, price, s.now()); err != nil {
		return fmt.Errorf("updating price: %w", err)
	}
	return nil
}

// BulkUpdatePrices applies several price updates atomically. Every price is validated first.
func (s *Service) BulkUpdatePrices(ctx context.Context, prices map[uuid.UUID]decimal.Decimal) error {
	ve := domain.NewValidationError()
	for id, price := range prices {
		if price.IsNegative() {
			ve.Add("price", fmt.Sprintf("must not be negative (product %s)", id))
		}
	}
	if err := ve.Err(); err != nil {
		return err
	}
	if len(prices) == 0 {
		return nil
	}
	if err := s.repo.UpdatePrices(ctx, prices, s.now()); err != nil {
		return fmt.Errorf("updating prices: %w", err)
	}
	return nil
}

// RecordMarketData stores a fresh quote for the product.
func (s *Service) RecordMarketData(ctx context.Context, id uuid.UUID, md MarketData) error {
	if md.Price.IsNegative() {
		ve := domain.NewValidationError()
		ve.Add("price", "must not be negative")
		return ve
	}
	if md.UpdatedAt.IsZero() {
		md.UpdatedAt = s.now()
	}
	if err := s.repo.RecordMarketData(ctx, id, md); err != nil {
		return fmt.Errorf("recording market data: %w", err)
	}
	return nil
}

// Deactivate hides the product from searches and new positions while keeping existing references.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SetStatus(ctx, id, domain.ProductDeactivated); err != nil {
		return fmt.Errorf("deactivating product: %w", err)
	}
	return nil
}

// Retire removes a product nobody holds and deactivates one that is still referenced.
// It reports whether the product was deleted.
func (s *Service) Retire(ctx context.Context, id uuid.UUID) (bool, error) {
	used, err := s.repo.HasPositions(ctx, id)
	if err != nil {
		return false, fmt.Errorf("retiring product: %w", err)
	}
	if !used {
		err := s.repo.Delete(ctx, id)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, ErrInUse) {
			return false, fmt.Errorf("retiring product: %w", err)
		}
		slog.Info("product gained a position during retirement, deactivating", "product", id)
	}
	if err := s.Deactivate(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) FindBySymbolAndCurrency(ctx context.Context, symbol, currency string) (domain.Product, error) {
	return s.repo.FindBySymbolAndCurrency(ctx, domain.NormalizeSymbol(symbol), domain.NormalizeCurrency(currency))
}

// FindBySymbol returns the products listed under symbol, one per currency, whatever their status.
func (s *Service) FindBySymbol(ctx context.Context, symbol string) ([]domain.Product, error) {
	return s.repo.FindBySymbol(ctx, domain.NormalizeSymbol(symbol))
}

// Search matches term against name, symbol and description of active products.
// A blank term returns every active product.
func (s *Service) Search(ctx context.Context, term string) ([]domain.Product, error) {
	return s.repo.List(ctx, ProductFilter{Query: term})
}

func (s *Service) Filter(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	if f.Type != "" && !f.Type.Valid() {
		ve := domain.NewValidationError()
		ve.Add("type", "unknown instrument type")
		return nil, ve
	}
	return s.repo.List(ctx, f)
}

// DistinctValues lists the values of d present among active products.
func (s *Service) DistinctValues(ctx context.Context, d Dimension) ([]string, error) {
	values, err := s.repo.Distinct(ctx, d)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	count, err := s.repo.CountActive(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("summarizing catalog: %w", err)
	}

	sum := Summary{ActiveProducts: count}
	targets := []struct {
		dim  Dimension
		dest *[]string
	}{
		{DimensionType, &sum.Types},
		{DimensionCurrency, &sum.Currencies},
		{DimensionExchange, &sum.Exchanges},
		{DimensionSector, &sum.Sectors},
		{DimensionRegion, &sum.Regions},
	}
	for _, t := range targets {
		values, err := s.DistinctValues(ctx, t.dim)
		if err != nil {
			return Summary{}, fmt.Errorf("summarizing catalog: %w", err)
		}
		*t.dest = values
	}
	return sum, nil
}

// ListStale returns active products whose price was refreshed before cutoff or never.
func (s *Service) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Product, error) {
	return s.repo.ListStale(ctx, cutoff)
}

func normalizeInput(in UpsertInput) (UpsertInput, error) {
	in.Symbol = domain.NormalizeSymbol(in.Symbol)
	in.Currency = domain.NormalizeCurrency(in.Currency)
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		in.Name = in.Symbol
	}
	if in.Type == "" {
		in.Type = domain.InstrumentOther
	}

	ve := domain.NewValidationError()
	switch {
	case in.Symbol == "":
		ve.Add("symbol", "is required")
	case utf8.RuneCountInString(in.Symbol) > maxSymbolLen:
		ve.Add("symbol", fmt.Sprintf("must be at most %d characters", maxSymbolLen))
	}
	if utf8.RuneCountInString(in.Name) > maxNameLen {
		ve.Add("name", fmt.Sprintf("must be at most %d characters", maxNameLen))
	}
	if in.Description != nil && utf8.RuneCountInString(*in.Description) > maxDescriptionLen {
		ve.Add("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLen))
	}
	if !in.Type.Valid() {
		ve.Add("type", "unknown instrument type")
	}
	if !domain.IsValidCurrency(in.Currency) {
		ve.Add("currency", "unknown currency code")
	}
	if err := ve.Err(); err != nil {
		return UpsertInput{}, err
	}
	return in, nil
}
