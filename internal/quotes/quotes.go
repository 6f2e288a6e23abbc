// Package quotes resolves symbols to catalog products, fetching unknown ones from a market-data
// provider and caching them in the catalog.
package quotes

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/mtlprog/finances/internal/catalog"
	"github.com/mtlprog/finances/internal/domain"
	"github.com/mtlprog/finances/internal/marketdata"
)

// Catalog is the subset of the product catalog used for resolution.
type Catalog interface {
	FindBySymbol(ctx context.Context, symbol string) ([]domain.Product, error)
	Upsert(ctx context.Context, in catalog.UpsertInput) (domain.Product, error)
	RecordMarketData(ctx context.Context, id uuid.UUID, md catalog.MarketData) error
	ListStale(ctx context.Context, cutoff time.Time) ([]domain.Product, error)
}

// Config tunes provider usage.
type Config struct {
	// BatchSize caps the number of symbols per provider call.
	BatchSize int
	// RateLimit is the allowed provider calls per second; zero means unlimited.
	RateLimit float64
	// Region is used when a caller passes none.
	Region string
	// RefreshTimeout bounds a background refresh.
	RefreshTimeout time.Duration
}

// RefreshResult reports what a stale-price refresh did.
type RefreshResult struct {
	Checked       int `json:"checked"`
	Updated       int `json:"updated"`
	Missing       int `json:"missing"`
	FailedBatches int `json:"failedBatches"`
}

// Service resolves symbols against the catalog and a market-data provider.
type Service struct {
	catalog        Catalog
	provider       marketdata.Provider
	limiter        *rate.Limiter
	batchSize      int
	region         string
	refreshTimeout time.Duration
	refreshing     atomic.Bool
	now            func() time.Time
}

// NewService creates a quote resolution service.
func NewService(cat Catalog, provider marketdata.Provider, cfg Config) *Service {
	if cat == nil {
		panic("quotes.NewService: catalog must not be nil")
	}
	if provider == nil {
		panic("quotes.NewService: provider must not be nil")
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	region := cfg.Region
	if region == "" {
		region = "US"
	}
	timeout := cfg.RefreshTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Service{
		catalog:        cat,
		provider:       provider,
		limiter:        rate.NewLimiter(limit, 1),
		batchSize:      batch,
		region:         region,
		refreshTimeout: timeout,
		now:            time.Now,
	}
}

// Resolve returns catalog products for symbols. Symbols already in the catalog are served
// locally; the rest are fetched from the provider in batches and stored. Symbols nobody knows
// are absent from the result, as are deactivated listings, which are never re-fetched.
// Provider failures are logged, never returned.
func (s *Service) Resolve(ctx context.Context, symbols []string, region string) []domain.Product {
	if region == "" {
		region = s.region
	}

	var (
		result []domain.Product
		misses []string
	)
	for _, symbol := range normalizeSymbols(symbols) {
		local, err := s.catalog.FindBySymbol(ctx, symbol)
		if err != nil {
			slog.Warn("catalog lookup failed, asking provider", "symbol", symbol, "error", err)
		}
		if len(local) > 0 {
			result = append(result, lo.Filter(local, func(p domain.Product, _ int) bool { return p.IsActive() })...)
			continue
		}
		misses = append(misses, symbol)
	}

	for _, batch := range lo.Chunk(misses, s.batchSize) {
		raw, ok := s.fetch(ctx, batch, region)
		if !ok {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		for _, q := range raw {
			if p, ok := s.store(ctx, q); ok {
				result = append(result, p)
			}
		}
	}

	return result
}

// ResolveOne resolves a single symbol, preferring the listing whose symbol matches exactly.
func (s *Service) ResolveOne(ctx context.Context, symbol, region string) (domain.Product, bool) {
	products := s.Resolve(ctx, []string{symbol}, region)
	if len(products) == 0 {
		return domain.Product{}, false
	}
	want := domain.NormalizeSymbol(symbol)
	if p, ok := lo.Find(products, func(p domain.Product) bool { return p.Symbol == want }); ok {
		return p, true
	}
	return products[0], true
}

// RefreshStalePrices refreshes market data of active products not updated within threshold.
// The error is non-nil only when stale products cannot be listed.
func (s *Service) RefreshStalePrices(ctx context.Context, threshold time.Duration) (RefreshResult, error) {
	cutoff := s.now().Add(-threshold)
	stale, err := s.catalog.ListStale(ctx, cutoff)
	if err != nil {
		return RefreshResult{}, err
	}

	res := RefreshResult{Checked: len(stale)}
	if len(stale) == 0 {
		return res, nil
	}

	bySymbol := lo.GroupBy(stale, func(p domain.Product) string { return p.Symbol })
	symbols := lo.Uniq(lo.Map(stale, func(p domain.Product, _ int) string { return p.Symbol }))
	refreshed := make(map[uuid.UUID]bool, len(stale))

	for _, batch := range lo.Chunk(symbols, s.batchSize) {
		raw, ok := s.fetch(ctx, batch, s.region)
		if !ok {
			res.FailedBatches++
			if ctx.Err() != nil {
				break
			}
			continue
		}
		for _, q := range raw {
			q = normalizeQuote(q)
			if q.Price == nil {
				continue
			}
			for _, p := range bySymbol[q.Symbol] {
				if q.Currency != "" && q.Currency != p.Currency {
					continue
				}
				if !sameAssetClass(q, p) {
					slog.Debug("ignoring quote of another asset class", "symbol", p.Symbol, "type", p.Type, "quoteType", q.QuoteType)
					continue
				}
				err := s.catalog.RecordMarketData(ctx, p.ID, marketData(q, s.now()))
				switch {
				case err == nil:
					refreshed[p.ID] = true
				case errors.Is(err, domain.ErrNotFound):
					slog.Debug("stale product vanished during refresh", "product", p.ID, "symbol", p.Symbol)
				default:
					slog.Warn("failed to record refreshed price", "symbol", p.Symbol, "product", p.ID, "error", err)
				}
			}
		}
	}

	res.Updated = len(refreshed)
	res.Missing = res.Checked - res.Updated
	return res, nil
}

// RefreshInBackground starts a stale-price refresh in its own goroutine with a bounded context
// and returns immediately. It reports false when a background refresh is already running.
func (s *Service) RefreshInBackground(threshold time.Duration) bool {
	if !s.refreshing.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer s.refreshing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
		defer cancel()

		res, err := s.RefreshStalePrices(ctx, threshold)
		if err != nil {
			slog.Error("background price refresh failed", "error", err)
			return
		}
		slog.Info("background price refresh completed",
			"checked", res.Checked, "updated", res.Updated, "failedBatches", res.FailedBatches)
	}()
	return true
}

func (s *Service) fetch(ctx context.Context, symbols []string, region string) ([]marketdata.RawQuote, bool) {
	if err := s.limiter.Wait(ctx); err != nil {
		slog.Warn("quote request cancelled", "symbols", len(symbols), "error", err)
		return nil, false
	}
	raw, err := s.provider.Quote(ctx, symbols, region)
	if err != nil {
		slog.Warn("market data provider failed", "symbols", strings.Join(symbols, ","), "region", region, "error", err)
		return nil, false
	}
	return raw, true
}

func (s *Service) store(ctx context.Context, q marketdata.RawQuote) (domain.Product, bool) {
	q = normalizeQuote(q)
	if q.Symbol == "" || q.Currency == "" {
		slog.Warn("skipping quote without symbol or currency", "symbol", q.Symbol)
		return domain.Product{}, false
	}

	p, err := s.catalog.Upsert(ctx, catalog.UpsertInput{
		Symbol:   q.Symbol,
		Currency: q.Currency,
		Name:     q.Name(),
		Type:     MapQuoteType(q.QuoteType),
		Exchange: lo.EmptyableToPtr(q.Exchange),
	})
	if err != nil {
		slog.Warn("failed to cache resolved product", "symbol", q.Symbol, "currency", q.Currency, "error", err)
		return domain.Product{}, false
	}

	if q.Price == nil {
		return p, true
	}
	md := marketData(q, s.now())
	if err := s.catalog.RecordMarketData(ctx, p.ID, md); err != nil {
		slog.Warn("failed to record market data", "symbol", q.Symbol, "error", err)
		return p, true
	}
	applyMarketData(&p, md)
	return p, true
}

// sameAssetClass reports whether q may price p. Crypto providers accept bare tickers, so a
// cryptocurrency quote only prices a cryptocurrency product and vice versa. Untyped quotes match.
func sameAssetClass(q marketdata.RawQuote, p domain.Product) bool {
	if strings.TrimSpace(q.QuoteType) == "" {
		return true
	}
	return (MapQuoteType(q.QuoteType) == domain.InstrumentCrypto) == (p.Type == domain.InstrumentCrypto)
}

// MapQuoteType converts a provider instrument classification to an instrument type.
func MapQuoteType(quoteType string) domain.InstrumentType {
	switch strings.ToUpper(strings.TrimSpace(quoteType)) {
	case "EQUITY":
		return domain.InstrumentStock
	case "ETF":
		return domain.InstrumentETF
	case "MUTUALFUND":
		return domain.InstrumentMutualFund
	case "BOND":
		return domain.InstrumentBond
	case "CRYPTOCURRENCY":
		return domain.InstrumentCrypto
	case "INDEX":
		return domain.InstrumentIndex
	default:
		return domain.InstrumentOther
	}
}

// subunitCurrencies are quote currencies expressed in minor units, e.g. London prices in pence.
var subunitCurrencies = map[string]string{
	"GBp": "GBP",
	"GBX": "GBP",
	"ZAc": "ZAR",
	"ILA": "ILS",
}

var hundred = decimal.NewFromInt(100)

func normalizeQuote(q marketdata.RawQuote) marketdata.RawQuote {
	q.Symbol = domain.NormalizeSymbol(q.Symbol)
	if major, ok := subunitCurrencies[strings.TrimSpace(q.Currency)]; ok {
		q.Currency = major
		q.Price = divide(q.Price)
		q.FiftyTwoWeekLow = divide(q.FiftyTwoWeekLow)
		q.FiftyTwoWeekHigh = divide(q.FiftyTwoWeekHigh)
		return q
	}
	q.Currency = domain.NormalizeCurrency(q.Currency)
	return q
}

func divide(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := d.Div(hundred)
	return &v
}

func marketData(q marketdata.RawQuote, at time.Time) catalog.MarketData {
	return catalog.MarketData{
		Price:            lo.FromPtr(q.Price),
		MarketCap:        q.MarketCap,
		PERatio:          nullable(q.TrailingPE),
		DividendYield:    nullable(q.DividendYield),
		Beta:             nullable(q.Beta),
		FiftyTwoWeekLow:  nullable(q.FiftyTwoWeekLow),
		FiftyTwoWeekHigh: nullable(q.FiftyTwoWeekHigh),
		AvgVolume:        q.AvgVolume,
		UpdatedAt:        at,
	}
}

func applyMarketData(p *domain.Product, md catalog.MarketData) {
	p.CurrentPrice = decimal.NewNullDecimal(md.Price)
	at := md.UpdatedAt
	p.LastUpdated = &at
	if md.MarketCap != nil {
		p.MarketCap = md.MarketCap
	}
	if md.PERatio.Valid {
		p.PERatio = md.PERatio
	}
	if md.DividendYield.Valid {
		p.DividendYield = md.DividendYield
	}
	if md.Beta.Valid {
		p.Beta = md.Beta
	}
	if md.FiftyTwoWeekLow.Valid {
		p.FiftyTwoWeekLow = md.FiftyTwoWeekLow
	}
	if md.FiftyTwoWeekHigh.Valid {
		p.FiftyTwoWeekHigh = md.FiftyTwoWeekHigh
	}
	if md.AvgVolume != nil {
		p.AvgVolume = md.AvgVolume
	}
}

func nullable(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func normalizeSymbols(symbols []string) []string {
	normalized := lo.FilterMap(symbols, func(s string, _ int) (string, bool) {
		s = domain.NormalizeSymbol(s)
		return s, s != ""
	})
	return lo.Uniq(normalized)
}
