package quotes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/finances/internal/catalog"
	"github.com/mtlprog/finances/internal/domain"
	"github.com/mtlprog/finances/internal/marketdata"
)

type fakeCatalog struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
	gone     map[uuid.UUID]bool
	findErr  error
}

func newFakeCatalog(products ...domain.Product) *fakeCatalog {
	c := &fakeCatalog{products: map[uuid.UUID]*domain.Product{}, gone: map[uuid.UUID]bool{}}
	for i := range products {
		p := products[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.Status == "" {
			p.Status = domain.ProductActive
		}
		c.products[p.ID] = &p
	}
	return c
}

func (c *fakeCatalog) FindBySymbol(_ context.Context, symbol string) ([]domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.findErr != nil {
		return nil, c.findErr
	}
	var out []domain.Product
	for _, p := range c.products {
		if p.Symbol == symbol {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (c *fakeCatalog) Upsert(_ context.Context, in catalog.UpsertInput) (domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.products {
		if p.Symbol == in.Symbol && p.Currency == in.Currency {
			p.Name, p.Type, p.Status = in.Name, in.Type, domain.ProductActive
			return *p, nil
		}
	}
	p := &domain.Product{ID: uuid.New(), Symbol: in.Symbol, Currency: in.Currency, Name: in.Name, Type: in.Type, Status: domain.ProductActive}
	if in.Exchange != nil {
		p.Exchange = *in.Exchange
	}
	c.products[p.ID] = p
	return *p, nil
}

func (c *fakeCatalog) RecordMarketData(_ context.Context, id uuid.UUID, md catalog.MarketData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok || c.gone[id] {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	p.CurrentPrice = decimal.NewNullDecimal(md.Price)
	at := md.UpdatedAt
	p.LastUpdated = &at
	return nil
}

func (c *fakeCatalog) ListStale(_ context.Context, cutoff time.Time) ([]domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Product
	for _, p := range c.products {
		if p.IsActive() && p.IsStale(cutoff) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (c *fakeCatalog) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.products)
}

func (c *fakeCatalog) price(symbol string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.products {
		if p.Symbol == symbol {
			return p.Price()
		}
	}
	return decimal.Zero, false
}

type cannedQuote struct {
	quoteType string
	currency  string
	price     string
}

type fakeProvider struct {
	mu     sync.Mutex
	quotes map[string]cannedQuote
	err    error
	calls  [][]string
}

func (f *fakeProvider) Quote(_ context.Context, symbols []string, _ string) ([]marketdata.RawQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), symbols...))
	if f.err != nil {
		return nil, f.err
	}
	var out []marketdata.RawQuote
	for _, s := range symbols {
		canned, ok := f.quotes[s]
		if !ok {
			continue
		}
		q := marketdata.RawQuote{Symbol: s, ShortName: s + " short", QuoteType: canned.quoteType, Currency: canned.currency}
		if canned.price != "" {
			d := decimal.RequireFromString(canned.price)
			q.Price = &d
		}
		out = append(out, q)
	}
	return out, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestResolveKnownSymbolSkipsProvider(t *testing.T) {
	cat := newFakeCatalog(domain.Product{Symbol: "AAPL", Currency: "USD", Type: domain.InstrumentStock})
	provider := &fakeProvider{}
	svc := NewService(cat, provider, Config{})

	products := svc.Resolve(context.Background(), []string{"aapl"}, "US")

	require.Len(t, products, 1)
	assert.Equal(t, "AAPL", products[0].Symbol)
	assert.Equal(t, 0, provider.callCount())
}

func TestResolveDeactivatedSymbolSkipsProvider(t *testing.T) {
	retired := domain.Product{ID: uuid.New(), Symbol: "AAPL", Currency: "USD", Type: domain.InstrumentStock, Status: domain.ProductDeactivated}
	listed := domain.Product{ID: uuid.New(), Symbol: "AAPL", Currency: "EUR", Type: domain.InstrumentStock}
	cat := newFakeCatalog(retired)
	provider := &fakeProvider{quotes: map[string]cannedQuote{"AAPL": {"EQUITY", "USD", "195"}}}
	svc := NewService(cat, provider, Config{})

	products := svc.Resolve(context.Background(), []string{"AAPL"}, "US")

	assert.Empty(t, products)
	assert.Equal(t, 0, provider.callCount())
	assert.Equal(t, domain.ProductDeactivated, cat.products[retired.ID].Status, "resolution must not reactivate a retired listing")

	cat = newFakeCatalog(retired, listed)
	products = NewService(cat, provider, Config{}).Resolve(context.Background(), []string{"AAPL"}, "US")

	require.Len(t, products, 1)
	assert.Equal(t, "EUR", products[0].Currency)
	assert.Equal(t, 0, provider.callCount())
}

func TestResolveFetchesAndCachesMisses(t *testing.T) {
	cat := newFakeCatalog()
	provider := &fakeProvider{quotes: map[string]cannedQuote{
		"MSFT": {"EQUITY", "USD", "410.5"},
		"VOO":  {"ETF", "USD", "450"},
	}}
	svc := NewService(cat, provider, Config{})
	ctx := context.Background()

	products := svc.Resolve(ctx, []string{"MSFT", " voo ", "msft", "", "UNKNOWN"}, "")

	require.Len(t, products, 2)
	assert.Equal(t, [][]string{{"MSFT", "VOO", "UNKNOWN"}}, provider.calls)
	assert.Equal(t, 2, cat.count())

	byType := map[string]domain.InstrumentType{}
	for _, p := range products {
		byType[p.Symbol] = p.Type
		price, ok := p.Price()
		require.True(t, ok, p.Symbol)
		assert.True(t, price.IsPositive())
		assert.Equal(t, p.Symbol+" short", p.Name)
	}
	assert.Equal(t, domain.InstrumentStock, byType["MSFT"])
	assert.Equal(t, domain.InstrumentETF, byType["VOO"])

	again := svc.Resolve(ctx, []string{"MSFT", "VOO"}, "US")
	assert.Len(t, again, 2)
	assert.Equal(t, 1, provider.callCount(), "second resolution is served locally")
}

func TestResolveBatchesMisses(t *testing.T) {
	provider := &fakeProvider{quotes: map[string]cannedQuote{}}
	svc := NewService(newFakeCatalog(), provider, Config{BatchSize: 2})

	svc.Resolve(context.Background(), []string{"A", "B", "C", "D", "E"}, "US")

	assert.Equal(t, [][]string{{"A", "B"}, {"C", "D"}, {"E"}}, provider.calls)
}

func TestResolveSwallowsProviderFailure(t *testing.T) {
	cat := newFakeCatalog(domain.Product{Symbol: "AAPL", Currency: "USD"})
	provider := &fakeProvider{err: errors.New("Yahoo Finance HTTP 500")}
	svc := NewService(cat, provider, Config{})

	products := svc.Resolve(context.Background(), []string{"AAPL", "MSFT"}, "US")

	require.Len(t, products, 1)
	assert.Equal(t, "AAPL", products[0].Symbol)
	assert.Equal(t, 1, cat.count())
}

func TestResolveTreatsCatalogErrorAsMiss(t *testing.T) {
	cat := newFakeCatalog()
	cat.findErr = errors.New("connection refused")
	provider := &fakeProvider{quotes: map[string]cannedQuote{"MSFT": {"EQUITY", "USD", "410"}}}

	products := NewService(cat, provider, Config{}).Resolve(context.Background(), []string{"MSFT"}, "US")

	assert.Len(t, products, 1)
	assert.Equal(t, 1, provider.callCount())
}

func TestResolveQuoteWithoutPrice(t *testing.T) {
	cat := newFakeCatalog()
	provider := &fakeProvider{quotes: map[string]cannedQuote{"XYZ": {"MUTUALFUND", "EUR", ""}}}

	p, ok := NewService(cat, provider, Config{}).ResolveOne(context.Background(), "xyz", "DE")

	require.True(t, ok)
	assert.Equal(t, domain.InstrumentMutualFund, p.Type)
	assert.Equal(t, "EUR", p.Currency)
	_, priced := p.Price()
	assert.False(t, priced)
}

func TestResolveOneUnknown(t *testing.T) {
	_, ok := NewService(newFakeCatalog(), &fakeProvider{}, Config{}).ResolveOne(context.Background(), "NOPE", "US")
	assert.False(t, ok)
}

func TestResolveConvertsPenceQuotes(t *testing.T) {
	cat := newFakeCatalog()
	provider := &fakeProvider{quotes: map[string]cannedQuote{"VUSA.L": {"ETF", "GBp", "8512"}}}

	p, ok := NewService(cat, provider, Config{}).ResolveOne(context.Background(), "VUSA.L", "GB")

	require.True(t, ok)
	assert.Equal(t, "GBP", p.Currency)
	price, _ := p.Price()
	assert.True(t, price.Equal(decimal.RequireFromString("85.12")), price.String())
}

func TestMapQuoteType(t *testing.T) {
	tests := map[string]domain.InstrumentType{
		"EQUITY":         domain.InstrumentStock,
		"etf":            domain.InstrumentETF,
		"MUTUALFUND":     domain.InstrumentMutualFund,
		"BOND":           domain.InstrumentBond,
		"CRYPTOCURRENCY": domain.InstrumentCrypto,
		"INDEX":          domain.InstrumentIndex,
		"CURRENCY":       domain.InstrumentOther,
		"FUTURE":         domain.InstrumentOther,
		"":               domain.InstrumentOther,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapQuoteType(in), in)
	}
}

func TestRefreshStalePrices(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-time.Hour)
	old := now.Add(-6 * time.Hour)

	staleUSD := domain.Product{ID: uuid.New(), Symbol: "AAPL", Currency: "USD", LastUpdated: &old}
	staleEUR := domain.Product{ID: uuid.New(), Symbol: "AAPL", Currency: "EUR", LastUpdated: &old}
	neverPriced := domain.Product{ID: uuid.New(), Symbol: "MSFT", Currency: "USD"}
	vanished := domain.Product{ID: uuid.New(), Symbol: "GONE", Currency: "USD"}
	recent := domain.Product{ID: uuid.New(), Symbol: "VOO", Currency: "USD", LastUpdated: &fresh}
	unknown := domain.Product{ID: uuid.New(), Symbol: "DELISTED", Currency: "USD"}

	cat := newFakeCatalog(staleUSD, staleEUR, neverPriced, vanished, recent, unknown)
	cat.gone[vanished.ID] = true
	provider := &fakeProvider{quotes: map[string]cannedQuote{
		"AAPL": {"EQUITY", "USD", "195"},
		"MSFT": {"EQUITY", "USD", "420"},
		"GONE": {"EQUITY", "USD", "1"},
		"VOO":  {"ETF", "USD", "460"},
	}}
	svc := NewService(cat, provider, Config{})
	svc.now = func() time.Time { return now }

	res, err := svc.RefreshStalePrices(context.Background(), 4*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Checked)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 3, res.Missing)
	assert.Equal(t, 0, res.FailedBatches)

	require.Len(t, provider.calls, 1)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT", "GONE", "DELISTED"}, provider.calls[0])
	assert.False(t, cat.products[staleEUR.ID].CurrentPrice.Valid, "quote currency must match listing currency")
	assert.True(t, cat.products[staleUSD.ID].CurrentPrice.Decimal.Equal(decimal.NewFromInt(195)))
	assert.Equal(t, now, *cat.products[neverPriced.ID].LastUpdated)
	assert.False(t, cat.products[recent.ID].CurrentPrice.Valid, "fresh products are not refreshed")
}

func TestRefreshStalePricesKeepsAssetClass(t *testing.T) {
	stock := domain.Product{ID: uuid.New(), Symbol: "SOL", Currency: "USD", Type: domain.InstrumentStock,
		CurrentPrice: decimal.NewNullDecimal(decimal.RequireFromString("2.10"))}
	coin := domain.Product{ID: uuid.New(), Symbol: "ETH", Currency: "USD", Type: domain.InstrumentCrypto}
	token := domain.Product{ID: uuid.New(), Symbol: "MSTR", Currency: "USD", Type: domain.InstrumentCrypto}

	cat := newFakeCatalog(stock, coin, token)
	provider := &fakeProvider{quotes: map[string]cannedQuote{
		"SOL":  {"CRYPTOCURRENCY", "USD", "150"},
		"ETH":  {"CRYPTOCURRENCY", "USD", "3100"},
		"MSTR": {"EQUITY", "USD", "1500"},
	}}

	res, err := NewService(cat, provider, Config{}).RefreshStalePrices(context.Background(), time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, 1, res.Updated)
	assert.True(t, cat.products[stock.ID].CurrentPrice.Decimal.Equal(decimal.RequireFromString("2.10")),
		"a crypto quote must not reprice a stock")
	assert.Nil(t, cat.products[stock.ID].LastUpdated)
	assert.False(t, cat.products[token.ID].CurrentPrice.Valid, "an equity quote must not reprice a coin")
	assert.True(t, cat.products[coin.ID].CurrentPrice.Decimal.Equal(decimal.NewFromInt(3100)))
}

func TestRefreshStalePricesProviderDown(t *testing.T) {
	cat := newFakeCatalog(domain.Product{Symbol: "AAPL", Currency: "USD"})
	provider := &fakeProvider{err: errors.New("timeout")}

	res, err := NewService(cat, provider, Config{}).RefreshStalePrices(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 1, res.FailedBatches)
}

func TestRefreshInBackground(t *testing.T) {
	cat := newFakeCatalog(domain.Product{Symbol: "AAPL", Currency: "USD"})
	provider := &fakeProvider{quotes: map[string]cannedQuote{"AAPL": {"EQUITY", "USD", "200"}}}
	svc := NewService(cat, provider, Config{RefreshTimeout: time.Second})

	require.True(t, svc.RefreshInBackground(time.Hour))

	require.Eventually(t, func() bool {
		price, ok := cat.price("AAPL")
		return ok && price.Equal(decimal.NewFromInt(200))
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !svc.refreshing.Load() }, time.Second, 10*time.Millisecond)
}

func TestNewServicePanicsOnNilDependencies(t *testing.T) {
	assert.Panics(t, func() { NewService(nil, &fakeProvider{}, Config{}) })
	assert.Panics(t, func() { NewService(newFakeCatalog(), nil, Config{}) })
}
