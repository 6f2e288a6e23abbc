package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/finances/internal/catalog"
	"github.com/mtlprog/finances/internal/domain"
	"github.com/mtlprog/finances/internal/export"
	"github.com/mtlprog/finances/internal/ledger"
	"github.com/mtlprog/finances/internal/portfolio"
	"github.com/mtlprog/finances/internal/snapshot"
)

const adminKey = "admin-secret"

type fakeProducts struct {
	products   map[uuid.UUID]domain.Product
	filter     catalog.ProductFilter
	createErr  error
	priceSet   decimal.Decimal
	retireUsed bool
}

func (f *fakeProducts) Filter(_ context.Context, pf catalog.ProductFilter) ([]domain.Product, error) {
	f.filter = pf
	var out []domain.Product
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProducts) Summary(_ context.Context) (catalog.Summary, error) {
	return catalog.Summary{ActiveProducts: len(f.products)}, nil
}

func (f *fakeProducts) DistinctValues(_ context.Context, d catalog.Dimension) ([]string, error) {
	if d == catalog.DimensionCurrency {
		return []string{"EUR", "USD"}, nil
	}
	return nil, nil
}

func (f *fakeProducts) FindByID(_ context.Context, id uuid.UUID) (domain.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("finding product: %w", domain.ErrNotFound)
	}
	return p, nil
}

func (f *fakeProducts) Create(_ context.Context, in catalog.UpsertInput) (domain.Product, error) {
	if f.createErr != nil {
		return domain.Product{}, f.createErr
	}
	return domain.Product{ID: uuid.New(), Symbol: in.Symbol, Currency: in.Currency, Name: in.Name,
		Type: in.Type, Status: domain.ProductActive}, nil
}

func (f *fakeProducts) UpdatePrice(_ context.Context, id uuid.UUID, price decimal.Decimal) error {
	if _, ok := f.products[id]; !ok {
		return domain.ErrNotFound
	}
	f.priceSet = price
	return nil
}

func (f *fakeProducts) Retire(_ context.Context, id uuid.UUID) (bool, error) {
	if _, ok := f.products[id]; !ok {
		return false, domain.ErrNotFound
	}
	return !f.retireUsed, nil
}

type fakeQuotes struct {
	symbols   []string
	region    string
	threshold time.Duration
	running   bool
}

func (f *fakeQuotes) Resolve(_ context.Context, symbols []string, region string) []domain.Product {
	f.symbols, f.region = symbols, region
	if symbols[0] == "AAPL" {
		return []domain.Product{{ID: uuid.New(), Symbol: "AAPL", Currency: "USD"}}
	}
	return nil
}

func (f *fakeQuotes) RefreshInBackground(threshold time.Duration) bool {
	f.threshold = threshold
	return !f.running
}

type fakePositions struct {
	owned   map[uuid.UUID]domain.Position
	input   ledger.PositionInput
	user    uuid.UUID
	filter  ledger.Filter
	page    ledger.Page
	saveErr error
}

func (f *fakePositions) Create(_ context.Context, userID uuid.UUID, in ledger.PositionInput) (domain.Position, error) {
	f.user, f.input = userID, in
	if f.saveErr != nil {
		return domain.Position{}, f.saveErr
	}
	return domain.Position{ID: uuid.New(), UserID: userID, ProductID: in.ProductID, Quantity: in.Quantity}, nil
}

func (f *fakePositions) Update(_ context.Context, userID, id uuid.UUID, in ledger.PositionInput) (domain.Position, error) {
	f.user, f.input = userID, in
	p, ok := f.owned[id]
	if !ok || p.UserID != userID {
		return domain.Position{}, domain.ErrNotFound
	}
	p.Quantity = in.Quantity
	return p, nil
}

func (f *fakePositions) Delete(_ context.Context, userID, id uuid.UUID) error {
	p, ok := f.owned[id]
	if !ok || p.UserID != userID {
		return domain.ErrNotFound
	}
	delete(f.owned, id)
	return nil
}

func (f *fakePositions) FindByIDAndUser(_ context.Context, id, userID uuid.UUID) (domain.Position, error) {
	p, ok := f.owned[id]
	if !ok || p.UserID != userID {
		return domain.Position{}, fmt.Errorf("finding position: %w", domain.ErrNotFound)
	}
	return p, nil
}

func (f *fakePositions) ListPage(_ context.Context, userID uuid.UUID, lf ledger.Filter, page ledger.Page) (ledger.PageResult, error) {
	f.user, f.filter, f.page = userID, lf, page
	return ledger.PageResult{Items: []domain.Position{}, Page: page.Number, Size: 20}, nil
}

func (f *fakePositions) Recent(_ context.Context, _ uuid.UUID, _ int) ([]domain.Position, error) {
	return nil, nil
}

func (f *fakePositions) CountByType(_ context.Context, _ uuid.UUID) (map[domain.InstrumentType]int, error) {
	return map[domain.InstrumentType]int{domain.InstrumentStock: 2, domain.InstrumentETF: 1}, nil
}

type fakePortfolio struct {
	overview portfolio.Overview
	err      error
}

func (f *fakePortfolio) Summarize(_ context.Context, userID uuid.UUID) (portfolio.Summary, error) {
	s := f.overview.Summary
	s.UserID = userID
	return s, f.err
}

func (f *fakePortfolio) AllocationByType(_ context.Context, _ uuid.UUID) ([]portfolio.TypeAllocation, error) {
	return append([]portfolio.TypeAllocation(nil), f.overview.ByType...), f.err
}

func (f *fakePortfolio) AllocationByCurrency(_ context.Context, _ uuid.UUID) ([]portfolio.CurrencyAllocation, error) {
	return append([]portfolio.CurrencyAllocation(nil), f.overview.ByCurrency...), f.err
}

func (f *fakePortfolio) Positions(_ context.Context, _ uuid.UUID) ([]portfolio.PositionView, error) {
	return f.overview.Positions, f.err
}

func (f *fakePortfolio) Profitable(_ context.Context, _ uuid.UUID) ([]portfolio.PositionView, error) {
	return nil, f.err
}

func (f *fakePortfolio) Losing(_ context.Context, _ uuid.UUID) ([]portfolio.PositionView, error) {
	return nil, f.err
}

type fakeSnapshots struct {
	generated time.Time
	stored    map[string]snapshot.Snapshot
}

func (f *fakeSnapshots) Generate(_ context.Context, userID uuid.UUID, date time.Time) (snapshot.Data, error) {
	f.generated = date
	return snapshot.Data{Summary: portfolio.Summary{UserID: userID}}, nil
}

func (f *fakeSnapshots) GetLatest(_ context.Context, _ uuid.UUID) (*snapshot.Snapshot, error) {
	return nil, fmt.Errorf("snapshot not found: %w", domain.ErrNotFound)
}

func (f *fakeSnapshots) GetByDate(_ context.Context, _ uuid.UUID, date time.Time) (*snapshot.Snapshot, error) {
	s, ok := f.stored[date.Format(time.DateOnly)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSnapshots) List(_ context.Context, _ uuid.UUID, _ int) ([]snapshot.Snapshot, error) {
	return []snapshot.Snapshot{}, nil
}

type fakeExporter struct {
	err error
}

func (f *fakeExporter) Export(ctx context.Context, userID uuid.UUID, w export.Writer) error {
	if f.err != nil {
		return f.err
	}
	return w.Write(ctx, export.Report{
		UserID: userID.String(),
		Sheets: []export.Sheet{{Name: export.SheetSummary, Rows: [][]any{{"Field", "Value"}, {"Positions", 1}}}},
	})
}

type fixture struct {
	products  *fakeProducts
	quotes    *fakeQuotes
	positions *fakePositions
	portfolio *fakePortfolio
	snapshots *fakeSnapshots
	exporter  *fakeExporter
	router    http.Handler
	user      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		products:  &fakeProducts{products: map[uuid.UUID]domain.Product{}},
		quotes:    &fakeQuotes{},
		positions: &fakePositions{owned: map[uuid.UUID]domain.Position{}},
		portfolio: &fakePortfolio{},
		snapshots: &fakeSnapshots{stored: map[string]snapshot.Snapshot{}},
		exporter:  &fakeExporter{},
		user:      uuid.New(),
	}
	f.router = NewRouter(Services{
		Products:  f.products,
		Quotes:    f.quotes,
		Positions: f.positions,
		Portfolio: f.portfolio,
		Snapshots: f.snapshots,
		Exporter:  f.exporter,
	}, Options{AdminAPIKey: adminKey, StaleThreshold: 4 * time.Hour})
	return f
}

type requestOption func(*http.Request)

func asUser(id uuid.UUID) requestOption {
	return func(r *http.Request) { r.Header.Set(UserHeader, id.String()) }
}

func asAdmin() requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+adminKey) }
}

func (f *fixture) do(t *testing.T, method, path, body string, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, w)["status"])
}

func TestListProductsFilters(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/products?type=ETF&currency=EUR&q=world&inactive=true", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
	assert.Equal(t, catalog.ProductFilter{
		Type: domain.InstrumentETF, Currency: "EUR", Query: "world", IncludeInactive: true,
	}, f.products.filter)

	w = f.do(t, http.MethodGet, "/api/v1/products?type=tulips", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProductFacets(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/products/facets/currency", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"EUR", "USD"}, decodeBody[[]string](t, w))

	w = f.do(t, http.MethodGet, "/api/v1/products/facets/sector", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{}, decodeBody[[]string](t, w))

	w = f.do(t, http.MethodGet, "/api/v1/products/facets/color", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/products/facets", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.products.products[id] = domain.Product{ID: id, Symbol: "AAPL", Currency: "USD"}

	w := f.do(t, http.MethodGet, "/api/v1/products/"+id.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AAPL", decodeBody[domain.Product](t, w).Symbol)

	w = f.do(t, http.MethodGet, "/api/v1/products/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "product not found", decodeBody[map[string]string](t, w)["error"])

	w = f.do(t, http.MethodGet, "/api/v1/products/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateProduct(t *testing.T) {
	body := `{"symbol":"vwce","currency":"eur","name":"Vanguard FTSE All-World","type":"etf"}`

	t.Run("requires a user", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/v1/products", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("created", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/v1/products", body, asUser(f.user))
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "vwce", decodeBody[domain.Product](t, w).Symbol)
	})

	t.Run("duplicate", func(t *testing.T) {
		f := newFixture(t)
		f.products.createErr = fmt.Errorf("creating product: %w", domain.ErrProductAlreadyExists)
		w := f.do(t, http.MethodPost, "/api/v1/products", body, asUser(f.user))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid", func(t *testing.T) {
		f := newFixture(t)
		ve := domain.NewValidationError()
		ve.Add("symbol", "is required")
		f.products.createErr = ve
		w := f.do(t, http.MethodPost, "/api/v1/products", body, asUser(f.user))
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "is required", decodeBody[validationResponse](t, w).Fields["symbol"])
	})

	t.Run("unknown field", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/v1/products", `{"symbol":"X","ticker":"X"}`, asUser(f.user))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProductAdminRoutes(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.products.products[id] = domain.Product{ID: id}
	path := "/api/v1/products/" + id.String()

	w := f.do(t, http.MethodPut, path+"/price", `{"price":"101.25"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPut, path+"/price", `{"price":"101.25"}`, asAdmin())
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, f.products.priceSet.Equal(decimal.RequireFromString("101.25")))

	w = f.do(t, http.MethodDelete, path, "", asAdmin())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "deleted", decodeBody[map[string]string](t, w)["result"])

	f.products.retireUsed = true
	w = f.do(t, http.MethodDelete, path, "", asAdmin())
	assert.Equal(t, "deactivated", decodeBody[map[string]string](t, w)["result"])

	w = f.do(t, http.MethodDelete, "/api/v1/products/"+uuid.NewString(), "", asAdmin())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutesOpenWithoutKey(t *testing.T) {
	q := &fakeQuotes{}
	router := NewRouter(Services{Quotes: q}, Options{StaleThreshold: time.Hour})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/refresh", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, time.Hour, q.threshold)
}

func TestResolveQuotes(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/quotes/resolve", `{"symbols":["AAPL"]}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "resolution writes to the catalog and needs a user")
	assert.Empty(t, f.quotes.symbols)

	w = f.do(t, http.MethodPost, "/api/v1/quotes/resolve", `{"symbols":["AAPL"],"region":"US"}`, asUser(f.user))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]domain.Product](t, w), 1)
	assert.Equal(t, "US", f.quotes.region)

	w = f.do(t, http.MethodPost, "/api/v1/quotes/resolve", `{"symbols":["NOPE"]}`, asUser(f.user))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String(), "unknown symbols are absent, not an error")

	w = f.do(t, http.MethodPost, "/api/v1/quotes/resolve", `{"symbols":[]}`, asUser(f.user))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/quotes/resolve", "", asUser(f.user))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "request body is required", decodeBody[map[string]string](t, w)["error"])
}

func TestRefreshQuotes(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/quotes/refresh", "", asAdmin())
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "started", decodeBody[map[string]string](t, w)["status"])
	assert.Equal(t, 4*time.Hour, f.quotes.threshold)

	f.quotes.running = true
	w = f.do(t, http.MethodPost, "/api/v1/quotes/refresh", "", asAdmin())
	assert.Equal(t, "already running", decodeBody[map[string]string](t, w)["status"])
}

func TestCreatePosition(t *testing.T) {
	productID := uuid.New()
	body := fmt.Sprintf(`{"productId":%q,"quantity":"10","purchasePrice":"150.5","purchaseDate":"2024-03-01","currency":"usd","fxRate":"1.08"}`, productID)

	t.Run("created for the caller", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/v1/positions", body, asUser(f.user))

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, f.user, f.positions.user)
		assert.Equal(t, productID, f.positions.input.ProductID)
		assert.True(t, f.positions.input.PurchasePrice.Equal(decimal.RequireFromString("150.5")))
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), f.positions.input.PurchaseDate)
		assert.Equal(t, "USD", f.positions.input.Currency)
		require.NotNil(t, f.positions.input.FXRate)
		assert.True(t, f.positions.input.FXRate.Equal(decimal.RequireFromString("1.08")))
	})

	t.Run("malformed date", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/v1/positions",
			`{"productId":"`+productID.String()+`","quantity":"1","purchasePrice":"1","purchaseDate":"01/03/2024"}`,
			asUser(f.user))

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, decodeBody[validationResponse](t, w).Fields, "purchaseDate")
	})

	t.Run("rule violations", func(t *testing.T) {
		f := newFixture(t)
		ve := domain.NewValidationError()
		ve.Add("quantity", "must be greater than zero")
		ve.Add("product", "does not exist")
		f.positions.saveErr = ve

		w := f.do(t, http.MethodPost, "/api/v1/positions", body, asUser(f.user))

		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Len(t, decodeBody[validationResponse](t, w).Fields, 2)
	})

	t.Run("storage failure is opaque", func(t *testing.T) {
		f := newFixture(t)
		f.positions.saveErr = errors.New("connection reset")

		w := f.do(t, http.MethodPost, "/api/v1/positions", body, asUser(f.user))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
	})

	t.Run("anonymous", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(t, http.MethodPost, "/api/v1/positions", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPositionOwnership(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()
	mine := domain.Position{ID: uuid.New(), UserID: f.user}
	theirs := domain.Position{ID: uuid.New(), UserID: other}
	f.positions.owned[mine.ID] = mine
	f.positions.owned[theirs.ID] = theirs

	w := f.do(t, http.MethodGet, "/api/v1/positions/"+mine.ID.String(), "", asUser(f.user))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/positions/"+theirs.ID.String(), "", asUser(f.user))
	assert.Equal(t, http.StatusNotFound, w.Code)

	update := `{"productId":"` + uuid.NewString() + `","quantity":"3","purchasePrice":"10","purchaseDate":"2024-01-02"}`
	w = f.do(t, http.MethodPut, "/api/v1/positions/"+theirs.ID.String(), update, asUser(f.user))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPut, "/api/v1/positions/"+mine.ID.String(), update, asUser(f.user))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", decodeBody[domain.Position](t, w).Quantity.String())

	w = f.do(t, http.MethodDelete, "/api/v1/positions/"+theirs.ID.String(), "", asUser(f.user))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, f.positions.owned, theirs.ID)

	w = f.do(t, http.MethodDelete, "/api/v1/positions/"+mine.ID.String(), "", asUser(f.user))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotContains(t, f.positions.owned, mine.ID)
}

func TestListPositions(t *testing.T) {
	f := newFixture(t)
	productID := uuid.New()

	w := f.do(t, http.MethodGet,
		"/api/v1/positions?product="+productID.String()+"&type=stock&currency=usd&from=2024-01-01&to=2024-06-30&q=apple&page=2&size=10",
		"", asUser(f.user))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ledger.Filter{
		ProductID: productID,
		Type:      domain.InstrumentStock,
		Currency:  "USD",
		From:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		Query:     "apple",
	}, f.positions.filter)
	assert.Equal(t, ledger.Page{Number: 2, Size: 10}, f.positions.page)

	w = f.do(t, http.MethodGet, "/api/v1/positions?from=2024-06-30&to=2024-01-01", "", asUser(f.user))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/positions?from=yesterday", "", asUser(f.user))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPositionCountsAndRecent(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/positions/counts", "", asUser(f.user))
	require.Equal(t, http.StatusOK, w.Code)
	counts := decodeBody[struct {
		Total  int            `json:"total"`
		ByType map[string]int `json:"byType"`
	}](t, w)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 2, counts.ByType["stock"])

	w = f.do(t, http.MethodGet, "/api/v1/positions/recent", "", asUser(f.user))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestPortfolioSummary(t *testing.T) {
	f := newFixture(t)
	f.portfolio.overview.Summary = portfolio.Summary{
		BaseCurrency:  "EUR",
		PositionCount: 2,
		TotalInvested: decimal.RequireFromString("1000"),
	}

	w := f.do(t, http.MethodGet, "/api/v1/portfolio/summary", "", asUser(f.user))

	require.Equal(t, http.StatusOK, w.Code)
	s := decodeBody[portfolio.Summary](t, w)
	assert.Equal(t, f.user, s.UserID)
	assert.Equal(t, 2, s.PositionCount)
	assert.True(t, s.TotalInvested.Equal(decimal.NewFromInt(1000)))

	f.portfolio.err = errors.New("db down")
	w = f.do(t, http.MethodGet, "/api/v1/portfolio/summary", "", asUser(f.user))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPortfolioAllocationSort(t *testing.T) {
	f := newFixture(t)
	f.portfolio.overview.ByType = []portfolio.TypeAllocation{
		{Type: domain.InstrumentCrypto, Figures: portfolio.Figures{CurrentValueBase: decimal.NewFromInt(10)}},
		{Type: domain.InstrumentStock, Figures: portfolio.Figures{CurrentValueBase: decimal.NewFromInt(90)}},
	}

	w := f.do(t, http.MethodGet, "/api/v1/portfolio/allocations/type", "", asUser(f.user))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.InstrumentCrypto, decodeBody[[]portfolio.TypeAllocation](t, w)[0].Type)

	w = f.do(t, http.MethodGet, "/api/v1/portfolio/allocations/type?sort=value", "", asUser(f.user))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.InstrumentStock, decodeBody[[]portfolio.TypeAllocation](t, w)[0].Type)

	w = f.do(t, http.MethodGet, "/api/v1/portfolio/allocations/currency", "", asUser(f.user))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestPortfolioPositionLists(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"positions", "profitable", "losing"} {
		w := f.do(t, http.MethodGet, "/api/v1/portfolio/"+path, "", asUser(f.user))
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "[]\n", w.Body.String(), path)
	}
}

func TestExportXLSX(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/portfolio/export.xlsx", "", asUser(f.user))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), `attachment; filename="portfolio-`))
	assert.True(t, strings.HasPrefix(w.Body.String(), "PK"), "xlsx is a zip container")

	f.exporter.err = errors.New("computing portfolio: boom")
	w = f.do(t, http.MethodGet, "/api/v1/portfolio/export.xlsx", "", asUser(f.user))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestSnapshots(t *testing.T) {
	f := newFixture(t)
	f.snapshots.stored["2024-06-01"] = snapshot.Snapshot{ID: 7, UserID: f.user, Data: json.RawMessage(`{}`)}

	w := f.do(t, http.MethodGet, "/api/v1/portfolio/snapshots/2024-06-01", "", asUser(f.user))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), decodeBody[snapshot.Snapshot](t, w).ID)

	w = f.do(t, http.MethodGet, "/api/v1/portfolio/snapshots/2024-06-02", "", asUser(f.user))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/portfolio/snapshots/june", "", asUser(f.user))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/portfolio/snapshots/latest", "", asUser(f.user))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no snapshots yet", decodeBody[map[string]string](t, w)["error"])

	w = f.do(t, http.MethodGet, "/api/v1/portfolio/snapshots", "", asUser(f.user))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestGenerateSnapshot(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/portfolio/snapshots?date=2024-05-31", "", asUser(f.user))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), f.snapshots.generated)
	assert.Equal(t, f.user, decodeBody[snapshot.Data](t, w).Summary.UserID)

	w = f.do(t, http.MethodPost, "/api/v1/portfolio/snapshots", "", asUser(f.user))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, domain.CivilDate(time.Now().UTC()), f.snapshots.generated)

	w = f.do(t, http.MethodPost, "/api/v1/portfolio/snapshots?date=2999-01-01", "", asUser(f.user))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
