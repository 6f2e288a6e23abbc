package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/finances/internal/catalog"
	"github.com/mtlprog/finances/internal/domain"
	"github.com/mtlprog/finances/internal/export"
	"github.com/mtlprog/finances/internal/ledger"
	"github.com/mtlprog/finances/internal/portfolio"
	"github.com/mtlprog/finances/internal/snapshot"
)

// UserHeader carries the caller's user id, set by the upstream auth proxy.
const UserHeader = "X-User-ID"

type ProductService interface {
	Filter(ctx context.Context, f catalog.ProductFilter) ([]domain.Product, error)
	Summary(ctx context.Context) (catalog.Summary, error)
	DistinctValues(ctx context.Context, d catalog.Dimension) ([]string, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.Product, error)
	Create(ctx context.Context, in catalog.UpsertInput) (domain.Product, error)
	UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error
	Retire(ctx context.Context, id uuid.UUID) (bool, error)
}

type QuoteService interface {
	Resolve(ctx context.Context, symbols []string, region string) []domain.Product
	RefreshInBackground(threshold time.Duration) bool
}

type PositionService interface {
	Create(ctx context.Context, userID uuid.UUID, in ledger.PositionInput) (domain.Position, error)
	Update(ctx context.Context, userID, id uuid.UUID, in ledger.PositionInput) (domain.Position, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	FindByIDAndUser(ctx context.Context, id, userID uuid.UUID) (domain.Position, error)
	ListPage(ctx context.Context, userID uuid.UUID, f ledger.Filter, page ledger.Page) (ledger.PageResult, error)
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Position, error)
	CountByType(ctx context.Context, userID uuid.UUID) (map[domain.InstrumentType]int, error)
}

type PortfolioService interface {
	Summarize(ctx context.Context, userID uuid.UUID) (portfolio.Summary, error)
	AllocationByType(ctx context.Context, userID uuid.UUID) ([]portfolio.TypeAllocation, error)
	AllocationByCurrency(ctx context.Context, userID uuid.UUID) ([]portfolio.CurrencyAllocation, error)
	Positions(ctx context.Context, userID uuid.UUID) ([]portfolio.PositionView, error)
	Profitable(ctx context.Context, userID uuid.UUID) ([]portfolio.PositionView, error)
	Losing(ctx context.Context, userID uuid.UUID) ([]portfolio.PositionView, error)
}

type SnapshotService interface {
	Generate(ctx context.Context, userID uuid.UUID, date time.Time) (snapshot.Data, error)
	GetLatest(ctx context.Context, userID uuid.UUID) (*snapshot.Snapshot, error)
	GetByDate(ctx context.Context, userID uuid.UUID, date time.Time) (*snapshot.Snapshot, error)
	List(ctx context.Context, userID uuid.UUID, limit int) ([]snapshot.Snapshot, error)
}

type Exporter interface {
	Export(ctx context.Context, userID uuid.UUID, w export.Writer) error
}

// Services bundles the engine components exposed over HTTP.
type Services struct {
	Products  ProductService
	Quotes    QuoteService
	Positions PositionService
	Portfolio PortfolioService
	Snapshots SnapshotService
	Exporter  Exporter
}

// Options configures the router.
type Options struct {
	AdminAPIKey    string
	CORSOrigins    []string
	StaleThreshold time.Duration
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(port string, s Services, opts Options) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(s, opts),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewRouter wires every route of the API.
func NewRouter(s Services, opts Options) http.Handler {
	h := NewHandler(s, opts.StaleThreshold)
	admin := func(next http.HandlerFunc) http.Handler {
		if opts.AdminAPIKey == "" {
			return next
		}
		return requireAuth(opts.AdminAPIKey, next)
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", UserHeader},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/facets", h.ProductFacets)
			r.Get("/facets/{dimension}", h.ProductFacet)
			r.Get("/{id}", h.GetProduct)
			r.With(requireUser).Post("/", h.CreateProduct)
			r.Method(http.MethodPut, "/{id}/price", admin(h.UpdateProductPrice))
			r.Method(http.MethodDelete, "/{id}", admin(h.RetireProduct))
		})

		r.Route("/quotes", func(r chi.Router) {
			r.With(requireUser).Post("/resolve", h.ResolveQuotes)
			r.Method(http.MethodPost, "/refresh", admin(h.RefreshQuotes))
		})

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Route("/positions", func(r chi.Router) {
				r.Get("/", h.ListPositions)
				r.Post("/", h.CreatePosition)
				r.Get("/recent", h.RecentPositions)
				r.Get("/counts", h.CountPositions)
				r.Get("/{id}", h.GetPosition)
				r.Put("/{id}", h.UpdatePosition)
				r.Delete("/{id}", h.DeletePosition)
			})

			r.Route("/portfolio", func(r chi.Router) {
				r.Get("/summary", h.GetSummary)
				r.Get("/allocations/type", h.GetTypeAllocation)
				r.Get("/allocations/currency", h.GetCurrencyAllocation)
				r.Get("/positions", h.GetValuedPositions)
				r.Get("/profitable", h.GetProfitable)
				r.Get("/losing", h.GetLosing)
				r.Get("/export.xlsx", h.ExportXLSX)
				r.Get("/snapshots", h.ListSnapshots)
				r.Post("/snapshots", h.GenerateSnapshot)
				r.Get("/snapshots/latest", h.GetLatestSnapshot)
				r.Get("/snapshots/{date}", h.GetSnapshotByDate)
			})
		})
	})

	return r
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type userKey struct{}

// requireUser resolves the caller from UserHeader and rejects requests without a valid id.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(UserHeader)))
		if err != nil || id == uuid.Nil {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+UserHeader)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, id)))
	})
}

func userFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userKey{}).(uuid.UUID)
	return id
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
