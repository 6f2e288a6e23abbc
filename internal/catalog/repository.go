package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/finances/internal/database"
	"github.com/mtlprog/finances/internal/domain"
)

// ErrInUse indicates a product that positions still reference.
var ErrInUse = errors.New("product is referenced by positions")

// Repository defines persistent storage for catalog products.
type Repository interface {
	Upsert(ctx context.Context, in UpsertInput) (domain.Product, error)
	Insert(ctx context.Context, in UpsertInput) (domain.Product, error)
	UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal, at time.Time) error
	UpdatePrices(ctx context.Context, prices map[uuid.UUID]decimal.Decimal, at time.Time) error
	RecordMarketData(ctx context.Context, id uuid.UUID, md MarketData) error
	SetStatus(ctx context.Context, id uuid.UUID, status domain.ProductStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	HasPositions(ctx context.Context, id uuid.UUID) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.Product, error)
	FindBySymbolAndCurrency(ctx context.Context, symbol, currency string) (domain.Product, error)
	FindBySymbol(ctx context.Context, symbol string) ([]domain.Product, error)
	List(ctx context.Context, f ProductFilter) ([]domain.Product, error)
	Distinct(ctx context.Context, d Dimension) ([]string, error)
	CountActive(ctx context.Context) (int, error)
	ListStale(ctx context.Context, before time.Time) ([]domain.Product, error)
}

// Columns returns the product select list, optionally qualified with a table alias.
// The order matches ScanTargets.
func Columns(alias string) string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	cols := []string{
		p + "id", p + "symbol", p + "name", p + "description", p + "type", p + "currency",
		p + "current_price",
		"COALESCE(" + p + "exchange, '')", "COALESCE(" + p + "sector, '')", "COALESCE(" + p + "region, '')",
		p + "status", p + "last_updated", p + "market_cap", p + "pe_ratio", p + "dividend_yield",
		p + "beta", p + "fifty_two_week_low", p + "fifty_two_week_high", p + "avg_volume",
		p + "created_at", p + "updated_at",
	}
	return strings.Join(cols, ", ")
}

// ScanTargets returns scan destinations for Columns.
func ScanTargets(p *domain.Product) []any {
	return []any{
		&p.ID, &p.Symbol, &p.Name, &p.Description, &p.Type, &p.Currency,
		&p.CurrentPrice,
		&p.Exchange, &p.Sector, &p.Region,
		&p.Status, &p.LastUpdated, &p.MarketCap, &p.PERatio, &p.DividendYield,
		&p.Beta, &p.FiftyTwoWeekLow, &p.FiftyTwoWeekHigh, &p.AvgVolume,
		&p.CreatedAt, &p.UpdatedAt,
	}
}

var dimensionColumns = map[Dimension]string{
	DimensionType:     "type",
	DimensionCurrency: "currency",
	DimensionExchange: "exchange",
	DimensionSector:   "sector",
	DimensionRegion:   "region",
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL catalog repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Upsert(ctx context.Context, in UpsertInput) (domain.Product, error) {
	var p domain.Product
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (symbol, currency, name, type, description, exchange, sector, region)
		 VALUES ($1, $2, $3, $4, COALESCE($5, ''), $6, $7, $8)
		 ON CONFLICT (symbol, currency) DO UPDATE SET
		     name = EXCLUDED.name,
		     type = EXCLUDED.type,
		     description = COALESCE($5, products.description),
		     exchange = COALESCE($6, products.exchange),
		     sector = COALESCE($7, products.sector),
		     region = COALESCE($8, products.region),
		     status = 'active',
		     updated_at = NOW()
		 RETURNING `+Columns(""),
		in.Symbol, in.Currency, in.Name, in.Type, in.Description, in.Exchange, in.Sector, in.Region,
	).Scan(ScanTargets(&p)...)
	if err != nil {
		return domain.Product{}, fmt.Errorf("upserting product %s/%s: %w", in.Symbol, in.Currency, err)
	}
	return p, nil
}

func (r *PgRepository) Insert(ctx context.Context, in UpsertInput) (domain.Product, error) {
	var p domain.Product
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (symbol, currency, name, type, description, exchange, sector, region)
		 VALUES ($1, $2, $3, $4, COALESCE($5, ''), $6, $7, $8)
		 RETURNING `+Columns(""),
		in.Symbol, in.Currency, in.Name, in.Type, in.Description, in.Exchange, in.Sector, in.Region,
	).Scan(ScanTargets(&p)...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.Product{}, fmt.Errorf("product %s/%s: %w", in.Symbol, in.Currency, domain.ErrProductAlreadyExists)
		}
		return domain.Product{}, fmt.Errorf("inserting product %s/%s: %w", in.Symbol, in.Currency, err)
	}
	return p, nil
}

func (r *PgRepository) UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET current_price = $2, last_updated = $3, updated_at = NOW() WHERE id = $1`,
		id, price, at)
	if err != nil {
		return fmt.Errorf("updating price of product %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *PgRepository) UpdatePrices(ctx context.Context, prices map[uuid.UUID]decimal.Decimal, at time.Time) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for id, price := range prices {
			tag, err := tx.Exec(ctx,
				`UPDATE products SET current_price = $2, last_updated = $3, updated_at = NOW() WHERE id = $1`,
				id, price, at)
			if err != nil {
				return fmt.Errorf("updating price of product %s: %w", id, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
			}
		}
		return nil
	})
}

func (r *PgRepository) RecordMarketData(ctx context.Context, id uuid.UUID, md MarketData) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET
		     current_price = $2,
		     market_cap = COALESCE($3, market_cap),
		     pe_ratio = COALESCE($4, pe_ratio),
		     dividend_yield = COALESCE($5, dividend_yield),
		     beta = COALESCE($6, beta),
		     fifty_two_week_low = COALESCE($7, fifty_two_week_low),
		     fifty_two_week_high = COALESCE($8, fifty_two_week_high),
		     avg_volume = COALESCE($9, avg_volume),
		     last_updated = $10,
		     updated_at = NOW()
		 WHERE id = $1`,
		id, md.Price, md.MarketCap, md.PERatio, md.DividendYield, md.Beta,
		md.FiftyTwoWeekLow, md.FiftyTwoWeekHigh, md.AvgVolume, md.UpdatedAt)
	if err != nil {
		return fmt.Errorf("recording market data for product %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *PgRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.ProductStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("setting status of product %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("product %s: %w", id, ErrInUse)
		}
		return fmt.Errorf("deleting product %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *PgRepository) HasPositions(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM positions WHERE product_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking positions of product %s: %w", id, err)
	}
	return exists, nil
}

func (r *PgRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	var p domain.Product
	err := r.pool.QueryRow(ctx,
		`SELECT `+Columns("")+` FROM products WHERE id = $1`, id).Scan(ScanTargets(&p)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
		}
		return domain.Product{}, fmt.Errorf("getting product %s: %w", id, err)
	}
	return p, nil
}

func (r *PgRepository) FindBySymbolAndCurrency(ctx context.Context, symbol, currency string) (domain.Product, error) {
	var p domain.Product
	err := r.pool.QueryRow(ctx,
		`SELECT `+Columns("")+` FROM products WHERE symbol = $1 AND currency = $2`,
		symbol, currency).Scan(ScanTargets(&p)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, fmt.Errorf("product %s/%s: %w", symbol, currency, domain.ErrNotFound)
		}
		return domain.Product{}, fmt.Errorf("getting product %s/%s: %w", symbol, currency, err)
	}
	return p, nil
}

func (r *PgRepository) FindBySymbol(ctx context.Context, symbol string) ([]domain.Product, error) {
	return r.query(ctx, "finding products by symbol",
		`SELECT `+Columns("")+` FROM products WHERE symbol = $1 ORDER BY currency`, symbol)
}

func (r *PgRepository) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if !f.IncludeInactive {
		where = append(where, "status = 'active'")
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.Currency != "" {
		add("currency = $%d", domain.NormalizeCurrency(f.Currency))
	}
	if f.Exchange != "" {
		add("exchange = $%d", f.Exchange)
	}
	if f.Sector != "" {
		add("sector = $%d", f.Sector)
	}
	if f.Region != "" {
		add("region = $%d", f.Region)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add("(name ILIKE $%[1]d OR symbol ILIKE $%[1]d OR description ILIKE $%[1]d)", database.ContainsPattern(q))
	}

	sql := `SELECT ` + Columns("") + ` FROM products`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY symbol, currency`

	return r.query(ctx, "listing products", sql, args...)
}

func (r *PgRepository) Distinct(ctx context.Context, d Dimension) ([]string, error) {
	col, ok := dimensionColumns[d]
	if !ok {
		return nil, fmt.Errorf("unknown catalog dimension %q", d)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT `+col+` FROM products
		 WHERE status = 'active' AND `+col+` IS NOT NULL AND `+col+` <> ''
		 ORDER BY `+col)
	if err != nil {
		return nil, fmt.Errorf("listing distinct %s: %w", d, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning distinct %s: %w", d, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating distinct %s: %w", d, err)
	}
	return values, nil
}

func (r *PgRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE status = 'active'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting active products: %w", err)
	}
	return n, nil
}

func (r *PgRepository) ListStale(ctx context.Context, before time.Time) ([]domain.Product, error) {
	return r.query(ctx, "listing stale products",
		`SELECT `+Columns("")+` FROM products
		 WHERE status = 'active' AND (last_updated IS NULL OR last_updated < $1)
		 ORDER BY symbol, currency`, before)
}

func (r *PgRepository) query(ctx context.Context, op, sql string, args ...any) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(ScanTargets(&p)...); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return products, nil
}
