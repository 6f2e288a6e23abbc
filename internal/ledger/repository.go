package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/finances/internal/catalog"
	"github.com/mtlprog/finances/internal/database"
	"github.com/mtlprog/finances/internal/domain"
)

// Filter narrows a user's positions. Zero fields match everything.
type Filter struct {
	ProductID uuid.UUID
	Type      domain.InstrumentType
	Currency  string
	From      time.Time
	To        time.Time
	Query     string
}

// Page selects a slice of a listing. Number is zero-based.
type Page struct {
	Number int
	Size   int
}

// Repository defines persistent storage for positions. Every read and write is scoped to
// the owning user.
type Repository interface {
	Insert(ctx context.Context, p domain.Position) (domain.Position, error)
	Update(ctx context.Context, p domain.Position) (domain.Position, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	FindByIDAndUser(ctx context.Context, id, userID uuid.UUID) (domain.Position, error)
	List(ctx context.Context, userID uuid.UUID, f Filter) ([]domain.Position, error)
	Page(ctx context.Context, userID uuid.UUID, f Filter, page Page) ([]domain.Position, int, error)
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Position, error)
	Count(ctx context.Context, userID uuid.UUID) (int, error)
	CountByType(ctx context.Context, userID uuid.UUID) (map[domain.InstrumentType]int, error)
	HasPositionInProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error)
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

const positionColumns = `pos.id, pos.user_id, pos.product_id, pos.quantity, pos.purchase_price,
	pos.purchase_date, pos.currency, pos.fx_rate, pos.notes, pos.created_at, pos.updated_at`

var selectPositions = `SELECT ` + positionColumns + `, ` + catalog.Columns("p")

func scanTargets(pos *domain.Position, prod *domain.Product) []any {
	targets := []any{
		&pos.ID, &pos.UserID, &pos.ProductID, &pos.Quantity, &pos.PurchasePrice,
		&pos.PurchaseDate, &pos.Currency, &pos.FXRate, &pos.Notes, &pos.CreatedAt, &pos.UpdatedAt,
	}
	return append(targets, catalog.ScanTargets(prod)...)
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		pos  domain.Position
		prod domain.Product
	)
	if err := row.Scan(scanTargets(&pos, &prod)...); err != nil {
		return domain.Position{}, err
	}
	pos.Product = &prod
	return pos, nil
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL position repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Insert(ctx context.Context, p domain.Position) (domain.Position, error) {
	row := r.pool.QueryRow(ctx,
		`WITH pos AS (
		     INSERT INTO positions (id, user_id, product_id, quantity, purchase_price, purchase_date, currency, fx_rate, notes)
		     VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		     RETURNING *
		 )
		 `+selectPositions+` FROM pos JOIN products p ON p.id = pos.product_id`,
		p.ID, p.UserID, p.ProductID, p.Quantity, p.PurchasePrice, p.PurchaseDate, p.Currency, p.FXRate, p.Notes)
	saved, err := scanPosition(row)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return domain.Position{}, fmt.Errorf("product %s: %w", p.ProductID, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("inserting position: %w", err)
	}
	return saved, nil
}

func (r *PgRepository) Update(ctx context.Context, p domain.Position) (domain.Position, error) {
	row := r.pool.QueryRow(ctx,
		`WITH pos AS (
		     UPDATE positions SET
		         product_id = $3, quantity = $4, purchase_price = $5, purchase_date = $6,
		         currency = $7, fx_rate = $8, notes = $9, updated_at = NOW()
		     WHERE id = $1 AND user_id = $2
		     RETURNING *
		 )
		 `+selectPositions+` FROM pos JOIN products p ON p.id = pos.product_id`,
		p.ID, p.UserID, p.ProductID, p.Quantity, p.PurchasePrice, p.PurchaseDate, p.Currency, p.FXRate, p.Notes)
	saved, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("position %s: %w", p.ID, domain.ErrNotFound)
		}
		if database.IsForeignKeyViolation(err) {
			return domain.Position{}, fmt.Errorf("product %s: %w", p.ProductID, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("updating position %s: %w", p.ID, err)
	}
	return saved, nil
}

func (r *PgRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *PgRepository) FindByIDAndUser(ctx context.Context, id, userID uuid.UUID) (domain.Position, error) {
	row := r.pool.QueryRow(ctx,
		selectPositions+` FROM positions pos JOIN products p ON p.id = pos.product_id
		 WHERE pos.id = $1 AND pos.user_id = $2`, id, userID)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("position %s: %w", id, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("getting position %s: %w", id, err)
	}
	return pos, nil
}

// where builds the owner-scoped WHERE clause for f.
func where(userID uuid.UUID, f Filter) (string, []any) {
	conds := []string{"pos.user_id = $1"}
	args := []any{userID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ProductID != uuid.Nil {
		add("pos.product_id = $%d", f.ProductID)
	}
	if f.Type != "" {
		add("p.type = $%d", f.Type)
	}
	if f.Currency != "" {
		add("pos.currency = $%d", domain.NormalizeCurrency(f.Currency))
	}
	if !f.From.IsZero() {
		add("pos.purchase_date >= $%d", domain.CivilDate(f.From))
	}
	if !f.To.IsZero() {
		add("pos.purchase_date <= $%d", domain.CivilDate(f.To))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add("(p.name ILIKE $%[1]d OR p.symbol ILIKE $%[1]d OR pos.notes ILIKE $%[1]d)", database.ContainsPattern(q))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const fromPositions = ` FROM positions pos JOIN products p ON p.id = pos.product_id`

const newestFirst = ` ORDER BY pos.purchase_date DESC, pos.created_at DESC, pos.id`

func (r *PgRepository) List(ctx context.Context, userID uuid.UUID, f Filter) ([]domain.Position, error) {
	cond, args := where(userID, f)
	return r.query(ctx, "listing positions", selectPositions+fromPositions+cond+newestFirst, args...)
}

func (r *PgRepository) Page(ctx context.Context, userID uuid.UUID, f Filter, page Page) ([]domain.Position, int, error) {
	cond, args := where(userID, f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+fromPositions+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting positions: %w", err)
	}

	n := len(args)
	sql := selectPositions + fromPositions + cond + newestFirst +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, page.Size, page.Number*page.Size)

	items, err := r.query(ctx, "paging positions", sql, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PgRepository) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Position, error) {
	return r.query(ctx, "listing recent positions",
		selectPositions+fromPositions+` WHERE pos.user_id = $1 ORDER BY pos.created_at DESC, pos.id LIMIT $2`,
		userID, limit)
}

func (r *PgRepository) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM positions WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting positions: %w", err)
	}
	return n, nil
}

func (r *PgRepository) CountByType(ctx context.Context, userID uuid.UUID) (map[domain.InstrumentType]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.type, COUNT(*)`+fromPositions+` WHERE pos.user_id = $1 GROUP BY p.type`, userID)
	if err != nil {
		return nil, fmt.Errorf("counting positions by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.InstrumentType]int)
	for rows.Next() {
		var (
			t domain.InstrumentType
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scanning type count: %w", err)
		}
		counts[t] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating type counts: %w", err)
	}
	return counts, nil
}

func (r *PgRepository) HasPositionInProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM positions WHERE user_id = $1 AND product_id = $2)`,
		userID, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking position in product %s: %w", productID, err)
	}
	return exists, nil
}

func (r *PgRepository) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT user_id FROM positions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing position owners: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user ids: %w", err)
	}
	return ids, nil
}

func (r *PgRepository) query(ctx context.Context, op, sql string, args ...any) ([]domain.Position, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return positions, nil
}
