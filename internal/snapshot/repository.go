package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/finances/internal/domain"
)

// Snapshot represents a stored daily portfolio snapshot.
type Snapshot struct {
	ID           int64           `json:"id"`
	UserID       uuid.UUID       `json:"userId"`
	SnapshotDate time.Time       `json:"snapshotDate"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Repository defines persistent storage for snapshots.
type Repository interface {
	Save(ctx context.Context, userID uuid.UUID, date time.Time, data json.RawMessage) error
	GetLatest(ctx context.Context, userID uuid.UUID) (*Snapshot, error)
	GetByDate(ctx context.Context, userID uuid.UUID, date time.Time) (*Snapshot, error)
	List(ctx context.Context, userID uuid.UUID, limit int) ([]Snapshot, error)
}

const snapshotColumns = `id, user_id, snapshot_date, data, created_at`

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var s Snapshot
	if err := row.Scan(&s.ID, &s.UserID, &s.SnapshotDate, &s.Data, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save stores the snapshot for (userID, date), replacing an earlier one for the same day.
func (r *PgRepository) Save(ctx context.Context, userID uuid.UUID, date time.Time, data json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO portfolio_snapshots (user_id, snapshot_date, data)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (user_id, snapshot_date)
		 DO UPDATE SET data = $3::jsonb, created_at = NOW()`,
		userID, domain.CivilDate(date), data)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (r *PgRepository) GetLatest(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	s, err := scanSnapshot(r.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM portfolio_snapshots
		 WHERE user_id = $1
		 ORDER BY snapshot_date DESC
		 LIMIT 1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("latest snapshot: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}
	return s, nil
}

func (r *PgRepository) GetByDate(ctx context.Context, userID uuid.UUID, date time.Time) (*Snapshot, error) {
	day := domain.CivilDate(date)
	s, err := scanSnapshot(r.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM portfolio_snapshots
		 WHERE user_id = $1 AND snapshot_date = $2`, userID, day))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("snapshot %s: %w", day.Format(time.DateOnly), domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting snapshot by date: %w", err)
	}
	return s, nil
}

func (r *PgRepository) List(ctx context.Context, userID uuid.UUID, limit int) ([]Snapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM portfolio_snapshots
		 WHERE user_id = $1
		 ORDER BY snapshot_date DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}
