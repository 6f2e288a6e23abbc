// Package snapshot stores one portfolio summary per user and day so that history survives
// later price changes.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mtlprog/finances/internal/portfolio"
)

const defaultListLimit = 30

// PortfolioSource defines the portfolio computation used to build snapshots.
type PortfolioSource interface {
	Overview(ctx context.Context, userID uuid.UUID) (portfolio.Overview, error)
}

// Data is the stored payload of a snapshot. Individual positions are not kept.
type Data struct {
	Summary    portfolio.Summary              `json:"summary"`
	ByType     []portfolio.TypeAllocation     `json:"byType"`
	ByCurrency []portfolio.CurrencyAllocation `json:"byCurrency"`
}

// Decode parses the stored payload.
func (s Snapshot) Decode() (Data, error) {
	var d Data
	if err := json.Unmarshal(s.Data, &d); err != nil {
		return Data{}, fmt.Errorf("decoding snapshot %d: %w", s.ID, err)
	}
	return d, nil
}

// Service manages snapshot generation and retrieval.
type Service struct {
	portfolio PortfolioSource
	repo      Repository
}

// NewService creates a new snapshot Service.
func NewService(portfolio PortfolioSource, repo Repository) *Service {
	if portfolio == nil {
		panic("snapshot.NewService: portfolio must not be nil")
	}
	if repo == nil {
		panic("snapshot.NewService: repo must not be nil")
	}
	return &Service{portfolio: portfolio, repo: repo}
}

// Generate computes the user's portfolio and stores it as the snapshot for date.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, date time.Time) (Data, error) {
	overview, err := s.portfolio.Overview(ctx, userID)
	if err != nil {
		return Data{}, fmt.Errorf("computing portfolio: %w", err)
	}

	d := Data{Summary: overview.Summary, ByType: overview.ByType, ByCurrency: overview.ByCurrency}
	raw, err := json.Marshal(d)
	if err != nil {
		return Data{}, fmt.Errorf("marshaling snapshot data: %w", err)
	}

	if err := s.repo.Save(ctx, userID, date, raw); err != nil {
		return Data{}, fmt.Errorf("saving snapshot: %w", err)
	}
	return d, nil
}

// GetLatest retrieves the most recent snapshot of the user.
func (s *Service) GetLatest(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	return s.repo.GetLatest(ctx, userID)
}

// GetByDate retrieves the user's snapshot for a specific day.
func (s *Service) GetByDate(ctx context.Context, userID uuid.UUID, date time.Time) (*Snapshot, error) {
	return s.repo.GetByDate(ctx, userID, date)
}

// List retrieves recent snapshots, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	snapshots, err := s.repo.List(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if snapshots == nil {
		snapshots = []Snapshot{}
	}
	return snapshots, nil
}
