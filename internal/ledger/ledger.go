// Package ledger records users' positions and answers owner-scoped queries over them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/finances/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPageNumber   = 1_000_000
)

// ProductLookup resolves the product a position refers to.
type ProductLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (domain.Product, error)
}

// PageResult is one page of a listing.
type PageResult struct {
	Items      []domain.Position `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	Size       int               `json:"size"`
	TotalPages int               `json:"totalPages"`
}

// Service manages positions.
type Service struct {
	repo     Repository
	products ProductLookup
	rules    Rules
	now      func() time.Time
}

// NewService creates a ledger service.
func NewService(repo Repository, products ProductLookup, rules Rules) *Service {
	if repo == nil {
		panic("ledger.NewService: repo must not be nil")
	}
	if products == nil {
		panic("ledger.NewService: products must not be nil")
	}
	if rules.EarliestPurchase.IsZero() {
		rules.EarliestPurchase = DefaultRules().EarliestPurchase
	}
	return &Service{repo: repo, products: products, rules: rules, now: time.Now}
}

// Create validates and records a new position for userID.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in PositionInput) (domain.Position, error) {
	product, err := s.lookupProduct(ctx, in.ProductID)
	if err != nil {
		return domain.Position{}, err
	}

	ve := s.rules.Validate(in, product, s.now())
	if product != nil && !product.IsActive() {
		ve.Add("product", "is no longer offered")
	}
	if err := ve.Err(); err != nil {
		return domain.Position{}, err
	}

	pos := build(in, *product)
	pos.ID = uuid.New()
	pos.UserID = userID

	saved, err := s.repo.Insert(ctx, pos)
	if err != nil {
		return domain.Position{}, fmt.Errorf("creating position: %w", err)
	}
	return saved, nil
}

// Update replaces the mutable fields of a position owned by userID.
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, in PositionInput) (domain.Position, error) {
	existing, err := s.repo.FindByIDAndUser(ctx, id, userID)
	if err != nil {
		return domain.Position{}, err
	}

	product, err := s.lookupProduct(ctx, in.ProductID)
	if err != nil {
		return domain.Position{}, err
	}

	ve := s.rules.Validate(in, product, s.now())
	if product != nil && !product.IsActive() && product.ID != existing.ProductID {
		ve.Add("product", "is no longer offered")
	}
	if err := ve.Err(); err != nil {
		return domain.Position{}, err
	}

	pos := build(in, *product)
	pos.ID = existing.ID
	pos.UserID = existing.UserID

	saved, err := s.repo.Update(ctx, pos)
	if err != nil {
		return domain.Position{}, fmt.Errorf("updating position: %w", err)
	}
	return saved, nil
}

// Delete removes a position owned by userID.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.Delete(ctx, userID, id)
}

// FindByIDAndUser returns the position only when userID owns it. A foreign position is
// reported exactly like a missing one.
func (s *Service) FindByIDAndUser(ctx context.Context, id, userID uuid.UUID) (domain.Position, error) {
	return s.repo.FindByIDAndUser(ctx, id, userID)
}

// ListByUser returns all positions of userID, newest purchase first.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Position, error) {
	return s.repo.List(ctx, userID, Filter{})
}

func (s *Service) ListByProduct(ctx context.Context, userID, productID uuid.UUID) ([]domain.Position, error) {
	return s.repo.List(ctx, userID, Filter{ProductID: productID})
}

func (s *Service) ListByType(ctx context.Context, userID uuid.UUID, t domain.InstrumentType) ([]domain.Position, error) {
	return s.repo.List(ctx, userID, Filter{Type: t})
}

func (s *Service) ListByCurrency(ctx context.Context, userID uuid.UUID, currency string) ([]domain.Position, error) {
	return s.repo.List(ctx, userID, Filter{Currency: currency})
}

// ListByDateRange returns positions purchased between from and to inclusive.
func (s *Service) ListByDateRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.Position, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		ve := domain.NewValidationError()
		ve.Add("to", "must not be before from")
		return nil, ve
	}
	return s.repo.List(ctx, userID, Filter{From: from, To: to})
}

// Search matches term against product name, symbol and notes. A blank term lists everything.
func (s *Service) Search(ctx context.Context, userID uuid.UUID, term string) ([]domain.Position, error) {
	return s.repo.List(ctx, userID, Filter{Query: strings.TrimSpace(term)})
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, f Filter) ([]domain.Position, error) {
	return s.repo.List(ctx, userID, f)
}

// ListPage returns one page of filtered positions with the total match count.
func (s *Service) ListPage(ctx context.Context, userID uuid.UUID, f Filter, page Page) (PageResult, error) {
	page.Number = min(max(page.Number, 0), maxPageNumber)
	if page.Size <= 0 {
		page.Size = defaultPageSize
	}
	if page.Size > maxPageSize {
		page.Size = maxPageSize
	}

	items, total, err := s.repo.Page(ctx, userID, f, page)
	if err != nil {
		return PageResult{}, err
	}
	if items == nil {
		items = []domain.Position{}
	}
	return PageResult{
		Items:      items,
		Total:      total,
		Page:       page.Number,
		Size:       page.Size,
		TotalPages: (total + page.Size - 1) / page.Size,
	}, nil
}

// Recent returns the most recently recorded positions.
func (s *Service) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Position, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.repo.Recent(ctx, userID, limit)
}

func (s *Service) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.Count(ctx, userID)
}

func (s *Service) CountByType(ctx context.Context, userID uuid.UUID) (map[domain.InstrumentType]int, error) {
	return s.repo.CountByType(ctx, userID)
}

func (s *Service) HasPositionInProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	return s.repo.HasPositionInProduct(ctx, userID, productID)
}

// ListUserIDs returns every user holding at least one position.
func (s *Service) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.ListUserIDs(ctx)
}

// lookupProduct returns nil without error when id is unset or unknown; validation reports it.
func (s *Service) lookupProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up product: %w", err)
	}
	return &p, nil
}

func build(in PositionInput, product domain.Product) domain.Position {
	currency := domain.NormalizeCurrency(in.Currency)
	if currency == "" {
		currency = product.Currency
	}
	fx := decimal.NewFromInt(1)
	if in.FXRate != nil {
		fx = *in.FXRate
	}
	return domain.Position{
		ProductID:     product.ID,
		Product:       &product,
		Quantity:      in.Quantity,
		PurchasePrice: in.PurchasePrice,
		PurchaseDate:  domain.CivilDate(in.PurchaseDate),
		Currency:      currency,
		FXRate:        fx,
		Notes:         strings.TrimSpace(in.Notes),
	}
}
