// Package portfolio aggregates a user's valued positions into summaries and allocations.
package portfolio

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/finances/internal/domain"
	"github.com/mtlprog/finances/internal/valuation"
)

// PositionSource defines the subset of the ledger used by Service.
type PositionSource interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Position, error)
}

// Service recomputes portfolio figures from the ledger on every call.
type Service struct {
	positions    PositionSource
	baseCurrency string
}

// NewService creates a new portfolio Service reporting base amounts in baseCurrency.
func NewService(positions PositionSource, baseCurrency string) *Service {
	if positions == nil {
		panic("portfolio.NewService: positions must not be nil")
	}
	return &Service{positions: positions, baseCurrency: domain.NormalizeCurrency(baseCurrency)}
}

// BaseCurrency returns the currency base amounts are expressed in.
func (s *Service) BaseCurrency() string {
	return s.baseCurrency
}

func (s *Service) load(ctx context.Context, userID uuid.UUID) ([]domain.Position, error) {
	positions, err := s.positions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading positions for %s: %w", userID, err)
	}
	return positions, nil
}

// Summarize returns the totals across all of the user's positions.
func (s *Service) Summarize(ctx context.Context, userID uuid.UUID) (Summary, error) {
	positions, err := s.load(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(userID, s.baseCurrency, Value(positions)), nil
}

// AllocationByType groups the user's positions by instrument type in discovery order.
func (s *Service) AllocationByType(ctx context.Context, userID uuid.UUID) ([]TypeAllocation, error) {
	positions, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ByType(Value(positions)), nil
}

// AllocationByCurrency groups the user's positions by position currency in discovery order.
func (s *Service) AllocationByCurrency(ctx context.Context, userID uuid.UUID) ([]CurrencyAllocation, error) {
	positions, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ByCurrency(Value(positions)), nil
}

// Positions returns every position of the user with its valuation.
func (s *Service) Positions(ctx context.Context, userID uuid.UUID) ([]PositionView, error) {
	positions, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Value(positions), nil
}

// Profitable returns the positions currently in gain.
func (s *Service) Profitable(ctx context.Context, userID uuid.UUID) ([]PositionView, error) {
	views, err := s.Positions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return lo.Filter(views, func(v PositionView, _ int) bool {
		return v.Valuation.IsProfitable
	}), nil
}

// Losing returns the positions currently at a loss.
func (s *Service) Losing(ctx context.Context, userID uuid.UUID) ([]PositionView, error) {
	views, err := s.Positions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return lo.Filter(views, func(v PositionView, _ int) bool {
		return v.Valuation.GainLoss.IsNegative()
	}), nil
}

// Overview computes the summary, both allocations and the valued positions from a single
// read of the ledger.
func (s *Service) Overview(ctx context.Context, userID uuid.UUID) (Overview, error) {
	positions, err := s.load(ctx, userID)
	if err != nil {
		return Overview{}, err
	}
	views := Value(positions)
	return Overview{
		Summary:    Summarize(userID, s.baseCurrency, views),
		ByType:     ByType(views),
		ByCurrency: ByCurrency(views),
		Positions:  views,
	}, nil
}

// Value evaluates every position. The result is never nil.
func Value(positions []domain.Position) []PositionView {
	return lo.Map(positions, func(p domain.Position, _ int) PositionView {
		return PositionView{Position: p, Valuation: valuation.Evaluate(p)}
	})
}

// Summarize aggregates already valued positions.
func Summarize(userID uuid.UUID, baseCurrency string, views []PositionView) Summary {
	t := totals(views)

	return Summary{
		UserID:                 userID,
		BaseCurrency:           baseCurrency,
		PositionCount:          len(views),
		TotalInvested:          t.invested,
		CurrentValue:           t.current,
		GainLoss:               t.current.Sub(t.invested),
		PercentageGainLoss:     domain.Percentage(t.current.Sub(t.invested), t.invested),
		TotalInvestedBase:      t.investedBase,
		CurrentValueBase:       t.currentBase,
		GainLossBase:           t.currentBase.Sub(t.investedBase),
		PercentageGainLossBase: domain.Percentage(t.currentBase.Sub(t.investedBase), t.investedBase),
		Types: lo.Uniq(lo.Map(views, func(v PositionView, _ int) domain.InstrumentType {
			return v.Position.InstrumentType()
		})),
		Currencies: lo.Uniq(lo.Map(views, func(v PositionView, _ int) string {
			return v.Position.EffectiveCurrency()
		})),
	}
}

// ByType groups valued positions by instrument type.
func ByType(views []PositionView) []TypeAllocation {
	return allocate(views, func(v PositionView) domain.InstrumentType {
		return v.Position.InstrumentType()
	}, func(t domain.InstrumentType, f Figures) TypeAllocation {
		return TypeAllocation{Type: t, Figures: f}
	})
}

// ByCurrency groups valued positions by position currency.
func ByCurrency(views []PositionView) []CurrencyAllocation {
	return allocate(views, func(v PositionView) string {
		return v.Position.EffectiveCurrency()
	}, func(c string, f Figures) CurrencyAllocation {
		return CurrencyAllocation{Currency: c, Figures: f}
	})
}

// allocate groups views by key, keeping the order in which keys first appear.
func allocate[K comparable, A any](views []PositionView, key func(PositionView) K, build func(K, Figures) A) []A {
	portfolioValue := totals(views).currentBase
	groups := lo.GroupBy(views, func(v PositionView) K { return key(v) })
	order := lo.Uniq(lo.Map(views, func(v PositionView, _ int) K { return key(v) }))

	return lo.Map(order, func(k K, _ int) A {
		group := groups[k]
		t := totals(group)
		return build(k, Figures{
			Count:             len(group),
			TotalInvested:     t.invested,
			TotalInvestedBase: t.investedBase,
			CurrentValueBase:  t.currentBase,
			Percentage:        domain.Percentage(t.currentBase, portfolioValue),
		})
	})
}

type sums struct {
	invested, current, investedBase, currentBase decimal.Decimal
}

func totals(views []PositionView) sums {
	return lo.Reduce(views, func(acc sums, v PositionView, _ int) sums {
		return sums{
			invested:     acc.invested.Add(v.Valuation.TotalInvested),
			current:      acc.current.Add(v.Valuation.CurrentValue),
			investedBase: acc.investedBase.Add(v.Valuation.TotalInvestedBase),
			currentBase:  acc.currentBase.Add(v.Valuation.CurrentValueBase),
		}
	}, sums{invested: decimal.Zero, current: decimal.Zero, investedBase: decimal.Zero, currentBase: decimal.Zero})
}
