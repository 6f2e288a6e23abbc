package portfolio

import (
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/finances/internal/domain"
	"github.com/mtlprog/finances/internal/valuation"
)

// Summary holds the totals of one user's positions. Native totals add amounts across
// currencies as-is; the base figures are comparable.
type Summary struct {
	UserID                 uuid.UUID               `json:"userId"`
	BaseCurrency           string                  `json:"baseCurrency"`
	PositionCount          int                     `json:"positionCount"`
	TotalInvested          decimal.Decimal         `json:"totalInvested"`
	CurrentValue           decimal.Decimal         `json:"currentValue"`
	GainLoss               decimal.Decimal         `json:"gainLoss"`
	PercentageGainLoss     decimal.Decimal         `json:"percentageGainLoss"`
	TotalInvestedBase      decimal.Decimal         `json:"totalInvestedBase"`
	CurrentValueBase       decimal.Decimal         `json:"currentValueBase"`
	GainLossBase           decimal.Decimal         `json:"gainLossBase"`
	PercentageGainLossBase decimal.Decimal         `json:"percentageGainLossBase"`
	Types                  []domain.InstrumentType `json:"types"`
	Currencies             []string                `json:"currencies"`
}

// Figures are the aggregate numbers of one allocation bucket.
// Percentage is the bucket's share of the portfolio's base current value.
type Figures struct {
	Count             int             `json:"count"`
	TotalInvested     decimal.Decimal `json:"totalInvested"`
	TotalInvestedBase decimal.Decimal `json:"totalInvestedBase"`
	CurrentValueBase  decimal.Decimal `json:"currentValueBase"`
	Percentage        decimal.Decimal `json:"percentage"`
}

// Value returns the bucket's current value in base currency.
func (f Figures) Value() decimal.Decimal {
	return f.CurrentValueBase
}

type TypeAllocation struct {
	Type domain.InstrumentType `json:"type"`
	Figures
}

type CurrencyAllocation struct {
	Currency string `json:"currency"`
	Figures
}

// PositionView pairs a position with its valuation.
type PositionView struct {
	Position  domain.Position  `json:"position"`
	Valuation valuation.Result `json:"valuation"`
}

// Overview is everything known about a portfolio at one point in time.
type Overview struct {
	Summary    Summary              `json:"summary"`
	ByType     []TypeAllocation     `json:"byType"`
	ByCurrency []CurrencyAllocation `json:"byCurrency"`
	Positions  []PositionView       `json:"positions"`
}

// SortAllocationsByValue orders allocations by base current value, largest first.
// Equal values keep their discovery order.
func SortAllocationsByValue[A interface{ Value() decimal.Decimal }](allocations []A) {
	slices.SortStableFunc(allocations, func(a, b A) int {
		return b.Value().Cmp(a.Value())
	})
}
