// Package valuation derives cost, value and gain/loss figures for positions.
// All functions are pure; amounts are rounded to two places, halves away from zero.
package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/mtlprog/finances/internal/domain"
)

// Result holds every derived figure for one position.
type Result struct {
	TotalInvested      decimal.Decimal `json:"totalInvested"`
	CurrentValue       decimal.Decimal `json:"currentValue"`
	GainLoss           decimal.Decimal `json:"gainLoss"`
	PercentageGainLoss decimal.Decimal `json:"percentageGainLoss"`
	TotalInvestedBase  decimal.Decimal `json:"totalInvestedBase"`
	CurrentValueBase   decimal.Decimal `json:"currentValueBase"`
	GainLossBase       decimal.Decimal `json:"gainLossBase"`
	IsProfitable       bool            `json:"isProfitable"`
	PriceKnown         bool            `json:"priceKnown"`
}

// TotalInvested returns quantity × purchase price.
func TotalInvested(p domain.Position) decimal.Decimal {
	return domain.RoundMoney(p.Quantity.Mul(p.PurchasePrice))
}

// CurrentValue returns quantity × the product's current price.
// A product without a known price values the position at its cost.
func CurrentValue(p domain.Position) decimal.Decimal {
	price, ok := p.CurrentPrice()
	if !ok {
		return TotalInvested(p)
	}
	return domain.RoundMoney(p.Quantity.Mul(price))
}

// GainLoss returns current value minus total invested.
func GainLoss(p domain.Position) decimal.Decimal {
	return CurrentValue(p).Sub(TotalInvested(p))
}

// PercentageGainLoss returns gain/loss as a percentage of the amount invested, or zero
// when nothing was invested.
func PercentageGainLoss(p domain.Position) decimal.Decimal {
	return domain.Percentage(GainLoss(p), TotalInvested(p))
}

// IsProfitable reports whether the position is strictly in gain.
func IsProfitable(p domain.Position) bool {
	return GainLoss(p).IsPositive()
}

// ToBase converts a native-currency amount using the position's FX rate.
// The rate is native units per base unit; a non-positive rate is treated as 1.
func ToBase(amount decimal.Decimal, p domain.Position) decimal.Decimal {
	rate := p.FXRate
	if !rate.IsPositive() {
		return domain.RoundMoney(amount)
	}
	return domain.RoundMoney(amount.Div(rate))
}

// Evaluate computes all derived figures for p.
func Evaluate(p domain.Position) Result {
	invested := TotalInvested(p)
	current := CurrentValue(p)
	gain := current.Sub(invested)
	_, priceKnown := p.CurrentPrice()

	investedBase := ToBase(invested, p)
	currentBase := ToBase(current, p)

	return Result{
		TotalInvested:      invested,
		CurrentValue:       current,
		GainLoss:           gain,
		PercentageGainLoss: domain.Percentage(gain, invested),
		TotalInvestedBase:  investedBase,
		CurrentValueBase:   currentBase,
		GainLossBase:       currentBase.Sub(investedBase),
		IsProfitable:       gain.IsPositive(),
		PriceKnown:         priceKnown,
	}
}
