package ledger

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/finances/internal/domain"
)

const (
	quantityPlaces = 6
	pricePlaces    = 4
	fxRatePlaces   = 6
	maxNotesLen    = 500
)

// Rules holds the configurable business limits applied to positions.
type Rules struct {
	// MinStockQuantity rejects smaller stock quantities. Zero disables the check.
	MinStockQuantity decimal.Decimal
	// MaxPositionValue rejects positions whose cost exceeds it. Zero disables the check.
	MaxPositionValue decimal.Decimal
	// EarliestPurchase is the oldest accepted purchase date.
	EarliestPurchase time.Time
}

// DefaultRules returns the standard limits.
func DefaultRules() Rules {
	return Rules{
		MinStockQuantity: decimal.RequireFromString("0.001"),
		MaxPositionValue: decimal.NewFromInt(1_000_000),
		EarliestPurchase: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// PositionInput carries the caller-supplied fields of a position.
type PositionInput struct {
	ProductID     uuid.UUID
	Quantity      decimal.Decimal
	PurchasePrice decimal.Decimal
	PurchaseDate  time.Time
	// Currency defaults to the product currency when empty.
	Currency string
	// FXRate is native units per base unit; nil means 1.
	FXRate *decimal.Decimal
	Notes  string
}

// Validate checks in against the rules and collects every violation.
// product is nil when the referenced product does not exist.
func (r Rules) Validate(in PositionInput, product *domain.Product, today time.Time) *domain.ValidationError {
	ve := domain.NewValidationError()

	switch {
	case in.ProductID == uuid.Nil:
		ve.Add("product", "is required")
	case product == nil:
		ve.Add("product", "does not exist")
	}

	switch {
	case !in.Quantity.IsPositive():
		ve.Add("quantity", "must be greater than zero")
	case domain.ExceedsPlaces(in.Quantity, quantityPlaces):
		ve.Add("quantity", fmt.Sprintf("must have at most %d decimal places", quantityPlaces))
	case product != nil && product.Type == domain.InstrumentStock &&
		r.MinStockQuantity.IsPositive() && in.Quantity.LessThan(r.MinStockQuantity):
		ve.Add("quantity", fmt.Sprintf("must be at least %s for a stock", r.MinStockQuantity))
	}

	switch {
	case !in.PurchasePrice.IsPositive():
		ve.Add("purchasePrice", "must be greater than zero")
	case domain.ExceedsPlaces(in.PurchasePrice, pricePlaces):
		ve.Add("purchasePrice", fmt.Sprintf("must have at most %d decimal places", pricePlaces))
	}

	date := domain.CivilDate(in.PurchaseDate)
	switch {
	case in.PurchaseDate.IsZero():
		ve.Add("purchaseDate", "is required")
	case date.After(domain.CivilDate(today)):
		ve.Add("purchaseDate", "must not be in the future")
	case date.Before(r.EarliestPurchase):
		ve.Add("purchaseDate", "must not be before "+r.EarliestPurchase.Format(time.DateOnly))
	}

	if in.FXRate != nil {
		switch {
		case !in.FXRate.IsPositive():
			ve.Add("fxRate", "must be greater than zero")
		case domain.ExceedsPlaces(*in.FXRate, fxRatePlaces):
			ve.Add("fxRate", fmt.Sprintf("must have at most %d decimal places", fxRatePlaces))
		}
	}

	if in.Currency != "" && !domain.IsValidCurrency(in.Currency) {
		ve.Add("currency", "unknown currency code")
	}

	if utf8.RuneCountInString(in.Notes) > maxNotesLen {
		ve.Add("notes", fmt.Sprintf("must be at most %d characters", maxNotesLen))
	}

	if r.MaxPositionValue.IsPositive() && in.Quantity.IsPositive() && in.PurchasePrice.IsPositive() {
		if in.Quantity.Mul(in.PurchasePrice).GreaterThan(r.MaxPositionValue) {
			ve.Add("totalValue", "must not exceed "+r.MaxPositionValue.String())
		}
	}

	return ve
}
