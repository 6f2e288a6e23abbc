package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is a user's holding of a product bought in a single purchase.
// FXRate is units of the position currency per one unit of the base currency.
type Position struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"userId"`
	ProductID     uuid.UUID       `json:"productId"`
	Product       *Product        `json:"product,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	PurchaseDate  time.Time       `json:"purchaseDate"`
	Currency      string          `json:"currency"`
	FXRate        decimal.Decimal `json:"fxRate"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// CurrentPrice returns the referenced product's price, if any.
func (p Position) CurrentPrice() (decimal.Decimal, bool) {
	if p.Product == nil {
		return decimal.Zero, false
	}
	return p.Product.Price()
}

// InstrumentType returns the referenced product's type, or other when unknown.
func (p Position) InstrumentType() InstrumentType {
	if p.Product == nil {
		return InstrumentOther
	}
	return p.Product.Type
}

// EffectiveCurrency returns the position currency, falling back to the product's.
func (p Position) EffectiveCurrency() string {
	if p.Currency != "" {
		return p.Currency
	}
	if p.Product != nil {
		return p.Product.Currency
	}
	return ""
}

// CivilDate truncates t to midnight UTC of its calendar date.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
