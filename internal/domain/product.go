package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InstrumentType classifies a tradable product.
type InstrumentType string

const (
	InstrumentStock          InstrumentType = "stock"
	InstrumentETF            InstrumentType = "etf"
	InstrumentMutualFund     InstrumentType = "mutual_fund"
	InstrumentBond           InstrumentType = "bond"
	InstrumentSavingsAccount InstrumentType = "savings_account"
	InstrumentTermDeposit    InstrumentType = "term_deposit"
	InstrumentCrypto         InstrumentType = "cryptocurrency"
	InstrumentCommodity      InstrumentType = "commodity"
	InstrumentRealEstate     InstrumentType = "real_estate"
	InstrumentIndex          InstrumentType = "index"
	InstrumentOther          InstrumentType = "other"
)

var instrumentTypes = []InstrumentType{
	InstrumentStock,
	InstrumentETF,
	InstrumentMutualFund,
	InstrumentBond,
	InstrumentSavingsAccount,
	InstrumentTermDeposit,
	InstrumentCrypto,
	InstrumentCommodity,
	InstrumentRealEstate,
	InstrumentIndex,
	InstrumentOther,
}

// InstrumentTypes returns all instrument types in declaration order.
func InstrumentTypes() []InstrumentType {
	out := make([]InstrumentType, len(instrumentTypes))
	copy(out, instrumentTypes)
	return out
}

// Valid reports whether t is one of the declared instrument types.
func (t InstrumentType) Valid() bool {
	for _, it := range instrumentTypes {
		if it == t {
			return true
		}
	}
	return false
}

// ParseInstrumentType parses a stored or user-supplied type name.
func ParseInstrumentType(s string) (InstrumentType, bool) {
	t := InstrumentType(s)
	return t, t.Valid()
}

// ProductStatus is the catalog lifecycle state of a product.
type ProductStatus string

const (
	ProductActive      ProductStatus = "active"
	ProductDeactivated ProductStatus = "deactivated"
)

// Product is a tradable instrument in the shared catalog.
// Symbol and Currency together identify it.
type Product struct {
	ID               uuid.UUID           `json:"id"`
	Symbol           string              `json:"symbol"`
	Name             string              `json:"name"`
	Description      string              `json:"description,omitempty"`
	Type             InstrumentType      `json:"type"`
	Currency         string              `json:"currency"`
	CurrentPrice     decimal.NullDecimal `json:"currentPrice"`
	Exchange         string              `json:"exchange,omitempty"`
	Sector           string              `json:"sector,omitempty"`
	Region           string              `json:"region,omitempty"`
	Status           ProductStatus       `json:"status"`
	LastUpdated      *time.Time          `json:"lastUpdated,omitempty"`
	MarketCap        *int64              `json:"marketCap,omitempty"`
	PERatio          decimal.NullDecimal `json:"peRatio"`
	DividendYield    decimal.NullDecimal `json:"dividendYield"`
	Beta             decimal.NullDecimal `json:"beta"`
	FiftyTwoWeekLow  decimal.NullDecimal `json:"fiftyTwoWeekLow"`
	FiftyTwoWeekHigh decimal.NullDecimal `json:"fiftyTwoWeekHigh"`
	AvgVolume        *int64              `json:"avgVolume,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// IsActive reports whether the product can be offered for new positions.
func (p Product) IsActive() bool {
	return p.Status == ProductActive
}

// FullName returns "Name (SYMBOL)".
func (p Product) FullName() string {
	return p.Name + " (" + p.Symbol + ")"
}

// Price returns the current price, if one is known.
func (p Product) Price() (decimal.Decimal, bool) {
	if !p.CurrentPrice.Valid {
		return decimal.Zero, false
	}
	return p.CurrentPrice.Decimal, true
}

// IsStale reports whether the price was last refreshed before cutoff or never.
func (p Product) IsStale(cutoff time.Time) bool {
	return p.LastUpdated == nil || p.LastUpdated.Before(cutoff)
}
