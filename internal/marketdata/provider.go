// Package marketdata fetches instrument quotes from external market-data services.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

// Provider returns quotes for the given symbols. Symbols the service does not know are
// simply missing from the result.
type Provider interface {
	Quote(ctx context.Context, symbols []string, region string) ([]RawQuote, error)
}

// RawQuote is a provider's view of one instrument.
type RawQuote struct {
	Symbol           string
	LongName         string
	ShortName        string
	QuoteType        string
	Currency         string
	Exchange         string
	Price            *decimal.Decimal
	MarketCap        *int64
	TrailingPE       *decimal.Decimal
	DividendYield    *decimal.Decimal
	Beta             *decimal.Decimal
	FiftyTwoWeekLow  *decimal.Decimal
	FiftyTwoWeekHigh *decimal.Decimal
	AvgVolume        *int64
}

// Name returns the long name, falling back to the short name.
func (q RawQuote) Name() string {
	if q.LongName != "" {
		return q.LongName
	}
	return q.ShortName
}

// Chain asks each provider in turn for the symbols still unanswered.
type Chain struct {
	providers []Provider
}

// NewChain creates a Chain. Nil providers are skipped.
func NewChain(providers ...Provider) *Chain {
	c := &Chain{}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

// Quote returns every quote found by any provider. It fails only when all providers fail.
func (c *Chain) Quote(ctx context.Context, symbols []string, region string) ([]RawQuote, error) {
	remaining := symbols
	var (
		result []RawQuote
		errs   []error
	)

	for _, p := range c.providers {
		if len(remaining) == 0 {
			break
		}
		quotes, err := p.Quote(ctx, remaining, region)
		if err != nil {
			slog.Warn("market data provider failed", "provider", fmt.Sprintf("%T", p), "symbols", len(remaining), "error", err)
			errs = append(errs, err)
			continue
		}
		result = append(result, quotes...)
		remaining = missing(remaining, quotes)
	}

	if len(errs) > 0 && len(errs) == len(c.providers) {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

func missing(symbols []string, quotes []RawQuote) []string {
	found := make(map[string]bool, len(quotes))
	for _, q := range quotes {
		found[strings.ToUpper(q.Symbol)] = true
	}
	var out []string
	for _, s := range symbols {
		if !found[strings.ToUpper(s)] {
			out = append(out, s)
		}
	}
	return out
}
