package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// BinanceQuoteAsset is the stablecoin crypto prices are quoted against.
const BinanceQuoteAsset = "USDT"

// BinanceClient prices crypto symbols from Binance spot tickers, reported in USD.
type BinanceClient struct {
	client *binance.Client
}

// NewBinanceClient creates a Binance price client. Public ticker endpoints need no key.
func NewBinanceClient(apiKey, secretKey string, timeout time.Duration) *BinanceClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := binance.NewClient(apiKey, secretKey)
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &BinanceClient{client: client}
}

// WithBaseURL points the client at another API host.
func (c *BinanceClient) WithBaseURL(baseURL string) *BinanceClient {
	c.client.BaseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Quote looks up each symbol as a USDT pair. Unknown pairs are skipped.
// The region is ignored.
func (c *BinanceClient) Quote(ctx context.Context, symbols []string, _ string) ([]RawQuote, error) {
	var (
		quotes   []RawQuote
		failures int
		lastErr  error
	)

	for _, symbol := range symbols {
		pair, ok := binancePair(symbol)
		if !ok {
			continue
		}

		prices, err := c.client.NewListPricesService().Symbol(pair).Do(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Debug("binance price lookup failed", "symbol", symbol, "pair", pair, "error", err)
			failures++
			lastErr = err
			continue
		}

		for _, sp := range prices {
			if sp.Symbol != pair {
				continue
			}
			price, err := decimal.NewFromString(sp.Price)
			if err != nil {
				slog.Warn("unparseable binance price", "pair", pair, "price", sp.Price, "error", err)
				continue
			}
			base := strings.TrimSuffix(pair, BinanceQuoteAsset)
			quotes = append(quotes, RawQuote{
				Symbol:    symbol,
				ShortName: base,
				LongName:  base + " / US Dollar",
				QuoteType: "CRYPTOCURRENCY",
				Currency:  "USD",
				Exchange:  "Binance",
				Price:     &price,
			})
		}
	}

	if len(quotes) == 0 && failures > 0 && failures == len(symbols) {
		return nil, fmt.Errorf("binance: all %d lookups failed: %w", failures, lastErr)
	}
	return quotes, nil
}

// binancePair maps "BTC", "BTC-USD" or "BTCUSDT" to "BTCUSDT".
func binancePair(symbol string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimSuffix(s, "-USD")
	s = strings.TrimSuffix(s, BinanceQuoteAsset)
	if s == "" || strings.ContainsAny(s, ".-^=") {
		return "", false
	}
	return s + BinanceQuoteAsset, true
}
