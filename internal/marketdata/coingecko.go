package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// coinIDs maps ticker symbols to CoinGecko coin ids.
var coinIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"XLM":  "stellar",
	"SOL":  "solana",
	"ADA":  "cardano",
	"XRP":  "ripple",
	"DOT":  "polkadot",
	"DOGE": "dogecoin",
	"LTC":  "litecoin",
	"BNB":  "binancecoin",
	"USDT": "tether",
	"USDC": "usd-coin",
}

// CoinGeckoClient prices well-known cryptocurrencies through the CoinGecko simple price API.
type CoinGeckoClient struct {
	baseURL  string
	currency string
	fetch    fetcher
}

// NewCoinGeckoClient creates a CoinGecko client quoting in currency (ISO code, e.g. "USD").
func NewCoinGeckoClient(baseURL, currency string, timeout, delay time.Duration, maxRetries int) *CoinGeckoClient {
	if currency == "" {
		currency = "USD"
	}
	return &CoinGeckoClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		currency: strings.ToUpper(currency),
		fetch:    newFetcher("CoinGecko", timeout, delay, maxRetries, nil),
	}
}

// Quote prices the symbols CoinGecko knows. Accepts "BTC" and "BTC-USD" forms; the region is ignored.
func (c *CoinGeckoClient) Quote(ctx context.Context, symbols []string, _ string) ([]RawQuote, error) {
	requested := make(map[string][]string)
	var ids []string
	for _, symbol := range symbols {
		id, ok := c.coinID(symbol)
		if !ok {
			continue
		}
		if _, seen := requested[id]; !seen {
			ids = append(ids, id)
		}
		requested[id] = append(requested[id], symbol)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	vs := strings.ToLower(c.currency)
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", vs)
	q.Set("include_market_cap", "true")

	body, err := c.fetch.get(ctx, c.baseURL+"/simple/price?"+q.Encode())
	if err != nil {
		return nil, err
	}

	// {"bitcoin":{"usd":65000.5,"usd_market_cap":1.28e12},...}
	var raw map[string]map[string]json.Number
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing CoinGecko response: %w", err)
	}

	var quotes []RawQuote
	for _, id := range ids {
		fields, ok := raw[id]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(fields[vs].String())
		if err != nil {
			continue
		}
		var marketCap *int64
		if mc, err := decimal.NewFromString(fields[vs+"_market_cap"].String()); err == nil && mc.IsPositive() {
			v := mc.IntPart()
			marketCap = &v
		}
		for _, symbol := range requested[id] {
			p := price
			quotes = append(quotes, RawQuote{
				Symbol:    symbol,
				ShortName: strings.ToUpper(baseTicker(symbol, c.currency)),
				LongName:  coinName(id),
				QuoteType: "CRYPTOCURRENCY",
				Currency:  c.currency,
				Exchange:  "CoinGecko",
				Price:     &p,
				MarketCap: marketCap,
			})
		}
	}
	return quotes, nil
}

func (c *CoinGeckoClient) coinID(symbol string) (string, bool) {
	id, ok := coinIDs[baseTicker(symbol, c.currency)]
	return id, ok
}

// baseTicker strips a "-CUR" quote suffix: "btc-usd" → "BTC".
func baseTicker(symbol, currency string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.TrimSuffix(s, "-"+currency)
}

// coinName turns a coin id into a display name: "usd-coin" → "Usd Coin".
func coinName(id string) string {
	words := strings.Split(id, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
