package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// YahooConfig configures the RapidAPI Yahoo Finance client.
type YahooConfig struct {
	BaseURL    string
	APIKey     string
	Host       string
	Timeout    time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

// YahooClient fetches quotes from the Yahoo Finance API published on RapidAPI.
type YahooClient struct {
	baseURL string
	fetch   fetcher
}

// NewYahooClient creates a Yahoo Finance client. BaseURL defaults to https://{Host}.
func NewYahooClient(cfg YahooConfig) *YahooClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://" + cfg.Host
	}
	header := http.Header{}
	header.Set("x-rapidapi-key", cfg.APIKey)
	header.Set("x-rapidapi-host", cfg.Host)
	return &YahooClient{
		baseURL: base,
		fetch:   newFetcher("Yahoo Finance", cfg.Timeout, cfg.RetryDelay, cfg.MaxRetries, header),
	}
}

type yahooResponse struct {
	QuoteResponse struct {
		Result []yahooQuote `json:"result"`
	} `json:"quoteResponse"`
}

type yahooQuote struct {
	Symbol                   string           `json:"symbol"`
	LongName                 string           `json:"longName"`
	ShortName                string           `json:"shortName"`
	QuoteType                string           `json:"quoteType"`
	Currency                 string           `json:"currency"`
	FullExchangeName         string           `json:"fullExchangeName"`
	RegularMarketPrice       *decimal.Decimal `json:"regularMarketPrice"`
	MarketCap                *int64           `json:"marketCap"`
	TrailingPE               *decimal.Decimal `json:"trailingPE"`
	DividendYield            *decimal.Decimal `json:"dividendYield"`
	Beta                     *decimal.Decimal `json:"beta"`
	FiftyTwoWeekLow          *decimal.Decimal `json:"fiftyTwoWeekLow"`
	FiftyTwoWeekHigh         *decimal.Decimal `json:"fiftyTwoWeekHigh"`
	AverageDailyVolume3Month *int64           `json:"averageDailyVolume3Month"`
}

// Quote fetches quotes for symbols in a single request.
func (c *YahooClient) Quote(ctx context.Context, symbols []string, region string) ([]RawQuote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	q := url.Values{}
	q.Set("region", region)
	q.Set("symbols", strings.Join(symbols, ","))
	u := c.baseURL + "/market/v2/get-quotes?" + q.Encode()

	body, err := c.fetch.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var resp yahooResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing Yahoo Finance response: %w", err)
	}

	quotes := make([]RawQuote, 0, len(resp.QuoteResponse.Result))
	for _, yq := range resp.QuoteResponse.Result {
		if yq.Symbol == "" {
			continue
		}
		quotes = append(quotes, RawQuote{
			Symbol:           yq.Symbol,
			LongName:         yq.LongName,
			ShortName:        yq.ShortName,
			QuoteType:        yq.QuoteType,
			Currency:         yq.Currency,
			Exchange:         yq.FullExchangeName,
			Price:            yq.RegularMarketPrice,
			MarketCap:        yq.MarketCap,
			TrailingPE:       yq.TrailingPE,
			DividendYield:    yq.DividendYield,
			Beta:             yq.Beta,
			FiftyTwoWeekLow:  yq.FiftyTwoWeekLow,
			FiftyTwoWeekHigh: yq.FiftyTwoWeekHigh,
			AvgVolume:        yq.AverageDailyVolume3Month,
		})
	}
	return quotes, nil
}
