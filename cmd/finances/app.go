package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/finances/internal/catalog"
	"github.com/mtlprog/finances/internal/config"
	"github.com/mtlprog/finances/internal/database"
	"github.com/mtlprog/finances/internal/export"
	"github.com/mtlprog/finances/internal/ledger"
	"github.com/mtlprog/finances/internal/marketdata"
	"github.com/mtlprog/finances/internal/portfolio"
	"github.com/mtlprog/finances/internal/quotes"
	"github.com/mtlprog/finances/internal/snapshot"
)

// app holds the wired engine.
type app struct {
	pool      *pgxpool.Pool
	catalog   *catalog.Service
	quotes    *quotes.Service
	ledger    *ledger.Service
	portfolio *portfolio.Service
	snapshots *snapshot.Service
	exporter  *export.Service
}

func connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, sub); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// newApp connects to the database and builds every service. Call close when done.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	pool, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	catalogSvc := catalog.NewService(catalog.NewPgRepository(pool))

	quoteSvc := quotes.NewService(catalogSvc, newProvider(cfg), quotes.Config{
		BatchSize: cfg.QuoteBatchSize,
		RateLimit: cfg.QuoteRateLimit,
		Region:    cfg.QuoteRegion,
	})

	ledgerSvc := ledger.NewService(ledger.NewPgRepository(pool), catalogSvc, ledger.Rules{
		MinStockQuantity: cfg.MinStockQuantity,
		MaxPositionValue: cfg.MaxPositionValue,
	})

	portfolioSvc := portfolio.NewService(ledgerSvc, cfg.BaseCurrency)

	return &app{
		pool:      pool,
		catalog:   catalogSvc,
		quotes:    quoteSvc,
		ledger:    ledgerSvc,
		portfolio: portfolioSvc,
		snapshots: snapshot.NewService(portfolioSvc, snapshot.NewPgRepository(pool)),
		exporter:  export.NewService(portfolioSvc),
	}, nil
}

func (a *app) close() {
	a.pool.Close()
}

// newProvider asks Yahoo first, then the enabled crypto providers for whatever remains.
func newProvider(cfg config.Config) marketdata.Provider {
	yahoo := marketdata.NewYahooClient(marketdata.YahooConfig{
		BaseURL:    cfg.QuoteAPIURL,
		APIKey:     cfg.QuoteAPIKey,
		Host:       cfg.QuoteAPIHost,
		Timeout:    cfg.QuoteTimeout,
		RetryDelay: cfg.QuoteRetryDelay,
		MaxRetries: cfg.QuoteRetryMax,
	})

	providers := []marketdata.Provider{yahoo}
	if cfg.BinanceEnabled {
		providers = append(providers, marketdata.NewBinanceClient(cfg.BinanceAPIKey, cfg.BinanceSecret, cfg.QuoteTimeout))
	}
	if cfg.CoinGeckoEnabled {
		providers = append(providers, marketdata.NewCoinGeckoClient(
			cfg.CoinGeckoURL, cfg.CoinGeckoCurrency, cfg.QuoteTimeout, cfg.QuoteRetryDelay, cfg.QuoteRetryMax))
	}
	if len(providers) == 1 {
		return yahoo
	}
	return marketdata.NewChain(providers...)
}

// newSheetsWriter returns nil without error when Sheets is not configured.
func newSheetsWriter(ctx context.Context, cfg config.Config) (*export.SheetsWriter, error) {
	if !cfg.SheetsEnabled() {
		return nil, nil
	}
	return export.NewSheetsWriter(ctx, cfg.GoogleSheetsID, cfg.GoogleCredentialsJSON)
}
