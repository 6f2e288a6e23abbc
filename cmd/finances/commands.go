package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/mtlprog/finances/internal/api"
	"github.com/mtlprog/finances/internal/config"
	"github.com/mtlprog/finances/internal/domain"
	"github.com/mtlprog/finances/internal/export"
	"github.com/mtlprog/finances/internal/worker"
)

func serve(ctx context.Context, cfg config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := runMigrations(ctx, a.pool); err != nil {
		return err
	}

	sheetsWriter, err := newSheetsWriter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating sheets writer: %w", err)
	}
	var hook worker.AfterSnapshotHook
	if sheetsWriter != nil {
		hook = sheetsWriter
		slog.Info("Google Sheets history export enabled", "spreadsheet", cfg.GoogleSheetsID)
	}

	snapshotWorker, err := worker.NewSnapshotWorker(a.snapshots, a.ledger, cfg.SnapshotSchedule, hook)
	if err != nil {
		return err
	}
	quoteWorker := worker.NewQuoteWorker(a.quotes, cfg.QuoteWorkerInterval, cfg.QuoteStaleThreshold)

	go quoteWorker.Run(ctx)
	go snapshotWorker.Run(ctx)

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, admin endpoints are unprotected")
	}

	srv := api.NewServer(cfg.HTTPPort, api.Services{
		Products:  a.catalog,
		Quotes:    a.quotes,
		Positions: a.ledger,
		Portfolio: a.portfolio,
		Snapshots: a.snapshots,
		Exporter:  a.exporter,
	}, api.Options{
		AdminAPIKey:    cfg.AdminAPIKey,
		CORSOrigins:    cfg.CORSOrigins,
		StaleThreshold: cfg.QuoteStaleThreshold,
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort, "baseCurrency", cfg.BaseCurrency)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	}
	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

func migrate(ctx context.Context, cfg config.Config) error {
	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := runMigrations(ctx, pool); err != nil {
		return err
	}
	slog.Info("migrations applied")
	return nil
}

// refreshPrices refreshes every priced product, or only stale ones.
func refreshPrices(ctx context.Context, cfg config.Config, staleOnly bool) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	var threshold time.Duration
	if staleOnly {
		threshold = cfg.QuoteStaleThreshold
	}
	res, err := a.quotes.RefreshStalePrices(ctx, threshold)
	if err != nil {
		return err
	}
	slog.Info("price refresh completed",
		"checked", res.Checked, "updated", res.Updated, "missing", res.Missing, "failedBatches", res.FailedBatches)
	return nil
}

func resolve(ctx context.Context, cfg config.Config, symbols []string, region string) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	products := a.quotes.Resolve(ctx, symbols, region)
	if len(products) == 0 {
		return errors.New("no products found")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tCURRENCY\tTYPE\tPRICE\tNAME")
	for _, p := range products {
		price := "-"
		if v, ok := p.Price(); ok {
			price = domain.FormatAmount(v, p.Currency)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Symbol, p.Currency, p.Type, price, p.Name)
	}
	return tw.Flush()
}

func exportPortfolio(ctx context.Context, cfg config.Config, user, out string, toSheets bool) error {
	userID, err := uuid.Parse(user)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", user, err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if toSheets {
		w, err := newSheetsWriter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("creating sheets writer: %w", err)
		}
		if w == nil {
			return errors.New("GOOGLE_SHEETS_ID and GOOGLE_CREDENTIALS_JSON are required for --sheets")
		}
		if err := a.exporter.Export(ctx, userID, w); err != nil {
			return err
		}
		slog.Info("portfolio exported to Google Sheets", "user", userID, "spreadsheet", cfg.GoogleSheetsID)
		return nil
	}

	if out == "" {
		out = fmt.Sprintf("portfolio-%s.xlsx", time.Now().UTC().Format(time.DateOnly))
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	if err := a.exporter.Export(ctx, userID, export.NewXLSXWriter(f)); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", out, err)
	}
	slog.Info("portfolio exported", "user", userID, "file", out)
	return nil
}
