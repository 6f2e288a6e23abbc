package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/finances/internal/quotes"
)

// PriceRefresher defines the interface for refreshing stale catalog prices.
type PriceRefresher interface {
	RefreshStalePrices(ctx context.Context, threshold time.Duration) (quotes.RefreshResult, error)
}

// QuoteWorker periodically refreshes prices older than the staleness threshold.
type QuoteWorker struct {
	refresher PriceRefresher
	interval  time.Duration
	threshold time.Duration
}

// NewQuoteWorker creates a new QuoteWorker.
func NewQuoteWorker(refresher PriceRefresher, interval, threshold time.Duration) *QuoteWorker {
	return &QuoteWorker{
		refresher: refresher,
		interval:  interval,
		threshold: threshold,
	}
}

func (w *QuoteWorker) refresh(ctx context.Context, phase string) {
	res, err := w.refresher.RefreshStalePrices(ctx, w.threshold)
	if err != nil {
		slog.Error("QuoteWorker: "+phase+" refresh failed", "error", err)
		return
	}
	slog.Info("QuoteWorker: "+phase+" refresh completed",
		"checked", res.Checked, "updated", res.Updated, "missing", res.Missing, "failedBatches", res.FailedBatches)
}

// Run starts the quote worker loop. It blocks until the context is cancelled.
func (w *QuoteWorker) Run(ctx context.Context) {
	slog.Info("QuoteWorker: starting", "interval", w.interval, "threshold", w.threshold)

	w.refresh(ctx, "initial")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("QuoteWorker: shutting down")
			return
		case <-ticker.C:
			w.refresh(ctx, "scheduled")
		}
	}
}
