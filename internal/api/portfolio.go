package api

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mtlprog/finances/internal/domain"
	"github.com/mtlprog/finances/internal/export"
	"github.com/mtlprog/finances/internal/portfolio"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GetSummary handles GET /api/v1/portfolio/summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.portfolio.Summarize(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetTypeAllocation handles GET /api/v1/portfolio/allocations/type.
// ?sort=value orders buckets by base value instead of discovery order.
func (h *Handler) GetTypeAllocation(w http.ResponseWriter, r *http.Request) {
	allocs, err := h.portfolio.AllocationByType(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if allocs == nil {
		allocs = []portfolio.TypeAllocation{}
	}
	if r.URL.Query().Get("sort") == "value" {
		portfolio.SortAllocationsByValue(allocs)
	}
	writeJSON(w, http.StatusOK, allocs)
}

// GetCurrencyAllocation handles GET /api/v1/portfolio/allocations/currency.
func (h *Handler) GetCurrencyAllocation(w http.ResponseWriter, r *http.Request) {
	allocs, err := h.portfolio.AllocationByCurrency(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if allocs == nil {
		allocs = []portfolio.CurrencyAllocation{}
	}
	if r.URL.Query().Get("sort") == "value" {
		portfolio.SortAllocationsByValue(allocs)
	}
	writeJSON(w, http.StatusOK, allocs)
}

func (h *Handler) GetValuedPositions(w http.ResponseWriter, r *http.Request) {
	h.writeViews(w, r, h.portfolio.Positions)
}

func (h *Handler) GetProfitable(w http.ResponseWriter, r *http.Request) {
	h.writeViews(w, r, h.portfolio.Profitable)
}

func (h *Handler) GetLosing(w http.ResponseWriter, r *http.Request) {
	h.writeViews(w, r, h.portfolio.Losing)
}

func (h *Handler) writeViews(w http.ResponseWriter, r *http.Request,
	list func(context.Context, uuid.UUID) ([]portfolio.PositionView, error),
) {
	views, err := list(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if views == nil {
		views = []portfolio.PositionView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// ExportXLSX handles GET /api/v1/portfolio/export.xlsx. The workbook is rendered in memory
// so a failure can still be reported as JSON.
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.exporter.Export(r.Context(), userFrom(r.Context()), export.NewXLSXWriter(&buf)); err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	name := fmt.Sprintf("portfolio-%s.xlsx", h.now().UTC().Format(time.DateOnly))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write export body", "error", err)
	}
}

// ListSnapshots handles GET /api/v1/portfolio/snapshots?limit=N.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.snapshots.List(r.Context(), userFrom(r.Context()), queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// GetLatestSnapshot handles GET /api/v1/portfolio/snapshots/latest.
func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.GetLatest(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "no snapshots yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetSnapshotByDate handles GET /api/v1/portfolio/snapshots/{date}.
func (h *Handler) GetSnapshotByDate(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(chi.URLParam(r, "date"))
	if err != nil || date.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	snap, err := h.snapshots.GetByDate(r.Context(), userFrom(r.Context()), date)
	if err != nil {
		writeServiceError(w, r, err, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GenerateSnapshot handles POST /api/v1/portfolio/snapshots?date=YYYY-MM-DD.
// Without a date the snapshot is stored for today (UTC).
func (h *Handler) GenerateSnapshot(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	today := domain.CivilDate(h.now().UTC())
	if date.IsZero() {
		date = today
	}
	if date.After(today) {
		writeError(w, http.StatusBadRequest, "date must not be in the future")
		return
	}

	data, err := h.snapshots.Generate(r.Context(), userFrom(r.Context()), date)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, data)
}
