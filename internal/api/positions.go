package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/finances/internal/domain"
	"github.com/mtlprog/finances/internal/ledger"
)

type positionRequest struct {
	ProductID     uuid.UUID        `json:"productId"`
	Quantity      decimal.Decimal  `json:"quantity"`
	PurchasePrice decimal.Decimal  `json:"purchasePrice"`
	PurchaseDate  string           `json:"purchaseDate"`
	Currency      string           `json:"currency,omitempty"`
	FXRate        *decimal.Decimal `json:"fxRate,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}

func (req positionRequest) input() (ledger.PositionInput, *domain.ValidationError) {
	date, err := parseDate(req.PurchaseDate)
	if err != nil {
		ve := domain.NewValidationError()
		ve.Add("purchaseDate", "must be a YYYY-MM-DD date")
		return ledger.PositionInput{}, ve
	}
	return ledger.PositionInput{
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		PurchasePrice: req.PurchasePrice,
		PurchaseDate:  date,
		Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
		FXRate:        req.FXRate,
		Notes:         req.Notes,
	}, nil
}

// decodePosition reads a position body, writing the error response and returning false on failure.
func decodePosition(w http.ResponseWriter, r *http.Request) (ledger.PositionInput, bool) {
	var req positionRequest
	if !decodeJSON(w, r, &req) {
		return ledger.PositionInput{}, false
	}
	in, ve := req.input()
	if ve != nil {
		writeValidation(w, ve)
		return ledger.PositionInput{}, false
	}
	return in, true
}

// ListPositions handles GET /api/v1/positions.
// Query: product, type, currency, from, to, q, page (zero-based), size.
func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.Filter{
		Currency: strings.ToUpper(q.Get("currency")),
		Query:    q.Get("q"),
	}
	if v := q.Get("product"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid product id")
			return
		}
		f.ProductID = id
	}
	if v := q.Get("type"); v != "" {
		t, ok := domain.ParseInstrumentType(strings.ToLower(v))
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown instrument type")
			return
		}
		f.Type = t
	}
	var err error
	if f.From, err = parseDate(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.To, err = parseDate(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		writeError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	page := ledger.Page{Number: queryInt(r, "page", 0), Size: queryInt(r, "size", 0)}
	res, err := h.positions.ListPage(r.Context(), userFrom(r.Context()), f, page)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RecentPositions handles GET /api/v1/positions/recent?limit=N.
func (h *Handler) RecentPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.Recent(r.Context(), userFrom(r.Context()), queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// CountPositions handles GET /api/v1/positions/counts.
func (h *Handler) CountPositions(w http.ResponseWriter, r *http.Request) {
	counts, err := h.positions.CountByType(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "byType": counts})
}

// GetPosition handles GET /api/v1/positions/{id}.
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.positions.FindByIDAndUser(r.Context(), id, userFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, "position not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreatePosition handles POST /api/v1/positions.
func (h *Handler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	in, ok := decodePosition(w, r)
	if !ok {
		return
	}
	p, err := h.positions.Create(r.Context(), userFrom(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err, "position not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePosition handles PUT /api/v1/positions/{id}.
func (h *Handler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := decodePosition(w, r)
	if !ok {
		return
	}
	p, err := h.positions.Update(r.Context(), userFrom(r.Context()), id, in)
	if err != nil {
		writeServiceError(w, r, err, "position not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePosition handles DELETE /api/v1/positions/{id}.
func (h *Handler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.positions.Delete(r.Context(), userFrom(r.Context()), id); err != nil {
		writeServiceError(w, r, err, "position not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
