package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/finances/internal/catalog"
	"github.com/mtlprog/finances/internal/domain"
)

// ListProducts handles GET /api/v1/products.
// Query: type, currency, exchange, sector, region, q, inactive=true.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.ProductFilter{
		Currency: q.Get("currency"),
		Exchange: q.Get("exchange"),
		Sector:   q.Get("sector"),
		Region:   q.Get("region"),
		Query:    q.Get("q"),
	}
	if v := q.Get("type"); v != "" {
		t, ok := domain.ParseInstrumentType(strings.ToLower(v))
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown instrument type")
			return
		}
		f.Type = t
	}
	if v := q.Get("inactive"); v != "" {
		inactive, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "inactive must be a boolean")
			return
		}
		f.IncludeInactive = inactive
	}

	products, err := h.products.Filter(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// ProductFacets handles GET /api/v1/products/facets.
func (h *Handler) ProductFacets(w http.ResponseWriter, r *http.Request) {
	summary, err := h.products.Summary(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ProductFacet handles GET /api/v1/products/facets/{dimension}.
func (h *Handler) ProductFacet(w http.ResponseWriter, r *http.Request) {
	d, ok := catalog.ParseDimension(chi.URLParam(r, "dimension"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown dimension")
		return
	}
	values, err := h.products.DistinctValues(r.Context(), d)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if values == nil {
		values = []string{}
	}
	writeJSON(w, http.StatusOK, values)
}

// GetProduct handles GET /api/v1/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.products.FindByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateProduct handles POST /api/v1/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.UpsertInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.products.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// UpdateProductPrice handles PUT /api/v1/products/{id}/price.
func (h *Handler) UpdateProductPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req priceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.products.UpdatePrice(r.Context(), id, req.Price); err != nil {
		writeServiceError(w, r, err, "product not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetireProduct handles DELETE /api/v1/products/{id}. Products still held by positions are
// deactivated instead of removed.
func (h *Handler) RetireProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deleted, err := h.products.Retire(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "product not found")
		return
	}
	outcome := "deactivated"
	if deleted {
		outcome = "deleted"
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": outcome})
}
