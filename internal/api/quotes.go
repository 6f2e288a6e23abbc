package api

import (
	"net/http"

	"github.com/mtlprog/finances/internal/domain"
)

const maxResolveSymbols = 200

type resolveRequest struct {
	Symbols []string `json:"symbols"`
	Region  string   `json:"region,omitempty"`
}

// ResolveQuotes handles POST /api/v1/quotes/resolve. Unknown symbols are simply absent
// from the response.
func (h *Handler) ResolveQuotes(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols must not be empty")
		return
	}
	if len(req.Symbols) > maxResolveSymbols {
		writeError(w, http.StatusBadRequest, "too many symbols")
		return
	}

	products := h.quotes.Resolve(r.Context(), req.Symbols, req.Region)
	if products == nil {
		products = []domain.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// RefreshQuotes handles POST /api/v1/quotes/refresh. The refresh runs in the background.
func (h *Handler) RefreshQuotes(w http.ResponseWriter, _ *http.Request) {
	if !h.quotes.RefreshInBackground(h.staleThreshold) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "already running"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
