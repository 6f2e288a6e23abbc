package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mtlprog/finances/internal/catalog"
	"github.com/mtlprog/finances/internal/domain"
)

const maxBodyBytes = 1 << 20

// Handler provides HTTP endpoints for the portfolio API.
type Handler struct {
	products       ProductService
	quotes         QuoteService
	positions      PositionService
	portfolio      PortfolioService
	snapshots      SnapshotService
	exporter       Exporter
	staleThreshold time.Duration
	now            func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(s Services, staleThreshold time.Duration) *Handler {
	return &Handler{
		products:       s.Products,
		quotes:         s.Quotes,
		positions:      s.Positions,
		portfolio:      s.Portfolio,
		snapshots:      s.Snapshots,
		exporter:       s.Exporter,
		staleThreshold: staleThreshold,
		now:            time.Now,
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func writeValidation(w http.ResponseWriter, ve *domain.ValidationError) {
	writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Error: "validation failed", Fields: ve.Fields})
}

// writeServiceError maps engine errors to HTTP statuses. Anything unexpected is logged
// and reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeValidation(w, ve)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, domain.ErrProductAlreadyExists):
		writeError(w, http.StatusConflict, "product already exists")
	case errors.Is(err, catalog.ErrInUse):
		writeError(w, http.StatusConflict, "product is referenced by positions")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a JSON body into v, writing a 400 and returning false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// pathID parses the {id} URL parameter, writing a 400 and returning false when malformed.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
