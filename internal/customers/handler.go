package customers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

// Handler serves the admin customer endpoints.
type Handler struct {
	directory *Directory
	logger    *logging.Logger
}

func NewHandler(directory *Directory, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{directory: directory, logger: logger}
}

// Routes returns a chi router mounted under /admin/customers.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/points", h.AdjustPoints)
	return r
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	list, err := h.directory.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list customers", "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": list})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cust, err := h.directory.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, `{"error": "customer not found"}`, http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get customer", "customer_id", id, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cust)
}

type adjustPointsRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

// AdjustPoints applies a manual correction.
// POST /admin/customers/{id}/points
func (h *Handler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req adjustPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Delta == 0 || req.Reason == "" {
		http.Error(w, `{"error": "delta and reason required"}`, http.StatusBadRequest)
		return
	}
	balance, err := h.directory.AddPoints(r.Context(), id, req.Delta, "admin: "+req.Reason)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, `{"error": "customer not found"}`, http.StatusNotFound)
		return
	case errors.Is(err, ErrNegativeBalance):
		http.Error(w, `{"error": "insufficient points"}`, http.StatusConflict)
		return
	case err != nil:
		h.logger.Error("failed to adjust points", "customer_id", id, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer_id": id, "points": balance})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
