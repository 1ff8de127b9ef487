package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

type querier interface {
	QueryEvents(ctx context.Context, filter Filter) ([]Event, error)
}

// Handler exposes the trail to admins.
type Handler struct {
	store  querier
	logger *logging.Logger
}

func NewHandler(store querier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Routes is mounted under /admin/audit.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/appointments/{id}", h.ForAppointment)
	return r
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		AppointmentID: q.Get("appointment_id"),
		ActorID:       q.Get("actor_id"),
		Limit:         100,
	}
	if raw := q.Get("event_type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.EventTypes = append(filter.EventTypes, t)
			}
		}
	}
	for key, dst := range map[string]*time.Time{"from": &filter.StartTime, "to": &filter.EndTime} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, key+" must be RFC3339", http.StatusBadRequest)
			return
		}
		*dst = ts
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "offset must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filter.Offset = n
	}
	h.respond(w, r, filter)
}

func (h *Handler) ForAppointment(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, Filter{AppointmentID: chi.URLParam(r, "id"), Limit: 500})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, filter Filter) {
	list, err := h.store.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("audit: query failed", "error", err)
		http.Error(w, "failed to load audit events", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []Event{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"events": list, "count": len(list)})
}
