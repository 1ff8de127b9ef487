package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/salon-booking-platform/internal/http/middleware"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

// Handler serves the customer (LINE) and admin appointment endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// PublicRoutes are mounted under /api and expect middleware.LineAuth.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/slots", h.ListSlots)
	r.Get("/appointments", h.ListMine)
	r.Post("/appointments", h.CreateAsCustomer)
	r.Get("/appointments/{id}", h.GetMine)
	r.Post("/appointments/{id}/cancel", h.CancelAsCustomer)
	r.Post("/appointments/{id}/confirm", h.ConfirmAsCustomer)
	r.Post("/appointments/{id}/review", h.Review)
}

// AdminRoutes returns a chi router mounted under /admin/appointments behind
// middleware.AdminJWT. Requests without staff claims are refused.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(requireStaff)
	r.Get("/", h.List)
	r.Post("/", h.CreateAsAdmin)
	r.Get("/capacity", h.Capacity)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/confirm-payment", h.ConfirmPayment)
	r.Post("/{id}/reschedule", h.Reschedule)
	r.Post("/{id}/check-in", h.statusShortcut(StatusInProgress))
	r.Post("/{id}/complete", h.statusShortcut(StatusCompleted))
	return r
}

func customerActor(r *http.Request) (Actor, bool) {
	id := middleware.LineUserIDFromContext(r.Context())
	if id == "" {
		return Actor{}, false
	}
	return Actor{ID: id, Role: RoleCustomer}, true
}

func requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := middleware.StaffClaimsFromContext(r.Context()); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing staff credentials"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// staffActor maps staff claims to an actor. Without claims the actor has no
// role, which every staff operation rejects.
func staffActor(r *http.Request) Actor {
	claims, ok := middleware.StaffClaimsFromContext(r.Context())
	if !ok {
		return Actor{}
	}
	role := RoleAdmin
	if claims.Role == middleware.RoleEmployee {
		role = RoleEmployee
	}
	return Actor{ID: claims.Subject, Role: role}
}

// writeError maps domain errors onto status codes with messages safe to show
// the customer.
func (h *Handler) writeError(w http.ResponseWriter, err error, op string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Field + ": " + verr.Reason})
	case errors.Is(err, ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
	case errors.Is(err, ErrCapacityExceeded):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "this time slot is full, please choose another"})
	case errors.Is(err, ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "this action is no longer available for this appointment"})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "appointment not found"})
	case errors.Is(err, ErrPermission):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	default:
		h.logger.Error("appointments request failed", "op", op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// ListSlots returns availability for a date.
// GET /api/slots?date=YYYY-MM-DD
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	slots, err := h.service.ListSlots(r.Context(), date)
	if err != nil {
		h.writeError(w, err, "list_slots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": slots})
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := customerActor(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing LINE identity"})
		return
	}
	list, err := h.service.List(r.Context(), ListFilter{CustomerID: actor.ID, Limit: 100})
	if err != nil {
		h.writeError(w, err, "list_mine")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

// CreateAsCustomer books on behalf of the LINE user in context.
// POST /api/appointments
func (h *Handler) CreateAsCustomer(w http.ResponseWriter, r *http.Request) {
	actor, ok := customerActor(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing LINE identity"})
		return
	}
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.LineUserID = actor.ID
	h.create(w, r, req, actor)
}

// CreateAsAdmin books from the admin console, optionally pre-confirmed.
// POST /admin/appointments
func (h *Handler) CreateAsAdmin(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	h.create(w, r, req, staffActor(r))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, req CreateRequest, actor Actor) {
	appt, err := h.service.Create(r.Context(), req, actor)
	if err != nil {
		h.writeError(w, err, "create")
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *Handler) GetMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := customerActor(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing LINE identity"})
		return
	}
	appt, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "get")
		return
	}
	if !appt.OwnedBy(actor.ID) {
		// Do not reveal that someone else's appointment exists.
		h.writeError(w, ErrNotFound, "get")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelAsCustomer cancels the caller's own appointment.
// POST /api/appointments/{id}/cancel
func (h *Handler) CancelAsCustomer(w http.ResponseWriter, r *http.Request) {
	actor, ok := customerActor(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing LINE identity"})
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	appt, err := h.service.Transition(r.Context(), chi.URLParam(r, "id"), StatusCancelled, actor, TransitionMeta{
		Reason:      req.Reason,
		CancelledBy: RoleCustomer,
	})
	if err != nil {
		h.writeError(w, err, "cancel")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) ConfirmAsCustomer(w http.ResponseWriter, r *http.Request) {
	actor, ok := customerActor(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing LINE identity"})
		return
	}
	appt, err := h.service.Transition(r.Context(), chi.URLParam(r, "id"), StatusConfirmed, actor, TransitionMeta{})
	if err != nil {
		h.writeError(w, err, "confirm")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Review records the customer's rating of a completed visit.
// POST /api/appointments/{id}/review
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	actor, ok := customerActor(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing LINE identity"})
		return
	}
	var in ReviewInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	appt, err := h.service.SubmitReview(r.Context(), chi.URLParam(r, "id"), actor, in)
	if err != nil {
		h.writeError(w, err, "review")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// List handles GET /admin/appointments?from=&to=&status=a,b&customer_id=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		DateFrom:   q.Get("from"),
		DateTo:     q.Get("to"),
		CustomerID: q.Get("customer_id"),
		Limit:      200,
	}
	if date := q.Get("date"); date != "" {
		filter.DateFrom, filter.DateTo = date, date
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit <= 1000 {
		filter.Limit = limit
	}
	for _, raw := range strings.Split(q.Get("status"), ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		st, ok := ParseStatus(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status " + raw})
			return
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err, "list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list, "count": len(list)})
}

// Capacity handles GET /admin/appointments/capacity?date=&time=&exclude=
func (h *Handler) Capacity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.service.CheckCapacity(r.Context(), q.Get("date"), q.Get("time"), q.Get("exclude"))
	if err != nil {
		h.writeError(w, err, "capacity")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "get")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), staffActor(r)); err != nil {
		h.writeError(w, err, "delete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	Status Status `json:"status"`
	TransitionMeta
}

// UpdateStatus handles PATCH /admin/appointments/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	actor := staffActor(r)
	if req.Status == StatusCancelled && req.CancelledBy == "" {
		req.CancelledBy = RoleAdmin
	}
	appt, err := h.service.Transition(r.Context(), chi.URLParam(r, "id"), req.Status, actor, req.TransitionMeta)
	if err != nil {
		h.writeError(w, err, "update_status")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) statusShortcut(target Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := h.service.Transition(r.Context(), chi.URLParam(r, "id"), target, staffActor(r), TransitionMeta{})
		if err != nil {
			h.writeError(w, err, "status_"+string(target))
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

// ConfirmPayment handles POST /admin/appointments/{id}/confirm-payment
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var in PaymentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	appt, err := h.service.ConfirmWithPayment(r.Context(), chi.URLParam(r, "id"), staffActor(r), in)
	if err != nil {
		h.writeError(w, err, "confirm_payment")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Reschedule handles POST /admin/appointments/{id}/reschedule
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var in RescheduleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	appt, err := h.service.Reschedule(r.Context(), chi.URLParam(r, "id"), in, staffActor(r))
	if err != nil {
		h.writeError(w, err, "reschedule")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
