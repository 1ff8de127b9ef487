package promptpay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/internal/http/middleware"
	"github.com/wolfman30/salon-booking-platform/internal/settings"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

type appointmentReader interface {
	Get(ctx context.Context, id string) (*appointments.Appointment, error)
}

type paymentSettings interface {
	PaymentSettings(ctx context.Context) (*settings.PaymentSettings, error)
}

// Handler serves the QR payload for an appointment's outstanding balance.
type Handler struct {
	appointments appointmentReader
	settings     paymentSettings
	logger       *logging.Logger
}

func NewHandler(appts appointmentReader, provider paymentSettings, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{appointments: appts, settings: provider, logger: logger}
}

// PublicRoutes registers the customer endpoint on the /api router.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/appointments/{id}/promptpay", h.Get)
}

type payloadResponse struct {
	AppointmentID string `json:"appointment_id"`
	Amount        int64  `json:"amount"`
	PromptPayID   string `json:"promptpay_id"`
	Payload       string `json:"payload"`
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lineID := middleware.LineUserIDFromContext(ctx)
	if lineID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing LINE identity"})
		return
	}

	appt, err := h.appointments.Get(ctx, chi.URLParam(r, "id"))
	if err != nil || !appt.OwnedBy(lineID) {
		if err != nil && !errors.Is(err, appointments.ErrNotFound) {
			h.logger.Error("promptpay: load appointment failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "appointment not found"})
		return
	}
	if appt.Status == appointments.StatusCancelled {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "this appointment was cancelled"})
		return
	}
	amount := appt.PaymentInfo.Outstanding()
	if amount <= 0 {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "nothing left to pay"})
		return
	}

	ps, err := h.settings.PaymentSettings(ctx)
	if err != nil {
		h.logger.Error("promptpay: load payment settings failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if ps == nil || ps.PromptPayID == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "PromptPay is not configured"})
		return
	}

	payload, err := Payload(ps.PromptPayID, amount*100, Options{MerchantName: ps.MerchantName, MerchantCity: ps.MerchantCity})
	if err != nil {
		h.logger.Error("promptpay: build payload failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "PromptPay is not configured"})
		return
	}
	writeJSON(w, http.StatusOK, payloadResponse{
		AppointmentID: appt.ID,
		Amount:        amount,
		PromptPayID:   ps.PromptPayID,
		Payload:       payload,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
