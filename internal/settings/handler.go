package settings

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

type invalidator interface {
	Invalidate()
}

// Handler exposes settings to the admin console.
type Handler struct {
	provider Provider
	writer   Writer
	cache    invalidator
	logger   *logging.Logger
}

// NewHandler creates a settings handler. cache may be nil.
func NewHandler(provider Provider, writer Writer, cache invalidator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{provider: provider, writer: writer, cache: cache, logger: logger}
}

// Routes returns a chi router mounted under /admin/settings.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{kind}", h.Get)
	r.Put("/{kind}", h.Put)
	return r
}

// Get returns one settings document.
// GET /admin/settings/{kind}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	ctx := r.Context()

	var (
		out any
		err error
	)
	switch kind {
	case "booking":
		var s *BookingSettings
		s, err = h.provider.BookingSettings(ctx)
		if s == nil {
			s = &BookingSettings{}
		}
		out = s
	case "notifications":
		out, err = h.provider.NotificationSettings(ctx)
	case "points":
		out, err = h.provider.PointSettings(ctx)
	case "payment":
		out, err = h.provider.PaymentSettings(ctx)
	default:
		http.Error(w, `{"error": "unknown settings kind"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load settings", "kind", kind, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		h.logger.Error("failed to encode settings", "kind", kind, "error", err)
	}
}

// Put replaces one settings document.
// PUT /admin/settings/{kind}
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	ctx := r.Context()
	dec := json.NewDecoder(r.Body)

	var err error
	switch kind {
	case "booking":
		var s BookingSettings
		if err = dec.Decode(&s); err == nil {
			if s.TotalCapacityDefault < 0 {
				http.Error(w, `{"error": "total_capacity_default must not be negative"}`, http.StatusBadRequest)
				return
			}
			err = h.writer.SaveBookingSettings(ctx, &s)
		} else {
			err = errBadBody
		}
	case "notifications":
		var s NotificationSettings
		if err = dec.Decode(&s); err == nil {
			err = h.writer.SaveNotificationSettings(ctx, &s)
		} else {
			err = errBadBody
		}
	case "points":
		var s PointSettings
		if err = dec.Decode(&s); err == nil {
			err = h.writer.SavePointSettings(ctx, &s)
		} else {
			err = errBadBody
		}
	case "payment":
		var s PaymentSettings
		if err = dec.Decode(&s); err == nil {
			err = h.writer.SavePaymentSettings(ctx, &s)
		} else {
			err = errBadBody
		}
	default:
		http.Error(w, `{"error": "unknown settings kind"}`, http.StatusNotFound)
		return
	}
	if err == errBadBody {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("failed to save settings", "kind", kind, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	if h.cache != nil {
		h.cache.Invalidate()
	}
	h.logger.Info("settings updated", "kind", kind)
	w.WriteHeader(http.StatusNoContent)
}
