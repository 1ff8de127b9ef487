package appointments

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-booking-platform/internal/http/middleware"
	"github.com/wolfman30/salon-booking-platform/internal/settings"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

const staffSecret = "appointments-secret"

func newTestRouter(f *fixture) http.Handler {
	h := NewHandler(f.svc, logging.Discard())
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.LineAuth(nil, true))
		h.PublicRoutes(r)
	})
	r.Route("/admin/appointments", func(r chi.Router) {
		r.Use(middleware.AdminJWT(staffSecret, middleware.RoleAdmin, middleware.RoleEmployee))
		r.Mount("/", h.AdminRoutes())
	})
	return r
}

func staffToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.StaffClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "staff-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(staffSecret))
	require.NoError(t, err)
	return signed
}

// doJSON sends body as the LINE user lineID on /api routes and as an admin
// on /admin routes.
func doJSON(t *testing.T, h http.Handler, method, path, lineID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if lineID != "" {
		req.Header.Set(middleware.LineUserIDHeader, lineID)
	}
	if strings.HasPrefix(path, "/admin/") {
		req.Header.Set("Authorization", "Bearer "+staffToken(t, middleware.RoleAdmin))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

const customerBooking = `{"date":"2025-06-01","time":"14:00","service_id":"svc-cut","customer":{"name":"Suda","phone":"0812345678"}}`

func TestHandlerCustomerBookingFlow(t *testing.T) {
	f := newFixture(t, &settings.BookingSettings{TotalCapacityDefault: 1})
	router := newTestRouter(f)

	rec := doJSON(t, router, http.MethodPost, "/api/appointments", "", customerBooking)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/appointments", "U1", customerBooking)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "U1", created.CustomerInfo.LineUserID)

	rec = doJSON(t, router, http.MethodPost, "/api/appointments", "U2", customerBooking)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "this time slot is full, please choose another", errorMessage(t, rec))

	rec = doJSON(t, router, http.MethodGet, "/api/appointments/"+created.ID, "U2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/appointments", "U1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), created.ID)

	rec = doJSON(t, router, http.MethodPost, "/api/appointments/"+created.ID+"/cancel", "U1", `{"reason":"busy"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/appointments/"+created.ID+"/confirm", "U1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "this action is no longer available for this appointment", errorMessage(t, rec))
}

func TestHandlerListSlots(t *testing.T) {
	f := newFixture(t, &settings.BookingSettings{TimeQueues: []settings.TimeQueue{{Time: "14:00", Count: 3}}})
	router := newTestRouter(f)

	rec := doJSON(t, router, http.MethodGet, "/api/slots?date=2025-06-01", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Slots []SlotAvailability `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Slots, 1)
	assert.Equal(t, 3, body.Slots[0].Max)

	rec = doJSON(t, router, http.MethodGet, "/api/slots?date=junk", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerAdminLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	router := newTestRouter(f)

	rec := doJSON(t, router, http.MethodPost, "/admin/appointments", "", `{"date":"2025-06-01","time":"14:00","service_id":"svc-cut","discount":100,"customer":{"name":"Suda","phone":"0812345678"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(300), created.PaymentInfo.TotalPrice)

	base := "/admin/appointments/" + created.ID
	rec = doJSON(t, router, http.MethodPost, base+"/confirm-payment", "", `{"amount":300,"method":"cash"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPatch, base+"/status", "", `{"status":"pending"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, base+"/reschedule", "", `{"date":"2025-06-01","time":"15:00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, base+"/check-in", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodPost, base+"/complete", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/admin/appointments?status=completed&date=2025-06-01", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = doJSON(t, router, http.MethodGet, "/admin/appointments?status=bogus", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, base, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, router, http.MethodGet, base, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerAdminCancelDefaultsCanceller(t *testing.T) {
	f := newFixture(t, nil)
	router := newTestRouter(f)
	appt := f.seed(t, StatusConfirmed)

	rec := doJSON(t, router, http.MethodPatch, "/admin/appointments/"+appt.ID+"/status", "", `{"status":"cancelled","reason":"closed early"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.CancellationInfo)
	assert.Equal(t, RoleAdmin, got.CancellationInfo.CancelledBy)
}

func TestAdminRoutesRefuseMissingStaffClaims(t *testing.T) {
	f := newFixture(t, nil)
	appt := f.seed(t, StatusConfirmed)
	// mounted without AdminJWT, as a misconfigured router would
	router := NewHandler(f.svc, logging.Discard()).AdminRoutes()

	req := httptest.NewRequest(http.MethodDelete, "/"+appt.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, err := f.repo.Get(req.Context(), appt.ID)
	require.NoError(t, err, "the appointment survives")
}

func TestHandlerEmployeeCannotDelete(t *testing.T) {
	f := newFixture(t, nil)
	appt := f.seed(t, StatusConfirmed)

	req := httptest.NewRequest(http.MethodDelete, "/admin/appointments/"+appt.ID, nil)
	req.Header.Set("Authorization", "Bearer "+staffToken(t, middleware.RoleEmployee))
	rec := httptest.NewRecorder()
	newTestRouter(f).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
