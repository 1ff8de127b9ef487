package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	appconfig "github.com/wolfman30/salon-booking-platform/internal/config"
	"github.com/wolfman30/salon-booking-platform/internal/customers"
	"github.com/wolfman30/salon-booking-platform/internal/http/middleware"
	"github.com/wolfman30/salon-booking-platform/internal/settings"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

const appSecret = "bootstrap-secret"

// lineLogin stands in for the LINE verify endpoint. A token "id:<sub>" is
// issued to <sub>; anything else is rejected.
func lineLogin(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		sub, ok := strings.CutPrefix(r.PostForm.Get("id_token"), "id:")
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"sub": sub, "aud": r.PostForm.Get("client_id")})
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func lineUser(id string) map[string]string {
	return map[string]string{middleware.LineIDTokenHeader: "id:" + id}
}

func memoryConfig(t *testing.T) *appconfig.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"cut","name":"Haircut","price":300,"duration":45,"active":true}
	]`), 0o600))
	return &appconfig.Config{
		UseMemoryStore: true,
		Timezone:       "Asia/Bangkok",
		CatalogFile:    path,
		AdminJWTSecret: appSecret,
		EmailProvider:  "stub",
		AdminEmail:     "owner@salon.example",

		LineAPIBaseURL:     lineLogin(t),
		LineLoginChannelID: "1650000000",
	}
}

func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.StaffClaims{
		Role: middleware.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "owner",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(appSecret))
	require.NoError(t, err)
	return signed
}

func call(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestBuildRejectsUnknownTimezone(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Timezone = "Mars/Olympus"

	_, err := Build(context.Background(), cfg, logging.Discard(), prometheus.NewRegistry())
	require.Error(t, err)
}

func TestBuildRequiresDatabaseOutsideMemoryMode(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.UseMemoryStore = false

	_, err := Build(context.Background(), cfg, logging.Discard(), prometheus.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestMemoryAppBookingLifecycleAwardsPoints(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, memoryConfig(t), logging.Discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(app.Close)
	assert.Nil(t, app.Deliverer)

	require.NoError(t, app.Settings.SavePointSettings(ctx, &settings.PointSettings{
		EnablePurchasePoints: true,
		CurrencyPerPoint:     100,
		EnableVisitPoints:    true,
		PointsPerVisit:       5,
	}))

	customer := lineUser("U123")
	admin := map[string]string{"Authorization": "Bearer " + adminToken(t)}

	rr := call(t, app.Handler, http.MethodGet, "/ready", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(t, app.Handler, http.MethodPost, "/api/appointments", map[string]any{
		"date":       "2099-03-02",
		"time":       "10:00",
		"service_id": "cut",
		"customer":   map[string]string{"name": "Suda", "phone": "0812345678"},
	}, customer)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var appt appointments.Appointment
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&appt))
	assert.Equal(t, appointments.StatusAwaitingConfirmation, appt.Status)
	assert.Equal(t, int64(300), appt.PaymentInfo.TotalPrice)
	require.NotEmpty(t, appt.CustomerInfo.CustomerID)

	rr = call(t, app.Handler, http.MethodPost, "/admin/appointments/"+appt.ID+"/confirm-payment",
		map[string]any{"amount": 300, "method": "promptpay"}, admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = call(t, app.Handler, http.MethodPost, "/admin/appointments/"+appt.ID+"/check-in", nil, admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = call(t, app.Handler, http.MethodPost, "/admin/appointments/"+appt.ID+"/complete", nil, admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = call(t, app.Handler, http.MethodGet, "/admin/customers/"+appt.CustomerInfo.CustomerID, nil, admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var cust customers.Customer
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&cust))
	assert.Equal(t, int64(3+5), cust.Points)

	rr = call(t, app.Handler, http.MethodGet, "/api/appointments/"+appt.ID+"/promptpay", nil, customer)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestMemoryAppEnforcesSlotCapacity(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, memoryConfig(t), logging.Discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.NoError(t, app.Settings.SaveBookingSettings(ctx, &settings.BookingSettings{TotalCapacityDefault: 1}))

	book := func(line string) int {
		return call(t, app.Handler, http.MethodPost, "/api/appointments", map[string]any{
			"date":       "2099-03-02",
			"time":       "13:00",
			"service_id": "cut",
			"customer":   map[string]string{"name": "Guest " + line, "phone": "08" + line},
		}, lineUser(line)).Code
	}
	assert.Equal(t, http.StatusCreated, book("11111111"))
	assert.Equal(t, http.StatusConflict, book("22222222"))
}

func TestMemoryAppIgnoresUnverifiedLineHeader(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, memoryConfig(t), logging.Discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	body := map[string]any{
		"date":       "2099-03-02",
		"time":       "11:00",
		"service_id": "cut",
		"customer":   map[string]string{"name": "Suda", "phone": "0812345678"},
	}
	rr := call(t, app.Handler, http.MethodPost, "/api/appointments", body, map[string]string{middleware.LineUserIDHeader: "U-victim"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "an unverified header is not an identity")

	rr = call(t, app.Handler, http.MethodPost, "/api/appointments", body, map[string]string{middleware.LineIDTokenHeader: "forged"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = call(t, app.Handler, http.MethodPost, "/api/appointments", body, lineUser("U777"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var appt appointments.Appointment
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&appt))
	assert.Equal(t, "U777", appt.CustomerInfo.LineUserID)
}
