package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/internal/catalog"
	"github.com/wolfman30/salon-booking-platform/internal/customers"
	"github.com/wolfman30/salon-booking-platform/internal/http/middleware"
	"github.com/wolfman30/salon-booking-platform/internal/settings"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

const testSecret = "router-secret"

func newTestRouter(t *testing.T, ready map[string]Pinger) http.Handler {
	t.Helper()
	logger := logging.Discard()
	store := settings.NewMemoryStore()
	repo := appointments.NewInMemoryRepository(nil, logger)
	svc := appointments.NewService(repo, appointments.NewChecker(repo, store), catalog.NewMemoryCatalog(), logger)
	directory := customers.NewDirectory(customers.NewMemoryStore(), logger)

	reg := prometheus.NewRegistry()
	return New(&Config{
		Logger:             logger,
		Appointments:       appointments.NewHandler(svc, logger),
		Customers:          customers.NewHandler(directory, logger),
		Settings:           settings.NewHandler(store, store, nil, logger),
		Ready:              ready,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AdminAuthSecret:    testSecret,
		CORSAllowedOrigins: []string{"https://liff.salon.example"},
	})
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
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func do(h http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := do(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestRouterReadyReportsFailingDependency(t *testing.T) {
	router := newTestRouter(t, map[string]Pinger{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rr := do(router, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Checks["postgres"])
	assert.Equal(t, "connection refused", resp.Checks["redis"])
}

func TestRouterMetricsEndpoint(t *testing.T) {
	rr := do(newTestRouter(t, nil), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterPublicSlots(t *testing.T) {
	rr := do(newTestRouter(t, nil), http.MethodGet, "/api/slots?date=2025-06-01", nil)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestRouterCORSPreflight(t *testing.T) {
	rr := do(newTestRouter(t, nil), http.MethodOptions, "/api/appointments", map[string]string{
		"Origin":                        "https://liff.salon.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://liff.salon.example", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterAdminAuthorization(t *testing.T) {
	router := newTestRouter(t, nil)
	admin := map[string]string{"Authorization": "Bearer " + staffToken(t, middleware.RoleAdmin)}
	employee := map[string]string{"Authorization": "Bearer " + staffToken(t, middleware.RoleEmployee)}

	cases := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"no token", "/admin/appointments/", nil, http.StatusUnauthorized},
		{"admin appointments", "/admin/appointments/", admin, http.StatusOK},
		{"employee appointments", "/admin/appointments/", employee, http.StatusOK},
		{"admin settings", "/admin/settings/booking", admin, http.StatusOK},
		{"employee settings", "/admin/settings/booking", employee, http.StatusForbidden},
		{"employee customers", "/admin/customers/", employee, http.StatusForbidden},
		{"admin customers", "/admin/customers/", admin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(router, http.MethodGet, tc.path, tc.header)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}
}

func TestRouterWithoutSecretHidesAdmin(t *testing.T) {
	router := New(&Config{Logger: logging.Discard()})
	rr := do(router, http.MethodGet, "/admin/appointments/", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
