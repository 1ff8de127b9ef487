package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitBucketsByLineIdentity(t *testing.T) {
	handler := LineAuth(nil, true)(RateLimit(0, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	send := func(lineID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/appointments", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		if lineID != "" {
			req.Header.Set("X-Line-User-Id", lineID)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("U1").Code)
	rec := send("U1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Same IP, different LINE user gets its own bucket.
	assert.Equal(t, http.StatusOK, send("U2").Code)

	// Anonymous callers share the IP bucket.
	assert.Equal(t, http.StatusOK, send("").Code)
	assert.Equal(t, http.StatusTooManyRequests, send("").Code)
}

func TestRateLimiterRefillsAndSweepsIdleCallers(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, 1)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("line:U1"))
	assert.False(t, rl.Allow("line:U1"))
	assert.Equal(t, "1", rl.retryAfter())

	now = now.Add(500 * time.Millisecond)
	assert.True(t, rl.Allow("line:U1"))

	assert.True(t, rl.Allow("ip:10.0.0.1"))
	assert.Equal(t, 2, rl.Len())

	now = now.Add(limiterIdleTTL + time.Minute)
	assert.True(t, rl.Allow("line:U3"))
	assert.Equal(t, 1, rl.Len())
}
