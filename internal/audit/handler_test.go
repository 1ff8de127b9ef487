package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

type stubQuerier struct {
	got  Filter
	list []Event
	err  error
}

func (s *stubQuerier) QueryEvents(_ context.Context, filter Filter) ([]Event, error) {
	s.got = filter
	return s.list, s.err
}

func TestHandlerListParsesFilter(t *testing.T) {
	store := &stubQuerier{list: []Event{{ID: "e1", AppointmentID: "a1"}}}
	router := NewHandler(store, logging.Discard()).Routes()

	req := httptest.NewRequest(http.MethodGet, "/?appointment_id=a1&event_type=a,+b&from=2025-06-01T00:00:00Z&limit=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "a1", store.got.AppointmentID)
	assert.Equal(t, []string{"a", "b"}, store.got.EventTypes)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), store.got.StartTime)
	assert.Equal(t, 5, store.got.Limit)

	var body struct {
		Events []Event `json:"events"`
		Count  int     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestHandlerRejectsBadParams(t *testing.T) {
	router := NewHandler(&stubQuerier{}, logging.Discard()).Routes()
	for _, q := range []string{"?from=yesterday", "?limit=0", "?limit=5000", "?offset=-1"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHandlerForAppointment(t *testing.T) {
	store := &stubQuerier{}
	router := NewHandler(store, logging.Discard()).Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/a9", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a9", store.got.AppointmentID)
	assert.JSONEq(t, `{"events":[],"count":0}`, rec.Body.String())

	store.err = errors.New("db down")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/a9", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
