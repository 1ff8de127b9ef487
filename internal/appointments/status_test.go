package appointments

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := map[string]Status{
		"pending":               StatusAwaitingConfirmation,
		" PENDING ":             StatusAwaitingConfirmation,
		"awaiting_confirmation": StatusAwaitingConfirmation,
		"confirmed":             StatusConfirmed,
		"in_progress":           StatusInProgress,
		"completed":             StatusCompleted,
		"cancelled":             StatusCancelled,
	}
	for raw, want := range tests {
		got, ok := ParseStatus(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseStatus("no_show")
	assert.False(t, ok)
}

func TestDocumentDecodeNormalizesLegacyStatus(t *testing.T) {
	var a Appointment
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a1","status":"pending"}`), &a))
	assert.Equal(t, StatusAwaitingConfirmation, a.Status)
	assert.True(t, a.Status.IsActive())

	err := json.Unmarshal([]byte(`{"id":"a1","status":"lost"}`), &a)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEmptyStatusDecodesToZero(t *testing.T) {
	var a Appointment
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a1","status":""}`), &a))
	assert.Equal(t, Status(""), a.Status)

	var evt AppointmentCompletedV1
	require.NoError(t, json.Unmarshal([]byte(`{"appointment":{"id":"a1","status":"completed"},"from":""}`), &evt))
	assert.Equal(t, Status(""), evt.From)
	assert.Equal(t, StatusCompleted, evt.Appointment.Status)

	data, err := json.Marshal(AppointmentCompletedV1{Appointment: Appointment{ID: "a1", Status: StatusCompleted}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"from"`)
	require.NoError(t, json.Unmarshal(data, &evt))
}

func TestActiveAndTerminal(t *testing.T) {
	for _, s := range allStatuses {
		assert.NotEqual(t, s.IsActive(), s.IsTerminal(), s)
	}
}

func TestComputePaymentClampsDiscount(t *testing.T) {
	addOns := []AddOn{{Name: "a", Price: 100}, {Name: "b", Price: 50}}

	p := ComputePayment(400, addOns, 1000)
	assert.Equal(t, int64(550), p.OriginalPrice)
	assert.Equal(t, int64(550), p.Discount)
	assert.Zero(t, p.TotalPrice)

	p = ComputePayment(400, addOns, -20)
	assert.Zero(t, p.Discount)
	assert.Equal(t, int64(550), p.TotalPrice)
	assert.Equal(t, PaymentUnpaid, p.PaymentStatus)
}

func TestTotalDuration(t *testing.T) {
	assert.Equal(t, 95, TotalDuration(60, []AddOn{{Duration: 15}, {Duration: 20}}))
}
