package audit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/internal/events"
)

func TestLogEventDefaultsIDAndTime(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO appointment_audit_events").
		WithArgs(sqlmock.AnyArg(), appointments.EventTypeCreated, "a1", "U1", "customer",
			nil, "awaiting_confirmation", nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewService(db).LogEvent(context.Background(), Event{
		EventType:     appointments.EventTypeCreated,
		AppointmentID: "a1",
		ActorID:       "U1",
		ActorRole:     "customer",
		ToStatus:      "awaiting_confirmation",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogEventWrapsError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO appointment_audit_events").WillReturnError(errors.New("boom"))
	err = NewService(db).LogEvent(context.Background(), Event{EventType: "x", AppointmentID: "a1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit: failed to log event")
}

func TestHandleCancelledEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	evt := appointments.AppointmentCancelledV1{
		Appointment: appointments.Appointment{ID: "a1", Status: appointments.StatusCancelled},
		Actor:       appointments.Actor{ID: "admin-1", Role: appointments.RoleAdmin},
		From:        appointments.StatusConfirmed,
		Reason:      "customer called",
	}
	eventID := uuid.New()
	env, err := events.NewEnvelope("appointment:a1", "", evt, events.WithEventID(eventID))
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO appointment_audit_events").
		WithArgs(eventID.String(), appointments.EventTypeCancelled, "a1", "admin-1", "admin",
			"confirmed", "cancelled", "customer called", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewService(db).Handle(context.Background(), env))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlePaymentKeepsDetails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	evt := appointments.PaymentConfirmedV1{
		Appointment:       appointments.Appointment{ID: "a1", Status: appointments.StatusConfirmed},
		Actor:             appointments.Actor{ID: "admin-1", Role: appointments.RoleAdmin},
		Amount:            500,
		Method:            "promptpay",
		FirstConfirmation: true,
	}
	env, err := events.NewEnvelope("appointment:a1", "", evt)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO appointment_audit_events").
		WithArgs(sqlmock.AnyArg(), appointments.EventTypePaymentConfirmed, "a1", "admin-1", "admin",
			nil, "confirmed", nil,
			[]byte(`{"amount":500,"method":"promptpay","first_confirmation":true}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewService(db).Handle(context.Background(), env))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryEventsBuildsFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	created := start.Add(time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "event_type", "appointment_id", "actor_id", "actor_role",
		"from_status", "to_status", "reason", "details", "created_at",
	}).
		AddRow("e2", appointments.EventTypeCompleted, "a1", "st-1", "employee", "in_progress", "completed", nil, nil, created).
		AddRow("e1", appointments.EventTypeConfirmed, "a1", "U1", "customer", "awaiting_confirmation", "confirmed", nil, []byte(`{"amount":1}`), start)

	mock.ExpectQuery(regexp.QuoteMeta("AND appointment_id = $1 AND event_type = ANY($2) AND created_at >= $3 ORDER BY created_at DESC LIMIT 10")).
		WithArgs("a1", sqlmock.AnyArg(), start).
		WillReturnRows(rows)

	list, err := NewService(db).QueryEvents(context.Background(), Filter{
		AppointmentID: "a1",
		EventTypes:    []string{appointments.EventTypeCompleted, appointments.EventTypeConfirmed},
		StartTime:     start,
		Limit:         10,
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "in_progress", list[0].FromStatus)
	assert.Empty(t, list[0].Reason)
	assert.Nil(t, list[0].Details)
	assert.JSONEq(t, `{"amount":1}`, string(list[1].Details))
	assert.NoError(t, mock.ExpectationsWereMet())
}
