package calendar

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/internal/events"
	"github.com/wolfman30/salon-booking-platform/internal/settings"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

type fakeSyncer struct {
	upserts []appointments.Appointment
	deletes []string
	nextID  string
	err     error
}

func (f *fakeSyncer) UpsertEvent(_ context.Context, a appointments.Appointment) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.upserts = append(f.upserts, a)
	if a.GoogleCalendarEventID != "" {
		return a.GoogleCalendarEventID, nil
	}
	return f.nextID, nil
}

func (f *fakeSyncer) DeleteEvent(_ context.Context, eventID string) error {
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, eventID)
	return nil
}

type fakeStore struct {
	stored map[string]string
	sets   []string
}

func (f *fakeStore) Get(_ context.Context, id string) (*appointments.Appointment, error) {
	eventID, ok := f.stored[id]
	if !ok {
		return nil, appointments.ErrNotFound
	}
	return &appointments.Appointment{ID: id, GoogleCalendarEventID: eventID}, nil
}

func (f *fakeStore) SetCalendarEventID(_ context.Context, id, eventID string) error {
	f.stored[id] = eventID
	f.sets = append(f.sets, eventID)
	return nil
}

func syncSettings(t *testing.T, enabled bool) *settings.MemoryStore {
	t.Helper()
	store := settings.NewMemoryStore()
	require.NoError(t, store.SaveBookingSettings(context.Background(), &settings.BookingSettings{CalendarSyncEnabled: enabled}))
	return store
}

func envelope(t *testing.T, evt events.CanonicalEvent) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope("appointment:a1", "", evt, events.WithEventID(uuid.New()))
	require.NoError(t, err)
	return env
}

func TestSubscriberSkipsWhenSyncDisabled(t *testing.T) {
	syncer := &fakeSyncer{nextID: "evt-1"}
	store := &fakeStore{stored: map[string]string{"a1": ""}}
	sub := NewSubscriber(syncer, store, syncSettings(t, false), logging.Discard())

	require.NoError(t, sub.Handle(context.Background(), envelope(t, appointments.AppointmentConfirmedV1{Appointment: testAppointment()})))
	assert.Empty(t, syncer.upserts)
}

func TestSubscriberConfirmedStoresEventID(t *testing.T) {
	syncer := &fakeSyncer{nextID: "evt-1"}
	store := &fakeStore{stored: map[string]string{"a1": ""}}
	sub := NewSubscriber(syncer, store, syncSettings(t, true), logging.Discard())

	require.NoError(t, sub.Handle(context.Background(), envelope(t, appointments.AppointmentConfirmedV1{Appointment: testAppointment()})))
	require.Len(t, syncer.upserts, 1)
	assert.Equal(t, "evt-1", store.stored["a1"])
}

func TestSubscriberCreatedOnlySyncsConfirmed(t *testing.T) {
	syncer := &fakeSyncer{nextID: "evt-1"}
	store := &fakeStore{stored: map[string]string{"a1": ""}}
	sub := NewSubscriber(syncer, store, nil, logging.Discard())
	ctx := context.Background()

	awaiting := testAppointment()
	awaiting.Status = appointments.StatusAwaitingConfirmation
	require.NoError(t, sub.Handle(ctx, envelope(t, appointments.AppointmentCreatedV1{Appointment: awaiting})))
	assert.Empty(t, syncer.upserts)

	require.NoError(t, sub.Handle(ctx, envelope(t, appointments.AppointmentCreatedV1{Appointment: testAppointment()})))
	assert.Len(t, syncer.upserts, 1)
}

func TestSubscriberRescheduleUsesStoredEventID(t *testing.T) {
	syncer := &fakeSyncer{}
	store := &fakeStore{stored: map[string]string{"a1": "evt-9"}}
	sub := NewSubscriber(syncer, store, nil, logging.Discard())

	require.NoError(t, sub.Handle(context.Background(), envelope(t, appointments.AppointmentRescheduledV1{Appointment: testAppointment()})))
	require.Len(t, syncer.upserts, 1)
	assert.Equal(t, "evt-9", syncer.upserts[0].GoogleCalendarEventID)
	assert.Empty(t, store.sets)
}

func TestSubscriberCancelledAndCompletedRemoveEvent(t *testing.T) {
	for _, evt := range []events.CanonicalEvent{
		appointments.AppointmentCancelledV1{Appointment: testAppointment()},
		appointments.AppointmentCompletedV1{Appointment: testAppointment()},
	} {
		t.Run(evt.EventType(), func(t *testing.T) {
			syncer := &fakeSyncer{}
			store := &fakeStore{stored: map[string]string{"a1": "evt-3"}}
			sub := NewSubscriber(syncer, store, nil, logging.Discard())

			require.NoError(t, sub.Handle(context.Background(), envelope(t, evt)))
			assert.Equal(t, []string{"evt-3"}, syncer.deletes)
			assert.Equal(t, "", store.stored["a1"])
		})
	}
}

func TestSubscriberCancelWithoutEventIsNoop(t *testing.T) {
	syncer := &fakeSyncer{}
	store := &fakeStore{stored: map[string]string{}}
	sub := NewSubscriber(syncer, store, nil, logging.Discard())

	require.NoError(t, sub.Handle(context.Background(), envelope(t, appointments.AppointmentCancelledV1{Appointment: testAppointment()})))
	assert.Empty(t, syncer.deletes)
}

func TestSubscriberReturnsSyncErrorForRetry(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("calendar down")}
	store := &fakeStore{stored: map[string]string{"a1": ""}}
	sub := NewSubscriber(syncer, store, nil, logging.Discard())

	err := sub.Handle(context.Background(), envelope(t, appointments.AppointmentConfirmedV1{Appointment: testAppointment()}))
	assert.Error(t, err)
	assert.Empty(t, store.sets)
}
