package points

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
	"github.com/wolfman30/salon-booking-platform/internal/customers"
	"github.com/wolfman30/salon-booking-platform/internal/events"
	"github.com/wolfman30/salon-booking-platform/internal/settings"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

type completion struct {
	id      string
	earned  int64
	balance int64
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []completion
	err   error
}

func (f *fakeNotifier) ServiceCompleted(_ context.Context, a appointments.Appointment, earned, balance int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, completion{id: a.ID, earned: earned, balance: balance})
	return f.err
}

type failingBalances struct{ err error }

func (f failingBalances) AddPoints(context.Context, string, int64, string) (int64, error) {
	return 0, f.err
}

func (f failingBalances) AddPointsOnce(context.Context, string, string, int64, string) (int64, bool, error) {
	return 0, false, f.err
}

// slowBalances widens the window between reading and writing a balance.
type slowBalances struct {
	*customers.Directory
	delay time.Duration
}

func (s slowBalances) AddPointsOnce(ctx context.Context, customerID, key string, delta int64, reason string) (int64, bool, error) {
	time.Sleep(s.delay)
	return s.Directory.AddPointsOnce(ctx, customerID, key, delta, reason)
}

func setup(t *testing.T) (*Ledger, *customers.Directory, *fakeNotifier, string) {
	t.Helper()
	dir := customers.NewDirectory(customers.NewMemoryStore(), logging.Discard())
	res, err := dir.FindOrCreate(context.Background(), customers.CustomerData{FullName: "Suda", Phone: "0812345678"}, "U1")
	require.NoError(t, err)
	notifier := &fakeNotifier{}
	ledger := NewLedger(dir, settings.NewMemoryStore(), logging.Discard(), WithCompletionNotifier(notifier))
	return ledger, dir, notifier, res.CustomerID
}

func envelope(t *testing.T, evt events.CanonicalEvent) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope("appointment:a1", "", evt, events.WithEventID(uuid.New()))
	require.NoError(t, err)
	return env
}

func completedAppointment(customerID string, total int64) appointments.Appointment {
	return appointments.Appointment{
		ID:           "a1",
		Status:       appointments.StatusCompleted,
		CustomerInfo: appointments.CustomerInfo{CustomerID: customerID, LineUserID: "U1"},
		PaymentInfo:  appointments.PaymentInfo{TotalPrice: total},
	}
}

func TestCompletionAwardsPurchaseAndVisitPoints(t *testing.T) {
	ledger, dir, notifier, id := setup(t)

	err := ledger.Handle(context.Background(), envelope(t, appointments.AppointmentCompletedV1{
		Appointment:      completedAppointment(id, 550),
		AwardVisitPoints: true,
	}))
	require.NoError(t, err)

	cust, err := dir.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(15), cust.Points)
	assert.Equal(t, []completion{{id: "a1", earned: 15, balance: 15}}, notifier.calls)
}

func TestCompletionWithoutVisitFlagOnlyAwardsPurchase(t *testing.T) {
	ledger, dir, notifier, id := setup(t)

	require.NoError(t, ledger.Handle(context.Background(), envelope(t, appointments.AppointmentCompletedV1{
		Appointment: completedAppointment(id, 300),
	})))

	cust, err := dir.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cust.Points)
	assert.Equal(t, int64(3), notifier.calls[0].earned)
}

func TestCompletionRespectsDisabledRates(t *testing.T) {
	dir := customers.NewDirectory(customers.NewMemoryStore(), logging.Discard())
	res, err := dir.FindOrCreate(context.Background(), customers.CustomerData{FullName: "Suda", Phone: "0812345678"}, "U1")
	require.NoError(t, err)
	store := settings.NewMemoryStore()
	require.NoError(t, store.SavePointSettings(context.Background(), &settings.PointSettings{EnableVisitPoints: true, PointsPerVisit: 10}))
	notifier := &fakeNotifier{}
	ledger := NewLedger(dir, store, logging.Discard(), WithCompletionNotifier(notifier))

	require.NoError(t, ledger.Handle(context.Background(), envelope(t, appointments.AppointmentCompletedV1{
		Appointment:      completedAppointment(res.CustomerID, 5000),
		AwardVisitPoints: true,
	})))
	cust, err := dir.Get(context.Background(), res.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cust.Points)
}

func TestCompletionWithoutIdentityStillNotifies(t *testing.T) {
	ledger, _, notifier, _ := setup(t)
	appt := completedAppointment("", 500)
	appt.CustomerInfo.LineUserID = ""

	require.NoError(t, ledger.Handle(context.Background(), envelope(t, appointments.AppointmentCompletedV1{Appointment: appt, AwardVisitPoints: true})))
	assert.Equal(t, []completion{{id: "a1"}}, notifier.calls)
}

func TestCompletionUnknownCustomerIsSkipped(t *testing.T) {
	ledger, _, notifier, _ := setup(t)

	require.NoError(t, ledger.Handle(context.Background(), envelope(t, appointments.AppointmentCompletedV1{
		Appointment:      completedAppointment("ghost", 500),
		AwardVisitPoints: true,
	})))
	assert.Equal(t, int64(0), notifier.calls[0].earned)
}

func TestCompletionStorageErrorIsRetried(t *testing.T) {
	notifier := &fakeNotifier{}
	ledger := NewLedger(failingBalances{err: errors.New("db down")}, nil, logging.Discard(), WithCompletionNotifier(notifier))

	err := ledger.Handle(context.Background(), envelope(t, appointments.AppointmentCompletedV1{
		Appointment: completedAppointment("c1", 500),
	}))
	require.Error(t, err)
	assert.Empty(t, notifier.calls)
}

func TestCompletionNotificationFailureDoesNotFail(t *testing.T) {
	ledger, _, notifier, id := setup(t)
	notifier.err = errors.New("line down")

	require.NoError(t, ledger.Handle(context.Background(), envelope(t, appointments.AppointmentCompletedV1{
		Appointment: completedAppointment(id, 500),
	})))
}

func TestReviewPoints(t *testing.T) {
	ledger, dir, _, id := setup(t)

	require.NoError(t, ledger.Handle(context.Background(), envelope(t, appointments.ReviewSubmittedV1{
		Appointment: completedAppointment(id, 0),
		Rating:      5,
	})))
	cust, err := dir.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), cust.Points)
}

func TestBusRedeliveryDoesNotDoubleAward(t *testing.T) {
	ledger, dir, _, id := setup(t)
	bus := events.NewBus(events.NewMemoryProcessedStore(), logging.Discard())
	bus.Subscribe("points", ledger, EventTypes...)

	env := envelope(t, appointments.AppointmentCompletedV1{Appointment: completedAppointment(id, 1000), AwardVisitPoints: true})
	require.NoError(t, bus.Handle(context.Background(), env))
	require.NoError(t, bus.Handle(context.Background(), env))

	cust, err := dir.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(20), cust.Points)
}

func TestConcurrentCompletionDeliveriesAwardOnce(t *testing.T) {
	ledger, dir, notifier, id := setup(t)
	slow := NewLedger(slowBalances{Directory: dir, delay: 5 * time.Millisecond}, settings.NewMemoryStore(), logging.Discard(), WithCompletionNotifier(notifier))
	bus := events.NewBus(events.NewMemoryProcessedStore(), logging.Discard())
	bus.Subscribe("points", slow, EventTypes...)
	env := envelope(t, appointments.AppointmentCompletedV1{Appointment: completedAppointment(id, 1000), AwardVisitPoints: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Handle(context.Background(), env)
		}()
	}
	wg.Wait()

	cust, err := dir.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(20), cust.Points)

	// the award key holds even when the claim is bypassed
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ledger.Handle(context.Background(), env)
		}()
	}
	wg.Wait()

	cust, err = dir.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(20), cust.Points)
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Len(t, notifier.calls, 1)
}

func TestRepeatedReviewAwardsOnce(t *testing.T) {
	ledger, dir, _, id := setup(t)
	env := envelope(t, appointments.ReviewSubmittedV1{Appointment: completedAppointment(id, 0), Rating: 4})

	require.NoError(t, ledger.Handle(context.Background(), env))
	require.NoError(t, ledger.Handle(context.Background(), envelope(t, appointments.ReviewSubmittedV1{Appointment: completedAppointment(id, 0), Rating: 5})))

	cust, err := dir.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), cust.Points)
}

func TestAwardHelpers(t *testing.T) {
	ledger, _, _, id := setup(t)
	ctx := context.Background()

	a, err := ledger.AwardPurchasePoints(ctx, id, 250)
	require.NoError(t, err)
	assert.Equal(t, Award{Purchase: 2, Balance: 2}, a)

	a, err = ledger.AwardVisitPoints(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(12), a.Balance)

	a, err = ledger.AwardPurchasePoints(ctx, id, 99)
	require.NoError(t, err)
	assert.Zero(t, a.Total())
	assert.Zero(t, a.Balance)
}
