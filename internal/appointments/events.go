package appointments

import "time"

// Event types written to the outbox.
const (
	EventTypeCreated          = "appointment.created.v1"
	EventTypeConfirmed        = "appointment.confirmed.v1"
	EventTypeCheckedIn        = "appointment.checked_in.v1"
	EventTypeCompleted        = "appointment.completed.v1"
	EventTypeCancelled        = "appointment.cancelled.v1"
	EventTypePaymentConfirmed = "appointment.payment_confirmed.v1"
	EventTypeRescheduled      = "appointment.rescheduled.v1"
	EventTypeReviewSubmitted  = "appointment.review_submitted.v1"
)

// AggregateID is the outbox aggregate for an appointment.
func AggregateID(id string) string {
	return "appointment:" + id
}

// Every event carries the appointment as committed.

type AppointmentCreatedV1 struct {
	Appointment Appointment `json:"appointment"`
	Actor       Actor       `json:"actor"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

func (AppointmentCreatedV1) EventType() string { return EventTypeCreated }

type AppointmentConfirmedV1 struct {
	Appointment Appointment `json:"appointment"`
	Actor       Actor       `json:"actor"`
	From        Status      `json:"from,omitempty"`
	ViaPayment  bool        `json:"via_payment"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

func (AppointmentConfirmedV1) EventType() string { return EventTypeConfirmed }

type AppointmentCheckedInV1 struct {
	Appointment Appointment `json:"appointment"`
	Actor       Actor       `json:"actor"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

func (AppointmentCheckedInV1) EventType() string { return EventTypeCheckedIn }

type AppointmentCompletedV1 struct {
	Appointment Appointment `json:"appointment"`
	Actor       Actor       `json:"actor"`
	From        Status      `json:"from,omitempty"`
	// AwardVisitPoints is true only on the write that flipped VisitPointsAwarded.
	AwardVisitPoints bool      `json:"award_visit_points"`
	OccurredAt       time.Time `json:"occurred_at"`
}

func (AppointmentCompletedV1) EventType() string { return EventTypeCompleted }

type AppointmentCancelledV1 struct {
	Appointment          Appointment `json:"appointment"`
	Actor                Actor       `json:"actor"`
	From                 Status      `json:"from,omitempty"`
	Reason               string      `json:"reason"`
	CancelledBy          Role        `json:"cancelled_by"`
	SuppressNotification bool        `json:"suppress_notification"`
	OccurredAt           time.Time   `json:"occurred_at"`
}

func (AppointmentCancelledV1) EventType() string { return EventTypeCancelled }

type PaymentConfirmedV1 struct {
	Appointment       Appointment `json:"appointment"`
	Actor             Actor       `json:"actor"`
	Amount            int64       `json:"amount"`
	Method            string      `json:"method"`
	FirstConfirmation bool        `json:"first_confirmation"`
	OccurredAt        time.Time   `json:"occurred_at"`
}

func (PaymentConfirmedV1) EventType() string { return EventTypePaymentConfirmed }

type AppointmentRescheduledV1 struct {
	Appointment     Appointment `json:"appointment"`
	Actor           Actor       `json:"actor"`
	PreviousDate    string      `json:"previous_date"`
	PreviousTime    string      `json:"previous_time"`
	PreviousStaffID string      `json:"previous_staff_id,omitempty"`
	OccurredAt      time.Time   `json:"occurred_at"`
}

func (AppointmentRescheduledV1) EventType() string { return EventTypeRescheduled }

type ReviewSubmittedV1 struct {
	Appointment Appointment `json:"appointment"`
	Actor       Actor       `json:"actor"`
	Rating      int         `json:"rating"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

func (ReviewSubmittedV1) EventType() string { return EventTypeReviewSubmitted }
