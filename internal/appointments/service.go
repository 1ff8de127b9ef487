package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/salon-booking-platform/internal/catalog"
	"github.com/wolfman30/salon-booking-platform/internal/customers"
	"github.com/wolfman30/salon-booking-platform/internal/events"
	"github.com/wolfman30/salon-booking-platform/internal/observability/metrics"
	"github.com/wolfman30/salon-booking-platform/pkg/logging"
)

var appointmentsTracer = otel.Tracer("salon.internal.appointments")

// CustomerResolver links a booking to a customer record.
type CustomerResolver interface {
	FindOrCreate(ctx context.Context, data customers.CustomerData, lineUserID string) (*customers.FindOrCreateResult, error)
}

// Service is the single writer of appointments.
type Service struct {
	repo      Repository
	checker   *Checker
	catalog   catalog.Catalog
	customers CustomerResolver
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	loc       *time.Location
	now       func() time.Time
	newID     func() string
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

func WithCustomerResolver(r CustomerResolver) ServiceOption {
	return func(s *Service) { s.customers = r }
}

func WithMetrics(m *metrics.BookingMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLocation sets the zone appointment dates and times are expressed in.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo Repository, checker *Checker, cat catalog.Catalog, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if checker == nil {
		panic("appointments: checker required")
	}
	if cat == nil {
		panic("appointments: catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:    repo,
		checker: checker,
		catalog: cat,
		logger:  logger,
		loc:     time.UTC,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest is a booking draft. Only ServiceID and add-on names are taken
// from the client; prices and durations come from the catalog.
type CreateRequest struct {
	Date       string       `json:"date"`
	Time       string       `json:"time"`
	ServiceID  string       `json:"service_id"`
	AddOns     []string     `json:"add_ons,omitempty"`
	StaffID    string       `json:"staff_id,omitempty"`
	Discount   int64        `json:"discount,omitempty"`
	Customer   CustomerInfo `json:"customer"`
	LineUserID string       `json:"line_user_id,omitempty"`
	// Confirmed books straight into confirmed. Admin only.
	Confirmed bool `json:"confirmed,omitempty"`
}

func (r *CreateRequest) normalize() {
	r.Date = strings.TrimSpace(r.Date)
	r.Time = strings.TrimSpace(r.Time)
	r.ServiceID = strings.TrimSpace(r.ServiceID)
	r.StaffID = strings.TrimSpace(r.StaffID)
	r.LineUserID = strings.TrimSpace(r.LineUserID)
	r.Customer.Name = strings.TrimSpace(r.Customer.Name)
	r.Customer.Phone = customers.NormalizePhone(r.Customer.Phone)
}

func (r *CreateRequest) validate() error {
	switch {
	case r.Date == "":
		return missing("date")
	case r.Time == "":
		return missing("time")
	case r.ServiceID == "":
		return missing("service_id")
	case r.Customer.Name == "":
		return missing("customer.name")
	case r.Customer.Phone == "" && r.LineUserID == "":
		return missing("customer.phone")
	}
	return nil
}

func (s *Service) dateTime(date, timeLabel string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+timeLabel, s.loc)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "time", Reason: "invalid date or time"}
	}
	return t, nil
}

func (s *Service) requireStaff(ctx context.Context, staffID string) error {
	bs, err := s.checker.bookingSettings(ctx)
	if err != nil {
		return err
	}
	if bs != nil && bs.StaffAssignmentRequired && (staffID == "" || staffID == AutoAssignStaff) {
		return &ValidationError{Field: "staff_id", Reason: "a staff member must be selected"}
	}
	return nil
}

func (s *Service) resolveService(ctx context.Context, serviceID string, addOnNames []string) (ServiceInfo, int64, error) {
	svc, err := s.catalog.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return ServiceInfo{}, 0, fmt.Errorf("%w: service %s", ErrNotFound, serviceID)
		}
		return ServiceInfo{}, 0, fmt.Errorf("appointments: load service: %w", err)
	}
	info := ServiceInfo{
		ServiceID: svc.ID,
		Name:      svc.Name,
		Duration:  svc.Duration,
		ImageURL:  svc.ImageURL,
	}
	for _, name := range addOnNames {
		if strings.TrimSpace(name) == "" {
			continue
		}
		a, ok := svc.FindAddOn(name)
		if !ok {
			return ServiceInfo{}, 0, &ValidationError{Field: "add_ons", Reason: "unknown add-on " + name}
		}
		info.AddOns = append(info.AddOns, AddOn{Name: a.Name, Price: a.Price, Duration: a.Duration})
	}
	return info, svc.Price, nil
}

// Create books a slot. The capacity check and the insert are atomic.
func (s *Service) Create(ctx context.Context, req CreateRequest, actor Actor) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.create")
	defer span.End()
	started := time.Now()
	defer func() { s.metrics.ObserveLatency("create", time.Since(started).Seconds()) }()

	req.normalize()
	span.SetAttributes(
		attribute.String("salon.slot.date", req.Date),
		attribute.String("salon.slot.time", req.Time),
		attribute.String("salon.service_id", req.ServiceID),
	)

	appt, err := s.create(ctx, req, actor)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveBooking(bookingOutcome(err))
		return nil, err
	}
	s.metrics.ObserveBooking("created")
	s.logger.Info("appointment created", "appointment_id", appt.ID, "date", appt.Date, "time", appt.Time, "status", appt.Status)
	return appt, nil
}

func (s *Service) create(ctx context.Context, req CreateRequest, actor Actor) (*Appointment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Confirmed && actor.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: only admins may book confirmed appointments", ErrPermission)
	}
	if req.Discount != 0 && actor.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: only admins may apply discounts", ErrPermission)
	}
	if err := s.checker.ValidateSlot(ctx, req.Date, req.Time); err != nil {
		return nil, err
	}
	if err := s.requireStaff(ctx, req.StaffID); err != nil {
		return nil, err
	}
	dt, err := s.dateTime(req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	svcInfo, basePrice, err := s.resolveService(ctx, req.ServiceID, req.AddOns)
	if err != nil {
		return nil, err
	}

	custInfo := req.Customer
	custInfo.LineUserID = req.LineUserID
	custInfo.CustomerID = ""

	staff := req.StaffID
	if staff == "" {
		staff = AutoAssignStaff
	}
	status := StatusAwaitingConfirmation
	if req.Confirmed {
		status = StatusConfirmed
	}
	now := s.now()
	appt := &Appointment{
		ID:           s.newID(),
		Date:         req.Date,
		Time:         req.Time,
		Status:       status,
		CustomerInfo: custInfo,
		ServiceInfo:  svcInfo,
		AppointmentInfo: AppointmentInfo{
			DateTime: dt,
			Duration: TotalDuration(svcInfo.Duration, svcInfo.AddOns),
			StaffID:  staff,
		},
		PaymentInfo: ComputePayment(basePrice, svcInfo.AddOns, req.Discount),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	max, err := s.checker.MaxCapacity(ctx, req.Time)
	if err != nil {
		return nil, err
	}
	err = s.repo.CreateIfAvailable(ctx, appt, max, func(a *Appointment) []events.CanonicalEvent {
		return []events.CanonicalEvent{AppointmentCreatedV1{Appointment: *a, Actor: actor, OccurredAt: now}}
	})
	if err != nil {
		return nil, err
	}
	return s.linkCustomer(ctx, appt), nil
}

// linkCustomer resolves the customer record once the slot is held, so a
// rejected booking never creates a customer or merges phone points. Failures
// are logged and leave the booking unlinked.
func (s *Service) linkCustomer(ctx context.Context, appt *Appointment) *Appointment {
	if s.customers == nil {
		return appt
	}
	info := appt.CustomerInfo
	res, err := s.customers.FindOrCreate(ctx, customers.CustomerData{
		FullName: info.Name,
		Phone:    info.Phone,
		Address:  info.Address,
	}, info.LineUserID)
	if err != nil {
		s.logger.Warn("appointments: customer resolution failed", "appointment_id", appt.ID, "error", err)
		return appt
	}
	linked, err := s.repo.Update(ctx, appt.ID, func(a *Appointment) ([]events.CanonicalEvent, error) {
		if a.CustomerInfo.CustomerID == res.CustomerID {
			return nil, ErrUnchanged
		}
		a.CustomerInfo.CustomerID = res.CustomerID
		return nil, nil
	})
	if err != nil {
		s.logger.Warn("appointments: link customer failed", "appointment_id", appt.ID, "customer_id", res.CustomerID, "error", err)
		return appt
	}
	return linked
}

func bookingOutcome(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return "slot_full"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPermission):
		return "forbidden"
	default:
		return "error"
	}
}

// Get returns an appointment by id.
func (s *Service) Get(ctx context.Context, id string) (*Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, missing("id")
	}
	return s.repo.Get(ctx, id)
}

// List returns appointments for the admin console.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	return s.repo.List(ctx, filter)
}

// Delete removes an appointment outright. It bypasses the lifecycle and emits
// no events.
func (s *Service) Delete(ctx context.Context, id string, actor Actor) error {
	if actor.Role != RoleAdmin {
		return ErrPermission
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("appointment deleted", "appointment_id", id, "actor", actor.ID)
	return nil
}

// CheckCapacity exposes the slot checker.
func (s *Service) CheckCapacity(ctx context.Context, date, timeLabel, excludeID string) (CapacityResult, error) {
	return s.checker.CheckCapacity(ctx, date, timeLabel, excludeID)
}

// ListSlots exposes per-time availability for a date.
func (s *Service) ListSlots(ctx context.Context, date string) ([]SlotAvailability, error) {
	return s.checker.ListSlots(ctx, date)
}

// RescheduleInput is the new slot for an appointment.
type RescheduleInput struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	StaffID string `json:"staff_id,omitempty"`
}

// Reschedule moves an appointment to a new slot. The capacity of the new slot
// excludes the appointment itself; when it is full nothing changes.
func (s *Service) Reschedule(ctx context.Context, id string, in RescheduleInput, actor Actor) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("salon.appointment_id", id))

	if actor.Role != RoleAdmin && actor.Role != RoleSystem {
		return nil, ErrPermission
	}
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
	in.StaffID = strings.TrimSpace(in.StaffID)
	if in.Date == "" {
		return nil, missing("date")
	}
	if in.Time == "" {
		return nil, missing("time")
	}
	if err := s.checker.ValidateSlot(ctx, in.Date, in.Time); err != nil {
		return nil, err
	}
	dt, err := s.dateTime(in.Date, in.Time)
	if err != nil {
		return nil, err
	}
	max, err := s.checker.MaxCapacity(ctx, in.Time)
	if err != nil {
		return nil, err
	}

	appt, err := s.repo.Reschedule(ctx, id, in.Date, in.Time, max, func(a *Appointment) ([]events.CanonicalEvent, error) {
		if a.Status.IsTerminal() {
			return nil, &InvalidTransitionError{From: a.Status, To: a.Status}
		}
		staff := in.StaffID
		if staff == "" {
			staff = a.AppointmentInfo.StaffID
		}
		if err := s.requireStaff(ctx, staff); err != nil {
			return nil, err
		}
		if a.Date == in.Date && a.Time == in.Time && a.AppointmentInfo.StaffID == staff {
			return nil, ErrUnchanged
		}
		prev := AppointmentRescheduledV1{
			PreviousDate:    a.Date,
			PreviousTime:    a.Time,
			PreviousStaffID: a.AppointmentInfo.StaffID,
		}
		now := s.now()
		a.Date = in.Date
		a.Time = in.Time
		a.AppointmentInfo.DateTime = dt
		a.AppointmentInfo.StaffID = staff
		a.UpdatedAt = now
		prev.Appointment = *a.Clone()
		prev.Actor = actor
		prev.OccurredAt = now
		return []events.CanonicalEvent{prev}, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("appointment rescheduled", "appointment_id", id, "date", appt.Date, "time", appt.Time, "actor", actor.ID)
	return appt, nil
}

// SetCalendarEventID records the external calendar reference.
func (s *Service) SetCalendarEventID(ctx context.Context, id, eventID string) error {
	_, err := s.repo.Update(ctx, id, func(a *Appointment) ([]events.CanonicalEvent, error) {
		if a.GoogleCalendarEventID == eventID {
			return nil, ErrUnchanged
		}
		a.GoogleCalendarEventID = eventID
		a.UpdatedAt = s.now()
		return nil, nil
	})
	return err
}

// ReviewInput is a customer's rating of a completed visit.
type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// SubmitReview records a review once per completed appointment.
func (s *Service) SubmitReview(ctx context.Context, id string, actor Actor, in ReviewInput) (*Appointment, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, &ValidationError{Field: "rating", Reason: "must be between 1 and 5"}
	}
	return s.repo.Update(ctx, id, func(a *Appointment) ([]events.CanonicalEvent, error) {
		if actor.Role == RoleCustomer && !a.OwnedBy(actor.ID) {
			return nil, ErrPermission
		}
		if actor.Role != RoleCustomer && actor.Role != RoleAdmin {
			return nil, ErrPermission
		}
		if a.Status != StatusCompleted {
			return nil, &InvalidTransitionError{From: a.Status, To: StatusCompleted}
		}
		if a.Review != nil {
			return nil, &ValidationError{Field: "review", Reason: "already submitted"}
		}
		now := s.now()
		a.Review = &Review{Rating: in.Rating, Comment: strings.TrimSpace(in.Comment), SubmittedAt: now}
		a.UpdatedAt = now
		return []events.CanonicalEvent{ReviewSubmittedV1{Appointment: *a.Clone(), Actor: actor, Rating: in.Rating, OccurredAt: now}}, nil
	})
}
