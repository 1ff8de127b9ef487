// Package appointments owns slot allocation and the appointment lifecycle.
package appointments

import (
	"time"
)

// AutoAssignStaff means no specific staff member was requested.
const AutoAssignStaff = "auto-assign"

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type CustomerInfo struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address,omitempty"`
	Note       string `json:"note,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	LineUserID string `json:"line_user_id,omitempty"`
}

type AddOn struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Duration int    `json:"duration"`
}

type ServiceInfo struct {
	ServiceID string  `json:"service_id"`
	Name      string  `json:"name"`
	Duration  int     `json:"duration"`
	ImageURL  string  `json:"image_url,omitempty"`
	AddOns    []AddOn `json:"add_ons,omitempty"`
}

// AppointmentInfo is scheduling data derived from date, time and service.
type AppointmentInfo struct {
	DateTime time.Time `json:"date_time"`
	Duration int       `json:"duration"`
	StaffID  string    `json:"staff_id,omitempty"`
}

// HasStaff reports whether a specific staff member is assigned.
func (i AppointmentInfo) HasStaff() bool {
	return i.StaffID != "" && i.StaffID != AutoAssignStaff
}

// EndsAt returns DateTime plus Duration.
func (i AppointmentInfo) EndsAt() time.Time {
	return i.DateTime.Add(time.Duration(i.Duration) * time.Minute)
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPending  PaymentStatus = "pending"
	PaymentInvoiced PaymentStatus = "invoiced"
	PaymentPaid     PaymentStatus = "paid"
)

// PaymentInfo amounts are whole baht.
type PaymentInfo struct {
	BasePrice     int64         `json:"base_price"`
	AddOnsTotal   int64         `json:"add_ons_total"`
	OriginalPrice int64         `json:"original_price"`
	Discount      int64         `json:"discount"`
	TotalPrice    int64         `json:"total_price"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	AmountPaid    int64         `json:"amount_paid"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
}

// Outstanding is what remains to be paid.
func (p PaymentInfo) Outstanding() int64 {
	if p.AmountPaid >= p.TotalPrice {
		return 0
	}
	return p.TotalPrice - p.AmountPaid
}

type CancellationInfo struct {
	CancelledBy Role      `json:"cancelled_by"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

type CheckIn struct {
	StartedAt time.Time `json:"started_at"`
	StartedBy string    `json:"started_by"`
}

type Review struct {
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Appointment struct {
	ID                    string            `json:"id"`
	Date                  string            `json:"date"`
	Time                  string            `json:"time"`
	Status                Status            `json:"status"`
	CustomerInfo          CustomerInfo      `json:"customer_info"`
	ServiceInfo           ServiceInfo       `json:"service_info"`
	AppointmentInfo       AppointmentInfo   `json:"appointment_info"`
	PaymentInfo           PaymentInfo       `json:"payment_info"`
	CancellationInfo      *CancellationInfo `json:"cancellation_info,omitempty"`
	CheckIn               *CheckIn          `json:"check_in,omitempty"`
	CompletedAt           *time.Time        `json:"completed_at,omitempty"`
	Review                *Review           `json:"review,omitempty"`
	GoogleCalendarEventID string            `json:"google_calendar_event_id,omitempty"`
	VisitPointsAwarded    bool              `json:"visit_points_awarded"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// SlotKey identifies the capacity bucket of an appointment.
func SlotKey(date, timeLabel string) string {
	return date + "|" + timeLabel
}

// Clone returns a deep copy safe to hand to another goroutine.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	cp := *a
	cp.ServiceInfo.AddOns = append([]AddOn(nil), a.ServiceInfo.AddOns...)
	if a.PaymentInfo.PaidAt != nil {
		t := *a.PaymentInfo.PaidAt
		cp.PaymentInfo.PaidAt = &t
	}
	if a.CancellationInfo != nil {
		c := *a.CancellationInfo
		cp.CancellationInfo = &c
	}
	if a.CheckIn != nil {
		c := *a.CheckIn
		cp.CheckIn = &c
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		cp.CompletedAt = &t
	}
	if a.Review != nil {
		r := *a.Review
		cp.Review = &r
	}
	return &cp
}

// OwnedBy reports whether a customer identity owns the appointment.
func (a *Appointment) OwnedBy(customerID string) bool {
	if customerID == "" {
		return false
	}
	return a.CustomerInfo.LineUserID == customerID || a.CustomerInfo.CustomerID == customerID
}

// Role identifies who is acting on an appointment.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
	RoleEmployee Role = "employee"
	RoleSystem   Role = "system"
)

// Actor is the caller of a lifecycle operation. For customers ID is the LINE
// user id or customer id.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor is used by bulk and background processes.
var SystemActor = Actor{ID: "system", Role: RoleSystem}
