// Package settings owns booking, notification, points and payment configuration.
package settings

import (
	"strings"
	"time"
)

// DaySchedule holds opening hours for one weekday in "15:04" form.
type DaySchedule struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed"`
}

// TimeQueue overrides the capacity of a single time slot.
type TimeQueue struct {
	Time  string `json:"time"`
	Count int    `json:"count"`
}

// BookingSettings drives slot validation and capacity.
type BookingSettings struct {
	WeeklySchedule          map[string]DaySchedule `json:"weekly_schedule,omitempty"` // keyed by lower-case weekday
	HolidayDates            []string               `json:"holiday_dates,omitempty"`
	TimeQueues              []TimeQueue            `json:"time_queues,omitempty"`
	TotalCapacityDefault    int                    `json:"total_capacity_default"`
	StaffAssignmentRequired bool                   `json:"staff_assignment_required"`
	CalendarSyncEnabled     bool                   `json:"calendar_sync_enabled"`
}

// CapacityOverride returns the per-slot count configured for timeLabel.
func (b *BookingSettings) CapacityOverride(timeLabel string) (int, bool) {
	if b == nil {
		return 0, false
	}
	for _, q := range b.TimeQueues {
		if strings.TrimSpace(q.Time) == timeLabel {
			return q.Count, true
		}
	}
	return 0, false
}

// IsHoliday reports whether date (2006-01-02) is in the holiday list.
func (b *BookingSettings) IsHoliday(date string) bool {
	if b == nil {
		return false
	}
	for _, h := range b.HolidayDates {
		if strings.TrimSpace(h) == date {
			return true
		}
	}
	return false
}

// ScheduleFor returns the configured hours for a weekday. ok is false when the
// weekday has no entry, which callers treat as open all day.
func (b *BookingSettings) ScheduleFor(day time.Weekday) (DaySchedule, bool) {
	if b == nil || len(b.WeeklySchedule) == 0 {
		return DaySchedule{}, false
	}
	s, ok := b.WeeklySchedule[strings.ToLower(day.String())]
	return s, ok
}

// Notification channels.
const (
	ChannelCustomer = "customer"
	ChannelAdmin    = "admin"
)

// Notification classes toggled per channel.
const (
	EventAppointmentConfirmed   = "appointment_confirmed"
	EventAppointmentCancelled   = "appointment_cancelled"
	EventAppointmentRescheduled = "appointment_rescheduled"
	EventPaymentConfirmed       = "payment_confirmed"
	EventServiceCompleted       = "service_completed"
	EventReviewRequest          = "review_request"
	EventNewBooking             = "new_booking"
	EventBookingCancelled       = "booking_cancelled"
	EventPaymentReceived        = "payment_received"
)

// NotificationSettings gates every outbound notification.
type NotificationSettings struct {
	Customer map[string]bool `json:"customer"`
	Admin    map[string]bool `json:"admin"`
}

// Enabled reports whether eventType may be sent on channel. Unknown classes
// are treated as disabled.
func (n *NotificationSettings) Enabled(channel, eventType string) bool {
	if n == nil {
		return false
	}
	switch channel {
	case ChannelCustomer:
		return n.Customer[eventType]
	case ChannelAdmin:
		return n.Admin[eventType]
	default:
		return false
	}
}

// PointSettings configures loyalty point rates.
type PointSettings struct {
	EnablePurchasePoints bool  `json:"enable_purchase_points"`
	CurrencyPerPoint     int64 `json:"currency_per_point"` // baht spent per point earned
	EnableVisitPoints    bool  `json:"enable_visit_points"`
	PointsPerVisit       int64 `json:"points_per_visit"`
	EnableReviewPoints   bool  `json:"enable_review_points"`
	PointsPerReview      int64 `json:"points_per_review"`
}

// PurchasePoints converts a paid amount into points, rounding down.
func (p *PointSettings) PurchasePoints(amount int64) int64 {
	if p == nil || !p.EnablePurchasePoints || p.CurrencyPerPoint <= 0 || amount <= 0 {
		return 0
	}
	return amount / p.CurrencyPerPoint
}

// VisitPoints returns the per-visit award when enabled.
func (p *PointSettings) VisitPoints() int64 {
	if p == nil || !p.EnableVisitPoints || p.PointsPerVisit < 0 {
		return 0
	}
	return p.PointsPerVisit
}

// ReviewPoints returns the per-review award when enabled.
func (p *PointSettings) ReviewPoints() int64 {
	if p == nil || !p.EnableReviewPoints || p.PointsPerReview < 0 {
		return 0
	}
	return p.PointsPerReview
}

// PaymentSettings holds the PromptPay merchant details.
type PaymentSettings struct {
	PromptPayID  string `json:"promptpay_id"`
	MerchantName string `json:"merchant_name"`
	MerchantCity string `json:"merchant_city"`
}

// DefaultNotificationSettings enables every notification class.
func DefaultNotificationSettings() *NotificationSettings {
	return &NotificationSettings{
		Customer: map[string]bool{
			EventAppointmentConfirmed:   true,
			EventAppointmentCancelled:   true,
			EventAppointmentRescheduled: true,
			EventPaymentConfirmed:       true,
			EventServiceCompleted:       true,
			EventReviewRequest:          true,
		},
		Admin: map[string]bool{
			EventNewBooking:       true,
			EventBookingCancelled: true,
			EventPaymentReceived:  true,
		},
	}
}

// DefaultPointSettings awards one point per 100 baht and ten per visit.
func DefaultPointSettings() *PointSettings {
	return &PointSettings{
		EnablePurchasePoints: true,
		CurrencyPerPoint:     100,
		EnableVisitPoints:    true,
		PointsPerVisit:       10,
		EnableReviewPoints:   true,
		PointsPerReview:      5,
	}
}

// DefaultPaymentSettings returns empty merchant details.
func DefaultPaymentSettings() *PaymentSettings {
	return &PaymentSettings{}
}
