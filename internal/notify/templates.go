package notify

import (
	"fmt"
	"strings"

	"github.com/wolfman30/salon-booking-platform/internal/appointments"
)

func when(a appointments.Appointment) string {
	if !a.AppointmentInfo.DateTime.IsZero() {
		return a.AppointmentInfo.DateTime.Format("Mon 2 Jan 2006 15:04")
	}
	return a.Date + " " + a.Time
}

func baht(n int64) string {
	return fmt.Sprintf("฿%d", n)
}

func serviceLine(a appointments.Appointment) string {
	name := a.ServiceInfo.Name
	if len(a.ServiceInfo.AddOns) > 0 {
		extras := make([]string, len(a.ServiceInfo.AddOns))
		for i, ad := range a.ServiceInfo.AddOns {
			extras[i] = ad.Name
		}
		name += " + " + strings.Join(extras, ", ")
	}
	return name
}

func customerName(a appointments.Appointment) string {
	if a.CustomerInfo.Name != "" {
		return a.CustomerInfo.Name
	}
	return "A customer"
}

func confirmedText(a appointments.Appointment) string {
	return fmt.Sprintf("Your appointment is confirmed.\n%s\n%s\nTotal: %s",
		serviceLine(a), when(a), baht(a.PaymentInfo.TotalPrice))
}

func cancelledText(a appointments.Appointment, reason string) string {
	msg := fmt.Sprintf("Your appointment on %s has been cancelled.", when(a))
	if reason != "" {
		msg += "\nReason: " + reason
	}
	return msg
}

func rescheduledText(a appointments.Appointment, prevDate, prevTime string) string {
	return fmt.Sprintf("Your appointment has moved.\nFrom: %s %s\nTo: %s\n%s",
		prevDate, prevTime, when(a), serviceLine(a))
}

func paymentText(a appointments.Appointment, amount int64, method string, firstConfirmation bool) string {
	msg := fmt.Sprintf("Payment received: %s (%s).", baht(amount), method)
	if firstConfirmation {
		msg += fmt.Sprintf("\nYour appointment on %s is now confirmed.", when(a))
	}
	return msg
}

func completedText(a appointments.Appointment, earned, balance int64) string {
	msg := fmt.Sprintf("Thank you for visiting us today for %s.", serviceLine(a))
	if earned > 0 {
		msg += fmt.Sprintf("\nYou earned %d points. Balance: %d points.", earned, balance)
	}
	return msg
}

func reviewRequestText(a appointments.Appointment, baseURL string) string {
	msg := "How was your visit? We would love your feedback."
	if baseURL != "" {
		msg += "\n" + strings.TrimRight(baseURL, "/") + "/review/" + a.ID
	}
	return msg
}

func newBookingAdminText(a appointments.Appointment) string {
	return fmt.Sprintf("New booking (%s)\n%s\n%s\n%s\nPhone: %s\nTotal: %s",
		a.Status, customerName(a), serviceLine(a), when(a), a.CustomerInfo.Phone, baht(a.PaymentInfo.TotalPrice))
}

func cancelledAdminText(a appointments.Appointment, by appointments.Role, reason string) string {
	return fmt.Sprintf("Booking cancelled by %s\n%s\n%s\nReason: %s", by, customerName(a), when(a), reason)
}

func paymentAdminText(a appointments.Appointment, amount int64, method string) string {
	return fmt.Sprintf("Payment received\n%s\n%s\n%s via %s", customerName(a), when(a), baht(amount), method)
}
