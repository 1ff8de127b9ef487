package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveBooking("created")
	m.ObserveBooking("created")
	m.ObserveBooking("slot_full")
	m.ObserveTransition("confirmed", "completed", "ok")
	m.ObserveSideEffect("calendar", false)
	m.ObserveNotification("customer", "appointment_confirmed", "sent")
	m.ObserveLatency("create", 0.02)

	bookings := gatherFamily(t, reg, "salon_appointments_bookings_total")
	for _, metric := range bookings.GetMetric() {
		if metric.GetLabel()[0].GetValue() == "created" && metric.GetCounter().GetValue() != 2 {
			t.Fatalf("expected 2 created bookings, got %v", metric.GetCounter().GetValue())
		}
	}

	hist := gatherFamily(t, reg, "salon_appointments_operation_latency_seconds")
	if hist.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected one latency sample")
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("created")
	m.ObserveTransition("a", "b", "ok")
	m.ObserveSideEffect("notify", true)
	m.ObserveNotification("admin", "new_booking", "sent")
	m.ObserveLatency("create", 0.1)
}
