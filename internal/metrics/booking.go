package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics counts webhook outcomes and booking side effects.
type BookingMetrics struct {
	webhookEvents *prometheus.CounterVec
	unresolved    prometheus.Counter
	capacityFloor *prometheus.CounterVec
	autostart     *prometheus.CounterVec
}

// NewBookingMetrics registers the booking metrics on the provided registerer.
func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return &BookingMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Payment gateway webhook events by event kind and outcome.",
	}, []string{"event", "outcome"})
	unresolved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_unresolved_bookings_total",
		Help: "Paid intents whose booking could not be located.",
	})
	capacityFloor := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capacity_floor_hits_total",
		Help: "Capacity decrements that were clamped at zero.",
	}, []string{"kind"})
	autostart := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trip_autostart_bookings_total",
		Help: "Bookings visited by the trip auto-starter by kind and result.",
	}, []string{"kind", "result"})
	reg.MustRegister(webhookEvents, unresolved, capacityFloor, autostart)
	return &BookingMetrics{
		webhookEvents: webhookEvents,
		unresolved:    unresolved,
		capacityFloor: capacityFloor,
		autostart:     autostart,
	}
}

// IncWebhookEvent counts one handled webhook event.
func (m *BookingMetrics) IncWebhookEvent(event, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}

// IncUnresolved counts a paid intent with no matching booking.
func (m *BookingMetrics) IncUnresolved() {
	if m == nil || m.unresolved == nil {
		return
	}
	m.unresolved.Inc()
}

// IncCapacityFloor counts a decrement attempted on an exhausted ride.
func (m *BookingMetrics) IncCapacityFloor(kind string) {
	if m == nil || m.capacityFloor == nil {
		return
	}
	m.capacityFloor.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncAutostart counts one booking visited by the auto-starter.
func (m *BookingMetrics) IncAutostart(kind, result string) {
	if m == nil || m.autostart == nil {
		return
	}
	m.autostart.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
}
