package tests

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	"booking/internal/domain"
	"booking/internal/logger"
	"booking/internal/metrics"
	"booking/internal/service"
)

var testNow = time.Date(2026, 9, 14, 8, 30, 0, 0, time.UTC)

// harness wires the payment path against in-memory fakes.
type harness struct {
	store      *MemoryStore
	locker     *MockReferenceLocker
	cache      *MockStatusCache
	sender     *MockSender
	registry   *prometheus.Registry
	metrics    *metrics.BookingMetrics
	ledger     *service.Ledger
	notifier   *service.NotificationService
	dispatcher *service.WebhookDispatcher
}

type harnessOption func(*service.WebhookDispatcherParams)

func withoutLocker() harnessOption {
	return func(p *service.WebhookDispatcherParams) { p.Locker = nil }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		store:    NewMemoryStore(),
		locker:   NewMockReferenceLocker(),
		cache:    NewMockStatusCache(),
		sender:   NewMockSender(),
		registry: prometheus.NewRegistry(),
	}
	logg := logger.Nop()
	h.metrics = metrics.NewBookingMetrics(h.registry)
	h.ledger = service.NewLedger(h.store, service.NewMockGateway(time.Hour), h.cache, logg)
	h.notifier = service.NewNotificationService(h.sender, logg, time.Second)

	params := service.WebhookDispatcherParams{
		Store:               h.store,
		Ledger:              h.ledger,
		Resolver:            service.NewResolver(),
		Lifecycle:           service.NewLifecycle(),
		Capacity:            service.NewCapacityAdjuster(logg, h.metrics),
		Notifier:            h.notifier,
		Locker:              h.locker,
		Logger:              logg,
		Metrics:             h.metrics,
		SentinelReferences:  []string{"test-payload"},
		TestReferencePrefix: "test-",
		LockTTL:             time.Second,
	}
	for _, opt := range opts {
		opt(&params)
	}

	dispatcher, err := service.NewWebhookDispatcher(params)
	if err != nil {
		t.Fatalf("construct dispatcher: %v", err)
	}
	h.dispatcher = dispatcher
	return h
}

// seedSeatBooking stores a pending person-ride booking on a ride with the
// given capacity, and a pending intent pointing at it by booking number.
func (h *harness) seedSeatBooking(number string, capacity, seats int) (*domain.Booking, *domain.PaymentIntent) {
	ride := &domain.Ride{
		ID:                "ride-" + number,
		Kind:              domain.KindPersonRide,
		AvailableCapacity: capacity,
		DepartureDate:     "2026-09-15",
		DepartureTime:     "09:00",
		Status:            domain.RideStatusScheduled,
	}
	h.store.AddRide(ride)

	booking := &domain.Booking{
		ID:            "booking-" + number,
		Kind:          domain.KindPersonRide,
		BookingNumber: number,
		RideID:        ride.ID,
		UserID:        "user-1",
		Quantity:      seats,
		Status:        domain.BookingStatusPending,
		CreatedAt:     testNow.Add(-time.Hour),
	}
	h.store.AddBooking(booking)

	intent := &domain.PaymentIntent{
		ID:               "intent-" + number,
		GatewayReference: "VA-" + number,
		BookingNumber:    number,
		RideID:           ride.ID,
		UserID:           "user-1",
		Method:           domain.PaymentMethodVirtualAccount,
		Amount:           decimal.NewFromInt(150000),
		Status:           domain.PaymentStatusPending,
		ExpiresAt:        testNow.Add(24 * time.Hour),
		CreatedAt:        testNow.Add(-time.Hour),
	}
	h.store.AddIntent(intent)
	return booking, intent
}

func succeededEvent(t *testing.T, reference string) []byte {
	t.Helper()
	return webhookBody(t, "payment.succeeded", reference)
}

func webhookBody(t *testing.T, event, reference string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": event,
		"data": map[string]any{
			"reference_id": reference,
		},
	})
	if err != nil {
		t.Fatalf("marshal webhook: %v", err)
	}
	return body
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelsMatch(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	found := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok {
			if v != pair.GetValue() {
				return false
			}
			found++
		}
	}
	return found == len(want)
}
