package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"booking/internal/domain"
	"booking/internal/logger"
	"booking/internal/redis"
	"booking/internal/service"
)

// ──────────────────────────────────────────────
// 9. DRIVER AND OPERATOR PROGRESSION
// ──────────────────────────────────────────────

func newBookingService(store *MemoryStore, index *MockLocationIndex, sender *MockSender) (*service.BookingService, *service.NotificationService) {
	logg := logger.Nop()

	// Keep nil mocks as nil interfaces.
	var locations redis.LocationIndex
	if index != nil {
		locations = index
	}
	var notifySender service.Sender
	if sender != nil {
		notifySender = sender
	}

	notifier := service.NewNotificationService(notifySender, logg, time.Second)
	return service.NewBookingService(store, service.NewLifecycle(), notifier, locations, logg), notifier
}

func TestBookingService_DriverWalksTripToCompletion(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	index := NewMockLocationIndex()
	sender := NewMockSender()
	svc, notifier := newBookingService(store, index, sender)
	store.AddBooking(&domain.Booking{ID: "b-1", Kind: domain.KindPersonRide, UserID: "u-1", Status: domain.BookingStatusEnRoutePickup})
	ctx := context.Background()

	if err := svc.UpdateLocation(ctx, service.UpdateLocationRequest{Kind: domain.KindPersonRide, ID: "b-1", Lat: -6.2, Lng: 106.8}); err != nil {
		t.Fatalf("update location: %v", err)
	}
	if !index.HasLocation(string(domain.KindPersonRide), "b-1") {
		t.Fatal("expected booking in geo index")
	}

	steps := []domain.BookingStatus{
		domain.BookingStatusAtPickup,
		domain.BookingStatusEnRouteDestination,
		domain.BookingStatusArrived,
		domain.BookingStatusCompleted,
	}
	for _, step := range steps {
		result, err := svc.UpdateStatus(ctx, service.UpdateStatusRequest{
			Kind:   domain.KindPersonRide,
			ID:     "b-1",
			Status: step,
			Actor:  domain.ActorDriver,
		})
		if err != nil {
			t.Fatalf("step %s: %v", step, err)
		}
		if !result.Applied() {
			t.Errorf("step %s: expected applied", step)
		}
	}

	got := store.GetBooking(domain.KindPersonRide, "b-1")
	if got.Status != domain.BookingStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.CompletedAt.IsZero() {
		t.Error("expected completed_at to be set")
	}
	if got.LastLat != -6.2 || got.LastLng != 106.8 {
		t.Errorf("expected stored location, got %v,%v", got.LastLat, got.LastLng)
	}
	if index.HasLocation(string(domain.KindPersonRide), "b-1") {
		t.Error("expected completed booking removed from geo index")
	}

	notifier.Wait()
	// at_pickup and completed notify; en_route_destination and arrived do not.
	if n := len(sender.Sent()); n != 2 {
		t.Errorf("expected 2 notifications, got %d", n)
	}
}

func TestBookingService_RejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	svc, _ := newBookingService(store, nil, nil)
	store.AddBooking(&domain.Booking{ID: "b-1", Kind: domain.KindCargo, Status: domain.BookingStatusPaid})
	ctx := context.Background()

	tests := []struct {
		name    string
		req     service.UpdateStatusRequest
		wantErr error
	}{
		{
			name:    "unknown kind",
			req:     service.UpdateStatusRequest{Kind: "boat", ID: "b-1", Status: domain.BookingStatusCompleted, Actor: domain.ActorDriver},
			wantErr: service.ErrInvalidBookingKind,
		},
		{
			name:    "missing id",
			req:     service.UpdateStatusRequest{Kind: domain.KindCargo, Status: domain.BookingStatusCompleted, Actor: domain.ActorDriver},
			wantErr: service.ErrInvalidBookingID,
		},
		{
			name:    "confirmed is not a cargo status",
			req:     service.UpdateStatusRequest{Kind: domain.KindCargo, ID: "b-1", Status: domain.BookingStatusConfirmed, Actor: domain.ActorOperator},
			wantErr: service.ErrInvalidBookingStatus,
		},
		{
			name:    "webhook actor not accepted",
			req:     service.UpdateStatusRequest{Kind: domain.KindCargo, ID: "b-1", Status: domain.BookingStatusPaid, Actor: domain.ActorWebhook},
			wantErr: service.ErrInvalidActor,
		},
		{
			name:    "driver cannot start trip",
			req:     service.UpdateStatusRequest{Kind: domain.KindCargo, ID: "b-1", Status: domain.BookingStatusEnRoutePickup, Actor: domain.ActorDriver},
			wantErr: domain.ErrTransitionRejected,
		},
		{
			name:    "trip step before start",
			req:     service.UpdateStatusRequest{Kind: domain.KindCargo, ID: "b-1", Status: domain.BookingStatusAtPickup, Actor: domain.ActorDriver},
			wantErr: domain.ErrTransitionRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateStatus(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
	if got := store.GetBooking(domain.KindCargo, "b-1"); got.Status != domain.BookingStatusPaid {
		t.Errorf("expected booking untouched, got %s", got.Status)
	}
}

func TestBookingService_CancelKeepsReasonAndTimestamp(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	svc, _ := newBookingService(store, nil, nil)
	store.AddBooking(&domain.Booking{ID: "b-1", Kind: domain.KindParcelDrop, Status: domain.BookingStatusPending})
	ctx := context.Background()

	req := service.UpdateStatusRequest{
		Kind:   domain.KindParcelDrop,
		ID:     "b-1",
		Status: domain.BookingStatusCancelled,
		Actor:  domain.ActorOperator,
		Reason: "sender unreachable",
	}
	if _, err := svc.UpdateStatus(ctx, req); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	first := store.GetBooking(domain.KindParcelDrop, "b-1")

	// Cancelling again is a no-op and keeps the first reason.
	req.Reason = "duplicate click"
	result, err := svc.UpdateStatus(ctx, req)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if result.Applied() {
		t.Error("expected second cancel to be a no-op")
	}

	second := store.GetBooking(domain.KindParcelDrop, "b-1")
	if second.CancelReason != "sender unreachable" {
		t.Errorf("expected original reason, got %q", second.CancelReason)
	}
	if !second.CancelledAt.Equal(first.CancelledAt) {
		t.Errorf("cancelled_at changed: %v -> %v", first.CancelledAt, second.CancelledAt)
	}
}

func TestBookingService_LocationRequiresTripInProgress(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	index := NewMockLocationIndex()
	svc, _ := newBookingService(store, index, nil)
	store.AddBooking(&domain.Booking{ID: "b-1", Kind: domain.KindCarRide, Status: domain.BookingStatusPaid})
	ctx := context.Background()

	err := svc.UpdateLocation(ctx, service.UpdateLocationRequest{Kind: domain.KindCarRide, ID: "b-1", Lat: 1, Lng: 1})
	if !errors.Is(err, service.ErrBookingNotInProgress) {
		t.Fatalf("expected ErrBookingNotInProgress, got %v", err)
	}

	err = svc.UpdateLocation(ctx, service.UpdateLocationRequest{Kind: domain.KindCarRide, ID: "b-1", Lat: 91, Lng: 1})
	if !errors.Is(err, service.ErrInvalidLocation) {
		t.Fatalf("expected ErrInvalidLocation, got %v", err)
	}
	if index.UpdateLocationCallCount != 0 {
		t.Errorf("expected geo index untouched, got %d calls", index.UpdateLocationCallCount)
	}
}

func TestBookingService_GeoIndexFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	index := NewMockLocationIndex()
	index.UpdateLocationError = errors.New("redis down")
	svc, _ := newBookingService(store, index, nil)
	store.AddBooking(&domain.Booking{ID: "b-1", Kind: domain.KindCargo, Status: domain.BookingStatusAtPickup})

	err := svc.UpdateLocation(context.Background(), service.UpdateLocationRequest{Kind: domain.KindCargo, ID: "b-1", Lat: 3.5, Lng: 98.6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.GetBooking(domain.KindCargo, "b-1"); got.LastLat != 3.5 {
		t.Errorf("expected stored latitude 3.5, got %v", got.LastLat)
	}
}

// ──────────────────────────────────────────────
// 10. PAYMENT LEDGER
// ──────────────────────────────────────────────

func TestLedger_CreateIntentValidatesAndPersists(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ledger := service.NewLedger(store, service.NewMockGateway(time.Hour), nil, logger.Nop())
	ctx := context.Background()

	intent, err := ledger.CreateIntent(ctx, service.CreateIntentRequest{
		UserID:        "u-1",
		BookingNumber: "NB-1",
		Method:        domain.PaymentMethodVirtualAccount,
		Amount:        decimal.RequireFromString("125000.50"),
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.Status != domain.PaymentStatusPending {
		t.Errorf("expected pending, got %s", intent.Status)
	}
	if intent.GatewayReference == "" || intent.AccountNumber == "" {
		t.Errorf("expected gateway reference and account number, got %+v", intent)
	}
	if stored := store.GetIntent(intent.ID); stored == nil || !stored.Amount.Equal(intent.Amount) {
		t.Errorf("expected stored intent with amount %s", intent.Amount)
	}

	invalid := []struct {
		name    string
		req     service.CreateIntentRequest
		wantErr error
	}{
		{"no user", service.CreateIntentRequest{BookingNumber: "NB-1", Method: domain.PaymentMethodQRIS, Amount: decimal.NewFromInt(1)}, service.ErrInvalidUserID},
		{"zero amount", service.CreateIntentRequest{UserID: "u", BookingNumber: "NB-1", Method: domain.PaymentMethodQRIS}, service.ErrInvalidPaymentAmount},
		{"bad method", service.CreateIntentRequest{UserID: "u", BookingNumber: "NB-1", Method: "cash", Amount: decimal.NewFromInt(1)}, service.ErrInvalidPaymentMethod},
		{"no booking link", service.CreateIntentRequest{UserID: "u", Method: domain.PaymentMethodEWallet, Amount: decimal.NewFromInt(1)}, service.ErrMissingBookingLink},
	}
	for _, tt := range invalid {
		if _, err := ledger.CreateIntent(ctx, tt.req); !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.wantErr, err)
		}
	}
}

func TestLedger_ExpireStaleOnlyTouchesOverduePending(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	cache := NewMockStatusCache()
	ledger := service.NewLedger(store, service.NewMockGateway(time.Hour), cache, logger.Nop())

	store.AddIntent(&domain.PaymentIntent{ID: "overdue-1", GatewayReference: "R1", Status: domain.PaymentStatusPending, ExpiresAt: testNow.Add(-2 * time.Hour)})
	store.AddIntent(&domain.PaymentIntent{ID: "overdue-2", GatewayReference: "R2", Status: domain.PaymentStatusPending, ExpiresAt: testNow.Add(-time.Minute)})
	store.AddIntent(&domain.PaymentIntent{ID: "fresh", GatewayReference: "R3", Status: domain.PaymentStatusPending, ExpiresAt: testNow.Add(time.Hour)})
	store.AddIntent(&domain.PaymentIntent{ID: "paid", GatewayReference: "R4", Status: domain.PaymentStatusPaid, ExpiresAt: testNow.Add(-time.Hour)})

	// Polling clients may have cached the pending snapshot under either key.
	_ = cache.SetPaymentStatus(context.Background(), &redis.CachedPaymentStatus{ID: "overdue-1", GatewayReference: "R1", Status: "pending"})
	_ = cache.SetPaymentStatus(context.Background(), &redis.CachedPaymentStatus{ID: "fresh", GatewayReference: "R3", Status: "pending"})

	expired, err := ledger.ExpireStale(context.Background(), testNow, 1)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired != 2 {
		t.Errorf("expected 2 expired, got %d", expired)
	}

	want := map[string]domain.PaymentStatus{
		"overdue-1": domain.PaymentStatusExpired,
		"overdue-2": domain.PaymentStatusExpired,
		"fresh":     domain.PaymentStatusPending,
		"paid":      domain.PaymentStatusPaid,
	}
	for id, status := range want {
		if got := store.GetIntent(id).Status; got != status {
			t.Errorf("%s: expected %s, got %s", id, status, got)
		}
	}

	if cache.Has("overdue-1") || cache.Has("R1") {
		t.Error("expected expired intent evicted by id and by reference")
	}
	if !cache.Has("fresh") || !cache.Has("R3") {
		t.Error("expected untouched intent to stay cached")
	}
}
