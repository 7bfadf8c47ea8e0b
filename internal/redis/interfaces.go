package redis

import (
	"context"
	"time"
)

// ReferenceLocker serialises webhook handling per gateway reference.
type ReferenceLocker interface {
	AcquireReferenceLock(ctx context.Context, reference string, ttl time.Duration) (string, bool, error)
	ReleaseReferenceLock(ctx context.Context, reference, token string) error
}

// KeyLocker owns a single Redis key until its token is released.
type KeyLocker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// PaymentStatusCache caches payment status snapshots.
type PaymentStatusCache interface {
	GetPaymentStatus(ctx context.Context, key string) (*CachedPaymentStatus, error)
	SetPaymentStatus(ctx context.Context, status *CachedPaymentStatus) error
	InvalidatePaymentStatus(ctx context.Context, keys ...string) error
}

// LocationIndex tracks the live position of in-progress bookings.
type LocationIndex interface {
	UpdateLocation(ctx context.Context, kind, bookingID string, lat, lng float64) error
	FindNearby(ctx context.Context, kind string, lat, lng, radiusKm float64) ([]BookingLocation, error)
	RemoveLocation(ctx context.Context, kind, bookingID string) error
}

// IdempotencyRecorder stores request outcomes keyed by Idempotency-Key.
type IdempotencyRecorder interface {
	Load(ctx context.Context, key string) (string, error)
	Reserve(ctx context.Context, key, marker string, ttl time.Duration) (bool, error)
	Save(ctx context.Context, key, record string, ttl time.Duration) error
	Discard(ctx context.Context, key string) error
}

// Ensure concrete types implement interfaces.
var (
	_ ReferenceLocker     = (*LockStore)(nil)
	_ KeyLocker           = (*LockStore)(nil)
	_ PaymentStatusCache  = (*CacheStore)(nil)
	_ LocationIndex       = (*LocationStore)(nil)
	_ IdempotencyRecorder = (*IdempotencyStore)(nil)
)
