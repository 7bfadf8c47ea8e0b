package repository

import (
	"context"
	"time"

	"booking/internal/domain"
)

// StatusChange carries the side fields written together with a status update.
// Zero values leave the stored column untouched, and stored timestamps are
// never overwritten.
type StatusChange struct {
	PaidAt        time.Time
	TripStartedAt time.Time
	CompletedAt   time.Time
	CancelledAt   time.Time
	CancelReason  string
	At            time.Time
}

// DueQuery selects bookings whose ride departure has passed.
type DueQuery struct {
	Statuses []domain.BookingStatus
	Now      time.Time
	Location *time.Location
	AfterID  string
	Limit    int
}

// BookingRepository defines the persistence operations for bookings of one kind.
type BookingRepository interface {
	// Kind returns the booking kind this repository serves.
	Kind() domain.BookingKind

	// GetByID retrieves a booking by ID.
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// FindByBookingNumber retrieves a booking by its booking number.
	FindByBookingNumber(ctx context.Context, number string) (*domain.Booking, error)

	// FindLatestPending retrieves the newest pending booking for the ride and user.
	FindLatestPending(ctx context.Context, rideID, userID string) (*domain.Booking, error)

	// UpdateStatus sets the status to "to" only if it currently equals "from".
	// Returns ErrStatusConflict when the stored status differs.
	UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus, change StatusChange) error

	// StampPaidAt records the payment time without touching the status.
	// Returns false when paid_at was already set.
	StampPaidAt(ctx context.Context, id string, at time.Time) (bool, error)

	// ClaimCapacity records that the booking has consumed ride capacity.
	// Returns false when it was already recorded.
	ClaimCapacity(ctx context.Context, id string, at time.Time) (bool, error)

	// ListDueForStart pages through bookings in the given statuses whose ride
	// departure is at or before q.Now, ordered by ID after q.AfterID.
	ListDueForStart(ctx context.Context, q DueQuery) ([]*domain.Booking, error)

	// UpdateLocation stores the last known position of the booking's vehicle.
	UpdateLocation(ctx context.Context, id string, lat, lng float64, at time.Time) error
}
