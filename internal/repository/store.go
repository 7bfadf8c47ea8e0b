package repository

import (
	"context"

	"booking/internal/domain"
)

// Store groups the repositories that share one connection or transaction.
type Store interface {
	Payments() PaymentRepository

	// Bookings returns the booking repository for kind, or nil for an unknown kind.
	Bookings(kind domain.BookingKind) BookingRepository

	// Rides returns the ride repository for kind, or nil for an unknown kind.
	Rides(kind domain.BookingKind) RideRepository

	// WithinTx runs fn against a transaction-scoped Store. The transaction
	// commits when fn returns nil and rolls back otherwise. Calling WithinTx on
	// a transaction-scoped Store reuses the open transaction.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
