package repository

import (
	"context"

	"booking/internal/domain"
)

// RideRepository defines the persistence operations for rides of one kind.
type RideRepository interface {
	// Kind returns the booking kind this repository serves.
	Kind() domain.BookingKind

	// DecrementCapacity locks the ride row and lowers its available capacity by
	// n, never below zero. It returns the capacity before and after.
	DecrementCapacity(ctx context.Context, id string, n int) (before, after int, err error)
}
