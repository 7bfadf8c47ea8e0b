package service

import (
	"context"
	"fmt"
	"time"

	"booking/internal/domain"
	"booking/internal/logger"
	"booking/internal/metrics"
	"booking/internal/repository"
)

// CapacityResult reports what the adjuster did for one booking.
type CapacityResult struct {
	Applied bool
	Before  int
	After   int
	Floored bool
}

// CapacityAdjuster decrements ride seats for newly paid seat bookings.
type CapacityAdjuster struct {
	logg    *logger.Logger
	metrics *metrics.BookingMetrics
}

// NewCapacityAdjuster creates a new CapacityAdjuster. m may be nil.
func NewCapacityAdjuster(logg *logger.Logger, m *metrics.BookingMetrics) *CapacityAdjuster {
	if logg == nil {
		logg = logger.Nop()
	}
	return &CapacityAdjuster{logg: logg, metrics: m}
}

// Apply consumes capacity for booking at most once. It must run in the same
// transaction as the paid transition. Kinds without a seat counter are skipped.
func (a *CapacityAdjuster) Apply(ctx context.Context, tx repository.Store, booking *domain.Booking, at time.Time) (*CapacityResult, error) {
	if !booking.Kind.HasCapacity() {
		return &CapacityResult{}, nil
	}

	claimed, err := tx.Bookings(booking.Kind).ClaimCapacity(ctx, booking.ID, at)
	if err != nil {
		return nil, fmt.Errorf("claim capacity for %s: %w", booking.Ref(), err)
	}
	if !claimed {
		return &CapacityResult{}, nil
	}

	seats := booking.Quantity
	if seats <= 0 {
		seats = 1
	}

	before, after, err := tx.Rides(booking.Kind).DecrementCapacity(ctx, booking.RideID, seats)
	if err != nil {
		return nil, fmt.Errorf("decrement %s ride %s: %w", booking.Kind, booking.RideID, err)
	}

	result := &CapacityResult{Applied: true, Before: before, After: after, Floored: before < seats}
	if result.Floored {
		logCtx := a.logg.WithFields(a.logg.WithBooking(ctx, string(booking.Kind), booking.ID), map[string]any{
			"ride_id": booking.RideID,
			"seats":   seats,
			"before":  before,
		})
		a.logg.Warn(logCtx, "ride capacity exhausted; decrement floored at zero")
		a.metrics.IncCapacityFloor(string(booking.Kind))
	}

	return result, nil
}
