package service

import (
	"context"
	"errors"
	"fmt"

	"booking/internal/domain"
	"booking/internal/repository"
)

// Strategy names how a booking was located for a payment intent.
type Strategy string

const (
	StrategyBookingNumber   Strategy = "by_booking_number"
	StrategyBookingID       Strategy = "by_booking_id"
	StrategyRideUserPending Strategy = "by_ride_user_pending"
)

// Resolution is the booking found for an intent and the strategy that found it.
type Resolution struct {
	Booking  *domain.Booking
	Strategy Strategy
}

// Resolver locates the single booking a payment intent pays for. Strategies
// run in strict priority and the first match wins. Each strategy walks the
// booking kinds in a fixed order.
type Resolver struct {
	kinds []domain.BookingKind
}

// NewResolver creates a Resolver over every booking kind.
func NewResolver() *Resolver {
	return &Resolver{kinds: domain.BookingKinds}
}

// Resolve returns the booking for intent or ErrBookingUnresolved. Lookup
// errors other than not-found abort resolution.
func (r *Resolver) Resolve(ctx context.Context, store repository.Store, intent *domain.PaymentIntent) (*Resolution, error) {
	if intent.BookingNumber != "" {
		booking, err := r.firstMatch(ctx, store, func(repo repository.BookingRepository) (*domain.Booking, error) {
			return repo.FindByBookingNumber(ctx, intent.BookingNumber)
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", StrategyBookingNumber, err)
		}
		if booking != nil {
			return &Resolution{Booking: booking, Strategy: StrategyBookingNumber}, nil
		}
	}

	if intent.BookingID != "" {
		booking, err := r.firstMatch(ctx, store, func(repo repository.BookingRepository) (*domain.Booking, error) {
			booking, err := repo.GetByID(ctx, intent.BookingID)
			if err != nil {
				return nil, err
			}
			// Booking ids are only unique per kind; an id owned by another
			// user belongs to a different collection's booking.
			if intent.UserID != "" && booking.UserID != intent.UserID {
				return nil, repository.ErrNotFound
			}
			return booking, nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", StrategyBookingID, err)
		}
		if booking != nil {
			return &Resolution{Booking: booking, Strategy: StrategyBookingID}, nil
		}
	}

	if intent.RideID != "" && intent.UserID != "" {
		booking, err := r.firstMatch(ctx, store, func(repo repository.BookingRepository) (*domain.Booking, error) {
			return repo.FindLatestPending(ctx, intent.RideID, intent.UserID)
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", StrategyRideUserPending, err)
		}
		if booking != nil {
			return &Resolution{Booking: booking, Strategy: StrategyRideUserPending}, nil
		}
	}

	return nil, ErrBookingUnresolved
}

// firstMatch runs lookup against each kind in order and returns the first
// hit. It returns nil, nil when every kind reports not-found.
func (r *Resolver) firstMatch(ctx context.Context, store repository.Store, lookup func(repository.BookingRepository) (*domain.Booking, error)) (*domain.Booking, error) {
	for _, kind := range r.kinds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		repo := store.Bookings(kind)
		if repo == nil {
			continue
		}
		booking, err := lookup(repo)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		return booking, nil
	}
	return nil, nil
}
