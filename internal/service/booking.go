package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"booking/internal/domain"
	"booking/internal/logger"
	"booking/internal/redis"
	"booking/internal/repository"
)

// BookingService handles driver and operator actions on bookings.
type BookingService struct {
	store     repository.Store
	lifecycle *Lifecycle
	notifier  *NotificationService
	locations redis.LocationIndex
	logg      *logger.Logger
	now       func() time.Time
}

// NewBookingService creates a new BookingService. locations may be nil.
func NewBookingService(
	store repository.Store,
	lifecycle *Lifecycle,
	notifier *NotificationService,
	locations redis.LocationIndex,
	logg *logger.Logger,
) *BookingService {
	if lifecycle == nil {
		lifecycle = NewLifecycle()
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &BookingService{
		store:     store,
		lifecycle: lifecycle,
		notifier:  notifier,
		locations: locations,
		logg:      logg,
		now:       time.Now,
	}
}

// GetBooking retrieves a booking of the given kind.
func (s *BookingService) GetBooking(ctx context.Context, kind domain.BookingKind, id string) (*domain.Booking, error) {
	repo, err := s.bookings(kind, id)
	if err != nil {
		return nil, err
	}
	return repo.GetByID(ctx, id)
}

// UpdateStatusRequest contains the parameters for a manual status change.
type UpdateStatusRequest struct {
	Kind   domain.BookingKind
	ID     string
	Status domain.BookingStatus
	Actor  domain.Actor
	Reason string
}

// UpdateStatus drives a booking through the trip steps or cancels it.
// Requests that the booking already satisfies succeed without writing.
func (s *BookingService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*TransitionResult, error) {
	if _, err := s.bookings(req.Kind, req.ID); err != nil {
		return nil, err
	}
	if !req.Status.ValidFor(req.Kind) {
		return nil, ErrInvalidBookingStatus
	}
	if req.Actor != domain.ActorDriver && req.Actor != domain.ActorOperator {
		return nil, ErrInvalidActor
	}

	var result *TransitionResult
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		repo := tx.Bookings(req.Kind)
		booking, err := repo.GetByID(ctx, req.ID)
		if err != nil {
			return err
		}
		result, err = s.lifecycle.Apply(ctx, repo, booking, TransitionRequest{
			Target: req.Status,
			Actor:  req.Actor,
			At:     s.now(),
			Reason: req.Reason,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Applied() {
		logCtx := s.logg.WithFields(s.logg.WithBooking(ctx, string(req.Kind), req.ID), map[string]any{
			"from":  string(result.From),
			"to":    string(result.Booking.Status),
			"actor": string(req.Actor),
		})
		s.logg.Info(logCtx, "booking status updated")
		s.notifier.NotifyStatusChanged(ctx, result.Booking)

		if result.Booking.Status.IsTerminal() {
			s.forgetLocation(ctx, result.Booking)
		}
	}

	return result, nil
}

// UpdateLocationRequest contains a position report for a booking on a trip.
type UpdateLocationRequest struct {
	Kind domain.BookingKind
	ID   string
	Lat  float64
	Lng  float64
}

// UpdateLocation records the vehicle position for a booking on a trip.
// The database row is authoritative; the geo index is refreshed best-effort.
func (s *BookingService) UpdateLocation(ctx context.Context, req UpdateLocationRequest) error {
	repo, err := s.bookings(req.Kind, req.ID)
	if err != nil {
		return err
	}
	if !validCoordinates(req.Lat, req.Lng) {
		return ErrInvalidLocation
	}

	booking, err := repo.GetByID(ctx, req.ID)
	if err != nil {
		return err
	}
	if !onTrip(booking.Status) {
		return ErrBookingNotInProgress
	}

	if err := repo.UpdateLocation(ctx, req.ID, req.Lat, req.Lng, s.now()); err != nil {
		return fmt.Errorf("update location: %w", err)
	}

	if s.locations != nil {
		if err := s.locations.UpdateLocation(ctx, string(req.Kind), req.ID, req.Lat, req.Lng); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "geo index update failed")
		}
	}
	return nil
}

// FindNearby lists bookings of kind on a trip within radiusKm of a point.
func (s *BookingService) FindNearby(ctx context.Context, kind domain.BookingKind, lat, lng, radiusKm float64) ([]redis.BookingLocation, error) {
	if s.store.Bookings(kind) == nil {
		return nil, ErrInvalidBookingKind
	}
	if !validCoordinates(lat, lng) || radiusKm <= 0 {
		return nil, ErrInvalidLocation
	}
	if s.locations == nil {
		return nil, nil
	}
	return s.locations.FindNearby(ctx, string(kind), lat, lng, radiusKm)
}

func (s *BookingService) bookings(kind domain.BookingKind, id string) (repository.BookingRepository, error) {
	repo := s.store.Bookings(kind)
	if repo == nil {
		return nil, ErrInvalidBookingKind
	}
	if id == "" {
		return nil, ErrInvalidBookingID
	}
	return repo, nil
}

func (s *BookingService) forgetLocation(ctx context.Context, booking *domain.Booking) {
	if s.locations == nil {
		return
	}
	err := s.locations.RemoveLocation(ctx, string(booking.Kind), booking.ID)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "geo index removal failed")
	}
}

func onTrip(status domain.BookingStatus) bool {
	switch status {
	case domain.BookingStatusEnRoutePickup,
		domain.BookingStatusAtPickup,
		domain.BookingStatusEnRouteDestination,
		domain.BookingStatusArrived:
		return true
	}
	return false
}

func validCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
