package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking/internal/domain"
	"booking/internal/repository"
)

const defaultTransitionAttempts = 3

// TransitionRequest describes a requested status change.
type TransitionRequest struct {
	Target domain.BookingStatus
	Actor  domain.Actor
	At     time.Time
	Reason string
}

// TransitionResult is the outcome of Lifecycle.Apply.
type TransitionResult struct {
	Booking  *domain.Booking
	From     domain.BookingStatus
	Decision domain.Decision
}

// Applied reports whether the status was written.
func (r *TransitionResult) Applied() bool {
	return r != nil && r.Decision == domain.DecisionApply
}

// Lifecycle persists booking status changes with compare-and-set.
type Lifecycle struct {
	attempts int
}

// NewLifecycle creates a new Lifecycle.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{attempts: defaultTransitionAttempts}
}

// Apply evaluates the transition table for booking and writes the new status
// only if the stored status is still the one evaluated. On a lost race it
// re-reads and re-evaluates, and gives up with ErrConcurrentTransition.
// booking is not modified; the returned result carries the updated copy.
func (l *Lifecycle) Apply(ctx context.Context, bookings repository.BookingRepository, booking *domain.Booking, req TransitionRequest) (*TransitionResult, error) {
	if req.At.IsZero() {
		req.At = time.Now()
	}

	current := *booking
	for attempt := 0; attempt < l.attempts; attempt++ {
		decision, err := domain.Transition(current.Kind, current.Status, req.Target, req.Actor)
		if err != nil {
			return &TransitionResult{Booking: &current, From: current.Status, Decision: domain.DecisionNoop}, err
		}
		if decision == domain.DecisionNoop {
			if err := stampPaid(ctx, bookings, &current, req); err != nil {
				return nil, err
			}
			return &TransitionResult{Booking: &current, From: current.Status, Decision: decision}, nil
		}

		change := sideFields(req)
		err = bookings.UpdateStatus(ctx, current.ID, current.Status, req.Target, change)
		if err == nil {
			from := current.Status
			applyChange(&current, req.Target, change)
			return &TransitionResult{Booking: &current, From: from, Decision: domain.DecisionApply}, nil
		}
		if !errors.Is(err, repository.ErrStatusConflict) {
			return nil, fmt.Errorf("update %s booking %s status: %w", current.Kind, current.ID, err)
		}

		fresh, err := bookings.GetByID(ctx, current.ID)
		if err != nil {
			return nil, fmt.Errorf("reload %s booking %s: %w", current.Kind, current.ID, err)
		}
		current = *fresh
	}

	return nil, fmt.Errorf("%s booking %s -> %s: %w", current.Kind, current.ID, req.Target, ErrConcurrentTransition)
}

// stampPaid records paid_at on a booking that moved past paid before the
// payment was confirmed.
func stampPaid(ctx context.Context, bookings repository.BookingRepository, b *domain.Booking, req TransitionRequest) error {
	if req.Target != domain.BookingStatusPaid || !b.PaidAt.IsZero() {
		return nil
	}
	stamped, err := bookings.StampPaidAt(ctx, b.ID, req.At)
	if err != nil {
		return fmt.Errorf("stamp %s booking %s paid_at: %w", b.Kind, b.ID, err)
	}
	if stamped {
		b.PaidAt = req.At
		b.UpdatedAt = req.At
	}
	return nil
}

func sideFields(req TransitionRequest) repository.StatusChange {
	change := repository.StatusChange{At: req.At}
	switch req.Target {
	case domain.BookingStatusPaid:
		change.PaidAt = req.At
	case domain.BookingStatusEnRoutePickup:
		change.TripStartedAt = req.At
	case domain.BookingStatusCompleted:
		change.CompletedAt = req.At
	case domain.BookingStatusCancelled:
		change.CancelledAt = req.At
		change.CancelReason = req.Reason
	}
	return change
}

// applyChange mirrors the write on the in-memory copy; stored timestamps win.
func applyChange(b *domain.Booking, status domain.BookingStatus, change repository.StatusChange) {
	b.Status = status
	b.UpdatedAt = change.At
	if b.PaidAt.IsZero() {
		b.PaidAt = change.PaidAt
	}
	if b.TripStartedAt.IsZero() {
		b.TripStartedAt = change.TripStartedAt
	}
	if b.CompletedAt.IsZero() {
		b.CompletedAt = change.CompletedAt
	}
	if b.CancelledAt.IsZero() {
		b.CancelledAt = change.CancelledAt
	}
	if b.CancelReason == "" {
		b.CancelReason = change.CancelReason
	}
}
