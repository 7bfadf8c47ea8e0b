package service

import "errors"

var (
	// ErrInvalidUserID is returned when user ID is empty.
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrInvalidPaymentAmount is returned when payment amount is not positive.
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")

	// ErrInvalidPaymentMethod is returned when payment method is not supported.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrInvalidPaymentID is returned when a payment id or reference is empty.
	ErrInvalidPaymentID = errors.New("invalid payment id")

	// ErrMissingBookingLink is returned when an intent names no booking number,
	// booking id or ride id.
	ErrMissingBookingLink = errors.New("payment intent needs a booking number, booking id or ride id")

	// ErrDuplicateGatewayReference is returned when the gateway reuses a reference.
	ErrDuplicateGatewayReference = errors.New("duplicate gateway reference")

	// ErrBookingUnresolved is returned when no strategy locates a booking.
	ErrBookingUnresolved = errors.New("booking could not be resolved")

	// ErrLatePayment marks a success event for an intent the ledger already
	// closed as failed or expired. The booking is still settled.
	ErrLatePayment = errors.New("payment settled after intent was closed")

	// ErrConcurrentTransition is returned when a status update keeps losing
	// compare-and-set races.
	ErrConcurrentTransition = errors.New("booking status changed concurrently")

	// ErrMalformedPayload is returned when a webhook body is not valid JSON.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrMissingReference is returned when a webhook carries no correlation key.
	ErrMissingReference = errors.New("webhook payload has no reference")

	// ErrUnknownReference is returned when no payment intent matches the reference.
	ErrUnknownReference = errors.New("unknown payment reference")

	// ErrEventInFlight is returned when another handler is processing the same reference.
	ErrEventInFlight = errors.New("event for this reference is already being processed")

	// ErrInvalidBookingKind is returned when a booking kind is not recognised.
	ErrInvalidBookingKind = errors.New("invalid booking kind")

	// ErrInvalidBookingID is returned when booking ID is empty.
	ErrInvalidBookingID = errors.New("invalid booking id")

	// ErrInvalidBookingStatus is returned when a requested status is not recognised.
	ErrInvalidBookingStatus = errors.New("invalid booking status")

	// ErrInvalidActor is returned when the caller may not drive status changes.
	ErrInvalidActor = errors.New("invalid actor")

	// ErrInvalidLocation is returned when location coordinates are invalid.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrBookingNotInProgress is returned when a location update arrives for a
	// booking that is not on a trip.
	ErrBookingNotInProgress = errors.New("booking is not in progress")
)
