package domain

import (
	"errors"
	"fmt"
)

// BookingStatus is the lifecycle state of a booking of any kind.
type BookingStatus string

const (
	BookingStatusPending            BookingStatus = "pending"
	BookingStatusConfirmed          BookingStatus = "confirmed"
	BookingStatusPaid               BookingStatus = "paid"
	BookingStatusEnRoutePickup      BookingStatus = "en_route_pickup"
	BookingStatusAtPickup           BookingStatus = "at_pickup"
	BookingStatusEnRouteDestination BookingStatus = "en_route_destination"
	BookingStatusArrived            BookingStatus = "arrived"
	BookingStatusCompleted          BookingStatus = "completed"
	BookingStatusCancelled          BookingStatus = "cancelled"
)

// happyPath is the linear order of non-cancelled states.
var happyPath = map[BookingStatus]int{
	BookingStatusPending:            0,
	BookingStatusConfirmed:          1,
	BookingStatusPaid:               2,
	BookingStatusEnRoutePickup:      3,
	BookingStatusAtPickup:           4,
	BookingStatusEnRouteDestination: 5,
	BookingStatusArrived:            6,
	BookingStatusCompleted:          7,
}

// statusesByKind lists the states each kind may hold. Cargo and parcel-drop
// bookings go straight from pending to paid.
var statusesByKind = map[BookingKind]map[BookingStatus]bool{
	KindPersonRide: setOf(BookingStatusPending, BookingStatusConfirmed, BookingStatusPaid,
		BookingStatusEnRoutePickup, BookingStatusAtPickup, BookingStatusEnRouteDestination,
		BookingStatusArrived, BookingStatusCompleted, BookingStatusCancelled),
	KindCarRide: setOf(BookingStatusPending, BookingStatusConfirmed, BookingStatusPaid,
		BookingStatusEnRoutePickup, BookingStatusAtPickup, BookingStatusEnRouteDestination,
		BookingStatusArrived, BookingStatusCompleted, BookingStatusCancelled),
	KindCargo: setOf(BookingStatusPending, BookingStatusPaid,
		BookingStatusEnRoutePickup, BookingStatusAtPickup, BookingStatusEnRouteDestination,
		BookingStatusArrived, BookingStatusCompleted, BookingStatusCancelled),
	KindParcelDrop: setOf(BookingStatusPending, BookingStatusPaid,
		BookingStatusEnRoutePickup, BookingStatusAtPickup, BookingStatusEnRouteDestination,
		BookingStatusArrived, BookingStatusCompleted, BookingStatusCancelled),
}

func setOf(statuses ...BookingStatus) map[BookingStatus]bool {
	set := make(map[BookingStatus]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return set
}

// AwaitingStartStatuses are the states the auto-starter promotes.
var AwaitingStartStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusPaid,
}

// IsTerminal reports whether the status accepts no further transitions.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// ValidFor reports whether the status exists for the given kind.
func (s BookingStatus) ValidFor(kind BookingKind) bool {
	return statusesByKind[kind][s]
}

// Actor identifies who is asking for a transition.
type Actor string

const (
	ActorWebhook     Actor = "webhook"
	ActorAutoStarter Actor = "autostarter"
	ActorDriver      Actor = "driver"
	ActorOperator    Actor = "operator"
)

// Decision is the outcome of evaluating a transition.
type Decision int

const (
	// DecisionApply means the status must be written.
	DecisionApply Decision = iota
	// DecisionNoop means the booking already satisfies the request.
	DecisionNoop
)

// ErrTransitionRejected is the sentinel wrapped by every TransitionError.
var ErrTransitionRejected = errors.New("transition rejected")

// TransitionError explains why a transition was refused.
type TransitionError struct {
	Kind   BookingKind
	From   BookingStatus
	To     BookingStatus
	Actor  Actor
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s booking %s -> %s by %s: %s", e.Kind, e.From, e.To, e.Actor, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrTransitionRejected }

// Transition checks whether actor may move a booking of kind from current to
// target. It never mutates anything.
func Transition(kind BookingKind, current, target BookingStatus, actor Actor) (Decision, error) {
	reject := func(reason string) (Decision, error) {
		return DecisionNoop, &TransitionError{Kind: kind, From: current, To: target, Actor: actor, Reason: reason}
	}

	if !target.ValidFor(kind) {
		return reject("status not defined for kind")
	}
	if current == target {
		return DecisionNoop, nil
	}
	if current.IsTerminal() {
		return reject("booking is " + string(current))
	}
	if target == BookingStatusCancelled {
		return DecisionApply, nil
	}
	if !actorMayApply(actor, target) {
		return reject("actor not allowed to apply status")
	}

	from, to := happyPath[current], happyPath[target]
	if to < from {
		switch actor {
		case ActorAutoStarter, ActorWebhook:
			// Already past what the sweep or the gateway would set.
			return DecisionNoop, nil
		}
		return reject("cannot move backward")
	}
	if isTripStep(target) && from < happyPath[BookingStatusEnRoutePickup] {
		return reject("trip has not started")
	}
	return DecisionApply, nil
}

func actorMayApply(actor Actor, target BookingStatus) bool {
	switch target {
	case BookingStatusPaid:
		return actor == ActorWebhook
	case BookingStatusEnRoutePickup:
		return actor == ActorAutoStarter
	case BookingStatusConfirmed:
		return actor == ActorOperator
	case BookingStatusAtPickup, BookingStatusEnRouteDestination, BookingStatusArrived, BookingStatusCompleted:
		return actor == ActorDriver || actor == ActorOperator
	}
	return false
}

func isTripStep(s BookingStatus) bool {
	switch s {
	case BookingStatusAtPickup, BookingStatusEnRouteDestination, BookingStatusArrived, BookingStatusCompleted:
		return true
	}
	return false
}
