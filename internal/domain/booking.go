package domain

import (
	"fmt"
	"time"
)

// BookingKind identifies one of the four independently stored booking domains.
type BookingKind string

const (
	KindPersonRide BookingKind = "person_ride"
	KindCarRide    BookingKind = "car_ride"
	KindCargo      BookingKind = "cargo"
	KindParcelDrop BookingKind = "parcel_drop"
)

// BookingKinds lists every kind in resolution order.
var BookingKinds = []BookingKind{KindPersonRide, KindCarRide, KindCargo, KindParcelDrop}

// ParseBookingKind converts a path or payload value into a BookingKind.
func ParseBookingKind(value string) (BookingKind, error) {
	kind := BookingKind(value)
	for _, k := range BookingKinds {
		if k == kind {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown booking kind %q", value)
}

// HasCapacity reports whether rides of this kind track a seat counter.
func (k BookingKind) HasCapacity() bool {
	return k == KindPersonRide || k == KindCarRide
}

// BookingRef is the tagged reference to a booking row. IDs are only unique
// within one kind.
type BookingRef struct {
	Kind BookingKind
	ID   string
}

func (r BookingRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// Booking is the shared shape of person-ride, car-ride, cargo and parcel-drop
// bookings. Quantity is seats for ride kinds, kilograms for cargo and parcel
// count for parcel-drop.
type Booking struct {
	ID                string
	Kind              BookingKind
	BookingNumber     string
	RideID            string
	UserID            string
	Quantity          int
	Status            BookingStatus
	CancelReason      string
	LastLat           float64
	LastLng           float64
	LastLocationAt    time.Time
	PaidAt            time.Time
	TripStartedAt     time.Time
	CapacityAppliedAt time.Time
	CompletedAt       time.Time
	CancelledAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Ref returns the tagged reference for the booking.
func (b *Booking) Ref() BookingRef {
	return BookingRef{Kind: b.Kind, ID: b.ID}
}
