package domain

import (
	"fmt"
	"time"
)

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusScheduled  RideStatus = "scheduled"
	RideStatusInProgress RideStatus = "in_progress"
	RideStatusCompleted  RideStatus = "completed"
	RideStatusCancelled  RideStatus = "cancelled"
)

const (
	departureDateLayout = "2006-01-02"
	departureTimeLayout = "15:04:05"
	departureTimeShort  = "15:04"
)

// Ride is one offered trip. AvailableCapacity is only meaningful for
// person-ride and car-ride kinds.
type Ride struct {
	ID                string
	Kind              BookingKind
	DriverID          string
	AvailableCapacity int
	DepartureDate     string // YYYY-MM-DD
	DepartureTime     string // HH:MM or HH:MM:SS
	Status            RideStatus
	CreatedAt         time.Time
}

// DepartureAt joins the departure date and time into a single instant in loc.
func (r *Ride) DepartureAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date, err := time.ParseInLocation(departureDateLayout, r.DepartureDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse departure date %q: %w", r.DepartureDate, err)
	}
	clock, err := time.Parse(departureTimeLayout, r.DepartureTime)
	if err != nil {
		clock, err = time.Parse(departureTimeShort, r.DepartureTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse departure time %q: %w", r.DepartureTime, err)
		}
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, loc), nil
}
