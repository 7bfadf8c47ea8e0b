package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrStatusConflict is returned when a compare-and-set status update finds
	// a different status than expected.
	ErrStatusConflict = errors.New("status changed concurrently")

	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate entity")

	// ErrCapacityNotTracked is returned when decrementing a ride kind that has
	// no seat counter.
	ErrCapacityNotTracked = errors.New("ride kind does not track capacity")
)
