package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booking/internal/domain"
	"booking/internal/repository"
)

type rideTable struct {
	name string
	// capacity is the seat counter column; empty when the kind has none.
	capacity string
}

var rideTables = map[domain.BookingKind]rideTable{
	domain.KindPersonRide: {name: "person_rides", capacity: "available_seats"},
	domain.KindCarRide:    {name: "car_rides", capacity: "available_seats"},
	domain.KindCargo:      {name: "cargo_rides"},
	domain.KindParcelDrop: {name: "parcel_drop_rides"},
}

// RideRepository is a PostgreSQL implementation of repository.RideRepository
// for a single ride kind.
type RideRepository struct {
	q     Querier
	kind  domain.BookingKind
	table rideTable
}

// NewRideRepository creates a ride repository for kind. It panics on an
// unknown kind.
func NewRideRepository(db *sql.DB, kind domain.BookingKind) *RideRepository {
	return newRideRepository(db, kind)
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx, kind domain.BookingKind) *RideRepository {
	return newRideRepository(tx, kind)
}

func newRideRepository(q Querier, kind domain.BookingKind) *RideRepository {
	table, ok := rideTables[kind]
	if !ok {
		panic(fmt.Sprintf("postgres: unknown ride kind %q", kind))
	}
	return &RideRepository{q: q, kind: kind, table: table}
}

// Kind returns the booking kind this repository serves.
func (r *RideRepository) Kind() domain.BookingKind {
	return r.kind
}

// DecrementCapacity locks the ride row and lowers its seat counter by n,
// floored at zero. It must run inside a transaction for the lock to hold.
func (r *RideRepository) DecrementCapacity(ctx context.Context, id string, n int) (int, int, error) {
	if r.table.capacity == "" {
		return 0, 0, repository.ErrCapacityNotTracked
	}

	lockQuery := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, r.table.capacity, r.table.name)

	var before int
	if err := r.q.QueryRowContext(ctx, lockQuery, id).Scan(&before); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, repository.ErrNotFound
		}
		return 0, 0, err
	}

	updateQuery := fmt.Sprintf(`
		UPDATE %s SET %s = GREATEST(%s - $2, 0)
		WHERE id = $1
		RETURNING %s
	`, r.table.name, r.table.capacity, r.table.capacity, r.table.capacity)

	var after int
	if err := r.q.QueryRowContext(ctx, updateQuery, id, n).Scan(&after); err != nil {
		return before, before, err
	}

	return before, after, nil
}
