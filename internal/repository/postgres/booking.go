package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"booking/internal/domain"
	"booking/internal/repository"
)

type bookingTable struct {
	bookings string
	rides    string
}

var bookingTables = map[domain.BookingKind]bookingTable{
	domain.KindPersonRide: {bookings: "person_ride_bookings", rides: "person_rides"},
	domain.KindCarRide:    {bookings: "car_ride_bookings", rides: "car_rides"},
	domain.KindCargo:      {bookings: "cargo_bookings", rides: "cargo_rides"},
	domain.KindParcelDrop: {bookings: "parcel_drop_bookings", rides: "parcel_drop_rides"},
}

const bookingColumns = `b.id, b.booking_number, b.ride_id, b.user_id, b.quantity, b.status, b.cancel_reason,
		b.last_lat, b.last_lng, b.last_location_at, b.paid_at, b.trip_started_at, b.capacity_applied_at,
		b.completed_at, b.cancelled_at, b.created_at, b.updated_at`

// BookingRepository is a PostgreSQL implementation of repository.BookingRepository
// for a single booking kind.
type BookingRepository struct {
	q     Querier
	kind  domain.BookingKind
	table bookingTable
}

// NewBookingRepository creates a booking repository for kind. It panics on an
// unknown kind.
func NewBookingRepository(db *sql.DB, kind domain.BookingKind) *BookingRepository {
	return newBookingRepository(db, kind)
}

// NewBookingRepositoryWithTx creates a booking repository using a transaction.
func NewBookingRepositoryWithTx(tx *sql.Tx, kind domain.BookingKind) *BookingRepository {
	return newBookingRepository(tx, kind)
}

func newBookingRepository(q Querier, kind domain.BookingKind) *BookingRepository {
	table, ok := bookingTables[kind]
	if !ok {
		panic(fmt.Sprintf("postgres: unknown booking kind %q", kind))
	}
	return &BookingRepository{q: q, kind: kind, table: table}
}

// Kind returns the booking kind this repository serves.
func (r *BookingRepository) Kind() domain.BookingKind {
	return r.kind
}

// GetByID retrieves a booking by ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s b WHERE b.id = $1`, bookingColumns, r.table.bookings)
	return r.getOne(ctx, query, id)
}

// FindByBookingNumber retrieves a booking by its booking number.
func (r *BookingRepository) FindByBookingNumber(ctx context.Context, number string) (*domain.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s b WHERE b.booking_number = $1`, bookingColumns, r.table.bookings)
	return r.getOne(ctx, query, number)
}

// FindLatestPending retrieves the newest pending booking for the ride and user.
func (r *BookingRepository) FindLatestPending(ctx context.Context, rideID, userID string) (*domain.Booking, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s b
		WHERE b.ride_id = $1 AND b.user_id = $2 AND b.status = $3
		ORDER BY b.created_at DESC
		LIMIT 1
	`, bookingColumns, r.table.bookings)
	return r.getOne(ctx, query, rideID, userID, domain.BookingStatusPending)
}

// UpdateStatus performs a compare-and-set status update. Side timestamps and
// the cancel reason are only written when currently NULL.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus, change repository.StatusChange) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			status = $3,
			paid_at = COALESCE(paid_at, $4),
			trip_started_at = COALESCE(trip_started_at, $5),
			completed_at = COALESCE(completed_at, $6),
			cancelled_at = COALESCE(cancelled_at, $7),
			cancel_reason = COALESCE(cancel_reason, $8),
			updated_at = $9
		WHERE id = $1 AND status = $2
	`, r.table.bookings)

	at := change.At
	if at.IsZero() {
		at = time.Now()
	}

	result, err := r.q.ExecContext(ctx, query,
		id,
		from,
		to,
		nullTime(change.PaidAt),
		nullTime(change.TripStartedAt),
		nullTime(change.CompletedAt),
		nullTime(change.CancelledAt),
		nullString(change.CancelReason),
		at,
	)
	if err != nil {
		return err
	}

	ok, err := affected(result)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return r.missReason(ctx, id)
}

// StampPaidAt sets paid_at if it is still NULL, leaving the status alone.
func (r *BookingRepository) StampPaidAt(ctx context.Context, id string, at time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET paid_at = COALESCE(paid_at, $2), updated_at = $2
		WHERE id = $1 AND paid_at IS NULL
	`, r.table.bookings)

	result, err := r.q.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, err
	}
	return affected(result)
}

// ClaimCapacity sets capacity_applied_at if it is still NULL.
func (r *BookingRepository) ClaimCapacity(ctx context.Context, id string, at time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET capacity_applied_at = $2, updated_at = $2
		WHERE id = $1 AND capacity_applied_at IS NULL
	`, r.table.bookings)

	result, err := r.q.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, err
	}
	return affected(result)
}

// ListDueForStart returns one page of bookings whose ride departure, read as
// wall-clock time in q.Location, is at or before q.Now.
func (r *BookingRepository) ListDueForStart(ctx context.Context, q repository.DueQuery) ([]*domain.Booking, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s b
		JOIN %s r ON r.id = b.ride_id
		WHERE b.status = ANY($1)
			AND ((r.departure_date + r.departure_time) AT TIME ZONE $2) <= $3
			AND b.id > $4
		ORDER BY b.id
		LIMIT $5
	`, bookingColumns, r.table.bookings, r.table.rides)

	statuses := make([]string, len(q.Statuses))
	for i, s := range q.Statuses {
		statuses[i] = string(s)
	}
	zone := "UTC"
	if q.Location != nil {
		zone = q.Location.String()
	}

	rows, err := r.q.QueryContext(ctx, query, pq.Array(statuses), zone, q.Now, q.AfterID, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}

// UpdateLocation stores the last known position for the booking.
func (r *BookingRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET last_lat = $2, last_lng = $3, last_location_at = $4, updated_at = $4
		WHERE id = $1
	`, r.table.bookings)

	result, err := r.q.ExecContext(ctx, query, id, lat, lng, at)
	if err != nil {
		return err
	}

	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

// missReason tells a missing row apart from a status mismatch.
func (r *BookingRepository) missReason(ctx context.Context, id string) error {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE id = $1`, r.table.bookings)

	var one int
	err := r.q.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	return repository.ErrStatusConflict
}

func (r *BookingRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Booking, error) {
	booking, err := r.scan(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return booking, nil
}

func (r *BookingRepository) scan(row rowScanner) (*domain.Booking, error) {
	booking := domain.Booking{Kind: r.kind}
	var cancelReason sql.NullString
	var lastLat, lastLng sql.NullFloat64
	var lastLocationAt, paidAt, tripStartedAt, capacityAppliedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&booking.ID,
		&booking.BookingNumber,
		&booking.RideID,
		&booking.UserID,
		&booking.Quantity,
		&booking.Status,
		&cancelReason,
		&lastLat,
		&lastLng,
		&lastLocationAt,
		&paidAt,
		&tripStartedAt,
		&capacityAppliedAt,
		&completedAt,
		&cancelledAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	booking.CancelReason = cancelReason.String
	booking.LastLat = lastLat.Float64
	booking.LastLng = lastLng.Float64
	booking.LastLocationAt = lastLocationAt.Time
	booking.PaidAt = paidAt.Time
	booking.TripStartedAt = tripStartedAt.Time
	booking.CapacityAppliedAt = capacityAppliedAt.Time
	booking.CompletedAt = completedAt.Time
	booking.CancelledAt = cancelledAt.Time

	return &booking, nil
}
