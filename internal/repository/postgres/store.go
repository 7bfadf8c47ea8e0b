package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"booking/internal/domain"
	"booking/internal/repository"
)

// Store is a PostgreSQL implementation of repository.Store.
type Store struct {
	db       *sql.DB
	tx       *sql.Tx
	payments *PaymentRepository
	bookings map[domain.BookingKind]*BookingRepository
	rides    map[domain.BookingKind]*RideRepository
}

var _ repository.Store = (*Store)(nil)

// NewStore creates a Store backed by the connection pool.
func NewStore(db *sql.DB) *Store {
	s := &Store{
		db:       db,
		payments: NewPaymentRepository(db),
		bookings: make(map[domain.BookingKind]*BookingRepository, len(domain.BookingKinds)),
		rides:    make(map[domain.BookingKind]*RideRepository, len(domain.BookingKinds)),
	}
	for _, kind := range domain.BookingKinds {
		s.bookings[kind] = NewBookingRepository(db, kind)
		s.rides[kind] = NewRideRepository(db, kind)
	}
	return s
}

func newTxStore(db *sql.DB, tx *sql.Tx) *Store {
	s := &Store{
		db:       db,
		tx:       tx,
		payments: NewPaymentRepositoryWithTx(tx),
		bookings: make(map[domain.BookingKind]*BookingRepository, len(domain.BookingKinds)),
		rides:    make(map[domain.BookingKind]*RideRepository, len(domain.BookingKinds)),
	}
	for _, kind := range domain.BookingKinds {
		s.bookings[kind] = NewBookingRepositoryWithTx(tx, kind)
		s.rides[kind] = NewRideRepositoryWithTx(tx, kind)
	}
	return s
}

func (s *Store) Payments() repository.PaymentRepository {
	return s.payments
}

func (s *Store) Bookings(kind domain.BookingKind) repository.BookingRepository {
	repo, ok := s.bookings[kind]
	if !ok {
		return nil
	}
	return repo
}

func (s *Store) Rides(kind domain.BookingKind) repository.RideRepository {
	repo, ok := s.rides[kind]
	if !ok {
		return nil
	}
	return repo
}

// WithinTx runs fn inside a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(newTxStore(s.db, tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
