package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"booking/internal/domain"
	"booking/internal/repository"
)

const paymentColumns = `id, gateway_reference, account_number, booking_id, booking_number, ride_id,
		user_id, method, amount, status, expires_at, paid_at, failed_at, created_at, updated_at`

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// NewPaymentRepositoryWithTx creates a payment repository using a transaction.
func NewPaymentRepositoryWithTx(tx *sql.Tx) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

// Create persists a new payment intent.
func (r *PaymentRepository) Create(ctx context.Context, intent *domain.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (id, gateway_reference, account_number, booking_id, booking_number,
			ride_id, user_id, method, amount, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`

	_, err := r.q.ExecContext(ctx, query,
		intent.ID,
		intent.GatewayReference,
		nullString(intent.AccountNumber),
		nullString(intent.BookingID),
		nullString(intent.BookingNumber),
		nullString(intent.RideID),
		intent.UserID,
		intent.Method,
		intent.Amount,
		intent.Status,
		nullTime(intent.ExpiresAt),
		intent.CreatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a payment intent by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_intents WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByGatewayReference retrieves a payment intent by its gateway reference.
func (r *PaymentRepository) GetByGatewayReference(ctx context.Context, reference string) (*domain.PaymentIntent, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_intents WHERE gateway_reference = $1`
	return r.getOne(ctx, query, reference)
}

// LockByGatewayReference retrieves a payment intent with SELECT ... FOR UPDATE.
func (r *PaymentRepository) LockByGatewayReference(ctx context.Context, reference string) (*domain.PaymentIntent, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_intents WHERE gateway_reference = $1 FOR UPDATE`
	return r.getOne(ctx, query, reference)
}

// MarkPaid moves a pending intent to paid.
func (r *PaymentRepository) MarkPaid(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE payment_intents
		SET status = $2, paid_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4
	`

	result, err := r.q.ExecContext(ctx, query, id, domain.PaymentStatusPaid, at, domain.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	return affected(result)
}

// MarkFailed moves a pending intent to failed.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE payment_intents
		SET status = $2, failed_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4
	`

	result, err := r.q.ExecContext(ctx, query, id, domain.PaymentStatusFailed, at, domain.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	return affected(result)
}

// ExpireStale marks overdue pending intents as expired.
func (r *PaymentRepository) ExpireStale(ctx context.Context, now time.Time, limit int) ([]repository.ExpiredIntent, error) {
	query := `
		UPDATE payment_intents
		SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM payment_intents
			WHERE status = $3 AND expires_at IS NOT NULL AND expires_at <= $2
			ORDER BY expires_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, gateway_reference
	`

	rows, err := r.q.QueryContext(ctx, query, domain.PaymentStatusExpired, now, domain.PaymentStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []repository.ExpiredIntent
	for rows.Next() {
		var e repository.ExpiredIntent
		if err := rows.Scan(&e.ID, &e.GatewayReference); err != nil {
			return nil, err
		}
		expired = append(expired, e)
	}
	return expired, rows.Err()
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, arg string) (*domain.PaymentIntent, error) {
	intent, err := scanPaymentIntent(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return intent, nil
}

func scanPaymentIntent(row rowScanner) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	var accountNumber, bookingID, bookingNumber, rideID sql.NullString
	var expiresAt, paidAt, failedAt sql.NullTime

	err := row.Scan(
		&intent.ID,
		&intent.GatewayReference,
		&accountNumber,
		&bookingID,
		&bookingNumber,
		&rideID,
		&intent.UserID,
		&intent.Method,
		&intent.Amount,
		&intent.Status,
		&expiresAt,
		&paidAt,
		&failedAt,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	intent.AccountNumber = accountNumber.String
	intent.BookingID = bookingID.String
	intent.BookingNumber = bookingNumber.String
	intent.RideID = rideID.String
	if expiresAt.Valid {
		intent.ExpiresAt = expiresAt.Time
	}
	if paidAt.Valid {
		intent.PaidAt = paidAt.Time
	}
	if failedAt.Valid {
		intent.FailedAt = failedAt.Time
	}

	return &intent, nil
}
