package repository

import (
	"context"
	"time"

	"booking/internal/domain"
)

// PaymentRepository defines the persistence operations for payment intents.
type PaymentRepository interface {
	// Create persists a new payment intent. Returns ErrDuplicate when the
	// gateway reference already exists.
	Create(ctx context.Context, intent *domain.PaymentIntent) error

	// GetByID retrieves a payment intent by ID.
	GetByID(ctx context.Context, id string) (*domain.PaymentIntent, error)

	// GetByGatewayReference retrieves a payment intent by its gateway reference.
	GetByGatewayReference(ctx context.Context, reference string) (*domain.PaymentIntent, error)

	// LockByGatewayReference retrieves a payment intent and holds a row lock on
	// it until the surrounding transaction ends.
	LockByGatewayReference(ctx context.Context, reference string) (*domain.PaymentIntent, error)

	// MarkPaid moves a pending intent to paid. Returns false when the intent
	// was not pending.
	MarkPaid(ctx context.Context, id string, at time.Time) (bool, error)

	// MarkFailed moves a pending intent to failed. Returns false when the
	// intent was not pending.
	MarkFailed(ctx context.Context, id string, at time.Time) (bool, error)

	// ExpireStale moves up to limit pending intents whose expiry has passed to
	// expired and returns their keys.
	ExpireStale(ctx context.Context, now time.Time, limit int) ([]ExpiredIntent, error)
}

// ExpiredIntent names an intent moved to expired by both of its lookup keys.
type ExpiredIntent struct {
	ID               string
	GatewayReference string
}
