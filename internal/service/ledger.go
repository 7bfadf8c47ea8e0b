package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"booking/internal/domain"
	"booking/internal/logger"
	"booking/internal/redis"
	"booking/internal/repository"
)

// Ledger owns payment intents: creation, terminal transitions and status reads.
type Ledger struct {
	store   repository.Store
	gateway Gateway
	cache   redis.PaymentStatusCache
	logg    *logger.Logger
	now     func() time.Time
}

// NewLedger creates a new Ledger. cache may be nil.
func NewLedger(store repository.Store, gateway Gateway, cache redis.PaymentStatusCache, logg *logger.Logger) *Ledger {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Ledger{
		store:   store,
		gateway: gateway,
		cache:   cache,
		logg:    logg,
		now:     time.Now,
	}
}

// CreateIntentRequest contains the parameters for creating a payment intent.
type CreateIntentRequest struct {
	UserID        string
	RideID        string
	BookingID     string
	BookingNumber string
	Method        domain.PaymentMethod
	Amount        decimal.Decimal
}

// CreateIntent asks the gateway for a payment instrument and records a pending intent.
func (l *Ledger) CreateIntent(ctx context.Context, req CreateIntentRequest) (*domain.PaymentIntent, error) {
	if req.UserID == "" {
		return nil, ErrInvalidUserID
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidPaymentAmount
	}
	if !req.Method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	if req.BookingNumber == "" && req.BookingID == "" && req.RideID == "" {
		return nil, ErrMissingBookingLink
	}

	issued, err := l.gateway.CreatePayment(ctx, GatewayRequest{
		UserID:      req.UserID,
		Method:      req.Method,
		Amount:      req.Amount,
		Description: req.BookingNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway create payment: %w", err)
	}

	now := l.now()
	intent := &domain.PaymentIntent{
		ID:               uuid.New().String(),
		GatewayReference: issued.Reference,
		AccountNumber:    issued.AccountNumber,
		BookingID:        req.BookingID,
		BookingNumber:    req.BookingNumber,
		RideID:           req.RideID,
		UserID:           req.UserID,
		Method:           req.Method,
		Amount:           req.Amount,
		Status:           domain.PaymentStatusPending,
		ExpiresAt:        issued.ExpiresAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := l.store.Payments().Create(ctx, intent); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateGatewayReference
		}
		return nil, err
	}

	return intent, nil
}

// FindByGatewayReference retrieves an intent by gateway reference.
func (l *Ledger) FindByGatewayReference(ctx context.Context, reference string) (*domain.PaymentIntent, error) {
	if reference == "" {
		return nil, ErrInvalidPaymentID
	}
	return l.store.Payments().GetByGatewayReference(ctx, reference)
}

// MarkPaid moves a pending intent to paid using payments, which is normally
// transaction-scoped. Terminal intents are left alone and changed is false.
func (l *Ledger) MarkPaid(ctx context.Context, payments repository.PaymentRepository, intent *domain.PaymentIntent, at time.Time) (bool, error) {
	if intent.Status.IsTerminal() {
		return false, nil
	}
	changed, err := payments.MarkPaid(ctx, intent.ID, at)
	if err != nil {
		return false, fmt.Errorf("mark intent paid: %w", err)
	}
	if changed {
		intent.Status = domain.PaymentStatusPaid
		intent.PaidAt = at
		intent.UpdatedAt = at
	}
	return changed, nil
}

// MarkFailed moves a pending intent to failed. Terminal intents are left alone.
func (l *Ledger) MarkFailed(ctx context.Context, payments repository.PaymentRepository, intent *domain.PaymentIntent, at time.Time) (bool, error) {
	if intent.Status.IsTerminal() {
		return false, nil
	}
	changed, err := payments.MarkFailed(ctx, intent.ID, at)
	if err != nil {
		return false, fmt.Errorf("mark intent failed: %w", err)
	}
	if changed {
		intent.Status = domain.PaymentStatusFailed
		intent.FailedAt = at
		intent.UpdatedAt = at
	}
	return changed, nil
}

// PaymentStatus is the read-only snapshot returned to polling clients.
type PaymentStatus struct {
	ID               string
	GatewayReference string
	AccountNumber    string
	BookingNumber    string
	Method           domain.PaymentMethod
	Amount           decimal.Decimal
	Status           domain.PaymentStatus
	ExpiresAt        time.Time
	PaidAt           time.Time
}

// GetStatus returns the snapshot for an intent id or gateway reference,
// served from the cache when possible.
func (l *Ledger) GetStatus(ctx context.Context, idOrReference string) (*PaymentStatus, error) {
	if idOrReference == "" {
		return nil, ErrInvalidPaymentID
	}

	if l.cache != nil {
		cached, err := l.cache.GetPaymentStatus(ctx, idOrReference)
		if err != nil {
			l.logg.Warn(l.logg.WithField(ctx, "error", err.Error()), "payment status cache read failed")
		} else if cached != nil {
			if status, err := fromCachedStatus(cached); err == nil {
				return status, nil
			}
		}
	}

	intent, err := l.store.Payments().GetByID(ctx, idOrReference)
	if errors.Is(err, repository.ErrNotFound) {
		intent, err = l.store.Payments().GetByGatewayReference(ctx, idOrReference)
	}
	if err != nil {
		return nil, err
	}

	status := snapshotOf(intent)
	if l.cache != nil {
		if err := l.cache.SetPaymentStatus(ctx, toCachedStatus(status)); err != nil {
			l.logg.Warn(l.logg.WithField(ctx, "error", err.Error()), "payment status cache write failed")
		}
	}
	return status, nil
}

// Invalidate drops cached snapshots for the intent.
func (l *Ledger) Invalidate(ctx context.Context, keys ...string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.InvalidatePaymentStatus(ctx, keys...); err != nil {
		l.logg.Warn(l.logg.WithField(ctx, "error", err.Error()), "payment status cache invalidation failed")
	}
}

// ExpireStale expires overdue pending intents in batches of limit and returns
// how many were expired.
func (l *Ledger) ExpireStale(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	total := 0
	for {
		expired, err := l.store.Payments().ExpireStale(ctx, now, limit)
		if err != nil {
			return total, fmt.Errorf("expire stale intents: %w", err)
		}
		total += len(expired)
		if len(expired) > 0 {
			keys := make([]string, 0, 2*len(expired))
			for _, e := range expired {
				keys = append(keys, e.ID, e.GatewayReference)
			}
			l.Invalidate(ctx, keys...)
		}

		if len(expired) < limit {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func snapshotOf(intent *domain.PaymentIntent) *PaymentStatus {
	return &PaymentStatus{
		ID:               intent.ID,
		GatewayReference: intent.GatewayReference,
		AccountNumber:    intent.AccountNumber,
		BookingNumber:    intent.BookingNumber,
		Method:           intent.Method,
		Amount:           intent.Amount,
		Status:           intent.Status,
		ExpiresAt:        intent.ExpiresAt,
		PaidAt:           intent.PaidAt,
	}
}

func toCachedStatus(s *PaymentStatus) *redis.CachedPaymentStatus {
	return &redis.CachedPaymentStatus{
		ID:               s.ID,
		GatewayReference: s.GatewayReference,
		AccountNumber:    s.AccountNumber,
		BookingNumber:    s.BookingNumber,
		Method:           string(s.Method),
		Amount:           s.Amount.String(),
		Status:           string(s.Status),
		ExpiresAt:        s.ExpiresAt,
		PaidAt:           s.PaidAt,
	}
}

func fromCachedStatus(c *redis.CachedPaymentStatus) (*PaymentStatus, error) {
	amount, err := decimal.NewFromString(c.Amount)
	if err != nil {
		return nil, err
	}
	return &PaymentStatus{
		ID:               c.ID,
		GatewayReference: c.GatewayReference,
		AccountNumber:    c.AccountNumber,
		BookingNumber:    c.BookingNumber,
		Method:           domain.PaymentMethod(c.Method),
		Amount:           amount,
		Status:           domain.PaymentStatus(c.Status),
		ExpiresAt:        c.ExpiresAt,
		PaidAt:           c.PaidAt,
	}, nil
}
