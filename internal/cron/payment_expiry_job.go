package cron

import (
	"context"
	"fmt"
	"time"

	"booking/internal/logger"
)

const defaultExpiryBatch = 200

type staleIntentExpirer interface {
	ExpireStale(ctx context.Context, now time.Time, limit int) (int, error)
}

// PaymentExpiryJobParams configure the intent expiry job.
type PaymentExpiryJobParams struct {
	Logger    *logger.Logger
	Ledger    staleIntentExpirer
	BatchSize int
}

// NewPaymentExpiryJob builds the job that expires pending intents past their
// gateway expiry.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &paymentExpiryJob{
		logg:   params.Logger,
		ledger: params.Ledger,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type paymentExpiryJob struct {
	logg   *logger.Logger
	ledger staleIntentExpirer
	batch  int
	now    func() time.Time
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

func (j *paymentExpiryJob) Run(ctx context.Context) error {
	expired, err := j.ledger.ExpireStale(ctx, j.now(), j.batch)
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "count", expired), "pending payment intents expired")
	}
	if err != nil {
		return fmt.Errorf("expire payment intents: %w", err)
	}
	return nil
}
