package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"booking/internal/domain"
	"booking/internal/logger"
	"booking/internal/metrics"
	"booking/internal/redis"
	"booking/internal/repository"
)

const defaultReferenceLockTTL = 30 * time.Second

// Outcome is how a webhook event was settled.
type Outcome string

const (
	OutcomeProcessed  Outcome = "processed"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeRejected   Outcome = "rejected"
	outcomeError      Outcome = "error"

	// OutcomeLatePayment settles a booking whose intent was already closed
	// as failed or expired.
	OutcomeLatePayment Outcome = "late_payment"
)

// WebhookResult describes a handled gateway event.
type WebhookResult struct {
	Event     EventKind
	Reference string
	Outcome   Outcome
	Reason    string
	Strategy  Strategy
	Booking   *domain.BookingRef
}

// WebhookDispatcherParams configure the dispatcher.
type WebhookDispatcherParams struct {
	Store     repository.Store
	Ledger    *Ledger
	Resolver  *Resolver
	Lifecycle *Lifecycle
	Capacity  *CapacityAdjuster
	Notifier  *NotificationService
	// Locker is optional. Without it the intent row lock alone serialises
	// redeliveries.
	Locker  redis.ReferenceLocker
	Logger  *logger.Logger
	Metrics *metrics.BookingMetrics

	SentinelReferences  []string
	TestReferencePrefix string
	LockTTL             time.Duration
}

// WebhookDispatcher applies payment gateway events exactly once.
type WebhookDispatcher struct {
	store      repository.Store
	ledger     *Ledger
	resolver   *Resolver
	lifecycle  *Lifecycle
	capacity   *CapacityAdjuster
	notifier   *NotificationService
	locker     redis.ReferenceLocker
	logg       *logger.Logger
	metrics    *metrics.BookingMetrics
	sentinels  map[string]bool
	testPrefix string
	lockTTL    time.Duration
	now        func() time.Time
}

// NewWebhookDispatcher builds a dispatcher.
func NewWebhookDispatcher(params WebhookDispatcherParams) (*WebhookDispatcher, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	resolver := params.Resolver
	if resolver == nil {
		resolver = NewResolver()
	}
	lifecycle := params.Lifecycle
	if lifecycle == nil {
		lifecycle = NewLifecycle()
	}
	capacity := params.Capacity
	if capacity == nil {
		capacity = NewCapacityAdjuster(params.Logger, params.Metrics)
	}
	lockTTL := params.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultReferenceLockTTL
	}
	sentinels := make(map[string]bool, len(params.SentinelReferences))
	for _, ref := range params.SentinelReferences {
		sentinels[ref] = true
	}

	return &WebhookDispatcher{
		store:      params.Store,
		ledger:     params.Ledger,
		resolver:   resolver,
		lifecycle:  lifecycle,
		capacity:   capacity,
		notifier:   params.Notifier,
		locker:     params.Locker,
		logg:       params.Logger,
		metrics:    params.Metrics,
		sentinels:  sentinels,
		testPrefix: params.TestReferencePrefix,
		lockTTL:    lockTTL,
		now:        time.Now,
	}, nil
}

// Handle parses and applies one webhook body. A nil error means the gateway
// should consider the event delivered.
func (d *WebhookDispatcher) Handle(ctx context.Context, raw []byte) (*WebhookResult, error) {
	event, err := ParseWebhookEvent(raw)
	if errors.Is(err, ErrMalformedPayload) {
		d.metrics.IncWebhookEvent(string(EventUnknown), "malformed")
		d.logg.Warn(d.logg.WithField(ctx, "error", err.Error()), "rejecting malformed webhook payload")
		return nil, err
	}

	ctx = d.logg.WithFields(ctx, map[string]any{
		"event":             event.Name,
		"event_kind":        string(event.Kind),
		"gateway_reference": event.Reference,
	})
	result := &WebhookResult{Event: event.Kind, Reference: event.Reference}

	if errors.Is(err, ErrMissingReference) {
		d.logg.Warn(ctx, "webhook without reference acknowledged and ignored")
		return d.finish(result, OutcomeIgnored, "missing reference"), nil
	}
	if d.sentinels[event.Reference] {
		d.logg.Info(ctx, "gateway test webhook acknowledged")
		return d.finish(result, OutcomeIgnored, "sentinel reference"), nil
	}
	release, err := d.lockReference(ctx, event.Reference)
	if err != nil {
		d.metrics.IncWebhookEvent(string(event.Kind), "in_flight")
		return nil, err
	}
	defer release()

	intent, err := d.ledger.FindByGatewayReference(ctx, event.Reference)
	if errors.Is(err, repository.ErrNotFound) {
		if d.isTestReference(event.Reference) {
			d.logg.Info(ctx, "synthetic test reference acknowledged")
			return d.finish(result, OutcomeIgnored, "test reference"), nil
		}
		d.logg.Warn(ctx, "webhook for unknown payment reference")
		d.metrics.IncWebhookEvent(string(event.Kind), "unknown_reference")
		return nil, fmt.Errorf("%w: %s", ErrUnknownReference, event.Reference)
	}
	if err != nil {
		return nil, d.fail(ctx, event, fmt.Errorf("find intent: %w", err))
	}
	ctx = d.correlate(ctx, intent)

	switch event.Kind {
	case EventSucceeded:
		err = d.handleSucceeded(ctx, event.Reference, result)
	case EventFailed:
		err = d.handleFailed(ctx, event.Reference, result)
	case EventUnknown:
		d.logg.Info(ctx, "unrecognised webhook event ignored")
		d.finish(result, OutcomeIgnored, "unrecognised event")
	default:
		d.logg.Info(ctx, "payment method lifecycle event recorded")
		d.finish(result, OutcomeIgnored, "informational")
	}
	if err != nil {
		return nil, d.fail(ctx, event, err)
	}
	return result, nil
}

func (d *WebhookDispatcher) handleSucceeded(ctx context.Context, reference string, result *WebhookResult) error {
	at := d.now()
	var paidIntent *domain.PaymentIntent
	var notifyBooking *domain.Booking

	err := d.store.WithinTx(ctx, func(tx repository.Store) error {
		intent, err := tx.Payments().LockByGatewayReference(ctx, reference)
		if err != nil {
			return fmt.Errorf("lock intent: %w", err)
		}

		// The gateway captured money for an intent closed locally. The ledger
		// keeps its terminal status but the booking is still settled.
		var closedAs domain.PaymentStatus
		if intent.Status == domain.PaymentStatusFailed || intent.Status == domain.PaymentStatusExpired {
			closedAs = intent.Status
		}

		changed, err := d.ledger.MarkPaid(ctx, tx.Payments(), intent, at)
		if err != nil {
			return err
		}
		paidIntent = intent

		resolution, err := d.resolver.Resolve(ctx, tx, intent)
		if errors.Is(err, ErrBookingUnresolved) {
			d.logg.Error(ctx, "paid intent has no matching booking", err)
			d.metrics.IncUnresolved()
			d.finish(result, OutcomeUnresolved, "no booking matched")
			return nil
		}
		if err != nil {
			return fmt.Errorf("resolve booking: %w", err)
		}

		booking := resolution.Booking
		ref := booking.Ref()
		result.Strategy = resolution.Strategy
		result.Booking = &ref
		bookingCtx := d.logg.WithFields(ctx, map[string]any{
			"booking_kind": string(booking.Kind),
			"resolved_id":  booking.ID,
			"strategy":     string(resolution.Strategy),
		})

		transition, err := d.lifecycle.Apply(bookingCtx, tx.Bookings(booking.Kind), booking, TransitionRequest{
			Target: domain.BookingStatusPaid,
			Actor:  domain.ActorWebhook,
			At:     at,
		})
		if errors.Is(err, domain.ErrTransitionRejected) {
			d.logg.Error(bookingCtx, "paid transition rejected; ledger kept as paid", err)
			d.finish(result, OutcomeRejected, err.Error())
			return nil
		}
		if err != nil {
			return err
		}

		capacity, err := d.capacity.Apply(bookingCtx, tx, transition.Booking, at)
		if err != nil {
			return err
		}

		switch {
		case closedAs != "" && (transition.Applied() || capacity.Applied):
			d.logg.Error(d.logg.WithField(bookingCtx, "intent_status", string(closedAs)),
				"payment settled on a closed intent; booking marked paid, ledger needs reconciliation", ErrLatePayment)
			d.finish(result, OutcomeLatePayment, "intent already "+string(closedAs))
		case changed || transition.Applied() || capacity.Applied:
			d.finish(result, OutcomeProcessed, "")
		default:
			d.finish(result, OutcomeDuplicate, "already applied")
		}
		if transition.Applied() {
			notifyBooking = transition.Booking
		}
		return nil
	})
	if err != nil {
		return err
	}

	if paidIntent != nil {
		d.ledger.Invalidate(ctx, paidIntent.ID, paidIntent.GatewayReference)
	}
	if notifyBooking != nil {
		d.notifier.NotifyPaymentConfirmed(ctx, notifyBooking, paidIntent)
	}
	d.logg.Info(d.logg.WithField(ctx, "outcome", string(result.Outcome)), "payment succeeded event handled")
	return nil
}

func (d *WebhookDispatcher) handleFailed(ctx context.Context, reference string, result *WebhookResult) error {
	var failed *domain.PaymentIntent

	err := d.store.WithinTx(ctx, func(tx repository.Store) error {
		intent, err := tx.Payments().LockByGatewayReference(ctx, reference)
		if err != nil {
			return fmt.Errorf("lock intent: %w", err)
		}
		changed, err := d.ledger.MarkFailed(ctx, tx.Payments(), intent, d.now())
		if err != nil {
			return err
		}
		if changed {
			failed = intent
			d.finish(result, OutcomeProcessed, "")
		} else {
			d.finish(result, OutcomeDuplicate, "intent already "+string(intent.Status))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if failed != nil {
		d.ledger.Invalidate(ctx, failed.ID, failed.GatewayReference)
		d.notifier.NotifyPaymentFailed(ctx, failed)
	}
	d.logg.Info(d.logg.WithField(ctx, "outcome", string(result.Outcome)), "payment failed event handled")
	return nil
}

// lockReference takes the per-reference Redis lock. A Redis error degrades
// to running without the lock.
func (d *WebhookDispatcher) lockReference(ctx context.Context, reference string) (func(), error) {
	noop := func() {}
	if d.locker == nil {
		return noop, nil
	}

	token, ok, err := d.locker.AcquireReferenceLock(ctx, reference, d.lockTTL)
	if err != nil {
		d.logg.Warn(d.logg.WithField(ctx, "error", err.Error()), "reference lock unavailable; continuing without it")
		return noop, nil
	}
	if !ok {
		d.logg.Info(ctx, "webhook for reference already in flight")
		return nil, ErrEventInFlight
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := d.locker.ReleaseReferenceLock(releaseCtx, reference, token); err != nil {
			d.logg.Warn(d.logg.WithField(ctx, "error", err.Error()), "failed to release reference lock")
		}
	}, nil
}

func (d *WebhookDispatcher) isTestReference(reference string) bool {
	return d.testPrefix != "" && strings.HasPrefix(reference, d.testPrefix)
}

func (d *WebhookDispatcher) correlate(ctx context.Context, intent *domain.PaymentIntent) context.Context {
	return d.logg.WithFields(ctx, map[string]any{
		"payment_intent_id": intent.ID,
		"booking_number":    intent.BookingNumber,
		"booking_id":        intent.BookingID,
		"ride_id":           intent.RideID,
		"user_id":           intent.UserID,
	})
}

func (d *WebhookDispatcher) finish(result *WebhookResult, outcome Outcome, reason string) *WebhookResult {
	result.Outcome = outcome
	result.Reason = reason
	d.metrics.IncWebhookEvent(string(result.Event), string(outcome))
	return result
}

func (d *WebhookDispatcher) fail(ctx context.Context, event *WebhookEvent, err error) error {
	d.logg.Error(ctx, "webhook processing failed; gateway will retry", err)
	d.metrics.IncWebhookEvent(string(event.Kind), string(outcomeError))
	if txn := newrelic.FromContext(ctx); txn != nil {
		txn.AddAttribute("gateway_reference", event.Reference)
		txn.NoticeError(err)
	}
	return err
}
