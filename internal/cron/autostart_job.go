package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"booking/internal/domain"
	"booking/internal/logger"
	"booking/internal/metrics"
	"booking/internal/repository"
	"booking/internal/service"
)

const defaultAutoStartBatch = 100

// TripAutoStartJobParams configure the departure sweep.
type TripAutoStartJobParams struct {
	Logger    *logger.Logger
	Store     repository.Store
	Lifecycle *service.Lifecycle
	Notifier  *service.NotificationService
	Metrics   *metrics.BookingMetrics
	// Location is the zone ride departure dates and times are written in.
	Location  *time.Location
	BatchSize int
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewTripAutoStartJob builds the job that moves bookings whose ride has
// departed to en_route_pickup.
func NewTripAutoStartJob(params TripAutoStartJobParams) (*TripAutoStartJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	lifecycle := params.Lifecycle
	if lifecycle == nil {
		lifecycle = service.NewLifecycle()
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAutoStartBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &TripAutoStartJob{
		logg:      params.Logger,
		store:     params.Store,
		lifecycle: lifecycle,
		notifier:  params.Notifier,
		metrics:   params.Metrics,
		loc:       loc,
		batch:     batch,
		kinds:     domain.BookingKinds,
		now:       now,
	}, nil
}

// TripAutoStartJob sweeps every booking collection once per cycle.
type TripAutoStartJob struct {
	logg      *logger.Logger
	store     repository.Store
	lifecycle *service.Lifecycle
	notifier  *service.NotificationService
	metrics   *metrics.BookingMetrics
	loc       *time.Location
	batch     int
	kinds     []domain.BookingKind
	now       func() time.Time
}

func (j *TripAutoStartJob) Name() string { return "trip-autostart" }

// Run sweeps each collection in turn. A failing collection does not stop the
// others; their errors are combined.
func (j *TripAutoStartJob) Run(ctx context.Context) error {
	now := j.now()
	var errs error
	for _, kind := range j.kinds {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := j.sweep(ctx, kind, now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}
	return errs
}

func (j *TripAutoStartJob) sweep(ctx context.Context, kind domain.BookingKind, now time.Time) error {
	repo := j.store.Bookings(kind)
	if repo == nil {
		return fmt.Errorf("no repository for kind %s", kind)
	}
	kindCtx := j.logg.WithField(ctx, "kind", string(kind))

	var failures error
	started, scanned := 0, 0
	cursor := ""
	for {
		page, err := repo.ListDueForStart(ctx, repository.DueQuery{
			Statuses: domain.AwaitingStartStatuses,
			Now:      now,
			Location: j.loc,
			AfterID:  cursor,
			Limit:    j.batch,
		})
		if err != nil {
			return multierr.Append(failures, fmt.Errorf("list due bookings after %q: %w", cursor, err))
		}

		for _, booking := range page {
			scanned++
			applied, err := j.start(kindCtx, repo, booking, now)
			if err != nil {
				failures = multierr.Append(failures, err)
				continue
			}
			if applied {
				started++
			}
		}

		if len(page) < j.batch {
			break
		}
		cursor = page[len(page)-1].ID
	}

	if scanned > 0 {
		j.logg.Info(j.logg.WithFields(kindCtx, map[string]any{
			"scanned": scanned,
			"started": started,
		}), "departure sweep complete")
	}
	return failures
}

func (j *TripAutoStartJob) start(ctx context.Context, repo repository.BookingRepository, booking *domain.Booking, now time.Time) (bool, error) {
	logCtx := j.logg.WithFields(j.logg.WithBooking(ctx, string(booking.Kind), booking.ID), map[string]any{
		"booking_number": booking.BookingNumber,
		"from":           string(booking.Status),
	})

	result, err := j.lifecycle.Apply(logCtx, repo, booking, service.TransitionRequest{
		Target: domain.BookingStatusEnRoutePickup,
		Actor:  domain.ActorAutoStarter,
		At:     now,
	})
	switch {
	case errors.Is(err, domain.ErrTransitionRejected):
		// Cancelled or completed between the listing and the update.
		j.metrics.IncAutostart(string(booking.Kind), "skipped")
		j.logg.Debug(logCtx, "booking no longer eligible for auto-start")
		return false, nil
	case err != nil:
		j.metrics.IncAutostart(string(booking.Kind), "error")
		j.logg.Error(logCtx, "failed to auto-start booking", err)
		return false, fmt.Errorf("booking %s: %w", booking.ID, err)
	case !result.Applied():
		j.metrics.IncAutostart(string(booking.Kind), "noop")
		return false, nil
	}

	j.metrics.IncAutostart(string(booking.Kind), "started")
	j.logg.Info(logCtx, "trip auto-started at departure")
	j.notifier.NotifyStatusChanged(ctx, result.Booking)
	return true, nil
}
