package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"booking/internal/app"
	"booking/internal/config"
	"booking/internal/cron"
	"booking/internal/handler"
	"booking/internal/logger"
	"booking/internal/metrics"
	internalRedis "booking/internal/redis"
	"booking/internal/repository/postgres"
	"booking/internal/service"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg := config.Load()
	logg := logger.New(logger.Options{
		ServiceName: cfg.NewRelic.AppName,
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
		WarnStack:   cfg.Log.WarnStack,
	})
	ctx := context.Background()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "server exited with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logg.Error(ctx, "failed to initialize New Relic", err)
		} else {
			logg.Info(logg.WithField(ctx, "app", cfg.NewRelic.AppName), "New Relic enabled")
			defer nrApp.Shutdown(5 * time.Second)
		}
	}

	departureZone, err := cfg.Scheduler.Location()
	if err != nil {
		return err
	}

	db, err := app.NewDatabase(startCtx, cfg.Database, nrApp)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logg.Info(ctx, "connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(startCtx, cfg.Redis, nrApp)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	logg.Info(ctx, "connected to Redis")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps, err := wire(db, redisClient, nrApp, registry, cfg, logg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      deps.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronDone := make(chan struct{})
	if cfg.Scheduler.Enabled {
		scheduler, err := newScheduler(deps, redisClient, nrApp, registry, departureZone, cfg, logg)
		if err != nil {
			return fmt.Errorf("build scheduler: %w", err)
		}
		go func() {
			defer close(cronDone)
			if err := scheduler.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "scheduler stopped", err)
			}
		}()
	} else {
		close(cronDone)
		logg.Info(ctx, "scheduler disabled")
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "port", cfg.Server.Port), "starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			<-cronDone
			return fmt.Errorf("server error: %w", err)
		}
	case <-runCtx.Done():
	}
	logg.Info(ctx, "shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "server forced to shutdown", err)
	}
	<-cronDone
	deps.notifier.Wait()

	logg.Info(ctx, "server exited")
	return nil
}

type wiring struct {
	router    http.Handler
	store     *postgres.Store
	ledger    *service.Ledger
	notifier  *service.NotificationService
	lifecycle *service.Lifecycle
	metrics   *metrics.BookingMetrics
}

// wire builds every dependency of the HTTP API.
func wire(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, registry *prometheus.Registry, cfg *config.Config, logg *logger.Logger) (*wiring, error) {
	// Initialize Redis stores.
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient, cfg.Payment.StatusCacheTTL)
	locationStore := internalRedis.NewLocationStore(redisClient)
	idempotencyStore := internalRedis.NewIdempotencyStore(redisClient)

	store := postgres.NewStore(db)
	bookingMetrics := metrics.NewBookingMetrics(registry)

	// Initialize services.
	notifier := service.NewNotificationService(service.NewLogSender(logg), logg, cfg.Notification.Timeout)
	lifecycle := service.NewLifecycle()
	ledger := service.NewLedger(store, service.NewMockGateway(cfg.Payment.IntentTTL), cacheStore, logg)
	dispatcher, err := service.NewWebhookDispatcher(service.WebhookDispatcherParams{
		Store:               store,
		Ledger:              ledger,
		Resolver:            service.NewResolver(),
		Lifecycle:           lifecycle,
		Capacity:            service.NewCapacityAdjuster(logg, bookingMetrics),
		Notifier:            notifier,
		Locker:              lockStore,
		Logger:              logg,
		Metrics:             bookingMetrics,
		SentinelReferences:  cfg.Webhook.SentinelReferences,
		TestReferencePrefix: cfg.Webhook.TestReferencePrefix,
		LockTTL:             cfg.Webhook.ReferenceLockTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("build webhook dispatcher: %w", err)
	}
	bookings := service.NewBookingService(store, lifecycle, notifier, locationStore, logg)

	router := app.NewRouter(app.RouterDeps{
		WebhookHandler:   handler.NewWebhookHandler(dispatcher),
		PaymentHandler:   handler.NewPaymentHandler(ledger),
		BookingHandler:   handler.NewBookingHandler(bookings),
		IdempotencyStore: idempotencyStore,
		Logger:           logg,
		Metrics:          registry,
		NewRelicApp:      nrApp,
		CORSOrigins:      cfg.Server.CORSOrigins,
	})

	return &wiring{
		router:    router,
		store:     store,
		ledger:    ledger,
		notifier:  notifier,
		lifecycle: lifecycle,
		metrics:   bookingMetrics,
	}, nil
}

func newScheduler(deps *wiring, redisClient *redis.Client, nrApp *newrelic.Application, registry *prometheus.Registry, loc *time.Location, cfg *config.Config, logg *logger.Logger) (*cron.Service, error) {
	autostart, err := cron.NewTripAutoStartJob(cron.TripAutoStartJobParams{
		Logger:    logg,
		Store:     deps.store,
		Lifecycle: deps.lifecycle,
		Notifier:  deps.notifier,
		Metrics:   deps.metrics,
		Location:  loc,
		BatchSize: cfg.Scheduler.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	expiry, err := cron.NewPaymentExpiryJob(cron.PaymentExpiryJobParams{
		Logger:    logg,
		Ledger:    deps.ledger,
		BatchSize: cfg.Payment.ExpiryBatch,
	})
	if err != nil {
		return nil, err
	}

	lock, err := cron.NewSharedCycleLock(internalRedis.NewLockStore(redisClient), cfg.Scheduler.LockKey, cfg.Scheduler.LockTTL)
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(autostart, expiry),
		Lock:     lock,
		Metrics:  metrics.NewSchedulerMetrics(registry),
		NewRelic: nrApp,
		Interval: cfg.Scheduler.Interval,
	})
}
