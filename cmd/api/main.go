package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pipeline_backend/internal/automation"
	"pipeline_backend/internal/automation/outbox"
	"pipeline_backend/internal/bookings"
	bookrepo "pipeline_backend/internal/bookings/repository"
	"pipeline_backend/internal/calendar"
	"pipeline_backend/internal/events"
	apphttp "pipeline_backend/internal/http"
	"pipeline_backend/internal/http/router"
	"pipeline_backend/internal/opportunities"
	opprepo "pipeline_backend/internal/opportunities/repository"
	"pipeline_backend/internal/scheduler"
	"pipeline_backend/internal/suggestions"
	"pipeline_backend/internal/suggestions/analyzer"
	"pipeline_backend/internal/tasks"
	"pipeline_backend/platform/config"
	"pipeline_backend/platform/db"
	"pipeline_backend/platform/logger"
	"pipeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	calendarClient := calendar.NewClient(cfg, log)
	if calendarClient == nil {
		log.Warn("CALENDAR_BASE_URL not configured; conflict checks use internal bookings only")
	}

	playbook, err := automation.LoadPlaybook(cfg.GetPlaybookPath())
	if err != nil {
		log.Error("failed to load automation playbook", "error", err)
		panic("failed to load automation playbook: " + err.Error())
	}

	reminderScheduler, closeScheduler := initReminderScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	tasksModule := tasks.NewModule(pool, eventBus, val, log)
	opportunitiesModule := opportunities.NewModule(pool, eventBus, val, log)

	outboxRepo := outbox.New(pool)
	dispatcher := automation.NewDispatcher(calendarClient, bookrepo.New(pool), tasksModule.Service(), outboxRepo, playbook, log)
	if reminderScheduler != nil {
		dispatcher.SetReminderScheduler(reminderScheduler)
	}

	// Stage-entry messages (deposit instructions and the like) ride the same
	// outbox as the booking messages.
	engine := automation.NewEngine(opprepo.New(pool), outboxRepo, playbook, log)
	engine.Subscribe(eventBus)

	bookingsModule := bookings.NewModule(pool, eventBus, val, cfg, log, calendarClient, opportunitiesModule.Service(), dispatcher)

	analyst, err := analyzer.New(cfg)
	if err != nil {
		log.Error("failed to initialize suggestion analyzer", "error", err)
		panic("failed to initialize suggestion analyzer: " + err.Error())
	}
	if analyst == nil {
		log.Warn("MOONSHOT_API_KEY not configured; post-call suggestions disabled")
	}
	suggestionsModule := suggestions.NewModule(pool, eventBus, val, log, bookingsModule.Service(), opportunitiesModule.Service(), analyst)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			opportunitiesModule,
			bookingsModule,
			suggestionsModule,
			tasksModule,
		},
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router.New(app),
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initReminderScheduler(cfg config.SchedulerConfig, log *logger.Logger) (scheduler.ReminderScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; booking reminders disabled")
		return nil, nil
	}

	reminderClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize reminder scheduler client", "error", err)
		return nil, nil
	}

	return reminderClient, func() {
		_ = reminderClient.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
