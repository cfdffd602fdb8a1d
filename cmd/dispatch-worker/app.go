package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"sdrops/internal/automation"
	"sdrops/internal/automation/action"
	"sdrops/internal/config"
	"sdrops/internal/constants"
	"sdrops/internal/logger"
	"sdrops/pkg/bootstrap"
	"sdrops/pkg/health"
	"sdrops/pkg/logging"
	"sdrops/pkg/metrics"
	"sdrops/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redis          *redis.Client
	dispatcher     *automation.Dispatcher
	logs           automation.LogRepository
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceNameWorker)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if a.Config.Broker.Type != "kafka" {
		return fmt.Errorf("dispatch worker requires broker.type kafka, got %q", a.Config.Broker.Type)
	}

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	a.logs = automation.NewLogRepository(a.db)
	a.dispatcher = action.NewDispatcher(a.Config, a.db, a.redis, a.Logger)

	if err := a.InitBroker(constants.ServiceNameWorker); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceNameWorker)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterWorkerMetrics()

	a.initHTTPServer()
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	client, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "Redis unavailable, notifications will not be published", "error", err)
		return nil
	}
	a.redis = client
	return nil
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redis != nil {
		healthRegistry.RegisterOptional(health.NewRedisChecker(a.redis))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.shutdown()
	})

	g.Go(func() error {
		return a.monitorStalePending(gCtx)
	})

	topic := a.Config.Broker.Kafka.DispatchTopic
	g.Go(func() error {
		return a.Consumer.Consume(gCtx, topic, automation.NewTaskHandler(a.dispatcher.Dispatch))
	})

	err := g.Wait()

	// Handlers write to postgres until the consumer has returned.
	for _, dbErr := range a.dbConnector.ShutdownDatabases(a.redis, a.db) {
		a.Logger.Errorw("Database shutdown error", "error", dbErr)
	}
	return err
}

// monitorStalePending reports log rows stuck in pending. It does not touch
// them: a task may still be sitting in a retry backoff.
func (a *App) monitorStalePending(ctx context.Context) error {
	interval := a.Config.Dispatch.StaleCheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.checkStalePending(ctx)
		}
	}
}

func (a *App) checkStalePending(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-a.Config.Dispatch.StalePendingAfter)
	count, err := a.logs.CountStalePending(ctx, cutoff)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "Failed to count stale pending logs", "error", err)
		return
	}

	metrics.SetStalePendingLogs(count)
	if count > 0 {
		a.Logger.WarnwCtx(logging.WithServiceName(ctx, constants.ServiceNameWorker), "Execution logs stuck in pending",
			"count", count,
			"older_than", a.Config.Dispatch.StalePendingAfter.String(),
		)
	}
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	return a.Shutdown(shutdownCtx, func(ctx context.Context) []error {
		var errs []error

		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return errs
	})
}
