package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"sdrops/internal/auth"
	"sdrops/internal/automation"
	"sdrops/internal/automation/action"
	"sdrops/internal/config"
	"sdrops/internal/constants"
	"sdrops/internal/logger"
	"sdrops/pkg/bootstrap"
	"sdrops/pkg/cel"
	"sdrops/pkg/health"
	"sdrops/pkg/metrics"
	"sdrops/pkg/middleware"
	"sdrops/pkg/migrations"
	"sdrops/pkg/ratelimit"
	"sdrops/pkg/retry"
	"sdrops/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redis          *redis.Client
	runtime        automation.Runtime
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceNameAPI)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceNameAPI)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initRuntime(); err != nil {
		return fmt.Errorf("failed to initialize dispatch runtime: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  time.Duration(a.Config.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.Config.Server.WriteTimeoutSeconds) * time.Second,
	}

	metrics.RegisterAPIMetrics()
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.Config.Database.RunMigrations {
		if err := migrations.Up(db); err != nil {
			return err
		}
		a.Logger.InfowCtx(ctx, "Database migrations applied")
	}

	client, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "Redis unavailable, continuing without analytics cache", "error", err)
		return nil
	}
	a.redis = client
	return nil
}

// initRuntime runs dispatch in-process, or hands tasks to the dispatch worker
// over Kafka.
func (a *App) initRuntime() error {
	if a.Config.Dispatch.Runtime == config.RuntimeKafka {
		if err := a.InitProducer(constants.ServiceNameAPI); err != nil {
			return err
		}
		a.runtime = automation.NewBrokerRuntime(a.Producer, a.Config.Broker.Kafka.DispatchTopic, constants.ServiceNameAPI)
		a.Logger.Infow("Dispatching through Kafka", "topic", a.Config.Broker.Kafka.DispatchTopic)
		return nil
	}

	dispatcher := action.NewDispatcher(a.Config, a.db, a.redis, a.Logger)
	a.runtime = automation.NewInlineRuntime(dispatcher.Dispatch,
		a.Config.Dispatch.Workers, a.Config.Dispatch.QueueSize,
		retry.FromConfig(a.Config.Dispatch.Retry), a.Logger)
	a.Logger.Infow("Dispatching in process",
		"workers", a.Config.Dispatch.Workers,
		"queue_size", a.Config.Dispatch.QueueSize,
	)
	return nil
}

func (a *App) initRouter() error {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return err
	}
	authManager, err := auth.NewManager(a.Config.Auth)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceNameAPI))
	}
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))

	if a.Config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.FromConfig(a.Config.RateLimit)
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.Logger.Infow("Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	opts := []automation.ServiceOption{automation.WithAnalyticsMaxRows(a.Config.Analytics.MaxRows)}
	if a.redis != nil {
		opts = append(opts, automation.WithAnalyticsCache(
			automation.NewRedisAnalyticsCache(a.redis, a.Config.Analytics.CacheTTL, a.Logger)))
	}

	svc := automation.NewService(
		automation.NewRuleRepository(a.db),
		automation.NewLogRepository(a.db),
		automation.NewMatcher(evaluator, a.Logger),
		automation.NewValidator(evaluator),
		a.runtime,
		a.Logger,
		opts...,
	)

	api := router.Group("/api/v1")
	api.Use(auth.RequireOrganization(authManager))
	automation.NewHandler(svc, a.Logger).RegisterRoutes(api)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redis != nil {
		healthRegistry.RegisterOptional(health.NewRedisChecker(a.redis))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.shutdown()
	case err := <-errChan:
		_ = a.shutdown()
		return err
	}
}

// shutdown stops accepting requests before draining the in-process dispatch
// queue, so every accepted task still gets its log row resolved.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	return a.Shutdown(shutdownCtx, func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}

		if a.runtime != nil {
			if err := a.runtime.Close(); err != nil {
				errs = append(errs, fmt.Errorf("dispatch runtime close error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return append(errs, a.dbConnector.ShutdownDatabases(a.redis, a.db)...)
	})
}
