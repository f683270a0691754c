package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"killrelay/internal/config"
	"killrelay/internal/filterstore"
	"killrelay/internal/logger"
	"killrelay/internal/management"
	"killrelay/pkg/bootstrap"
	"killrelay/pkg/health"
	"killrelay/pkg/metrics"
	"killrelay/pkg/middleware"
	"killrelay/pkg/ratelimit"
	"killrelay/pkg/tracing"
)

const serviceName = management.SourceName

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	conns       *bootstrap.Connections
	service     management.Service
	// ctx bounds background work started by middleware.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log, serviceName),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		conns:       &bootstrap.Connections{},
	}
}

func (a *App) Initialize(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.InitTracing(); err != nil {
		return err
	}

	metrics.RegisterManagementMetrics()
	metrics.RegisterBrokerMetrics()

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initService(ctx); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	a.InitServer(a.initRouter())
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	// The audit log lives in PostgreSQL whatever the filter store type.
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.conns.Postgres = db

	return a.dbConnector.InitFilterStoreBackend(ctx, a.conns)
}

func (a *App) initService(ctx context.Context) error {
	store, err := filterstore.New(ctx, a.Config.FilterStore, a.conns.Backends(), a.Logger)
	if err != nil {
		return err
	}

	opts := []management.ServiceOption{management.WithLogger(a.Logger)}

	if a.conns.Postgres != nil {
		opts = append(opts, management.WithAudit(management.NewAuditLogger(a.conns.Postgres)))
	} else {
		a.Logger.WarnwCtx(a.Context(ctx), "PostgreSQL not configured, audit log disabled")
	}

	if topic := a.Config.Broker.Kafka.ConfigUpdateTopic; topic != "" {
		if err := a.InitProducer(); err != nil {
			a.Logger.WarnwCtx(a.Context(ctx), "Failed to create config event producer, config events will be disabled",
				"error", err,
			)
		} else {
			opts = append(opts, management.WithConfigEvents(management.NewConfigEventProducer(a.Producer, topic)))
			a.Logger.InfowCtx(a.Context(ctx), "Config event producer initialized", "topic", topic)
		}
	}

	a.service = management.NewService(store, opts...)
	return nil
}

func (a *App) initRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.ActorMiddleware())

	if a.Config.Management.RateLimit.Enabled {
		rateLimitConfig := ratelimit.FromConfig(a.Config.Management.RateLimit)
		router.Use(ratelimit.RateLimitMiddleware(a.ctx, rateLimitConfig))
		a.Logger.InfowCtx(a.Context(a.ctx), "Rate limiting enabled",
			"rps", rateLimitConfig.RPS,
			"burst", rateLimitConfig.Burst,
		)
	}

	management.NewHandler(a.service, a.Logger).RegisterRoutes(router)

	registry := health.NewCheckerRegistry()
	if a.conns.Postgres != nil {
		registry.Register(health.NewPostgreSQLChecker(a.conns.Postgres))
	}
	if a.conns.Redis != nil {
		registry.Register(health.NewRedisChecker(a.conns.Redis))
	}
	if a.conns.Mongo != nil {
		registry.Register(health.NewMongoDBChecker(a.conns.Mongo))
	}
	if a.Producer != nil {
		registry.RegisterOptional(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
	}

	router.GET("/health", health.Handler(registry))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func (a *App) Run(ctx context.Context) error {
	return a.ServeHTTP(ctx)
}

func (a *App) Shutdown(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		return a.dbConnector.ShutdownDatabases(ctx, a.conns)
	})
}
