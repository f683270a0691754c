package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"killrelay/internal/broker"
	"killrelay/internal/config"
	"killrelay/internal/config_handler"
	"killrelay/internal/constants"
	"killrelay/internal/deduplication"
	"killrelay/internal/filterstore"
	"killrelay/internal/logger"
	"killrelay/internal/routing"
	"killrelay/internal/rules"
	"killrelay/internal/topology"
	"killrelay/pkg/bootstrap"
	"killrelay/pkg/health"
	"killrelay/pkg/metrics"
	"killrelay/pkg/middleware"
	"killrelay/pkg/models"
	"killrelay/pkg/tracing"
)

const serviceName = routing.SourceName

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	conns          *bootstrap.Connections
	table          *topology.Table
	service        *routing.Service
	dedup          *deduplication.Service
	dispatcher     *routing.Dispatcher
	configConsumer broker.Consumer
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log, serviceName),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		conns:       &bootstrap.Connections{},
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.InitTracing(); err != nil {
		return err
	}

	metrics.RegisterRoutingMetrics()
	metrics.RegisterDedupMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initRouting(ctx); err != nil {
		return fmt.Errorf("failed to initialize routing: %w", err)
	}

	if err := a.InitBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.initDeduplication()

	deliveryTopic := a.Config.Broker.Kafka.DeliveryTopic
	if deliveryTopic == "" {
		deliveryTopic = constants.DefaultDeliveryTopic
	}

	var claimer routing.Claimer
	if a.dedup != nil {
		claimer = a.dedup
	}
	a.dispatcher = routing.NewDispatcher(a.service, claimer, a.Producer, deliveryTopic, a.Logger)

	a.InitServer(a.initRouter())
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.conns.Redis = rdb

	return a.dbConnector.InitFilterStoreBackend(ctx, a.conns)
}

func (a *App) initRouting(ctx context.Context) error {
	table, err := a.loadTopology()
	if err != nil {
		return err
	}
	a.table = table
	a.Logger.InfowCtx(a.Context(ctx), "Topology loaded", "systems", table.Len())
	if table.Sample() {
		a.Logger.WarnwCtx(a.Context(ctx), "Using embedded sample topology, region rules only resolve a few systems; set routing.topology_path",
			"systems", table.Len(),
		)
	}

	store, err := filterstore.New(ctx, a.Config.FilterStore, a.conns.Backends(), a.Logger)
	if err != nil {
		return err
	}

	engine := routing.NewEngine(table, rules.NewCompiler(a.Logger), a.Logger)
	a.service = routing.NewService(store, engine, a.Config.Routing, a.Logger)

	if err := a.service.ReloadFilterSets(ctx, true); err != nil {
		a.Logger.WarnwCtx(a.Context(ctx), "Failed to load initial filter sets, routing retries until the store answers", "error", err)
	}
	return nil
}

func (a *App) loadTopology() (*topology.Table, error) {
	if a.Config.Routing.TopologyPath != "" {
		return topology.LoadFile(a.Config.Routing.TopologyPath)
	}
	return topology.Default()
}

// initDeduplication leaves dedup disabled when no Redis is configured.
func (a *App) initDeduplication() {
	if a.conns.Redis == nil {
		a.Logger.WarnwCtx(a.Context(context.Background()), "Redis not configured, deduplication disabled")
		return
	}

	var repo deduplication.Repository = deduplication.NewRepository(a.conns.Redis)
	if a.Config.CircuitBreaker.Enabled {
		repo = deduplication.NewCircuitBreakerRepository(repo, a.Config.CircuitBreaker)
	}
	a.dedup = deduplication.NewService(repo, a.Config.Deduplication, a.Logger)
}

func (a *App) initRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}
	router.Use(middleware.RecoveryMiddleware(a.Logger))

	registry := health.NewCheckerRegistry()
	registry.Register(health.NewFuncChecker("filter_sets", a.service.Ready))
	if a.conns.Redis != nil {
		registry.Register(health.NewRedisChecker(a.conns.Redis))
	}
	if a.conns.Postgres != nil {
		registry.Register(health.NewPostgreSQLChecker(a.conns.Postgres))
	}
	if a.conns.Mongo != nil {
		registry.Register(health.NewMongoDBChecker(a.conns.Mongo))
	}
	if len(a.Config.Broker.Kafka.Brokers) > 0 {
		registry.RegisterOptional(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
	}

	router.GET("/health", health.Handler(registry))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.ServeHTTP(gCtx)
	})

	a.startConfigConsumer(g, gCtx)

	g.Go(func() error {
		return a.service.StartReloader(gCtx)
	})

	killmailTopic := a.Config.Broker.Kafka.KillmailTopic
	if killmailTopic == "" {
		killmailTopic = constants.DefaultKillmailTopic
	}
	g.Go(func() error {
		a.Logger.InfowCtx(a.Context(gCtx), "Consuming killmails", "topic", killmailTopic)
		return a.Consumer.Consume(gCtx, killmailTopic, a.dispatcher.Handle)
	})

	return g.Wait()
}

// startConfigConsumer reloads filter sets as soon as the management service
// announces a change. Without it the periodic reloader still converges.
func (a *App) startConfigConsumer(g *errgroup.Group, ctx context.Context) {
	topic := a.Config.Broker.Kafka.ConfigUpdateTopic
	if topic == "" {
		return
	}

	consumer, err := broker.NewConsumer(a.Config.Broker, a.Logger)
	if err != nil {
		a.Logger.WarnwCtx(a.Context(ctx), "Failed to create config event consumer, event-driven reload disabled",
			"error", err,
		)
		return
	}
	consumer.SetServiceName(serviceName)
	a.configConsumer = consumer

	handler := config_handler.NewHandlerWithReloader(
		models.EventTypeFilterSetUpdated, models.ServiceTypeRouting, a.service, a.Logger,
	)

	g.Go(func() error {
		a.Logger.InfowCtx(a.Context(ctx), "Starting config update event consumer", "topic", topic)
		return consumer.Consume(ctx, topic, handler.HandleConfigUpdateEvent)
	})
}

func (a *App) Shutdown(ctx context.Context) error {
	additionalShutdown := func(ctx context.Context) []error {
		var errs []error
		if a.configConsumer != nil {
			if err := a.configConsumer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("config consumer close error: %w", err))
			}
		}
		return append(errs, a.dbConnector.ShutdownDatabases(ctx, a.conns)...)
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
