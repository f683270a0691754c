package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"killrelay/internal/config"
	"killrelay/internal/constants"
	"killrelay/internal/ingest"
	"killrelay/internal/logger"
	"killrelay/pkg/bootstrap"
	"killrelay/pkg/health"
	"killrelay/pkg/metrics"
	"killrelay/pkg/middleware"
	"killrelay/pkg/tracing"
)

const serviceName = "ingest-service"

type App struct {
	*bootstrap.Base
	service *ingest.Service
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base: bootstrap.NewBase(cfg, log, serviceName),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.InitTracing(); err != nil {
		return err
	}

	metrics.RegisterIngestMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.InitProducer(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	topic := a.Config.Broker.Kafka.KillmailTopic
	if topic == "" {
		topic = constants.DefaultKillmailTopic
	}

	client := ingest.NewClient(a.Config.Ingest, a.Config.CircuitBreaker)
	a.service = ingest.NewService(client, a.Producer, topic, a.Config.Ingest, a.Logger)
	a.Logger.InfowCtx(a.Context(ctx), "Ingest configured",
		"feed_url", a.Config.Ingest.FeedURL,
		"topic", topic,
	)

	a.InitServer(a.initRouter())
	return nil
}

func (a *App) initRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}
	router.Use(middleware.RecoveryMiddleware(a.Logger))

	registry := health.NewCheckerRegistry()
	if len(a.Config.Broker.Kafka.Brokers) > 0 {
		registry.Register(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
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

	g.Go(func() error {
		return a.service.Run(gCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Base.Shutdown(ctx, nil)
}
