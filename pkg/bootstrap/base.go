package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"killrelay/internal/broker"
	"killrelay/internal/config"
	"killrelay/internal/constants"
	"killrelay/internal/logger"
	"killrelay/pkg/logging"
	"killrelay/pkg/tracing"
)

// Base holds what every service process shares: config, logging, the
// broker clients, tracing and the HTTP server.
type Base struct {
	Config      *config.Config
	Logger      logger.Logger
	ServiceName string
	Producer    broker.Producer
	Consumer    broker.Consumer
	Tracer      *tracing.TracerProvider
	Server      *http.Server
}

func NewBase(cfg *config.Config, log logger.Logger, serviceName string) *Base {
	if sugared, ok := log.(*logger.SugaredLogger); ok {
		sugared.SetServiceName(serviceName)
	}
	return &Base{
		Config:      cfg,
		Logger:      log,
		ServiceName: serviceName,
	}
}

// Context tags ctx with the service name for log lines.
func (b *Base) Context(ctx context.Context) context.Context {
	return logging.WithServiceName(ctx, b.ServiceName)
}

func (b *Base) InitBroker() error {
	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}

	consumer, err := broker.NewConsumer(b.Config.Broker, b.Logger)
	if err != nil {
		producer.Close()
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	consumer.SetServiceName(b.ServiceName)

	b.Producer = producer
	b.Consumer = consumer
	return nil
}

// InitProducer is for services that only publish.
func (b *Base) InitProducer() error {
	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	b.Producer = producer
	return nil
}

func (b *Base) InitTracing() error {
	tp, err := tracing.Init(b.Config.Tracing, b.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	b.Tracer = tp
	return nil
}

func (b *Base) InitServer(handler http.Handler) {
	b.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", b.Config.Server.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(b.Config.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(b.Config.Server.WriteTimeoutSeconds) * time.Second,
	}
}

// ServeHTTP blocks until the server stops. Cancelling ctx shuts the server
// down gracefully, which is not an error.
func (b *Base) ServeHTTP(ctx context.Context) error {
	if b.Server == nil {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		b.Server.Shutdown(shutdownCtx)
	})
	defer stop()

	b.Logger.InfowCtx(b.Context(ctx), "HTTP server starting", "port", b.Config.Server.Port)
	if err := b.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.InfowCtx(b.Context(ctx), "Shutting down application")

	var errs []error

	if b.Server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := b.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
		}
	}

	errs = append(errs, b.ShutdownBroker()...)

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if b.Tracer != nil {
		if err := b.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.InfowCtx(b.Context(ctx), "Application exited successfully")
	return nil
}
