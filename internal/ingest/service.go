package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"killrelay/internal/config"
	"killrelay/internal/logger"
	"killrelay/pkg/logging"
	"killrelay/pkg/metrics"
	"killrelay/pkg/models"
	"killrelay/pkg/retry"
	"killrelay/pkg/tracing"
)

const SourceName = "ingest-service"

// Publisher is the part of broker.Producer the ingester needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg models.MessageEnvelope) error
}

// Feed is the part of Client the ingester needs.
type Feed interface {
	Poll(ctx context.Context) (*Package, error)
	FetchKillmail(ctx context.Context, href string) (*models.Killmail, error)
}

// Service moves killmails from the feed onto the killmail topic.
type Service struct {
	feed      Feed
	publisher Publisher
	topic     string
	cfg       config.IngestConfig
	policy    retry.Policy
	logger    logger.Logger
	now       func() time.Time
}

func NewService(feed Feed, publisher Publisher, topic string, cfg config.IngestConfig, log logger.Logger) *Service {
	return &Service{
		feed:      feed,
		publisher: publisher,
		topic:     topic,
		cfg:       cfg,
		policy: retry.Policy{
			MaxAttempts:     5,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			Multiplier:      2.0,
		},
		logger: log,
		now:    time.Now,
	}
}

// Run polls until ctx is cancelled. Feed outages are retried with backoff
// and never end the loop.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.PollIntervalSeconds) * time.Second

	for {
		if err := s.pollOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorwCtx(ctx, "Killmail poll failed", "error", err)
		}

		if interval <= 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) error {
	var pkg *Package
	err := retry.RetryWithCallback(ctx, s.policy, func() error {
		var err error
		pkg, err = s.feed.Poll(ctx)
		return err
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(SourceName, "feed").Inc()
		s.logger.WarnwCtx(ctx, "Retrying feed poll",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})
	if err != nil {
		metrics.IngestKillmailsTotal.WithLabelValues("poll_error").Inc()
		return err
	}

	if pkg == nil {
		metrics.IngestKillmailsTotal.WithLabelValues("empty").Inc()
		s.logger.DebugwCtx(ctx, "Dropped empty poll")
		return nil
	}
	return s.Process(ctx, pkg)
}

// Process resolves the killmail a package announces and publishes it.
func (s *Service) Process(ctx context.Context, pkg *Package) error {
	ctx = logging.WithKillID(ctx, pkg.KillID)
	ctx, span := tracing.GetTracer(SourceName).Start(ctx, "ingest.process")
	defer span.End()

	km, err := s.resolve(ctx, pkg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.IngestKillmailsTotal.WithLabelValues("fetch_error").Inc()
		return fmt.Errorf("failed to resolve killmail %d: %w", pkg.KillID, err)
	}
	span.SetAttributes(tracing.KillmailAttributes(km.KillID, km.SystemID)...)

	if err := models.ValidateKillmail(km); err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.IngestKillmailsTotal.WithLabelValues("invalid").Inc()
		s.logger.WarnwCtx(ctx, "Dropped invalid killmail", "error", err)
		return nil
	}

	skew := s.now().Sub(km.Time)
	metrics.ObserveFeedSkew(skew)

	envelope, err := models.NewMessageEnvelopeBuilder().
		WithID(uuid.New().String()).
		WithSource(SourceName).
		WithTimestamp(s.now()).
		WithKillID(km.KillID).
		WithPayload(km).
		Build()
	if err != nil {
		metrics.IngestKillmailsTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("failed to build envelope: %w", err)
	}

	if err := s.publisher.Publish(ctx, s.topic, *envelope); err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.IngestKillmailsTotal.WithLabelValues("publish_error").Inc()
		return fmt.Errorf("failed to publish killmail %d: %w", km.KillID, err)
	}

	metrics.IngestKillmailsTotal.WithLabelValues("published").Inc()
	s.logger.InfowCtx(ctx, "Published killmail",
		"system_id", km.SystemID,
		"attackers", len(km.Attackers),
		"skew_ms", skew.Milliseconds(),
	)
	return nil
}

func (s *Service) resolve(ctx context.Context, pkg *Package) (*models.Killmail, error) {
	km, ok, err := pkg.inlineKillmail()
	if err != nil {
		return nil, err
	}
	if !ok {
		err = retry.Retry(ctx, s.policy, func() error {
			var fetchErr error
			km, fetchErr = s.feed.FetchKillmail(ctx, pkg.Zkb.Href)
			return fetchErr
		})
		if err != nil {
			return nil, err
		}
	}

	if km.KillID == 0 {
		km.KillID = pkg.KillID
	}
	if km.Hash == "" {
		km.Hash = pkg.Zkb.Hash
	}
	if km.URL == "" && km.KillID != 0 {
		km.URL = fmt.Sprintf("https://zkillboard.com/kill/%d/", km.KillID)
	}
	return km, nil
}
