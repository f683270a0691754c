package deduplication

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"killrelay/internal/config"
	"killrelay/internal/constants"
	"killrelay/internal/logger"
	"killrelay/pkg/metrics"
	"killrelay/pkg/tracing"
)

const DefaultTTL = 3 * time.Hour

// Service records which (target, killmail) pairs were already delivered so a
// killmail replayed by the feed or the broker reaches each target once.
type Service struct {
	repo   Repository
	cfg    config.DeduplicationConfig
	ttl    time.Duration
	prefix string
	logger logger.Logger
}

// NewService creates a new deduplication service instance
func NewService(repo Repository, cfg config.DeduplicationConfig, log logger.Logger) *Service {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = constants.CacheKeyPrefixDedup
	}
	if log == nil {
		log = logger.NopLogger()
	}

	return &Service{
		repo:   repo,
		cfg:    cfg,
		ttl:    ttl,
		prefix: prefix,
		logger: log,
	}
}

// Key returns the cache key for a delivery of killID to targetID.
func (s *Service) Key(targetID, killID uint64) string {
	return s.prefix + strconv.FormatUint(targetID, 10) + ":" + strconv.FormatUint(killID, 10)
}

// Claim reports whether the delivery is new. A true result reserves the pair
// for the configured TTL.
func (s *Service) Claim(ctx context.Context, targetID, killID uint64) (bool, error) {
	ctx, span := tracing.GetTracer("routing-service").Start(ctx, "deduplication.claim")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("target_id", int64(targetID)),
		attribute.Int64("kill_id", int64(killID)),
	)

	if err := ctx.Err(); err != nil {
		return false, err
	}

	start := time.Now()
	success, err := s.repo.SetNX(ctx, s.Key(targetID, killID), time.Now().Unix(), s.ttl)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		return s.handleRedisError(ctx, err, duration, targetID, killID)
	}

	s.recordMetrics(duration, success)
	span.SetAttributes(attribute.Bool("unique", success))
	return success, nil
}

// Release drops a claim so a failed delivery can be retried.
func (s *Service) Release(ctx context.Context, targetID, killID uint64) error {
	if err := s.repo.Del(ctx, s.Key(targetID, killID)); err != nil {
		return fmt.Errorf("failed to release delivery %d for target %d: %w", killID, targetID, err)
	}
	return nil
}

func (s *Service) handleRedisError(ctx context.Context, err error, duration time.Duration, targetID, killID uint64) (bool, error) {
	s.recordMetricsWithStatus(duration, "error")

	if s.cfg.OnRedisError == constants.FallbackAllow {
		metrics.FallbackUsageTotal.WithLabelValues("deduplication", "allow_on_error", "redis_error").Inc()
		s.logger.WarnwCtx(ctx, "Redis error during dedup check, allowing delivery (fallback: allow)",
			"error", err,
			"target_id", targetID,
			"kill_id", killID,
		)
		return true, nil
	}

	metrics.FallbackUsageTotal.WithLabelValues("deduplication", "deny_on_error", "redis_error").Inc()
	return false, fmt.Errorf("redis error during dedup check for kill %d target %d: %w", killID, targetID, err)
}

func (s *Service) recordMetrics(duration time.Duration, isUnique bool) {
	status := "duplicate"
	if isUnique {
		status = "unique"
	}
	s.recordMetricsWithStatus(duration, status)
}

func (s *Service) recordMetricsWithStatus(duration time.Duration, status string) {
	metrics.DedupDeliveriesTotal.WithLabelValues(status).Inc()
	metrics.ObserveDedupDuration(duration, status)
}
