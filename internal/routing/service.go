package routing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"killrelay/internal/config"
	"killrelay/internal/logger"
	"killrelay/pkg/metrics"
	"killrelay/pkg/models"
	"killrelay/pkg/retry"
	"killrelay/pkg/tracing"
)

var errNotLoaded = errors.New("filter sets not loaded yet")

// FilterSetLister is the configuration source the service snapshots.
type FilterSetLister interface {
	List(ctx context.Context) ([]models.FilterSet, error)
}

// Service routes killmails against a periodically reloaded snapshot of
// filter sets. Staleness is bounded by the reload interval.
type Service struct {
	store  FilterSetLister
	engine *Engine
	sets   []models.FilterSet
	loaded bool
	setsMu sync.RWMutex
	cfg    config.RoutingConfig
	logger logger.Logger
}

func NewService(store FilterSetLister, engine *Engine, cfg config.RoutingConfig, log logger.Logger) *Service {
	return &Service{
		store:  store,
		engine: engine,
		sets:   make([]models.FilterSet, 0),
		cfg:    cfg,
		logger: log,
	}
}

// Route evaluates km against the current snapshot. Until a snapshot has been
// loaded it tries one load itself and otherwise fails with a retryable error,
// so the killmail is redelivered instead of being acked unrouted.
func (s *Service) Route(ctx context.Context, km *models.Killmail) ([]Decision, error) {
	ctx, span := tracing.GetTracer("routing-service").Start(ctx, "routing.route")
	defer span.End()

	if err := s.ensureLoaded(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	sets := s.getFilterSets()
	start := time.Now()
	decisions := s.engine.Evaluate(km, sets)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int64("kill_id", int64(km.KillID)),
		attribute.Int("filter_sets", len(sets)),
		attribute.Int("decisions", len(decisions)),
	)

	s.recordMetrics(duration, decisions)
	s.logger.DebugwCtx(ctx, "Evaluated killmail",
		"kill_id", km.KillID,
		"filter_sets", len(sets),
		"decisions", len(decisions),
		"duration_us", duration.Microseconds(),
	)
	return decisions, nil
}

func (s *Service) ensureLoaded(ctx context.Context) error {
	if s.Ready(ctx) == nil {
		return nil
	}
	if err := s.ReloadFilterSets(ctx, true); err != nil {
		s.logger.WarnwCtx(ctx, "Filter sets unavailable, deferring killmail", "error", err)
		return retry.NewRetryableError(fmt.Errorf("%w: %v", errNotLoaded, err))
	}
	return nil
}

func (s *Service) getFilterSets() []models.FilterSet {
	s.setsMu.RLock()
	defer s.setsMu.RUnlock()
	return s.sets
}

// Ready fails until the first snapshot has been loaded.
func (s *Service) Ready(ctx context.Context) error {
	s.setsMu.RLock()
	defer s.setsMu.RUnlock()
	if !s.loaded {
		return errNotLoaded
	}
	return nil
}

func (s *Service) recordMetrics(duration time.Duration, decisions []Decision) {
	status := "routed"
	if len(decisions) == 0 {
		status = "unmatched"
	}
	metrics.RoutingKillmailsTotal.WithLabelValues(status).Inc()
	metrics.ObserveRoutingDuration(duration, status)
	for _, d := range decisions {
		metrics.IncRoutingDecision(string(d.Classification))
	}
}

func (s *Service) ReloadFilterSets(ctx context.Context, skipJitter ...bool) error {
	shouldSkipJitter := len(skipJitter) > 0 && skipJitter[0]

	if err := s.applyJitter(ctx, shouldSkipJitter); err != nil {
		return err
	}

	s.logger.DebugwCtx(ctx, "Loading filter sets")
	sets, err := s.store.List(ctx)
	if err != nil {
		return err
	}

	s.updateFilterSets(ctx, sets)
	return nil
}

func (s *Service) applyJitter(ctx context.Context, skipJitter bool) error {
	if skipJitter || s.cfg.Reload.JitterMaxMilliseconds <= 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(s.cfg.Reload.JitterMaxMilliseconds)) * time.Millisecond
	s.logger.DebugwCtx(ctx, "Reload scheduled with jitter",
		"jitter_ms", jitter.Milliseconds(),
	)

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// updateFilterSets swaps the snapshot. The slice is never mutated after the
// swap, so readers may hold it without copying.
func (s *Service) updateFilterSets(ctx context.Context, sets []models.FilterSet) {
	s.setsMu.Lock()
	s.sets = sets
	s.loaded = true
	s.setsMu.Unlock()

	pruned := s.engine.Cache().Prune(sets)

	metrics.SetRoutingActiveFilterSets(len(sets))
	s.logger.InfowCtx(ctx, "Successfully reloaded filter sets",
		"filter_sets_count", len(sets),
		"cache_pruned", pruned,
	)
}

func (s *Service) StartReloader(ctx context.Context) error {
	interval := time.Duration(s.cfg.Reload.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.ReloadFilterSets(ctx); err != nil {
				s.logger.ErrorwCtx(ctx, "Failed to reload filter sets",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
