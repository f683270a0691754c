package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"killrelay/internal/logger"
	"killrelay/pkg/logging"
	"killrelay/pkg/models"
	"killrelay/pkg/retry"
)

const SourceName = "routing-service"

type Router interface {
	Route(ctx context.Context, km *models.Killmail) ([]Decision, error)
}

// Claimer reserves a (target, kill) pair so each target sees a kill once.
type Claimer interface {
	Claim(ctx context.Context, targetID, killID uint64) (bool, error)
	Release(ctx context.Context, targetID, killID uint64) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, msg models.MessageEnvelope) error
}

// Dispatcher turns routing decisions into delivery messages. It is safe to
// call Handle again for the same killmail: claimed pairs are skipped.
type Dispatcher struct {
	router    Router
	claimer   Claimer
	publisher Publisher
	topic     string
	logger    logger.Logger
	now       func() time.Time
}

// NewDispatcher builds a dispatcher. A nil claimer disables deduplication.
func NewDispatcher(router Router, claimer Claimer, publisher Publisher, topic string, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Dispatcher{
		router:    router,
		claimer:   claimer,
		publisher: publisher,
		topic:     topic,
		logger:    log,
		now:       time.Now,
	}
}

func (d *Dispatcher) Handle(ctx context.Context, msg models.MessageEnvelope) error {
	var km models.Killmail
	if err := msg.DecodePayload(&km); err != nil {
		return retry.NewFatalError(fmt.Errorf("failed to decode killmail: %w", err))
	}
	if err := models.ValidateKillmail(&km); err != nil {
		return retry.NewFatalError(err)
	}
	ctx = logging.WithKillID(ctx, km.KillID)

	decisions, err := d.router.Route(ctx, &km)
	if err != nil {
		return fmt.Errorf("failed to route killmail: %w", err)
	}
	if len(decisions) == 0 {
		return nil
	}

	routedAt := d.now()
	delivered := 0
	for _, decision := range decisions {
		sent, err := d.deliver(ctx, msg, &km, decision, len(decisions), routedAt)
		if err != nil {
			return err
		}
		if sent {
			delivered++
		}
	}

	d.logger.InfowCtx(ctx, "Routed killmail",
		"decisions", len(decisions),
		"delivered", delivered,
	)
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg models.MessageEnvelope, km *models.Killmail, decision Decision, total int, routedAt time.Time) (bool, error) {
	if d.claimer != nil {
		unique, err := d.claimer.Claim(ctx, decision.TargetID, km.KillID)
		if err != nil {
			return false, fmt.Errorf("failed to claim delivery for target %d: %w", decision.TargetID, err)
		}
		if !unique {
			d.logger.DebugwCtx(ctx, "Skipping duplicate delivery", "target_id", decision.TargetID)
			return false, nil
		}
	}

	envelope, err := models.NewMessageEnvelopeBuilder().
		WithID(uuid.New().String()).
		WithSource(SourceName).
		WithTimestamp(routedAt).
		WithTraceID(msg.Metadata.TraceID).
		WithKillID(km.KillID).
		WithPayload(models.Delivery{
			KillID:         km.KillID,
			TargetID:       decision.TargetID,
			Classification: decision.Classification,
			Killmail:       km,
		}).
		Build()
	if err != nil {
		d.release(ctx, decision.TargetID, km.KillID)
		return false, retry.NewFatalError(fmt.Errorf("failed to build delivery: %w", err))
	}
	envelope.Metadata.Routing = &models.RoutingInfo{RoutedAt: routedAt, Decisions: total}
	if d.claimer != nil {
		envelope.Metadata.Deduplication = &models.DeduplicationInfo{IsUnique: true, CheckedAt: routedAt}
	}

	if err := d.publisher.Publish(ctx, d.topic, *envelope); err != nil {
		d.release(ctx, decision.TargetID, km.KillID)
		return false, fmt.Errorf("failed to publish delivery for target %d: %w", decision.TargetID, err)
	}
	return true, nil
}

// release frees a claim whose delivery never left, so a retry can send it.
func (d *Dispatcher) release(ctx context.Context, targetID, killID uint64) {
	if d.claimer == nil {
		return
	}
	if err := d.claimer.Release(ctx, targetID, killID); err != nil {
		d.logger.WarnwCtx(ctx, "Failed to release delivery claim",
			"target_id", targetID,
			"error", err,
		)
	}
}
