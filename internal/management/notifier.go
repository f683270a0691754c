package management

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"killrelay/internal/broker"
	"killrelay/pkg/models"
)

const SourceName = "management-service"

// ConfigEventProducer tells routing instances to reload their filter sets.
type ConfigEventProducer struct {
	producer broker.Producer
	topic    string
	now      func() time.Time
}

func NewConfigEventProducer(producer broker.Producer, topic string) *ConfigEventProducer {
	return &ConfigEventProducer{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

func (p *ConfigEventProducer) PublishFilterSetEvent(ctx context.Context, action, filterSetID, changedBy string) error {
	if p == nil || p.producer == nil || p.topic == "" {
		return nil
	}

	now := p.now()
	event := models.ConfigUpdateEvent{
		EventType:   models.EventTypeFilterSetUpdated,
		ServiceType: models.ServiceTypeRouting,
		FilterSetID: filterSetID,
		Action:      action,
		Timestamp:   now,
		ChangedBy:   changedBy,
	}

	envelope, err := models.NewMessageEnvelopeBuilder().
		WithID(uuid.New().String()).
		WithSource(SourceName).
		WithTimestamp(now).
		WithPayload(event).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build config event: %w", err)
	}

	return p.producer.Publish(ctx, p.topic, *envelope)
}
