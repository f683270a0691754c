package management

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"killrelay/pkg/models"
)

func TestPublishFilterSetEvent(t *testing.T) {
	producer := &recordingProducer{}
	p := NewConfigEventProducer(producer, "config-updates")
	p.now = func() time.Time { return fixedNow }

	require.NoError(t, p.PublishFilterSetEvent(context.Background(), models.ActionUpdate, "s", "alice"))

	require.Len(t, producer.envelopes, 1)
	env := producer.envelopes[0]
	assert.Equal(t, SourceName, env.Source)
	assert.Equal(t, fixedNow, env.Timestamp)
	assert.NotEmpty(t, env.ID)

	var event models.ConfigUpdateEvent
	require.NoError(t, env.DecodePayload(&event))
	assert.Equal(t, models.ConfigUpdateEvent{
		EventType:   models.EventTypeFilterSetUpdated,
		ServiceType: models.ServiceTypeRouting,
		FilterSetID: "s",
		Action:      models.ActionUpdate,
		Timestamp:   fixedNow,
		ChangedBy:   "alice",
	}, event)
}

func TestPublishFilterSetEventWithoutProducer(t *testing.T) {
	var nilProducer *ConfigEventProducer
	assert.NoError(t, nilProducer.PublishFilterSetEvent(context.Background(), models.ActionCreate, "s", "x"))
	assert.NoError(t, NewConfigEventProducer(nil, "t").PublishFilterSetEvent(context.Background(), models.ActionCreate, "s", "x"))
	assert.NoError(t, NewConfigEventProducer(&recordingProducer{}, "").PublishFilterSetEvent(context.Background(), models.ActionCreate, "s", "x"))
}
