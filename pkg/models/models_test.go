package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageEnvelopeBuilder(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env, err := NewMessageEnvelopeBuilder().
		WithID("msg-1").
		WithSource("ingest-service").
		WithTimestamp(at).
		WithTraceID("trace-1").
		WithKillID(42).
		WithPayload(Killmail{KillID: 42, SystemID: 30000142}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, at, env.Timestamp)
	assert.Equal(t, "trace-1", env.Metadata.TraceID)
	assert.Equal(t, uint64(42), env.Metadata.KillID)
	assert.NoError(t, ValidateMessageEnvelope(env))

	var km Killmail
	require.NoError(t, env.DecodePayload(&km))
	assert.Equal(t, uint64(30000142), km.SystemID)
}

func TestMessageEnvelopeBuilder_DefaultsTimestamp(t *testing.T) {
	env, err := NewMessageEnvelopeBuilder().WithID("x").Build()
	require.NoError(t, err)
	assert.False(t, env.Timestamp.IsZero())
}

func TestMessageEnvelopeBuilder_PayloadError(t *testing.T) {
	_, err := NewMessageEnvelopeBuilder().WithPayload(math.Inf(1)).Build()
	assert.Error(t, err)
}

func TestDecodePayload_Empty(t *testing.T) {
	env := MessageEnvelope{ID: "x"}
	var km Killmail
	err := env.DecodePayload(&km)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payload", verr.Field)
}

func TestValidateMessageEnvelope(t *testing.T) {
	valid := MessageEnvelope{
		ID:        "msg-1",
		Source:    "routing-service",
		Timestamp: time.Now(),
		Payload:   json.RawMessage(`{}`),
	}

	tests := []struct {
		name   string
		mutate func(*MessageEnvelope)
		field  string
	}{
		{name: "valid", mutate: func(*MessageEnvelope) {}},
		{name: "no id", mutate: func(m *MessageEnvelope) { m.ID = "" }, field: "id"},
		{name: "no source", mutate: func(m *MessageEnvelope) { m.Source = "" }, field: "source"},
		{name: "no timestamp", mutate: func(m *MessageEnvelope) { m.Timestamp = time.Time{} }, field: "timestamp"},
		{name: "no payload", mutate: func(m *MessageEnvelope) { m.Payload = nil }, field: "payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := valid
			tt.mutate(&msg)
			err := ValidateMessageEnvelope(&msg)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.Error(t, ValidateMessageEnvelope(nil))
}

func TestValidateKillmail(t *testing.T) {
	assert.NoError(t, ValidateKillmail(&Killmail{KillID: 1, SystemID: 30000142}))
	assert.ErrorContains(t, ValidateKillmail(&Killmail{SystemID: 30000142}), "killmail_id")
	assert.ErrorContains(t, ValidateKillmail(&Killmail{KillID: 1}), "solar_system_id")
	assert.Error(t, ValidateKillmail(nil))
}

func TestParticipantIsNPC(t *testing.T) {
	assert.True(t, Participant{CorporationID: ID(1000125)}.IsNPC())
	assert.False(t, Participant{CharacterID: ID(90000001)}.IsNPC())
}

func TestFilterSetLookups(t *testing.T) {
	set := FilterSet{TargetIDs: []uint64{10, 11}, Filters: []string{"system:30000142"}}

	assert.True(t, set.HasTarget(11))
	assert.False(t, set.HasTarget(12))
	assert.True(t, set.HasFilter("system:30000142"))
	assert.False(t, set.HasFilter("system:30000144"))
}
