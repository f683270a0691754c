package models

import (
	"encoding/json"
	"time"
)

type MessageEnvelope struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`  // Killmail or Delivery
	Metadata  Metadata        `json:"metadata"` // Pipeline metadata (trace_id, routing info)
}

type Metadata struct {
	TraceID       string             `json:"trace_id,omitempty"`
	KillID        uint64             `json:"kill_id,omitempty"`
	Routing       *RoutingInfo       `json:"routing,omitempty"`
	Deduplication *DeduplicationInfo `json:"deduplication,omitempty"`
	DLQ           *DLQInfo           `json:"dlq,omitempty"`
}

type RoutingInfo struct {
	RoutedAt  time.Time `json:"routed_at"`
	Decisions int       `json:"decisions"`
}

type DeduplicationInfo struct {
	IsUnique  bool      `json:"is_unique"`
	CheckedAt time.Time `json:"checked_at"`
}

type DLQInfo struct {
	Reason      string    `json:"reason"`
	SourceTopic string    `json:"source_topic"`
	FailedAt    time.Time `json:"failed_at"`
}

// DecodePayload unmarshals the envelope payload into v.
func (msg *MessageEnvelope) DecodePayload(v any) error {
	if len(msg.Payload) == 0 {
		return &ValidationError{Field: "payload", Message: "message payload is empty"}
	}
	return json.Unmarshal(msg.Payload, v)
}
