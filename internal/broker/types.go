package broker

import (
	"context"

	"killrelay/pkg/models"
)

// Producer publishes envelopes keyed by kill id, so every message about one
// killmail keeps its order within a partition.
type Producer interface {
	Publish(ctx context.Context, topic string, msg models.MessageEnvelope) error
	Close() error
}

// Consumer delivers each envelope of topic to a handler until ctx ends. A
// message is committed once the handler succeeds, returns a fatal error, or
// exhausts its retries; the latter two go to the dead letter topic when one is
// configured.
type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc processes one envelope. Wrap errors with retry.NewFatalError
// when a retry cannot succeed.
type HandlerFunc func(ctx context.Context, msg models.MessageEnvelope) error
