package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Publisher is the subset of *nats.Conn the bridge needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSBridge republishes committed domain events onto a NATS subject tree
// (<prefix>.<event_type>) so processes outside this one can subscribe.
type NATSBridge struct {
	publisher Publisher
	prefix    string
	logger    *zap.Logger
}

// NewNATSBridge builds a bridge. An empty prefix defaults to "complaints".
func NewNATSBridge(publisher Publisher, prefix string, logger *zap.Logger) *NATSBridge {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "complaints"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSBridge{publisher: publisher, prefix: prefix, logger: logger}
}

// Register subscribes the bridge to every event type.
func (b *NATSBridge) Register(dispatcher Dispatcher) {
	if b == nil || b.publisher == nil || dispatcher == nil {
		return
	}
	dispatcher.SubscribeAll(b.Handle)
}

// Subject returns the subject an event type is published on.
func (b *NATSBridge) Subject(eventType EventType) string {
	return b.prefix + "." + string(eventType)
}

// Handle encodes and forwards one event.
func (b *NATSBridge) Handle(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	if err := b.publisher.Publish(b.Subject(event.Type), data); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	b.logger.Debug("event bridged", zap.String("event_id", event.ID), zap.String("subject", b.Subject(event.Type)))
	return nil
}
