package repository

import (
	"encoding/json"
	"fmt"

	"github.com/soyHouston256/stream-sales-sub004/internal/model"
)

// MessageBus publishes post-commit events. Implementations live in the
// transport packages (NATS, AMQP).
type MessageBus interface {
	Publish(topic string, data []byte) error
}

// NopBus drops every event. Used when no broker is configured.
type NopBus struct{}

func (NopBus) Publish(string, []byte) error { return nil }

// PublishEvent encodes e as JSON and publishes it on e.Topic.
func PublishEvent(bus MessageBus, e model.LedgerEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Topic, err)
	}
	if err := bus.Publish(e.Topic, data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Topic, err)
	}
	return nil
}
