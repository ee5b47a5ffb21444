package nats

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// Bus publishes domain events to NATS subjects named after the topic.
type Bus struct {
	nc *nats.Conn
}

func NewBus(nc *nats.Conn) *Bus {
	return &Bus{nc: nc}
}

func (b *Bus) Publish(topic string, data []byte) error {
	msg := nats.NewMsg(topic)
	msg.Header.Set("Content-Type", "application/json")
	msg.Data = data
	if err := b.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", topic, err)
	}
	return nil
}
