// Package amqp publishes domain events to a RabbitMQ topic exchange.
package amqp

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// publisher is the part of *amqp.Channel the bus uses.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Bus publishes each event as a persistent message routed by its topic.
type Bus struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       publisher
	exchange string
	logger   *slog.Logger
}

// Dial connects to the broker and declares the durable topic exchange.
func Dial(url, exchange string, logger *slog.Logger) (*Bus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare %s: %w", exchange, err)
	}

	b := newBus(ch, exchange, logger)
	b.conn = conn
	return b, nil
}

func newBus(ch publisher, exchange string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{ch: ch, exchange: exchange, logger: logger}
}

func (b *Bus) Publish(topic string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.ch.Publish(
		b.exchange,
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{"topic": topic},
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", topic, err)
	}
	b.logger.Debug("event published", "exchange", b.exchange, "topic", topic)
	return nil
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ch.Close(); err != nil {
		b.logger.Warn("amqp channel close failed", "error", err)
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			b.logger.Warn("amqp connection close failed", "error", err)
		}
	}
}
