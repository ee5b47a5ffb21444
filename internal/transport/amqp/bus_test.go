package amqp

import (
	"errors"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyHouston256/stream-sales-sub004/internal/model"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublishRoutesByTopic(t *testing.T) {
	ch := &fakeChannel{}
	bus := newBus(ch, "marketplace.events", nil)

	require.NoError(t, bus.Publish(model.TopicPurchaseCompleted, []byte(`{"topic":"purchases.completed"}`)))

	assert.Equal(t, "marketplace.events", ch.exchange)
	assert.Equal(t, model.TopicPurchaseCompleted, ch.key)
	assert.Equal(t, uint8(amqp.Persistent), ch.msg.DeliveryMode)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.NotEmpty(t, ch.msg.MessageId)
	assert.Equal(t, model.TopicPurchaseCompleted, ch.msg.Headers["topic"])

	bus.Close()
	assert.True(t, ch.closed)
}

func TestPublishWrapsBrokerError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	bus := newBus(ch, "marketplace.events", nil)

	err := bus.Publish(model.TopicDisputeResolved, nil)
	assert.ErrorContains(t, err, model.TopicDisputeResolved)
}
