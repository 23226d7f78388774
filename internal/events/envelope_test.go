// internal/events/envelope_test.go
package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	topic string
	key   string
	env   Envelope
	err   error
}

func (p *capturePublisher) Publish(ctx context.Context, topic, partitionKey string, env Envelope) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.key = partitionKey
	p.env = env
	return nil
}

func TestWrapDecodeRoundTrip(t *testing.T) {
	original := &OrderCreated{
		OrderID:     "order-1",
		CustomerID:  "customer-1",
		Items:       []OrderItem{{ProductID: "laptop", Quantity: 2, UnitPrice: 999.99}},
		TotalAmount: 1999.98,
	}

	env, err := Wrap(original)
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, TypeOrderCreated, env.EventType)
	assert.False(t, env.OccurredOn.IsZero())

	decoded, err := Decode(env)
	require.NoError(t, err)
	created, ok := decoded.(*OrderCreated)
	require.True(t, ok)
	assert.Equal(t, original, created)
}

func TestWrapAssignsUniqueEventIDs(t *testing.T) {
	first, err := Wrap(&OrderCancelled{OrderID: "order-1"})
	require.NoError(t, err)
	second, err := Wrap(&OrderCancelled{OrderID: "order-1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.EventID, second.EventID)
}

func TestDecodeUnknownEventType(t *testing.T) {
	_, err := Decode(Envelope{EventType: "SomethingNew", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestPartitionKeys(t *testing.T) {
	assert.Equal(t, "order-1", (&OrderCreated{OrderID: "order-1"}).PartitionKey())
	assert.Equal(t, "order-1", (&OrderCancelled{OrderID: "order-1"}).PartitionKey())
	assert.Equal(t, "order-1", (&InventoryReserved{OrderID: "order-1"}).PartitionKey())
	assert.Equal(t, "order-1", (&InventoryReservationFailed{OrderID: "order-1"}).PartitionKey())
	// 通知流按客户分区，同一客户的推送保序
	assert.Equal(t, "customer-1", (&NotificationQueued{CustomerID: "customer-1"}).PartitionKey())
}

func TestTopicFor(t *testing.T) {
	cases := map[string]string{
		TypeOrderCreated:               TopicOrderCreated,
		TypeOrderCancelled:             TopicOrderCancelled,
		TypeInventoryReserved:          TopicInventoryReserved,
		TypeInventoryReservationFailed: TopicInventoryReservationFailed,
		TypeNotificationQueued:         TopicNotificationQueued,
	}
	for eventType, want := range cases {
		topic, ok := TopicFor(eventType)
		assert.True(t, ok)
		assert.Equal(t, want, topic)
	}
	_, ok := TopicFor("SomethingNew")
	assert.False(t, ok)
}

func TestPublishEventRoutesByType(t *testing.T) {
	pub := &capturePublisher{}
	env, err := PublishEvent(context.Background(), pub, &InventoryReservationFailed{
		OrderID: "order-1",
		Reason:  "insufficient inventory",
	})
	require.NoError(t, err)
	assert.Equal(t, TopicInventoryReservationFailed, pub.topic)
	assert.Equal(t, "order-1", pub.key)
	assert.Equal(t, env.EventID, pub.env.EventID)
}

func TestPublishEventPropagatesPublishError(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	env, err := PublishEvent(context.Background(), pub, &OrderCancelled{OrderID: "order-1"})
	assert.Error(t, err)
	// 发布失败时信封仍然返回，调用方的日志和补偿要用事件ID
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, TypeOrderCancelled, env.EventType)
}
