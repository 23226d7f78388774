// internal/service/inventory/interfaces/event_handler_test.go
package interfaces

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/errs"
	"orderflow/internal/events"
	"orderflow/internal/service/inventory/application"
	"orderflow/internal/service/inventory/domain"
	"orderflow/internal/service/inventory/infrastructure"
)

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, topic, partitionKey string, env events.Envelope) error {
	return nil
}

func newHandlerFixture() (func(context.Context, events.Envelope) error, *infrastructure.MemoryStore) {
	store := infrastructure.NewMemoryStore()
	store.Seed(domain.Item{ProductID: "laptop", Available: 50})
	service := application.NewService(store, infrastructure.NewLocalLocker(), nopPublisher{})
	return NewOrderEventHandler(service), store
}

func TestHandlerDispatchesOrderCreated(t *testing.T) {
	handler, store := newHandlerFixture()

	env, err := events.Wrap(&events.OrderCreated{
		OrderID: "order-1",
		Items:   []events.OrderItem{{ProductID: "laptop", Quantity: 10}},
	})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), env))

	item, err := store.GetItem(context.Background(), "laptop")
	require.NoError(t, err)
	assert.Equal(t, 40, item.Available)
}

func TestHandlerSkipsUnknownEventType(t *testing.T) {
	handler, store := newHandlerFixture()

	err := handler(context.Background(), events.Envelope{
		EventID:   "evt-1",
		EventType: "SomethingNew",
		Payload:   []byte(`{}`),
	})
	// 未知判别串：跳过并提交，支持向前兼容的灰度发布
	require.NoError(t, err)

	item, err := store.GetItem(context.Background(), "laptop")
	require.NoError(t, err)
	assert.Equal(t, 50, item.Available)
}

func TestHandlerRejectsMalformedKnownPayload(t *testing.T) {
	handler, store := newHandlerFixture()

	// 已知类型，但负载不是对象：毒消息必须走死信，不能静默丢弃
	err := handler(context.Background(), events.Envelope{
		EventID:   "evt-1",
		EventType: events.TypeOrderCreated,
		Payload:   []byte(`"not-an-object"`),
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindPoisonMessage, errs.KindOf(err))
	assert.False(t, errs.Retryable(err))

	item, err := store.GetItem(context.Background(), "laptop")
	require.NoError(t, err)
	assert.Equal(t, 50, item.Available)
	assert.Equal(t, 0, item.Reserved)
}
