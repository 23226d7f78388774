// internal/service/notification/application/dispatcher_test.go
package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/errs"
	"orderflow/internal/events"
	"orderflow/internal/service/notification/domain"
	"orderflow/internal/service/notification/infrastructure"
)

type fakePublisher struct {
	records []events.Envelope
}

func (p *fakePublisher) Publish(ctx context.Context, topic, partitionKey string, env events.Envelope) error {
	p.records = append(p.records, env)
	return nil
}

type suppressAll struct{}

func (suppressAll) Suppressed(*domain.Notification) (bool, error) { return true, nil }

func newFixture(rules domain.RuleEngine) (*Dispatcher, *fakePublisher, *infrastructure.MemoryStore) {
	store := infrastructure.NewMemoryStore()
	pub := &fakePublisher{}
	return NewDispatcher(store, rules, pub), pub, store
}

func envelope(t *testing.T, event events.Event) events.Envelope {
	t.Helper()
	env, err := events.Wrap(event)
	require.NoError(t, err)
	return env
}

func orderCreatedEnvelope(t *testing.T) events.Envelope {
	return envelope(t, &events.OrderCreated{
		OrderID:     "order-1",
		CustomerID:  "customer-1",
		TotalAmount: 1999.98,
	})
}

func TestOrderCreatedProducesConfirmation(t *testing.T) {
	dispatcher, pub, _ := newFixture(nil)

	require.NoError(t, dispatcher.Dispatch(context.Background(), orderCreatedEnvelope(t)))

	notifications, err := dispatcher.ListNotifications(context.Background(), "customer-1")
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, domain.TypeOrderConfirmation, notifications[0].Type)
	assert.Equal(t, "Your order order-1 has been confirmed. Total amount: $1999.98", notifications[0].Message)
	assert.False(t, notifications[0].Read)

	// 通知入库后同步推送到 notification-queued
	require.Len(t, pub.records, 1)
	assert.Equal(t, events.TypeNotificationQueued, pub.records[0].EventType)
}

func TestDuplicateEventProducesOneNotification(t *testing.T) {
	dispatcher, pub, _ := newFixture(nil)
	env := orderCreatedEnvelope(t)

	// 同一事件重投三次
	require.NoError(t, dispatcher.Dispatch(context.Background(), env))
	require.NoError(t, dispatcher.Dispatch(context.Background(), env))
	require.NoError(t, dispatcher.Dispatch(context.Background(), env))

	notifications, err := dispatcher.ListNotifications(context.Background(), "customer-1")
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
	assert.Len(t, pub.records, 1)
}

func TestDownstreamEventsUseOrderProjection(t *testing.T) {
	dispatcher, _, _ := newFixture(nil)
	require.NoError(t, dispatcher.Dispatch(context.Background(), orderCreatedEnvelope(t)))

	require.NoError(t, dispatcher.Dispatch(context.Background(),
		envelope(t, &events.InventoryReserved{OrderID: "order-1"})))
	require.NoError(t, dispatcher.Dispatch(context.Background(),
		envelope(t, &events.OrderCancelled{OrderID: "order-1", Reason: "changed my mind"})))

	notifications, err := dispatcher.ListNotifications(context.Background(), "customer-1")
	require.NoError(t, err)
	require.Len(t, notifications, 3)
	assert.Equal(t, domain.TypeProcessingUpdate, notifications[1].Type)
	assert.Equal(t, domain.TypeOrderCancellation, notifications[2].Type)
}

func TestEventBeforeProjectionIsRetryable(t *testing.T) {
	dispatcher, _, _ := newFixture(nil)

	// OrderCreated 还没消费到，订单->客户投影缺失
	err := dispatcher.Dispatch(context.Background(),
		envelope(t, &events.InventoryReserved{OrderID: "order-unknown"}))
	require.Error(t, err)
	assert.True(t, errs.Retryable(err))
}

func TestReservationFailureProducesApology(t *testing.T) {
	dispatcher, _, _ := newFixture(nil)
	require.NoError(t, dispatcher.Dispatch(context.Background(), orderCreatedEnvelope(t)))

	require.NoError(t, dispatcher.Dispatch(context.Background(),
		envelope(t, &events.InventoryReservationFailed{
			OrderID: "order-1",
			Reason:  "insufficient inventory",
		})))

	notifications, err := dispatcher.ListNotifications(context.Background(), "customer-1")
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.Equal(t, domain.TypeReservationFailure, notifications[1].Type)
	assert.Contains(t, notifications[1].Message, "insufficient inventory")
}

func TestUnknownEventTypeIsSkipped(t *testing.T) {
	dispatcher, pub, _ := newFixture(nil)
	err := dispatcher.Dispatch(context.Background(), events.Envelope{
		EventID:   "evt-1",
		EventType: "SomethingNew",
		Payload:   []byte(`{}`),
	})
	require.NoError(t, err)
	assert.Empty(t, pub.records)
}

func TestMalformedKnownPayloadIsPoison(t *testing.T) {
	dispatcher, pub, _ := newFixture(nil)

	// 已知类型但负载解不开：必须报毒消息走死信，不能按未知类型跳过
	err := dispatcher.Dispatch(context.Background(), events.Envelope{
		EventID:   "evt-1",
		EventType: events.TypeOrderCreated,
		Payload:   []byte(`"not-an-object"`),
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindPoisonMessage, errs.KindOf(err))
	assert.False(t, errs.Retryable(err))
	assert.Empty(t, pub.records)
}

func TestSuppressedNotificationIsDropped(t *testing.T) {
	dispatcher, pub, _ := newFixture(suppressAll{})

	require.NoError(t, dispatcher.Dispatch(context.Background(), orderCreatedEnvelope(t)))

	notifications, err := dispatcher.ListNotifications(context.Background(), "customer-1")
	require.NoError(t, err)
	assert.Empty(t, notifications)
	assert.Empty(t, pub.records)
}

func TestMarkRead(t *testing.T) {
	dispatcher, _, _ := newFixture(nil)
	require.NoError(t, dispatcher.Dispatch(context.Background(), orderCreatedEnvelope(t)))

	notifications, err := dispatcher.ListNotifications(context.Background(), "customer-1")
	require.NoError(t, err)
	require.Len(t, notifications, 1)

	require.NoError(t, dispatcher.MarkRead(context.Background(), "customer-1", notifications[0].ID))
	notifications, err = dispatcher.ListNotifications(context.Background(), "customer-1")
	require.NoError(t, err)
	assert.True(t, notifications[0].Read)

	// 别人的通知不能标已读
	err = dispatcher.MarkRead(context.Background(), "customer-2", notifications[0].ID)
	assert.True(t, errs.IsNotFound(err))
}
