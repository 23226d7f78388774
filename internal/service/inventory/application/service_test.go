// internal/service/inventory/application/service_test.go
package application

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/errs"
	"orderflow/internal/events"
	"orderflow/internal/service/inventory/domain"
	"orderflow/internal/service/inventory/infrastructure"
)

type fakePublisher struct {
	mu      sync.Mutex
	records []events.Envelope
}

func (p *fakePublisher) Publish(ctx context.Context, topic, partitionKey string, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, env)
	return nil
}

func (p *fakePublisher) ofType(eventType string) []events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Envelope
	for _, env := range p.records {
		if env.EventType == eventType {
			out = append(out, env)
		}
	}
	return out
}

func newFixture(items ...domain.Item) (*Service, *fakePublisher, *infrastructure.MemoryStore) {
	store := infrastructure.NewMemoryStore()
	store.Seed(items...)
	pub := &fakePublisher{}
	return NewService(store, infrastructure.NewLocalLocker(), pub), pub, store
}

func orderCreated(orderID string, items ...events.OrderItem) *events.OrderCreated {
	return &events.OrderCreated{OrderID: orderID, CustomerID: "customer-1", Items: items}
}

func itemState(t *testing.T, store *infrastructure.MemoryStore, productID string) *domain.Item {
	t.Helper()
	item, err := store.GetItem(context.Background(), productID)
	require.NoError(t, err)
	return item
}

func TestReserveMovesAvailableToReserved(t *testing.T) {
	service, pub, store := newFixture(domain.Item{ProductID: "laptop", Available: 50})

	event := orderCreated("order-1", events.OrderItem{ProductID: "laptop", Quantity: 10})
	require.NoError(t, service.HandleOrderCreated(context.Background(), event))

	item := itemState(t, store, "laptop")
	assert.Equal(t, 40, item.Available)
	assert.Equal(t, 10, item.Reserved)
	assert.Len(t, pub.ofType(events.TypeInventoryReserved), 1)
	assert.Empty(t, pub.ofType(events.TypeInventoryReservationFailed))
}

func TestReserveInsufficientLeavesStockUntouched(t *testing.T) {
	service, pub, store := newFixture(domain.Item{ProductID: "laptop", Available: 50})

	event := orderCreated("order-1", events.OrderItem{ProductID: "laptop", Quantity: 60})
	// 库存不足是业务结果而非处理失败，handler 返回 nil 让 offset 提交
	require.NoError(t, service.HandleOrderCreated(context.Background(), event))

	item := itemState(t, store, "laptop")
	assert.Equal(t, 50, item.Available)
	assert.Equal(t, 0, item.Reserved)

	failures := pub.ofType(events.TypeInventoryReservationFailed)
	require.Len(t, failures, 1)
	decoded, err := events.Decode(failures[0])
	require.NoError(t, err)
	failed := decoded.(*events.InventoryReservationFailed)
	assert.Equal(t, "order-1", failed.OrderID)
	assert.Equal(t, "laptop", failed.FailedProductID)
	assert.Empty(t, pub.ofType(events.TypeInventoryReserved))
}

func TestReserveIsAllOrNothing(t *testing.T) {
	service, pub, store := newFixture(
		domain.Item{ProductID: "laptop", Available: 50},
		domain.Item{ProductID: "phone", Available: 2},
	)

	event := orderCreated("order-1",
		events.OrderItem{ProductID: "laptop", Quantity: 10},
		events.OrderItem{ProductID: "phone", Quantity: 5},
	)
	require.NoError(t, service.HandleOrderCreated(context.Background(), event))

	// phone 不够，laptop 也必须一动不动
	assert.Equal(t, 50, itemState(t, store, "laptop").Available)
	assert.Equal(t, 0, itemState(t, store, "laptop").Reserved)
	assert.Len(t, pub.ofType(events.TypeInventoryReservationFailed), 1)
}

func TestReserveUnknownProductFails(t *testing.T) {
	service, pub, _ := newFixture(domain.Item{ProductID: "laptop", Available: 50})

	event := orderCreated("order-1", events.OrderItem{ProductID: "ghost", Quantity: 1})
	require.NoError(t, service.HandleOrderCreated(context.Background(), event))
	assert.Len(t, pub.ofType(events.TypeInventoryReservationFailed), 1)
}

func TestReserveMergesDuplicateLines(t *testing.T) {
	service, _, store := newFixture(domain.Item{ProductID: "laptop", Available: 50})

	event := orderCreated("order-1",
		events.OrderItem{ProductID: "laptop", Quantity: 10},
		events.OrderItem{ProductID: "laptop", Quantity: 5},
	)
	require.NoError(t, service.HandleOrderCreated(context.Background(), event))
	assert.Equal(t, 35, itemState(t, store, "laptop").Available)
	assert.Equal(t, 15, itemState(t, store, "laptop").Reserved)
}

func TestReserveReplayIsIdempotent(t *testing.T) {
	service, pub, store := newFixture(domain.Item{ProductID: "laptop", Available: 50})

	event := orderCreated("order-1", events.OrderItem{ProductID: "laptop", Quantity: 10})
	require.NoError(t, service.HandleOrderCreated(context.Background(), event))
	require.NoError(t, service.HandleOrderCreated(context.Background(), event))
	require.NoError(t, service.HandleOrderCreated(context.Background(), event))

	// 三次投递只扣一次，且成功事件至多一条
	assert.Equal(t, 40, itemState(t, store, "laptop").Available)
	assert.Equal(t, 10, itemState(t, store, "laptop").Reserved)
	assert.Len(t, pub.ofType(events.TypeInventoryReserved), 1)
}

func TestConcurrentOrdersExactlyOneWins(t *testing.T) {
	service, pub, store := newFixture(domain.Item{ProductID: "laptop", Available: 50})

	var wg sync.WaitGroup
	for _, orderID := range []string{"order-a", "order-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			event := orderCreated(id, events.OrderItem{ProductID: "laptop", Quantity: 30})
			assert.NoError(t, service.HandleOrderCreated(context.Background(), event))
		}(orderID)
	}
	wg.Wait()

	// 50 件面对两个 30 件的订单：恰好一个成功一个失败
	item := itemState(t, store, "laptop")
	assert.Equal(t, 20, item.Available)
	assert.Equal(t, 30, item.Reserved)
	assert.Len(t, pub.ofType(events.TypeInventoryReserved), 1)
	assert.Len(t, pub.ofType(events.TypeInventoryReservationFailed), 1)
}

func TestReleaseReturnsReservedStock(t *testing.T) {
	service, _, store := newFixture(domain.Item{ProductID: "laptop", Available: 50})

	event := orderCreated("order-1", events.OrderItem{ProductID: "laptop", Quantity: 10})
	require.NoError(t, service.HandleOrderCreated(context.Background(), event))

	cancelled := &events.OrderCancelled{OrderID: "order-1", Reason: "changed my mind"}
	require.NoError(t, service.HandleOrderCancelled(context.Background(), cancelled))

	item := itemState(t, store, "laptop")
	assert.Equal(t, 50, item.Available)
	assert.Equal(t, 0, item.Reserved)

	// 重复释放与释放不存在的订单都是幂等空操作
	require.NoError(t, service.HandleOrderCancelled(context.Background(), cancelled))
	require.NoError(t, service.Release(context.Background(), "never-reserved"))
	assert.Equal(t, 50, itemState(t, store, "laptop").Available)
}

func TestFulfillConsumesReservation(t *testing.T) {
	service, _, store := newFixture(domain.Item{ProductID: "laptop", Available: 50})

	event := orderCreated("order-1", events.OrderItem{ProductID: "laptop", Quantity: 10})
	require.NoError(t, service.HandleOrderCreated(context.Background(), event))

	require.NoError(t, service.Fulfill(context.Background(), "order-1"))
	item := itemState(t, store, "laptop")
	assert.Equal(t, 40, item.Available)
	assert.Equal(t, 0, item.Reserved)

	// 已发货的预占不能再发货或释放
	assert.True(t, errs.IsInvalidState(service.Fulfill(context.Background(), "order-1")))
	require.NoError(t, service.Release(context.Background(), "order-1"))
	assert.Equal(t, 40, itemState(t, store, "laptop").Available)
}

func TestFulfillUnknownOrder(t *testing.T) {
	service, _, _ := newFixture()
	assert.True(t, errs.IsNotFound(service.Fulfill(context.Background(), "missing")))
}

func TestAdjustGuardsNegativeStock(t *testing.T) {
	service, _, _ := newFixture(domain.Item{ProductID: "laptop", Available: 10})

	item, err := service.Adjust(context.Background(), "laptop", 5)
	require.NoError(t, err)
	assert.Equal(t, 15, item.Available)

	_, err = service.Adjust(context.Background(), "laptop", -20)
	assert.True(t, errs.IsValidation(err))

	item, err = service.Adjust(context.Background(), "laptop", -15)
	require.NoError(t, err)
	assert.Equal(t, 0, item.Available)
}

func TestUpsertItem(t *testing.T) {
	service, _, _ := newFixture()

	item, err := service.UpsertItem(context.Background(), "tablet", "Tablet", 30)
	require.NoError(t, err)
	assert.Equal(t, 30, item.Available)

	_, err = service.UpsertItem(context.Background(), "", "x", 1)
	assert.True(t, errs.IsValidation(err))
	_, err = service.UpsertItem(context.Background(), "tablet", "x", -1)
	assert.True(t, errs.IsValidation(err))
}
