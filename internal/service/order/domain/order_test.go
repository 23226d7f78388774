// internal/service/order/domain/order_test.go
package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/errs"
)

func validItems() []OrderItem {
	return []OrderItem{
		{ProductID: "laptop", Quantity: 2, UnitPrice: 999.99},
		{ProductID: "phone", Quantity: 1, UnitPrice: 599.5},
	}
}

func TestNewOrder(t *testing.T) {
	order, event, err := NewOrder("customer-1", validItems())
	require.NoError(t, err)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, 2599.48, order.TotalAmount)

	require.NotNil(t, event)
	assert.Equal(t, order.ID, event.OrderID)
	assert.Equal(t, "customer-1", event.CustomerID)
	assert.Equal(t, order.TotalAmount, event.TotalAmount)
	assert.Len(t, event.Items, 2)
}

func TestNewOrderValidation(t *testing.T) {
	cases := []struct {
		name       string
		customerID string
		items      []OrderItem
	}{
		{"missing customer", "", validItems()},
		{"no items", "customer-1", nil},
		{"missing product id", "customer-1", []OrderItem{{Quantity: 1, UnitPrice: 1}}},
		{"zero quantity", "customer-1", []OrderItem{{ProductID: "laptop", Quantity: 0, UnitPrice: 1}}},
		{"negative quantity", "customer-1", []OrderItem{{ProductID: "laptop", Quantity: -1, UnitPrice: 1}}},
		{"negative price", "customer-1", []OrderItem{{ProductID: "laptop", Quantity: 1, UnitPrice: -0.01}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := NewOrder(tc.customerID, tc.items)
			assert.True(t, errs.IsValidation(err))
		})
	}
}

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, 20.01, RoundMoney(20.008))
	assert.Equal(t, 2599.48, RoundMoney(2599.48))
	// 半数远离零
	assert.Equal(t, 0.13, RoundMoney(0.125))
	assert.Equal(t, -0.13, RoundMoney(-0.125))
}

func TestEventIsSnapshotOfCreation(t *testing.T) {
	order, event, err := NewOrder("customer-1", validItems())
	require.NoError(t, err)
	createdTotal := event.TotalAmount

	require.NoError(t, order.AddItem(OrderItem{ProductID: "tablet", Quantity: 1, UnitPrice: 300}))

	// 聚合变了，事件不变
	assert.Equal(t, createdTotal, event.TotalAmount)
	assert.Len(t, event.Items, 2)
	assert.Equal(t, 2899.48, order.TotalAmount)
}

func TestAddRemoveItem(t *testing.T) {
	order, _, err := NewOrder("customer-1", validItems())
	require.NoError(t, err)

	require.NoError(t, order.RemoveItem("phone"))
	assert.Equal(t, 1999.98, order.TotalAmount)

	err = order.RemoveItem("phone")
	assert.True(t, errs.IsNotFound(err))

	err = order.RemoveItem("laptop")
	assert.True(t, errs.IsValidation(err), "order must keep at least one item")

	require.NoError(t, order.Confirm())
	assert.True(t, errs.IsInvalidState(order.AddItem(OrderItem{ProductID: "tablet", Quantity: 1, UnitPrice: 1})))
	assert.True(t, errs.IsInvalidState(order.RemoveItem("laptop")))
}

func TestStatusTransitions(t *testing.T) {
	order, _, err := NewOrder("customer-1", validItems())
	require.NoError(t, err)

	// PENDING 不能直接完成
	assert.True(t, errs.IsInvalidState(order.Complete()))

	require.NoError(t, order.Confirm())
	assert.Equal(t, StatusConfirmed, order.Status)
	assert.True(t, errs.IsInvalidState(order.Confirm()))

	require.NoError(t, order.Complete())
	assert.Equal(t, StatusCompleted, order.Status)

	_, err = order.Cancel("too late")
	assert.True(t, errs.IsInvalidState(err))
}

func TestCancelIsIdempotent(t *testing.T) {
	order, _, err := NewOrder("customer-1", validItems())
	require.NoError(t, err)

	event, err := order.Cancel("changed my mind")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, order.ID, event.OrderID)
	assert.Equal(t, "changed my mind", event.Reason)

	// 第二次取消：无错误也无事件
	event, err = order.Cancel("again")
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Equal(t, StatusCancelled, order.Status)
}

func TestRehydrateOrderPreservesFields(t *testing.T) {
	original, _, err := NewOrder("customer-1", validItems())
	require.NoError(t, err)

	rebuilt := RehydrateOrder(original.ID, original.CustomerID, original.Items,
		original.TotalAmount, original.Status, original.CreatedAt, original.UpdatedAt)
	assert.Equal(t, original, rebuilt)
}
