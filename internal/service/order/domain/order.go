// internal/service/order/domain/order.go
package domain

import (
	"math"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/errs"
	"orderflow/internal/events"
)

// OrderItem 是订单聚合内的值对象。
type OrderItem struct {
	ProductID string
	Quantity  int
	UnitPrice float64
}

// LineTotal 返回单行金额（未舍入，求和后统一舍入）。
func (i OrderItem) LineTotal() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

// Order 是订单聚合根。状态只通过自身方法流转，外部永远拿不到可变引用。
type Order struct {
	ID          string
	CustomerID  string
	Items       []OrderItem
	TotalAmount float64
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOrder 校验输入并创建订单，同时返回 OrderCreated 事件负载。
// 事件携带的是创建那一刻的行和总价快照，之后绝不从可能已变更的状态重算。
// 聚合操作返回事件而不是把事件攒在内部缓冲里，调用方先落库再发布。
func NewOrder(customerID string, items []OrderItem) (*Order, *events.OrderCreated, error) {
	if customerID == "" {
		return nil, nil, errs.Validation("customer id is required")
	}
	if len(items) == 0 {
		return nil, nil, errs.Validation("order must have at least one item")
	}
	for _, item := range items {
		if item.ProductID == "" {
			return nil, nil, errs.Validation("item product id is required")
		}
		if item.Quantity <= 0 {
			return nil, nil, errs.Validation("item %s: quantity must be positive, got %d", item.ProductID, item.Quantity)
		}
		if item.UnitPrice < 0 {
			return nil, nil, errs.Validation("item %s: unit price must not be negative", item.ProductID)
		}
	}

	now := time.Now().UTC()
	order := &Order{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		Items:      append([]OrderItem(nil), items...),
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	order.recalculateTotal()

	event := &events.OrderCreated{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		Items:       snapshotItems(order.Items),
		TotalAmount: order.TotalAmount,
		CreatedAt:   order.CreatedAt,
	}
	return order, event, nil
}

// RehydrateOrder 用持久化字段显式重建聚合，仓储的 mapper 只能走这里，
// 不存在任何绕过校验的后门赋值。
func RehydrateOrder(id, customerID string, items []OrderItem, totalAmount float64, status Status, createdAt, updatedAt time.Time) *Order {
	return &Order{
		ID:          id,
		CustomerID:  customerID,
		Items:       append([]OrderItem(nil), items...),
		TotalAmount: totalAmount,
		Status:      status,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
}

// AddItem 在订单还未进入 saga 前追加一行并重算总价。
func (o *Order) AddItem(item OrderItem) error {
	if o.Status != StatusPending {
		return errs.InvalidState("cannot add item to %s order", o.Status)
	}
	if item.Quantity <= 0 || item.UnitPrice < 0 {
		return errs.Validation("invalid item for product %s", item.ProductID)
	}
	o.Items = append(o.Items, item)
	o.recalculateTotal()
	o.touch()
	return nil
}

// RemoveItem 删除指定商品行，订单不允许被删空。
func (o *Order) RemoveItem(productID string) error {
	if o.Status != StatusPending {
		return errs.InvalidState("cannot remove item from %s order", o.Status)
	}
	for i, item := range o.Items {
		if item.ProductID == productID {
			if len(o.Items) == 1 {
				return errs.Validation("order must keep at least one item")
			}
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			o.recalculateTotal()
			o.touch()
			return nil
		}
	}
	return errs.NotFound("order %s has no item for product %s", o.ID, productID)
}

// Confirm 在库存预占成功后调用。
func (o *Order) Confirm() error {
	if o.Status != StatusPending {
		return errs.InvalidState("cannot confirm order in %s status", o.Status)
	}
	o.Status = StatusConfirmed
	o.touch()
	return nil
}

// Complete 在发货后调用。
func (o *Order) Complete() error {
	if o.Status != StatusConfirmed {
		return errs.InvalidState("cannot complete order in %s status", o.Status)
	}
	o.Status = StatusCompleted
	o.touch()
	return nil
}

// Cancel 取消订单并返回 OrderCancelled 事件。
// 已完成的订单不可取消；重复取消是幂等的无事件空操作。
func (o *Order) Cancel(reason string) (*events.OrderCancelled, error) {
	if o.Status == StatusCompleted {
		return nil, errs.InvalidState("cannot cancel completed order")
	}
	if o.Status == StatusCancelled {
		return nil, nil
	}
	o.Status = StatusCancelled
	o.touch()
	return &events.OrderCancelled{OrderID: o.ID, Reason: reason}, nil
}

// recalculateTotal 维持不变量：TotalAmount 永远等于行金额之和。
func (o *Order) recalculateTotal() {
	sum := 0.0
	for _, item := range o.Items {
		sum += item.LineTotal()
	}
	o.TotalAmount = RoundMoney(sum)
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

// RoundMoney 按四舍五入（远离零）保留两位小数。
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func snapshotItems(items []OrderItem) []events.OrderItem {
	out := make([]events.OrderItem, len(items))
	for i, item := range items {
		out[i] = events.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return out
}
