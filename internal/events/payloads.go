// internal/events/payloads.go
package events

import "time"

// OrderItem 是事件负载里的订单行。下单后负载不再重算，
// 事件中的行和总价永远是创建那一刻的快照。
type OrderItem struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// OrderCreated 由订单服务在订单落库后发布，驱动库存预占。
type OrderCreated struct {
	OrderID     string      `json:"orderId"`
	CustomerID  string      `json:"customerId"`
	Items       []OrderItem `json:"items"`
	TotalAmount float64     `json:"totalAmount"`
	CreatedAt   time.Time   `json:"createdAt"`
}

func (*OrderCreated) EventType() string { return TypeOrderCreated }
func (e *OrderCreated) PartitionKey() string { return e.OrderID }

// OrderCancelled 触发库存补偿（释放预占）以及取消通知。
type OrderCancelled struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

func (*OrderCancelled) EventType() string { return TypeOrderCancelled }
func (e *OrderCancelled) PartitionKey() string { return e.OrderID }

// ReservedItem 是预占成功事件里的单行结果。
type ReservedItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// InventoryReserved 表示整单所有行全部预占成功。
type InventoryReserved struct {
	OrderID       string         `json:"orderId"`
	ReservedItems []ReservedItem `json:"reservedItems"`
}

func (*InventoryReserved) EventType() string { return TypeInventoryReserved }
func (e *InventoryReserved) PartitionKey() string { return e.OrderID }

// InventoryReservationFailed 表示预占整体失败，未发生任何库存变更。
// 业务规则失败走事件，不作为异常抛回给订单服务。
type InventoryReservationFailed struct {
	OrderID         string `json:"orderId"`
	FailedProductID string `json:"failedProductId"`
	Reason          string `json:"reason,omitempty"`
}

func (*InventoryReservationFailed) EventType() string { return TypeInventoryReservationFailed }
func (e *InventoryReservationFailed) PartitionKey() string { return e.OrderID }

// NotificationQueued 是面向推送网关的通知流，按客户分区。
type NotificationQueued struct {
	NotificationID string    `json:"notificationId"`
	CustomerID     string    `json:"customerId"`
	Type           string    `json:"type"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (*NotificationQueued) EventType() string { return TypeNotificationQueued }
func (e *NotificationQueued) PartitionKey() string { return e.CustomerID }
