// internal/service/notification/domain/notification.go
package domain

import (
	"context"
	"time"
)

// Type 区分通知的业务场景，也是抑制规则的匹配维度之一。
type Type string

const (
	TypeOrderConfirmation  Type = "ORDER_CONFIRMATION"
	TypeProcessingUpdate   Type = "PROCESSING_UPDATE"
	TypeOrderCancellation  Type = "ORDER_CANCELLATION"
	TypeReservationFailure Type = "RESERVATION_FAILURE"
)

// Notification 是投递给客户的一条消息。
type Notification struct {
	ID         string
	CustomerID string
	Type       Type
	Message    string
	CreatedAt  time.Time
	Read       bool
}

// Store 是通知存储端口。
// SaveOnce 以事件ID为幂等键：首次写入返回 true，重复事件返回 false，
// 事件重放绝不会产生第二条通知。
// 订单到客户的映射由 OrderCreated 投影而来，后续事件只携带订单ID。
type Store interface {
	SaveOnce(ctx context.Context, eventID string, n *Notification) (bool, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*Notification, error)
	MarkRead(ctx context.Context, customerID, notificationID string) error
	RememberOrderCustomer(ctx context.Context, orderID, customerID string) error
	CustomerForOrder(ctx context.Context, orderID string) (string, error)
}

// RuleEngine 判定一条通知是否被运营规则抑制。
type RuleEngine interface {
	Suppressed(n *Notification) (bool, error)
}
