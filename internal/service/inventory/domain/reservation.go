// internal/service/inventory/domain/reservation.go
package domain

import "time"

// ReservationStatus 是预占记录的状态。
type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationFulfilled ReservationStatus = "FULFILLED"
)

// ReservationLine 记录单个商品的预占量。
type ReservationLine struct {
	ProductID string
	Quantity  int
}

// Reservation 以订单ID为键记录一次预占，同时充当幂等标记：
// 同一订单的 OrderCreated 重放时，存在的记录意味着跳过。
type Reservation struct {
	OrderID   string
	Lines     []ReservationLine
	Status    ReservationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
