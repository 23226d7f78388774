// internal/service/order/infrastructure/gorm_model.go
package infrastructure

import "time"

// OrderModel 是订单表的 gorm 映射。
type OrderModel struct {
	ID          string           `gorm:"primaryKey;type:varchar(64)"`
	CustomerID  string           `gorm:"type:varchar(64);index"`
	TotalAmount float64          `gorm:"type:decimal(12,2)"`
	Status      string           `gorm:"type:varchar(16);index"`
	Items       []OrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (OrderModel) TableName() string { return "orders" }

// OrderItemModel 是订单行表的 gorm 映射。
type OrderItemModel struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	OrderID   string  `gorm:"type:varchar(64);index"`
	ProductID string  `gorm:"type:varchar(64)"`
	Quantity  int     `gorm:""`
	UnitPrice float64 `gorm:"type:decimal(12,2)"`
}

func (OrderItemModel) TableName() string { return "order_items" }
