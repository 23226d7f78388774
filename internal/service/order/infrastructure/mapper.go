// internal/service/order/infrastructure/mapper.go
package infrastructure

import (
	"orderflow/internal/errs"
	"orderflow/internal/service/order/domain"
)

// toModel 把聚合转成持久化模型。
func toModel(order *domain.Order) *OrderModel {
	items := make([]OrderItemModel, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItemModel{
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return &OrderModel{
		ID:          order.ID,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount,
		Status:      string(order.Status),
		Items:       items,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

// toDomain 把持久化模型重建为聚合。存储里出现未知状态值说明
// 数据已损坏或版本不兼容，不能让它流进状态机。
func toDomain(model *OrderModel) (*domain.Order, error) {
	status := domain.Status(model.Status)
	if !status.Valid() {
		return nil, errs.New(errs.KindInvalidState, "order %s has corrupt status %q", model.ID, model.Status)
	}
	items := make([]domain.OrderItem, len(model.Items))
	for i, item := range model.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return domain.RehydrateOrder(
		model.ID,
		model.CustomerID,
		items,
		model.TotalAmount,
		status,
		model.CreatedAt,
		model.UpdatedAt,
	), nil
}
