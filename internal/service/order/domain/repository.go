// internal/service/order/domain/repository.go
package domain

import "context"

// Repository 是订单聚合的持久化端口。
type Repository interface {
	Save(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindAll(ctx context.Context) ([]*Order, error)
}
