// internal/service/order/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sort"
	"sync"

	"orderflow/internal/errs"
	"orderflow/internal/service/order/domain"
)

// MemoryOrderRepository 是内存订单仓储，用于本地运行和测试。
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*OrderModel
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]*OrderModel)}
}

func (r *MemoryOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// 存持久化模型而不是聚合指针，避免调用方后续修改串到仓储里
	r.orders[order.ID] = toModel(order)
	return nil
}

func (r *MemoryOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	model, ok := r.orders[id]
	if !ok {
		return nil, errs.NotFound("order %s not found", id)
	}
	return toDomain(model)
}

func (r *MemoryOrderRepository) FindAll(ctx context.Context) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	orders := make([]*domain.Order, 0, len(r.orders))
	for _, model := range r.orders {
		order, err := toDomain(model)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}
