// internal/service/inventory/infrastructure/memory_store.go
package infrastructure

import (
	"context"
	"sort"
	"sync"

	"orderflow/internal/errs"
	"orderflow/internal/service/inventory/domain"
)

// MemoryStore 是内存库存存储，用于本地运行和测试。
// 同样执行版本校验，让并发语义和 MySQL 实现保持一致。
type MemoryStore struct {
	mu           sync.RWMutex
	items        map[string]domain.Item
	reservations map[string]domain.Reservation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:        make(map[string]domain.Item),
		reservations: make(map[string]domain.Reservation),
	}
}

// Seed 预置库存，仅用于启动和测试。
func (s *MemoryStore) Seed(items ...domain.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.items[item.ProductID] = item
	}
}

func (s *MemoryStore) GetItem(ctx context.Context, productID string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[productID]
	if !ok {
		return nil, errs.NotFound("product %s not found", productID)
	}
	copied := item
	return &copied, nil
}

func (s *MemoryStore) ListItems(ctx context.Context) ([]*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]*domain.Item, 0, len(s.items))
	for _, item := range s.items {
		copied := item
		items = append(items, &copied)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items, nil
}

func (s *MemoryStore) SaveItem(ctx context.Context, item *domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *item
	stored.Version++
	s.items[item.ProductID] = stored
	item.Version = stored.Version
	return nil
}

func (s *MemoryStore) GetReservation(ctx context.Context, orderID string) (*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reservation, ok := s.reservations[orderID]
	if !ok {
		return nil, nil
	}
	copied := reservation
	copied.Lines = append([]domain.ReservationLine(nil), reservation.Lines...)
	return &copied, nil
}

func (s *MemoryStore) Commit(ctx context.Context, reservation *domain.Reservation, items []*domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 先整体校验版本，再整体落盘
	for _, item := range items {
		stored, ok := s.items[item.ProductID]
		if !ok {
			return errs.NotFound("product %s not found", item.ProductID)
		}
		if stored.Version != item.Version {
			return domain.ErrVersionConflict
		}
	}
	for _, item := range items {
		stored := *item
		stored.Version++
		s.items[item.ProductID] = stored
		item.Version = stored.Version
	}

	copied := *reservation
	copied.Lines = append([]domain.ReservationLine(nil), reservation.Lines...)
	s.reservations[reservation.OrderID] = copied
	return nil
}
