// internal/service/notification/infrastructure/memory_store.go
package infrastructure

import (
	"context"
	"sync"

	"orderflow/internal/errs"
	"orderflow/internal/service/notification/domain"
)

// MemoryStore 是内存通知存储，用于本地运行和测试。
type MemoryStore struct {
	mu             sync.RWMutex
	byEvent        map[string]string // eventID -> notificationID
	byID           map[string]*domain.Notification
	byCustomer     map[string][]string
	orderCustomers map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byEvent:        make(map[string]string),
		byID:           make(map[string]*domain.Notification),
		byCustomer:     make(map[string][]string),
		orderCustomers: make(map[string]string),
	}
}

func (s *MemoryStore) SaveOnce(ctx context.Context, eventID string, n *domain.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.byEvent[eventID]; seen {
		return false, nil
	}
	copied := *n
	s.byEvent[eventID] = n.ID
	s.byID[n.ID] = &copied
	s.byCustomer[n.CustomerID] = append(s.byCustomer[n.CustomerID], n.ID)
	return true, nil
}

func (s *MemoryStore) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byCustomer[customerID]
	notifications := make([]*domain.Notification, 0, len(ids))
	for _, id := range ids {
		copied := *s.byID[id]
		notifications = append(notifications, &copied)
	}
	return notifications, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, customerID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[notificationID]
	if !ok || n.CustomerID != customerID {
		return errs.NotFound("notification %s not found for customer %s", notificationID, customerID)
	}
	n.Read = true
	return nil
}

func (s *MemoryStore) RememberOrderCustomer(ctx context.Context, orderID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderCustomers[orderID] = customerID
	return nil
}

func (s *MemoryStore) CustomerForOrder(ctx context.Context, orderID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderCustomers[orderID], nil
}
