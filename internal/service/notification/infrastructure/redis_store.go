// internal/service/notification/infrastructure/redis_store.go
package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"orderflow/internal/errs"
	"orderflow/internal/service/notification/domain"
)

const (
	keyDedupPrefix    = "notif:event:"    // notif:event:<eventID> -> notificationID
	keyItemPrefix     = "notif:item:"     // notif:item:<notificationID> -> json
	keyCustomerPrefix = "notif:customer:" // notif:customer:<customerID> -> list of notificationID
	keyOrderCustomers = "notif:order-customers"

	dedupTTL = 7 * 24 * time.Hour
)

// RedisStore 是多实例部署下的通知存储。
// 去重键带 TTL：消费位点不可能落后一周，过期回收即可。
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SaveOnce(ctx context.Context, eventID string, n *domain.Notification) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyDedupPrefix+eventID, n.ID, dedupTTL).Result()
	if err != nil {
		return false, errs.Wrap(errs.KindTransientInfra, err, "dedup event %s", eventID)
	}
	if !ok {
		return false, nil
	}

	raw, err := json.Marshal(notificationRecord{
		ID:         n.ID,
		CustomerID: n.CustomerID,
		Type:       string(n.Type),
		Message:    n.Message,
		CreatedAt:  n.CreatedAt,
		Read:       n.Read,
	})
	if err != nil {
		return false, err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyItemPrefix+n.ID, raw, 0)
	pipe.RPush(ctx, keyCustomerPrefix+n.CustomerID, n.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		// 回滚去重键，让事件重投后能再次尝试
		s.client.Del(ctx, keyDedupPrefix+eventID)
		return false, errs.Wrap(errs.KindTransientInfra, err, "store notification %s", n.ID)
	}
	return true, nil
}

func (s *RedisStore) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Notification, error) {
	ids, err := s.client.LRange(ctx, keyCustomerPrefix+customerID, 0, -1).Result()
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientInfra, err, "list notifications for %s", customerID)
	}
	notifications := make([]*domain.Notification, 0, len(ids))
	for _, id := range ids {
		n, err := s.getItem(ctx, id)
		if err != nil {
			return nil, err
		}
		if n != nil {
			notifications = append(notifications, n)
		}
	}
	return notifications, nil
}

func (s *RedisStore) MarkRead(ctx context.Context, customerID, notificationID string) error {
	n, err := s.getItem(ctx, notificationID)
	if err != nil {
		return err
	}
	if n == nil || n.CustomerID != customerID {
		return errs.NotFound("notification %s not found for customer %s", notificationID, customerID)
	}
	n.Read = true
	raw, err := json.Marshal(notificationRecord{
		ID:         n.ID,
		CustomerID: n.CustomerID,
		Type:       string(n.Type),
		Message:    n.Message,
		CreatedAt:  n.CreatedAt,
		Read:       true,
	})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyItemPrefix+notificationID, raw, 0).Err(); err != nil {
		return errs.Wrap(errs.KindTransientInfra, err, "mark notification %s read", notificationID)
	}
	return nil
}

func (s *RedisStore) RememberOrderCustomer(ctx context.Context, orderID, customerID string) error {
	if err := s.client.HSet(ctx, keyOrderCustomers, orderID, customerID).Err(); err != nil {
		return errs.Wrap(errs.KindTransientInfra, err, "remember customer for order %s", orderID)
	}
	return nil
}

func (s *RedisStore) CustomerForOrder(ctx context.Context, orderID string) (string, error) {
	customerID, err := s.client.HGet(ctx, keyOrderCustomers, orderID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errs.Wrap(errs.KindTransientInfra, err, "lookup customer for order %s", orderID)
	}
	return customerID, nil
}

func (s *RedisStore) getItem(ctx context.Context, id string) (*domain.Notification, error) {
	raw, err := s.client.Get(ctx, keyItemPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientInfra, err, "load notification %s", id)
	}
	var record notificationRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &domain.Notification{
		ID:         record.ID,
		CustomerID: record.CustomerID,
		Type:       domain.Type(record.Type),
		Message:    record.Message,
		CreatedAt:  record.CreatedAt,
		Read:       record.Read,
	}, nil
}

type notificationRecord struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
	Read       bool      `json:"read"`
}
