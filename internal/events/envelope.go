// internal/events/envelope.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// 每种事件一个独立主题；分区键是事件所属聚合的ID，
// 保证同一聚合的事件在单个分区内按因果序投递。
const (
	TopicOrderCreated               = "order-created"
	TopicOrderCancelled             = "order-cancelled"
	TopicInventoryReserved          = "inventory-reserved"
	TopicInventoryReservationFailed = "inventory-reservation-failed"
	TopicNotificationQueued         = "notification-queued"

	// TopicDeadLetter 是重试耗尽后消息的归宿，原始主题记录在消息头里。
	TopicDeadLetter = "saga-dead-letter"
)

// eventType 判别串，消费端据此选择解码器。
const (
	TypeOrderCreated               = "OrderCreated"
	TypeOrderCancelled             = "OrderCancelled"
	TypeInventoryReserved          = "InventoryReserved"
	TypeInventoryReservationFailed = "InventoryReservationFailed"
	TypeNotificationQueued         = "NotificationQueued"
)

// Envelope 是所有主题上的统一信封。创建后不可变；
// EventID 同时充当下游的幂等键。
type Envelope struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredOn time.Time       `json:"occurredOn"`
	Payload    json.RawMessage `json:"payload"`
}

// Event 是封闭的事件负载集合，每个负载知道自己的判别串和分区键。
type Event interface {
	EventType() string
	PartitionKey() string
}

// ErrUnknownEventType 表示信封携带了本版本不认识的判别串。
// 消费端必须记录并跳过，不能当作致命错误，以支持向前兼容的灰度发布。
var ErrUnknownEventType = errors.New("events: unknown event type")

// Wrap 把负载封进一个新信封。
func Wrap(event Event) (Envelope, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, errors.Wrap(err, "events: marshal payload")
	}
	return Envelope{
		EventID:    uuid.New().String(),
		EventType:  event.EventType(),
		OccurredOn: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// Decode 根据判别串还原类型化负载。
func Decode(env Envelope) (Event, error) {
	var event Event
	switch env.EventType {
	case TypeOrderCreated:
		event = &OrderCreated{}
	case TypeOrderCancelled:
		event = &OrderCancelled{}
	case TypeInventoryReserved:
		event = &InventoryReserved{}
	case TypeInventoryReservationFailed:
		event = &InventoryReservationFailed{}
	case TypeNotificationQueued:
		event = &NotificationQueued{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}
	if err := json.Unmarshal(env.Payload, event); err != nil {
		return nil, errors.Wrapf(err, "events: unmarshal %s payload", env.EventType)
	}
	return event, nil
}

// TopicFor 返回事件类型对应的主题。
func TopicFor(eventType string) (string, bool) {
	switch eventType {
	case TypeOrderCreated:
		return TopicOrderCreated, true
	case TypeOrderCancelled:
		return TopicOrderCancelled, true
	case TypeInventoryReserved:
		return TopicInventoryReserved, true
	case TypeInventoryReservationFailed:
		return TopicInventoryReservationFailed, true
	case TypeNotificationQueued:
		return TopicNotificationQueued, true
	default:
		return "", false
	}
}

// Publisher 是发布端口。实现方须保证错误对调用者而言总是可重试的；
// 至少一次的发布语义由下游幂等消费吸收。
type Publisher interface {
	Publish(ctx context.Context, topic, partitionKey string, env Envelope) error
}

// PublishEvent 封装 Wrap + 主题路由 + 发布。发布失败时仍返回已封好的
// 信封，调用方记日志或补偿时能引用事件ID。
func PublishEvent(ctx context.Context, p Publisher, event Event) (Envelope, error) {
	env, err := Wrap(event)
	if err != nil {
		return Envelope{}, err
	}
	topic, ok := TopicFor(env.EventType)
	if !ok {
		return env, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}
	if err := p.Publish(ctx, topic, event.PartitionKey(), env); err != nil {
		return env, err
	}
	return env, nil
}
