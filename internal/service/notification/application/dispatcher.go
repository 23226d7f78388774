// internal/service/notification/application/dispatcher.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/errs"
	"orderflow/internal/events"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/service/notification/domain"
)

// Dispatcher 把 saga 事件翻译成客户通知。
// 以事件ID去重：同一事件重放多少次都只产生一条通知。
// 除 OrderCreated 外的事件只带订单ID，客户定位依赖
// OrderCreated 时落下的订单->客户投影。
type Dispatcher struct {
	store     domain.Store
	rules     domain.RuleEngine
	publisher events.Publisher
	tracer    trace.Tracer
}

func NewDispatcher(store domain.Store, rules domain.RuleEngine, publisher events.Publisher) *Dispatcher {
	return &Dispatcher{
		store:     store,
		rules:     rules,
		publisher: publisher,
		tracer:    otel.Tracer("notification-service"),
	}
}

// Dispatch 是消费入口。通知属于旁路业务，除了基础设施故障和毒消息，
// 这里不向消费运行时返回错误，避免通知问题拖垮 saga 主流程。
func (d *Dispatcher) Dispatch(ctx context.Context, env events.Envelope) error {
	ctx, span := d.tracer.Start(ctx, "DispatchNotification")
	defer span.End()
	span.SetAttributes(attribute.String("event.type", env.EventType))

	event, err := events.Decode(env)
	if err != nil {
		if errors.Is(err, events.ErrUnknownEventType) {
			logger.Ctx(ctx).Warn().
				Str("event_id", env.EventID).
				Str("event_type", env.EventType).
				Msg("skipping unknown event type")
			return nil
		}
		// 已知类型但负载解不开是毒消息，必须走死信
		return errs.PoisonMessage(err, "undecodable %s payload", env.EventType)
	}

	switch e := event.(type) {
	case *events.OrderCreated:
		if err := d.store.RememberOrderCustomer(ctx, e.OrderID, e.CustomerID); err != nil {
			return err
		}
		return d.deliver(ctx, env.EventID, e.CustomerID, domain.TypeOrderConfirmation,
			fmt.Sprintf("Your order %s has been confirmed. Total amount: $%.2f", e.OrderID, e.TotalAmount))

	case *events.InventoryReserved:
		customerID, err := d.customerFor(ctx, e.OrderID)
		if err != nil {
			return err
		}
		return d.deliver(ctx, env.EventID, customerID, domain.TypeProcessingUpdate,
			fmt.Sprintf("Good news! All items for your order %s are in stock and being prepared.", e.OrderID))

	case *events.InventoryReservationFailed:
		customerID, err := d.customerFor(ctx, e.OrderID)
		if err != nil {
			return err
		}
		return d.deliver(ctx, env.EventID, customerID, domain.TypeReservationFailure,
			fmt.Sprintf("We are sorry. Your order %s could not be fulfilled: %s.", e.OrderID, e.Reason))

	case *events.OrderCancelled:
		customerID, err := d.customerFor(ctx, e.OrderID)
		if err != nil {
			return err
		}
		return d.deliver(ctx, env.EventID, customerID, domain.TypeOrderCancellation,
			fmt.Sprintf("Your order %s has been cancelled. Reason: %s.", e.OrderID, e.Reason))

	default:
		logger.Ctx(ctx).Warn().
			Str("event_id", env.EventID).
			Str("event_type", env.EventType).
			Msg("event type not handled by notification service, skipping")
		return nil
	}
}

// ListNotifications 查询某客户的全部通知。
func (d *Dispatcher) ListNotifications(ctx context.Context, customerID string) ([]*domain.Notification, error) {
	return d.store.ListByCustomer(ctx, customerID)
}

// MarkRead 标记已读。
func (d *Dispatcher) MarkRead(ctx context.Context, customerID, notificationID string) error {
	return d.store.MarkRead(ctx, customerID, notificationID)
}

// customerFor 解析订单归属的客户。投影还没建立时按可重试处理：
// 跨主题的事件没有全序，OrderCreated 可能还在路上。
func (d *Dispatcher) customerFor(ctx context.Context, orderID string) (string, error) {
	customerID, err := d.store.CustomerForOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if customerID == "" {
		return "", errs.New(errs.KindTransientInfra, "customer for order %s not yet known", orderID)
	}
	return customerID, nil
}

func (d *Dispatcher) deliver(ctx context.Context, eventID, customerID string, typ domain.Type, message string) error {
	notification := &domain.Notification{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		Type:       typ,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}

	if d.rules != nil {
		suppressed, err := d.rules.Suppressed(notification)
		if err != nil {
			// 规则坏了不能压垮通知主流程，按不抑制处理
			logger.Ctx(ctx).Error().Err(err).Msg("suppression rule evaluation failed, delivering anyway")
		} else if suppressed {
			logger.Ctx(ctx).Info().
				Str("customer_id", customerID).
				Str("type", string(typ)).
				Msg("notification suppressed by rule")
			return nil
		}
	}

	created, err := d.store.SaveOnce(ctx, eventID, notification)
	if err != nil {
		return err
	}
	if !created {
		logger.Ctx(ctx).Info().
			Str("event_id", eventID).
			Str("customer_id", customerID).
			Msg("duplicate event, notification already sent")
		return nil
	}

	// 推送流是尽力而为：发布失败不影响已持久化的通知
	if _, err := events.PublishEvent(ctx, d.publisher, &events.NotificationQueued{
		NotificationID: notification.ID,
		CustomerID:     notification.CustomerID,
		Type:           string(notification.Type),
		Message:        notification.Message,
		CreatedAt:      notification.CreatedAt,
	}); err != nil {
		logger.Ctx(ctx).Error().
			Str("notification_id", notification.ID).
			Err(err).
			Msg("failed to publish notification to push feed")
	}

	logger.Ctx(ctx).Info().
		Str("notification_id", notification.ID).
		Str("customer_id", customerID).
		Str("type", string(typ)).
		Msg("notification queued")
	return nil
}
