// internal/service/inventory/interfaces/event_handler.go
package interfaces

import (
	"context"

	"github.com/pkg/errors"

	"orderflow/internal/errs"
	"orderflow/internal/events"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/inventory/application"
)

// NewOrderEventHandler 返回库存服务的消费入口，
// 订阅订单生命周期事件（order-created / order-cancelled）。
// 未知事件类型记日志后提交；已知类型但负载解不开是毒消息，走死信。
func NewOrderEventHandler(service *application.Service) mq.HandlerFunc {
	return func(ctx context.Context, env events.Envelope) error {
		event, err := events.Decode(env)
		if err != nil {
			if errors.Is(err, events.ErrUnknownEventType) {
				logger.Ctx(ctx).Warn().
					Str("event_id", env.EventID).
					Str("event_type", env.EventType).
					Msg("skipping unknown event type")
				return nil
			}
			return errs.PoisonMessage(err, "undecodable %s payload", env.EventType)
		}
		switch e := event.(type) {
		case *events.OrderCreated:
			return service.HandleOrderCreated(ctx, e)
		case *events.OrderCancelled:
			return service.HandleOrderCancelled(ctx, e)
		default:
			logger.Ctx(ctx).Warn().
				Str("event_id", env.EventID).
				Str("event_type", env.EventType).
				Msg("event type not handled by inventory service, skipping")
			return nil
		}
	}
}
