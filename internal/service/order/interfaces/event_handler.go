// internal/service/order/interfaces/event_handler.go
package interfaces

import (
	"context"

	"github.com/pkg/errors"

	"orderflow/internal/errs"
	"orderflow/internal/events"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/order/application"
)

// NewReservationEventHandler 返回订单服务的消费入口，
// 订阅库存预占结果（inventory-reserved / inventory-reservation-failed）。
// 未知事件类型记日志后提交，不能卡住分区；
// 已知类型但负载解不开是毒消息，必须走死信而不是悄悄丢弃。
func NewReservationEventHandler(service *application.Service) mq.HandlerFunc {
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
		case *events.InventoryReserved:
			return service.HandleInventoryReserved(ctx, e)
		case *events.InventoryReservationFailed:
			return service.HandleReservationFailed(ctx, e)
		default:
			logger.Ctx(ctx).Warn().
				Str("event_id", env.EventID).
				Str("event_type", env.EventType).
				Msg("event type not handled by order service, skipping")
			return nil
		}
	}
}
