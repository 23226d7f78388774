// internal/service/push/event_handler.go
package push

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"orderflow/internal/errs"
	"orderflow/internal/events"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/mq"
)

// pushMessage 是下发给浏览器的帧格式。
type pushMessage struct {
	NotificationID string    `json:"notificationId"`
	Type           string    `json:"type"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewNotificationFeedHandler 消费 notification-queued 并推给在线客户。
// 每个网关实例用独立消费组订阅全量通知，各自推自己持有的连接。
func NewNotificationFeedHandler(hub *Hub) mq.HandlerFunc {
	return func(ctx context.Context, env events.Envelope) error {
		event, err := events.Decode(env)
		if err != nil {
			if errors.Is(err, events.ErrUnknownEventType) {
				logger.Ctx(ctx).Warn().
					Str("event_type", env.EventType).
					Msg("skipping unknown event type")
				return nil
			}
			return errs.PoisonMessage(err, "undecodable %s payload", env.EventType)
		}
		queued, ok := event.(*events.NotificationQueued)
		if !ok {
			return nil
		}

		payload, err := json.Marshal(pushMessage{
			NotificationID: queued.NotificationID,
			Type:           queued.Type,
			Message:        queued.Message,
			CreatedAt:      queued.CreatedAt,
		})
		if err != nil {
			return err
		}
		hub.Push(ctx, queued.CustomerID, payload)
		return nil
	}
}
