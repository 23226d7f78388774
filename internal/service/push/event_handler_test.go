// internal/service/push/event_handler_test.go
package push

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/errs"
	"orderflow/internal/events"
)

func TestFeedHandlerSkipsUnknownEventType(t *testing.T) {
	handler := NewNotificationFeedHandler(NewHub())

	err := handler(context.Background(), events.Envelope{
		EventType: "SomethingNew",
		Payload:   []byte(`{}`),
	})
	assert.NoError(t, err)
}

func TestFeedHandlerRejectsMalformedKnownPayload(t *testing.T) {
	handler := NewNotificationFeedHandler(NewHub())

	err := handler(context.Background(), events.Envelope{
		EventType: events.TypeNotificationQueued,
		Payload:   []byte(`"not-an-object"`),
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindPoisonMessage, errs.KindOf(err))
}

func TestFeedHandlerIgnoresOfflineCustomer(t *testing.T) {
	handler := NewNotificationFeedHandler(NewHub())

	env, err := events.Wrap(&events.NotificationQueued{
		NotificationID: "n-1",
		CustomerID:     "customer-1",
		Type:           "ORDER_CONFIRMATION",
		Message:        "Your order order-1 has been confirmed. Total amount: $999.99",
	})
	require.NoError(t, err)
	// 客户不在线：静默丢弃，通知本体已在通知服务持久化
	assert.NoError(t, handler(context.Background(), env))
}
