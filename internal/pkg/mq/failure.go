// internal/pkg/mq/failure.go
package mq

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"

	"orderflow/internal/pkg/logger"
)

// 死信消息头，记录原始位置和失败原因，供运维排查。
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderFailureReason     = "x-failure-reason"
	HeaderAttempts          = "x-attempts"
)

// DeadLetterSink 抽象了死信出口，*kafka.Writer 即满足。
type DeadLetterSink interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// FailureHandler 把重试耗尽或不可重试的消息转移到死信主题。
// 转移成功后调用方照常提交 offset，分区不会被毒消息阻塞。
type FailureHandler struct {
	sink DeadLetterSink
}

func NewFailureHandler(sink DeadLetterSink) *FailureHandler {
	return &FailureHandler{sink: sink}
}

// Handle 返回 true 表示消息已安全移交死信主题。
// 返回 false 时调用方不能提交 offset，只能依赖重投递。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error, attempts int) bool {
	dead := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header{}, msg.Headers...),
			kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
			kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: HeaderFailureReason, Value: []byte(cause.Error())},
			kafka.Header{Key: HeaderAttempts, Value: []byte(strconv.Itoa(attempts))},
		),
	}
	InjectTraceContext(ctx, &dead.Headers)

	if err := h.sink.WriteMessages(ctx, dead); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", msg.Topic).
			Int64("offset", msg.Offset).
			Msg("CRITICAL: failed to move message to dead letter topic")
		return false
	}

	deadLettered.WithLabelValues(msg.Topic).Inc()
	logger.Ctx(ctx).Error().Err(cause).
		Str("topic", msg.Topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Int("attempts", attempts).
		Msg("message moved to dead letter topic")
	return true
}
