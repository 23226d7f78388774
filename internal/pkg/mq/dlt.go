// internal/pkg/mq/dlt.go
package mq

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"orderflow/internal/pkg/logger"
)

// DeadLetterLogger 监听死信主题并记录结构化日志，供运维检视。
// 死信消息读到即提交——记录日志就是它的“处理”。
type DeadLetterLogger struct {
	source  MessageSource
	wg      sync.WaitGroup
	stopped atomic.Bool
}

func NewDeadLetterLogger(source MessageSource) *DeadLetterLogger {
	return &DeadLetterLogger{source: source}
}

func (d *DeadLetterLogger) Start(ctx context.Context) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		logger.Ctx(ctx).Info().Msg("dead letter logger started")
		for {
			if d.stopped.Load() {
				return
			}
			msg, err := d.source.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || d.stopped.Load() {
					return
				}
				continue
			}
			d.logDeadLetter(ctx, msg)
			if err := d.source.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit dead letter offset")
			}
		}
	}()
	return nil
}

func (d *DeadLetterLogger) Stop(ctx context.Context) {
	d.stopped.Store(true)
	d.source.Close()
	d.wg.Wait()
	logger.Ctx(ctx).Info().Msg("dead letter logger stopped")
}

func (d *DeadLetterLogger) logDeadLetter(ctx context.Context, msg kafka.Message) {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", headers[HeaderOriginalTopic]).
		Str("original_partition", headers[HeaderOriginalPartition]).
		Str("original_offset", headers[HeaderOriginalOffset]).
		Str("failure_reason", headers[HeaderFailureReason]).
		Str("attempts", headers[HeaderAttempts]).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("dead letter message received")
}
