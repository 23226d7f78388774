// internal/pkg/mq/consumer.go
package mq

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/errs"
	"orderflow/internal/events"
	"orderflow/internal/pkg/logger"
)

// HandlerFunc 一次收到一个解码后的信封，同一分区内按到达顺序调用。
// 返回 nil 运行时才会提交 offset，因此语义是至少一次，处理方必须幂等。
type HandlerFunc func(ctx context.Context, env events.Envelope) error

// MessageSource 抽象了消费组 Reader，*kafka.Reader 即满足。
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerOptions 控制重试与超时。
type ConsumerOptions struct {
	MaxAttempts    int           // 处理尝试上限，超过后进死信
	InitialBackoff time.Duration // 首次重试退避
	MaxBackoff     time.Duration // 退避上限
	HandlerTimeout time.Duration // 单次 handler 调用的期限
}

func (o *ConsumerOptions) withDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 200 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 10 * time.Second
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 30 * time.Second
	}
}

// Consumer 是通用的消费运行时：fetch -> 解码 -> 带退避地处理 -> 提交。
// offset 只在处理成功或消息安全移交死信后提交；
// 处理与提交之间崩溃会导致重投递，由各 handler 的幂等规则吸收。
type Consumer struct {
	topic   string
	source  MessageSource
	handler HandlerFunc
	failure *FailureHandler
	opts    ConsumerOptions
	tracer  trace.Tracer

	wg      sync.WaitGroup
	stopped atomic.Bool
}

func NewConsumer(topic string, source MessageSource, handler HandlerFunc, failure *FailureHandler, tracer trace.Tracer, opts ConsumerOptions) *Consumer {
	opts.withDefaults()
	return &Consumer{
		topic:   topic,
		source:  source,
		handler: handler,
		failure: failure,
		opts:    opts,
		tracer:  tracer,
	}
}

// Start 启动消费循环，立即返回。
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", c.topic).Msg("consumer started")
		for {
			if c.stopped.Load() {
				return
			}
			msg, err := c.source.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || c.stopped.Load() {
					logger.Ctx(ctx).Info().Str("topic", c.topic).Msg("consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Str("topic", c.topic).Msg("fetch failed, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			c.processMessage(ctx, msg)
		}
	}()
	return nil
}

// Stop 优雅停止：先关 Reader 解除 Fetch 阻塞，再等在途处理完成。
// 这样在 rebalance 释放分区之前，进行中的 handler 一定已经结束。
func (c *Consumer) Stop(ctx context.Context) {
	c.stopped.Store(true)
	c.source.Close()
	c.wg.Wait()
	logger.Ctx(ctx).Info().Str("topic", c.topic).Msg("consumer stopped")
}

func (c *Consumer) processMessage(parentCtx context.Context, msg kafka.Message) {
	ctx := ExtractTraceContext(parentCtx, msg.Headers)
	ctx, span := c.tracer.Start(ctx, "mq.Consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
		))
	defer span.End()

	var env events.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		// 解不开信封的消息没有重试价值，直接按毒消息走死信
		poison := errs.PoisonMessage(err, "undecodable envelope on %s", msg.Topic)
		span.RecordError(poison)
		span.SetStatus(codes.Error, "undecodable envelope")
		c.finish(ctx, msg, poison, 1)
		return
	}
	span.SetAttributes(
		attribute.String("event.id", env.EventID),
		attribute.String("event.type", env.EventType),
	)

	var err error
	attempt := 0
	for {
		attempt++
		err = c.invoke(ctx, env)
		if err == nil {
			break
		}
		if !errs.Retryable(err) || attempt >= c.opts.MaxAttempts {
			break
		}
		handlerRetries.WithLabelValues(c.topic).Inc()
		logger.Ctx(ctx).Warn().Err(err).
			Str("event_id", env.EventID).
			Int("attempt", attempt).
			Msg("handler failed, backing off")
		select {
		case <-time.After(c.backoff(attempt)):
		case <-parentCtx.Done():
			// 停机中途放弃，不提交 offset，消息会被重投递
			span.SetStatus(codes.Error, "abandoned during shutdown")
			return
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler exhausted")
	}
	c.finish(ctx, msg, err, attempt)
}

func (c *Consumer) invoke(ctx context.Context, env events.Envelope) error {
	hctx, cancel := context.WithTimeout(ctx, c.opts.HandlerTimeout)
	defer cancel()
	return c.handler(hctx, env)
}

// finish 提交 offset。失败的消息必须先安全落进死信主题才允许提交。
func (c *Consumer) finish(ctx context.Context, msg kafka.Message, handleErr error, attempts int) {
	result := resultOK
	if handleErr != nil {
		if !c.failure.Handle(ctx, msg, handleErr, attempts) {
			// 死信写入也失败了：不提交，等 broker 重投递
			return
		}
		result = resultDeadLetter
	}
	if err := c.source.CommitMessages(ctx, msg); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", c.topic).
			Int64("offset", msg.Offset).
			Msg("failed to commit offset")
		return
	}
	messagesHandled.WithLabelValues(c.topic, result).Inc()
}

func (c *Consumer) backoff(attempt int) time.Duration {
	d := c.opts.InitialBackoff << (attempt - 1)
	if d > c.opts.MaxBackoff || d <= 0 {
		return c.opts.MaxBackoff
	}
	return d
}
