// internal/pkg/mq/publisher.go
package mq

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"orderflow/internal/errs"
	"orderflow/internal/events"
)

// EventPublisher 实现 events.Publisher，按主题惰性创建 writer。
// 发布失败一律包装为可重试的基础设施错误，由调用方决定重试策略。
type EventPublisher struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewEventPublisher(brokers []string) *EventPublisher {
	return &EventPublisher{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

func (p *EventPublisher) Publish(ctx context.Context, topic, partitionKey string, env events.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return errs.Wrap(errs.KindUnknown, err, "publish: marshal envelope %s", env.EventID)
	}
	if err := ProduceMessage(ctx, p.writer(topic), []byte(partitionKey), raw); err != nil {
		return errs.TransientInfra(err, "publish: write %s to %s", env.EventType, topic)
	}
	return nil
}

func (p *EventPublisher) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.writers[topic]
	if !ok {
		w = NewKafkaWriter(p.brokers, topic)
		p.writers[topic] = w
	}
	return w
}

// Close 关闭所有底层 writer。
func (p *EventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
