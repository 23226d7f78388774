// internal/pkg/mq/consumer_test.go
package mq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"orderflow/internal/errs"
	"orderflow/internal/events"
)

type fakeSource struct {
	committed []kafka.Message
}

func (s *fakeSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (s *fakeSource) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	s.committed = append(s.committed, msgs...)
	return nil
}

func (s *fakeSource) Close() error { return nil }

type fakeSink struct {
	written []kafka.Message
	err     error
}

func (s *fakeSink) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if s.err != nil {
		return s.err
	}
	s.written = append(s.written, msgs...)
	return nil
}

func testOptions() ConsumerOptions {
	return ConsumerOptions{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		HandlerTimeout: time.Second,
	}
}

func newTestConsumer(handler HandlerFunc, sink *fakeSink) (*Consumer, *fakeSource) {
	source := &fakeSource{}
	c := NewConsumer("order-created", source, handler, NewFailureHandler(sink), otel.Tracer("test"), testOptions())
	return c, source
}

func envelopeMessage(t *testing.T) kafka.Message {
	t.Helper()
	env, err := events.Wrap(&events.OrderCancelled{OrderID: "order-1", Reason: "test"})
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Topic: "order-created", Partition: 0, Offset: 42, Key: []byte("order-1"), Value: raw}
}

func TestCommitAfterSuccessfulHandling(t *testing.T) {
	calls := 0
	sink := &fakeSink{}
	c, source := newTestConsumer(func(ctx context.Context, env events.Envelope) error {
		calls++
		return nil
	}, sink)

	c.processMessage(context.Background(), envelopeMessage(t))

	assert.Equal(t, 1, calls)
	assert.Len(t, source.committed, 1)
	assert.Empty(t, sink.written)
}

func TestRetryableErrorIsRetriedUntilSuccess(t *testing.T) {
	calls := 0
	sink := &fakeSink{}
	c, source := newTestConsumer(func(ctx context.Context, env events.Envelope) error {
		calls++
		if calls < 3 {
			return errs.TransientInfra(errors.New("db down"), "transient")
		}
		return nil
	}, sink)

	c.processMessage(context.Background(), envelopeMessage(t))

	assert.Equal(t, 3, calls)
	assert.Len(t, source.committed, 1)
	assert.Empty(t, sink.written)
}

func TestExhaustedRetriesGoToDeadLetter(t *testing.T) {
	calls := 0
	sink := &fakeSink{}
	c, source := newTestConsumer(func(ctx context.Context, env events.Envelope) error {
		calls++
		return errs.TransientInfra(errors.New("db down"), "transient")
	}, sink)

	c.processMessage(context.Background(), envelopeMessage(t))

	assert.Equal(t, 3, calls)
	require.Len(t, sink.written, 1)
	// 移交死信后照常提交，分区不被阻塞
	assert.Len(t, source.committed, 1)

	headers := make(map[string]string)
	for _, h := range sink.written[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "order-created", headers[HeaderOriginalTopic])
	assert.Equal(t, "42", headers[HeaderOriginalOffset])
	assert.Equal(t, "3", headers[HeaderAttempts])
	assert.NotEmpty(t, headers[HeaderFailureReason])
}

func TestNonRetryableErrorSkipsRetries(t *testing.T) {
	calls := 0
	sink := &fakeSink{}
	c, source := newTestConsumer(func(ctx context.Context, env events.Envelope) error {
		calls++
		return errs.Validation("malformed payload")
	}, sink)

	c.processMessage(context.Background(), envelopeMessage(t))

	assert.Equal(t, 1, calls)
	assert.Len(t, sink.written, 1)
	assert.Len(t, source.committed, 1)
}

func TestUndecodableEnvelopeIsPoison(t *testing.T) {
	calls := 0
	sink := &fakeSink{}
	c, source := newTestConsumer(func(ctx context.Context, env events.Envelope) error {
		calls++
		return nil
	}, sink)

	c.processMessage(context.Background(), kafka.Message{
		Topic: "order-created", Offset: 7, Value: []byte("not json"),
	})

	// handler 根本不会被调用
	assert.Equal(t, 0, calls)
	assert.Len(t, sink.written, 1)
	assert.Len(t, source.committed, 1)
}

func TestNoCommitWhenDeadLetterWriteFails(t *testing.T) {
	sink := &fakeSink{err: errors.New("dlt broker down")}
	c, source := newTestConsumer(func(ctx context.Context, env events.Envelope) error {
		return errs.Validation("malformed payload")
	}, sink)

	c.processMessage(context.Background(), envelopeMessage(t))

	// 死信没写成功就不能提交，等 broker 重投递
	assert.Empty(t, source.committed)
}

func TestBackoffIsExponentialAndCapped(t *testing.T) {
	c, _ := newTestConsumer(nil, &fakeSink{})

	assert.Equal(t, time.Millisecond, c.backoff(1))
	assert.Equal(t, 2*time.Millisecond, c.backoff(2))
	assert.Equal(t, 4*time.Millisecond, c.backoff(3))
	assert.Equal(t, 4*time.Millisecond, c.backoff(4))
	assert.Equal(t, 4*time.Millisecond, c.backoff(60))
}

func TestStopUnblocksFetch(t *testing.T) {
	sink := &fakeSink{}
	source := &fakeSource{}
	c := NewConsumer("order-created", source, func(ctx context.Context, env events.Envelope) error {
		return nil
	}, NewFailureHandler(sink), otel.Tracer("test"), testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))

	done := make(chan struct{})
	go func() {
		cancel()
		c.Stop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
