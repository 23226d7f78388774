// cmd/push-gateway/main.go
package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"orderflow/internal/events"
	"orderflow/internal/pkg/bootstrap"
	"orderflow/internal/pkg/config"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/push"
)

const serviceName = "push-gateway"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	port, err := strconv.Atoi(config.GetEnv("PORT", "8083"))
	if err != nil {
		panic(err)
	}

	hub := push.NewHub()

	// 每个网关实例一个消费组：全量通知广播到所有实例，
	// 各实例只推自己持有的连接
	groupID := serviceName + "-" + config.GetEnv("NODE_ID", uuid.New().String()[:8])

	dltWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, events.TopicDeadLetter)
	failure := mq.NewFailureHandler(dltWriter)
	consumer := mq.NewConsumer(events.TopicNotificationQueued,
		mq.NewKafkaReader(cfg.Kafka.Brokers, events.TopicNotificationQueued, groupID),
		push.NewNotificationFeedHandler(hub), failure, otel.Tracer(serviceName),
		mq.ConsumerOptions{
			MaxAttempts:    cfg.Consumer.MaxAttempts,
			InitialBackoff: cfg.Consumer.InitialBackoff,
			MaxBackoff:     cfg.Consumer.MaxBackoff,
			HandlerTimeout: cfg.Consumer.HandlerTimeout,
		})

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        port,
		Config:      cfg,
		RegisterHandlers: func(mux *http.ServeMux) {
			mux.HandleFunc("GET /ws", push.ServeWS(hub))
			mux.HandleFunc("GET /online", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"online":` + strconv.Itoa(hub.Online()) + `}`))
			})
		},
		Runners: []bootstrap.Runner{consumer},
		OnShutdown: func(ctx context.Context) {
			if err := dltWriter.Close(); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to close dead letter writer")
			}
		},
	})
}
