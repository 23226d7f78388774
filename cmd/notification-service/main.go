// cmd/notification-service/main.go
package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"orderflow/internal/events"
	"orderflow/internal/pkg/bootstrap"
	"orderflow/internal/pkg/config"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/notification/application"
	"orderflow/internal/service/notification/domain"
	"orderflow/internal/service/notification/infrastructure"
	"orderflow/internal/service/notification/interfaces"
)

const serviceName = "notification-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	port, err := strconv.Atoi(config.GetEnv("PORT", "8082"))
	if err != nil {
		panic(err)
	}

	var store domain.Store
	var redisClient *redis.Client
	if config.GetEnv("NOTIFICATION_STORE", "redis") == "memory" {
		store = infrastructure.NewMemoryStore()
	} else {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		store = infrastructure.NewRedisStore(redisClient)
	}

	engine, err := infrastructure.NewCelRuleEngine(cfg.Notification.SuppressRule)
	if err != nil {
		panic(err)
	}
	// 注意不能把带类型的 nil 指针塞进接口
	var rules domain.RuleEngine
	if engine != nil {
		rules = engine
	}

	publisher := mq.NewEventPublisher(cfg.Kafka.Brokers)
	dispatcher := application.NewDispatcher(store, rules, publisher)
	httpHandler := interfaces.NewNotificationHandler(dispatcher)

	dltWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, events.TopicDeadLetter)
	failure := mq.NewFailureHandler(dltWriter)
	tracer := otel.Tracer(serviceName)
	opts := mq.ConsumerOptions{
		MaxAttempts:    cfg.Consumer.MaxAttempts,
		InitialBackoff: cfg.Consumer.InitialBackoff,
		MaxBackoff:     cfg.Consumer.MaxBackoff,
		HandlerTimeout: cfg.Consumer.HandlerTimeout,
	}

	topics := []string{
		events.TopicOrderCreated,
		events.TopicOrderCancelled,
		events.TopicInventoryReserved,
		events.TopicInventoryReservationFailed,
	}
	runners := make([]bootstrap.Runner, 0, len(topics))
	for _, topic := range topics {
		runners = append(runners, mq.NewConsumer(topic,
			mq.NewKafkaReader(cfg.Kafka.Brokers, topic, serviceName),
			dispatcher.Dispatch, failure, tracer, opts))
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             port,
		Config:           cfg,
		RegisterHandlers: func(mux *http.ServeMux) { httpHandler.RegisterRoutes(mux) },
		Runners:          runners,
		OnShutdown: func(ctx context.Context) {
			if err := publisher.Close(); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to close publisher")
			}
			if err := dltWriter.Close(); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to close dead letter writer")
			}
			if redisClient != nil {
				redisClient.Close()
			}
		},
	})
}
