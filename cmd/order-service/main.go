// cmd/order-service/main.go
package main

import (
	"context"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"orderflow/internal/events"
	"orderflow/internal/pkg/bootstrap"
	"orderflow/internal/pkg/config"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/domain"
	"orderflow/internal/service/order/infrastructure"
	"orderflow/internal/service/order/interfaces"
)

const serviceName = "order-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	port, err := strconv.Atoi(config.GetEnv("PORT", "8080"))
	if err != nil {
		panic(err)
	}

	var repo domain.Repository
	if cfg.Mysql.DSN != "" {
		db, err := gorm.Open(mysql.Open(cfg.Mysql.DSN), &gorm.Config{})
		if err != nil {
			panic(err)
		}
		repo, err = infrastructure.NewGormOrderRepository(db)
		if err != nil {
			panic(err)
		}
	} else {
		repo = infrastructure.NewMemoryOrderRepository()
	}

	publisher := mq.NewEventPublisher(cfg.Kafka.Brokers)
	service := application.NewService(repo, publisher)
	eventHandler := interfaces.NewReservationEventHandler(service)
	httpHandler := interfaces.NewOrderHandler(service)

	dltWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, events.TopicDeadLetter)
	failure := mq.NewFailureHandler(dltWriter)
	tracer := otel.Tracer(serviceName)
	opts := mq.ConsumerOptions{
		MaxAttempts:    cfg.Consumer.MaxAttempts,
		InitialBackoff: cfg.Consumer.InitialBackoff,
		MaxBackoff:     cfg.Consumer.MaxBackoff,
		HandlerTimeout: cfg.Consumer.HandlerTimeout,
	}

	runners := []bootstrap.Runner{
		mq.NewConsumer(events.TopicInventoryReserved,
			mq.NewKafkaReader(cfg.Kafka.Brokers, events.TopicInventoryReserved, serviceName),
			eventHandler, failure, tracer, opts),
		mq.NewConsumer(events.TopicInventoryReservationFailed,
			mq.NewKafkaReader(cfg.Kafka.Brokers, events.TopicInventoryReservationFailed, serviceName),
			eventHandler, failure, tracer, opts),
		// 死信监听集中放在 saga 发起方，方便一处检视整条链路的失败
		mq.NewDeadLetterLogger(
			mq.NewKafkaReader(cfg.Kafka.Brokers, events.TopicDeadLetter, serviceName+"-dlt")),
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
		},
	})
}
