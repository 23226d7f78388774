// cmd/inventory-service/main.go
package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"orderflow/internal/events"
	"orderflow/internal/pkg/bootstrap"
	"orderflow/internal/pkg/config"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/pkg/zookeeper"
	"orderflow/internal/service/inventory/application"
	"orderflow/internal/service/inventory/domain"
	"orderflow/internal/service/inventory/infrastructure"
	"orderflow/internal/service/inventory/interfaces"
)

const serviceName = "inventory-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	port, err := strconv.Atoi(config.GetEnv("PORT", "8081"))
	if err != nil {
		panic(err)
	}

	var store domain.Store
	if cfg.Mysql.DSN != "" {
		db, err := gorm.Open(mysql.Open(cfg.Mysql.DSN), &gorm.Config{})
		if err != nil {
			panic(err)
		}
		store, err = infrastructure.NewGormStore(db)
		if err != nil {
			panic(err)
		}
	} else {
		memory := infrastructure.NewMemoryStore()
		memory.Seed(
			domain.Item{ProductID: "laptop", ProductName: "Laptop", Available: 50},
			domain.Item{ProductID: "phone", ProductName: "Phone", Available: 100},
			domain.Item{ProductID: "tablet", ProductName: "Tablet", Available: 30},
		)
		store = memory
	}

	// 单实例用进程内锁即可；多实例必须用 ZooKeeper 串行化商品级临界区
	var locker domain.Locker
	var zkConn *zookeeper.Conn
	if len(cfg.Zookeeper.Servers) > 0 {
		zkConn, err = zookeeper.Connect(cfg.Zookeeper.Servers, 5*time.Second)
		if err != nil {
			panic(err)
		}
		locker = infrastructure.NewZkLocker(zkConn)
	} else {
		locker = infrastructure.NewLocalLocker()
	}

	publisher := mq.NewEventPublisher(cfg.Kafka.Brokers)
	service := application.NewService(store, locker, publisher)
	eventHandler := interfaces.NewOrderEventHandler(service)
	httpHandler := interfaces.NewInventoryHandler(service)

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
		mq.NewConsumer(events.TopicOrderCreated,
			mq.NewKafkaReader(cfg.Kafka.Brokers, events.TopicOrderCreated, serviceName),
			eventHandler, failure, tracer, opts),
		mq.NewConsumer(events.TopicOrderCancelled,
			mq.NewKafkaReader(cfg.Kafka.Brokers, events.TopicOrderCancelled, serviceName),
			eventHandler, failure, tracer, opts),
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
			if zkConn != nil {
				zkConn.Close()
			}
		},
	})
}
