// internal/pkg/mq/metrics.go
package mq

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: "consumer",
		Name:      "messages_handled_total",
		Help:      "Messages fetched from the broker, by topic and final result.",
	}, []string{"topic", "result"})

	handlerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: "consumer",
		Name:      "handler_retries_total",
		Help:      "Handler attempts beyond the first, by topic.",
	}, []string{"topic"})

	deadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderflow",
		Subsystem: "consumer",
		Name:      "dead_lettered_total",
		Help:      "Messages routed to the dead letter topic, by original topic.",
	}, []string{"topic"})
)

const (
	resultOK         = "ok"
	resultDeadLetter = "dead_letter"
)
