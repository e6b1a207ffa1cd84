package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Number of registered websocket connections",
	})

	eventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "ws",
		Name:      "events_delivered_total",
		Help:      "Events pushed to a connected recipient",
	}, []string{"event"})

	eventsMissed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "ws",
		Name:      "events_missed_total",
		Help:      "Targeted events whose recipient was offline",
	}, []string{"event"})
)
