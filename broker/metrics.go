// broker/metrics.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groundlink_broker_publishes_total",
		Help: "Messages published through the broker, by topic root.",
	}, []string{"root"})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groundlink_broker_dropped_total",
		Help: "Messages dropped from subscriber egress queues under backpressure.",
	})
	disconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groundlink_broker_disconnects_total",
		Help: "Subscribers disconnected by the broker (critical-overflow or shutdown).",
	})
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groundlink_broker_subscribers",
		Help: "Currently connected subscribers.",
	})
	busPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groundlink_broker_bus_publish_errors_total",
		Help: "Failed forwards to the external message bus.",
	})
)
