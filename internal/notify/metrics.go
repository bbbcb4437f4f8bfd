// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import "github.com/prometheus/client_golang/prometheus"

// Delivery outcomes.
const (
	OutcomeSent          = "sent"
	OutcomeDropped       = "dropped"
	OutcomeEnqueueFailed = "enqueue_failed"
)

// Notifications counts notifications by kind and outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var Notifications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "taskcrusher_notifications_total",
		Help: "Total number of notifications by kind and outcome",
	},
	[]string{"kind", "outcome"},
)

// QueueDepth is the number of notifications waiting for delivery.
var QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "taskcrusher_notification_queue_depth",
	Help: "Number of notifications waiting for delivery",
})

// RegisterMetrics registers notification metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Notifications)
	reg.MustRegister(QueueDepth)
}
