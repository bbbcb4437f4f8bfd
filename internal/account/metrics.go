// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeSuccess labels operations that returned no error. Failed operations
// are labeled with their Kind.
const OutcomeSuccess = "success"

// Operations is the counter for account operations.
// Use RegisterMetrics to register this with a Prometheus registry.
var Operations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "taskcrusher_account_operations_total",
		Help: "Total number of account operations by operation and outcome",
	},
	[]string{"operation", "outcome"},
)

// OperationDuration is the histogram for account operation duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "taskcrusher_account_operation_duration_seconds",
		Help:    "Account operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

// RegisterMetrics registers account metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Operations)
	reg.MustRegister(OperationDuration)
}

// RecordOperation counts one finished operation and observes its duration.
func RecordOperation(operation string, err error, duration time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = string(KindOf(err))
	}
	Operations.WithLabelValues(operation, outcome).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
