package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	webhooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qbsync",
			Name:      "webhooks_received_total",
			Help:      "Inbound webhooks by provider and result.",
		},
		[]string{"provider", "result"},
	)

	workItemTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qbsync",
			Name:      "work_item_transitions_total",
			Help:      "Work queue status transitions.",
		},
		[]string{"status"},
	)

	qbwcOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qbsync",
			Name:      "qbwc_operations_total",
			Help:      "QBWC SOAP operations by name.",
		},
		[]string{"operation"},
	)

	retryAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "qbsync",
			Name:      "retry_attempts_total",
			Help:      "Retries performed against external APIs.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(webhooksReceived, workItemTransitions, qbwcOps, retryAttempts)
	})
}

// IncWebhook increments the webhook counter for a provider/result pair.
func IncWebhook(provider, result string) {
	webhooksReceived.WithLabelValues(provider, result).Inc()
}

// IncWorkItemTransition increments the transition counter for a status.
func IncWorkItemTransition(status string) {
	workItemTransitions.WithLabelValues(status).Inc()
}

// IncQBWCOp increments the operation counter for a SOAP operation.
func IncQBWCOp(operation string) {
	qbwcOps.WithLabelValues(operation).Inc()
}

// IncRetry increments the retry counter.
func IncRetry() {
	retryAttempts.Inc()
}
