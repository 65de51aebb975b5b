// Package metrics provides Prometheus metrics of the DIDComm engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "findy_didcomm"

// Metrics contains all the Prometheus metrics of the engine.
type Metrics struct {
	// Dispatcher
	InboundTotal    *prometheus.CounterVec
	OutboundTotal   *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec
	HandlerErrors   *prometheus.CounterVec

	// Sessions
	SessionsActive prometheus.Gauge

	// Mediator queue
	QueuedTotal     prometheus.Counter
	DeliveredTotal  prometheus.Counter
	AckedTotal      prometheus.Counter
	RevertedTotal   prometheus.Counter
	LiveDelivered   prometheus.Counter
	QueueContention prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance registered to the default
// Prometheus registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetricsWithRegistry(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom
// registry. Tests use it with prometheus.NewRegistry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		InboundTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound messages by the pipeline result",
		}, []string{"stage"}),
		OutboundTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound messages by the delivery outcome",
		}, []string{"outcome"}),
		HandlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Message handler latency by protocol",
			Buckets:   prometheus.DefBuckets,
		}, []string{"protocol"}),
		HandlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Failed message handlers by protocol",
		}, []string{"protocol"}),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of registered transport sessions",
		}),

		QueuedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_queued_total",
			Help:      "Messages persisted to the forward queue",
		}),
		DeliveredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_delivered_total",
			Help:      "Messages handed out in pickup batches",
		}),
		AckedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_acked_total",
			Help:      "Messages removed after acknowledgement",
		}),
		RevertedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_reverted_total",
			Help:      "In-flight messages returned to pending after timeout",
		}),
		LiveDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_live_delivered_total",
			Help:      "Messages pushed over live mode sessions",
		}),
		QueueContention: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_contention_total",
			Help:      "Pickup batches refused because of a concurrent batch",
		}),
	}
}

func (m *Metrics) RecordInbound(stage string) {
	m.InboundTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordOutbound(outcome string) {
	m.OutboundTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordHandler(protocol string, seconds float64, failed bool) {
	m.HandlerDuration.WithLabelValues(protocol).Observe(seconds)
	if failed {
		m.HandlerErrors.WithLabelValues(protocol).Inc()
	}
}

func (m *Metrics) SetSessions(n int) {
	m.SessionsActive.Set(float64(n))
}
