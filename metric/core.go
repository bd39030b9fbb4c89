package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the core client metrics, covering the transport and the
// consumption engine. Domain-specific metrics belong to the embedding
// application and go through the Registrar interface instead.
type Metrics struct {
	// Transport
	ConnectionStatus prometheus.Gauge
	Reconnects       prometheus.Counter
	ConnectErrors    *prometheus.CounterVec
	MsgsIn           prometheus.Counter
	MsgsOut          prometheus.Counter
	BytesIn          prometheus.Counter
	BytesOut         prometheus.Counter
	PingsOutstanding prometheus.Gauge

	// Dispatch
	SlowConsumers prometheus.Counter
	Subscriptions prometheus.Gauge

	// Request/ack primitive
	PendingRequests prometheus.Gauge
	RequestDuration prometheus.Histogram
	AcksSent        *prometheus.CounterVec

	// Consumer engine
	ConsumerRecreations prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all core client metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "natswire",
			Subsystem: "connection",
			Name:      "status",
			Help:      "Connection status (0=disconnected, 1=connecting, 2=authenticating, 3=ready, 4=reconnecting, 5=draining, 6=closed)",
		}),

		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "natswire",
			Subsystem: "connection",
			Name:      "reconnects_total",
			Help:      "Total number of successful reconnections",
		}),

		ConnectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "natswire",
			Subsystem: "connection",
			Name:      "errors_total",
			Help:      "Total connection attempt errors by kind",
		}, []string{"kind"}),

		MsgsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "natswire",
			Subsystem: "transport",
			Name:      "msgs_in_total",
			Help:      "Total inbound messages decoded",
		}),

		MsgsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "natswire",
			Subsystem: "transport",
			Name:      "msgs_out_total",
			Help:      "Total outbound messages published",
		}),

		BytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "natswire",
			Subsystem: "transport",
			Name:      "bytes_in_total",
			Help:      "Total payload bytes received",
		}),

		BytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "natswire",
			Subsystem: "transport",
			Name:      "bytes_out_total",
			Help:      "Total payload bytes sent",
		}),

		PingsOutstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "natswire",
			Subsystem: "keepalive",
			Name:      "pings_outstanding",
			Help:      "Unanswered keepalive pings on the active connection",
		}),

		SlowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "natswire",
			Subsystem: "dispatch",
			Name:      "slow_consumers_total",
			Help:      "Total slow-consumer drop notifications raised",
		}),

		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "natswire",
			Subsystem: "dispatch",
			Name:      "subscriptions",
			Help:      "Currently open subscriptions",
		}),

		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "natswire",
			Subsystem: "request",
			Name:      "pending",
			Help:      "In-flight request/reply correlations",
		}),

		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "natswire",
			Subsystem: "request",
			Name:      "duration_seconds",
			Help:      "Round-trip time of request/reply calls",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),

		AcksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "natswire",
			Subsystem: "consumer",
			Name:      "acks_total",
			Help:      "Acknowledgements published by kind (ack, nak, term, progress)",
		}, []string{"kind"}),

		ConsumerRecreations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "natswire",
			Subsystem: "consumer",
			Name:      "recreations_total",
			Help:      "Ordered consumer recreations triggered by gap recovery",
		}),
	}
}
