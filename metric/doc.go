// Package metric provides Prometheus instrumentation for the natswire client.
//
// # Overview
//
// The package is organized around a Registry that owns a private Prometheus
// registry. The client never forces metrics on an application: pass a
// Registry to the client via its WithMetrics option to opt in, and mount
// Registry.PrometheusRegistry() on whatever /metrics endpoint the application
// already serves.
//
// # Core metrics
//
// The Registry pre-registers core metrics covering the transport (connection
// status, reconnects, message and byte counters, outstanding keepalive
// pings), the dispatcher (open subscriptions, slow-consumer drops), the
// request primitive (in-flight correlations, round-trip latency) and the
// consumer engine (acks by kind, ordered-consumer recreations).
//
// # Component metrics
//
// Applications and internal components register their own metrics under a
// component name, which namespaces them and rejects duplicates:
//
//	reg := metric.NewRegistry()
//	counter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "orders_processed_total",
//	    Help: "Orders fully processed",
//	})
//	if err := reg.RegisterCounter("orders", "processed", counter); err != nil {
//	    return err
//	}
//
// The pkg/buffer package uses the same mechanism to optionally export
// per-queue statistics.
package metric
