// Package prometheus exposes authcore engine metrics as a client_golang
// Collector.
//
// [NewCollector] reads [authcore.Engine.MetricsSnapshot] on every scrape and
// emits constant counters named authcore_*_total plus the
// authcore_rotate_latency_seconds histogram. Register it on your own
// registry, or use [Handler] for a standalone endpoint.
package prometheus
