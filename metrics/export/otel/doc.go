// Package otel bridges authcore engine metrics into an OpenTelemetry Meter.
//
// [NewExporter] registers an observable counter per authcore counter and one
// observable gauge per cumulative rotate-latency bucket. A single callback
// reads the engine snapshot on each collection. The caller owns the
// MeterProvider.
package otel
