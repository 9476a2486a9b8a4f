// Package otel publishes gatekeep engine metrics through OpenTelemetry
// observable instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per latency bucket. A single callback reads the
// engine snapshot on every collection. Callers own the MeterProvider.
package otel
