// Package otel bridges engine metrics to OpenTelemetry observable
// instruments. The exporter registers a single callback that reads a
// snapshot per collection; the engine's hot path stays free of OTel calls.
package otel
