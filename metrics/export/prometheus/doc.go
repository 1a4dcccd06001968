// Package prometheus renders engine metrics in the Prometheus text
// exposition format without taking a dependency on the Prometheus client
// library. Mount [PrometheusExporter.Handler] on any mux.
package prometheus
