// Package telemetry provides structured logging (zerolog), Prometheus
// metrics, and OpenTelemetry tracing for the inventory sync engine.
package telemetry
