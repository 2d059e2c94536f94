package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/cernio/cernio"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Authority operation metrics
	AuthOperationsTotal   metric.Int64Counter
	AuthOperationDuration metric.Float64Histogram

	// Session lifecycle metrics
	SessionsIssuedTotal  metric.Int64Counter
	SessionsRevokedTotal metric.Int64Counter

	// HTTP protection metrics
	RateLimitedTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.AuthOperationsTotal, _ = meter.Int64Counter(
		"cernio.auth.operations.total",
		metric.WithDescription("Total number of authority operations by kind, operation and outcome"),
		metric.WithUnit("{operation}"),
	)

	m.AuthOperationDuration, _ = meter.Float64Histogram(
		"cernio.auth.operations.duration",
		metric.WithDescription("Duration of authority operations"),
		metric.WithUnit("ms"),
	)

	m.SessionsIssuedTotal, _ = meter.Int64Counter(
		"cernio.sessions.issued.total",
		metric.WithDescription("Total number of refresh-token sessions created"),
		metric.WithUnit("{session}"),
	)

	m.SessionsRevokedTotal, _ = meter.Int64Counter(
		"cernio.sessions.revoked.total",
		metric.WithDescription("Total number of sessions removed by logout, rotation, deactivation or pruning"),
		metric.WithUnit("{session}"),
	)

	m.RateLimitedTotal, _ = meter.Int64Counter(
		"cernio.http.rate_limited.total",
		metric.WithDescription("Total number of requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)

	return m
}
