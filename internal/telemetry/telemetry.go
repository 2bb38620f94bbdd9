// Package telemetry exposes the service's metrics through an OpenTelemetry
// meter backed by a Prometheus exporter.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Telemetry holds the meter and the service's instruments.
type Telemetry struct {
	meterProvider metric.MeterProvider
	meter         metric.Meter

	// RED metrics for the REST surface
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Acquisition pipeline metrics
	acquisitionsTotal   metric.Int64Counter
	acquisitionsActive  metric.Int64UpDownCounter
	acquisitionDuration metric.Float64Histogram
	solverAttemptsTotal metric.Int64Counter
	downloadBytesTotal  metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	Enabled     bool
	ServiceName string
}

// New creates a telemetry instance. With Enabled false all record methods are
// no-ops.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	t := &Telemetry{
		meterProvider: meterProvider,
		meter:         otel.Meter(cfg.ServiceName),
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return t, nil
}

func (t *Telemetry) initializeMetrics() error {
	var err error

	if t.httpRequestsTotal, err = t.meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total HTTP requests")); err != nil {
		return err
	}

	if t.httpRequestDuration, err = t.meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration")); err != nil {
		return err
	}

	if t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter("http_requests_in_flight",
		metric.WithDescription("In-flight HTTP requests")); err != nil {
		return err
	}

	if t.acquisitionsTotal, err = t.meter.Int64Counter("acquisitions_total",
		metric.WithDescription("Total acquisitions by outcome")); err != nil {
		return err
	}

	if t.acquisitionsActive, err = t.meter.Int64UpDownCounter("acquisitions_active",
		metric.WithDescription("Acquisitions currently running")); err != nil {
		return err
	}

	if t.acquisitionDuration, err = t.meter.Float64Histogram("acquisition_duration_seconds",
		metric.WithDescription("End-to-end acquisition duration")); err != nil {
		return err
	}

	if t.solverAttemptsTotal, err = t.meter.Int64Counter("solver_attempts_total",
		metric.WithDescription("Challenge solver attempts by status")); err != nil {
		return err
	}

	if t.downloadBytesTotal, err = t.meter.Int64Counter("download_bytes_total",
		metric.WithDescription("Bytes observed by the download monitor")); err != nil {
		return err
	}

	return nil
}

// Handler returns the Prometheus scrape endpoint.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records RED metrics for one request.
func (t *Telemetry) RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration) {
	if t.httpRequestsTotal != nil {
		t.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
			attribute.String("status", status),
		))
	}

	if t.httpRequestDuration != nil {
		t.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
			attribute.String("status", status),
		))
	}
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight(ctx context.Context) {
	if t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight(ctx context.Context) {
	if t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, -1)
	}
}

// RecordAcquisition records one finished acquisition with its outcome label.
func (t *Telemetry) RecordAcquisition(ctx context.Context, outcome string, duration time.Duration) {
	if t.acquisitionsTotal != nil {
		t.acquisitionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}

	if t.acquisitionDuration != nil {
		t.acquisitionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// IncrementActiveAcquisitions increments the running-acquisition gauge.
func (t *Telemetry) IncrementActiveAcquisitions(ctx context.Context) {
	if t.acquisitionsActive != nil {
		t.acquisitionsActive.Add(ctx, 1)
	}
}

// DecrementActiveAcquisitions decrements the running-acquisition gauge.
func (t *Telemetry) DecrementActiveAcquisitions(ctx context.Context) {
	if t.acquisitionsActive != nil {
		t.acquisitionsActive.Add(ctx, -1)
	}
}

// RecordSolverAttempt records one challenge-solver round with its status.
func (t *Telemetry) RecordSolverAttempt(ctx context.Context, status string) {
	if t.solverAttemptsTotal != nil {
		t.solverAttemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

// AddDownloadBytes accumulates bytes observed by the monitor.
func (t *Telemetry) AddDownloadBytes(ctx context.Context, n int64) {
	if t.downloadBytesTotal != nil && n > 0 {
		t.downloadBytesTotal.Add(ctx, n)
	}
}
