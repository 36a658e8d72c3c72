// Package telemetry configures logging and the metrics the sync and query
// engines record.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "notesim"

// ShutdownFunc flushes and stops the meter provider.
type ShutdownFunc func(context.Context) error

// InitMetrics installs the global meter provider for exporter ("stdout" or
// "none"). Stdout metrics are written to w when the provider shuts down and
// once per interval before that.
func InitMetrics(exporter, version string, w io.Writer) (ShutdownFunc, error) {
	switch exporter {
	case "", "none":
		otel.SetMeterProvider(noop.NewMeterProvider())
		return func(context.Context) error { return nil }, nil
	case "stdout":
	default:
		return nil, fmt.Errorf("unknown metrics exporter: %s", exporter)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName("notesim"),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(time.Minute))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// Metrics holds the engine counters. A nil *Metrics records nothing.
type Metrics struct {
	processed metric.Int64Counter
	failed    metric.Int64Counter
	skipped   metric.Int64Counter
	queries   metric.Int64Counter
}

// NewMetrics creates the counters on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFrom(otel.GetMeterProvider())
}

func NewMetricsFrom(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	processed, err := meter.Int64Counter(
		"notesim.sync.processed",
		metric.WithDescription("Notes embedded and written by sync passes"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter(
		"notesim.sync.failed",
		metric.WithDescription("Notes whose sync failed"),
	)
	if err != nil {
		return nil, err
	}

	skipped, err := meter.Int64Counter(
		"notesim.sync.skipped",
		metric.WithDescription("Notes left untouched because they were up to date"),
	)
	if err != nil {
		return nil, err
	}

	queries, err := meter.Int64Counter(
		"notesim.query.requests",
		metric.WithDescription("Similarity queries by mode"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		processed: processed,
		failed:    failed,
		skipped:   skipped,
		queries:   queries,
	}, nil
}

// RecordSync adds the tallies of one pass.
func (m *Metrics) RecordSync(ctx context.Context, mode string, processed, skipped, failed int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.processed.Add(ctx, int64(processed), attrs)
	m.skipped.Add(ctx, int64(skipped), attrs)
	m.failed.Add(ctx, int64(failed), attrs)
}

// RecordQuery counts one query. mode is "similar" or "text".
func (m *Metrics) RecordQuery(ctx context.Context, mode string, cached bool) {
	if m == nil {
		return
	}
	m.queries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("cached", cached),
	))
}
