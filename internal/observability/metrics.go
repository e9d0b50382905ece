package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all daemon metrics covering the golden signals:
// - Latency: request and download durations
// - Traffic: request/download throughput
// - Errors: failure rates by classified code
// - Saturation: active downloads against the concurrency limit
type Metrics struct {
	meter metric.Meter

	// HTTP metrics
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Download metrics
	DownloadDuration metric.Float64Histogram
	DownloadsTotal   metric.Int64Counter
	DownloadFailures metric.Int64Counter
	DownloadsActive  metric.Int64UpDownCounter

	// Event bus metrics
	EventsPublished metric.Int64Counter
	EventsDropped   metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("downlink")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Download metrics
	m.DownloadDuration, err = meter.Float64Histogram(
		"download_duration_seconds",
		metric.WithDescription("Download run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DownloadsTotal, err = meter.Int64Counter(
		"downloads_total",
		metric.WithDescription("Total number of download runs started"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DownloadFailures, err = meter.Int64Counter(
		"download_failures_total",
		metric.WithDescription("Total number of failed download runs"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DownloadsActive, err = meter.Int64UpDownCounter(
		"downloads_active",
		metric.WithDescription("Number of currently running downloads (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Event bus metrics
	m.EventsPublished, err = meter.Int64Counter(
		"events_published_total",
		metric.WithDescription("Total events queued for the subscriber"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.EventsDropped, err = meter.Int64Counter(
		"events_dropped_total",
		metric.WithDescription("Total events dropped because the buffer was full"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordDownloadStarted records a download run beginning.
func (m *Metrics) RecordDownloadStarted(ctx context.Context) {
	m.DownloadsTotal.Add(ctx, 1)
	m.DownloadsActive.Add(ctx, 1)
}

// RecordDownloadFinished records a download run reaching any terminal or
// parked state.
func (m *Metrics) RecordDownloadFinished(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(statusNameAttr(status))
	m.DownloadDuration.Record(ctx, duration.Seconds(), attrs)
	m.DownloadsActive.Add(ctx, -1)

	if status == "failed" {
		m.DownloadFailures.Add(ctx, 1, attrs)
	}
}

// RecordEventPublished records an event accepted by the bus.
func (m *Metrics) RecordEventPublished(ctx context.Context, eventType string) {
	m.EventsPublished.Add(ctx, 1, metric.WithAttributes(eventTypeAttr(eventType)))
}

// RecordEventDropped records an event dropped by the bus.
func (m *Metrics) RecordEventDropped(ctx context.Context, eventType string) {
	m.EventsDropped.Add(ctx, 1, metric.WithAttributes(eventTypeAttr(eventType)))
}
