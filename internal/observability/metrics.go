package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/veriface/hub"

// EnrollmentMetrics records duplicate-policy outcomes and scan durations.
// Implementations must be safe for concurrent use. A nil EnrollmentMetrics
// disables recording.
type EnrollmentMetrics interface {
	RecordDecision(ctx context.Context, decision string)
	RecordScanDuration(ctx context.Context, d time.Duration, candidates int)
}

// CacheMetrics records cache hits and misses by cache name.
type CacheMetrics interface {
	RecordHit(ctx context.Context, cache string)
	RecordMiss(ctx context.Context, cache string)
}

// OtelMetrics implements EnrollmentMetrics and CacheMetrics on an OpenTelemetry meter.
type OtelMetrics struct {
	decisions    metric.Int64Counter
	scanDuration metric.Float64Histogram
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
}

// NewOtelMetrics creates instruments on the global meter provider.
func NewOtelMetrics() (*OtelMetrics, error) {
	meter := otel.GetMeterProvider().Meter(meterName)

	decisions, err := meter.Int64Counter("veriface_enrollment_decisions_total",
		metric.WithDescription("Enrollment attempts by terminal decision"))
	if err != nil {
		return nil, fmt.Errorf("create decisions counter: %w", err)
	}

	scanDuration, err := meter.Float64Histogram("veriface_duplicate_scan_duration_seconds",
		metric.WithDescription("Duration of duplicate-policy scans"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create scan duration histogram: %w", err)
	}

	cacheHits, err := meter.Int64Counter("veriface_cache_hits_total",
		metric.WithDescription("Cache hits by cache name"))
	if err != nil {
		return nil, fmt.Errorf("create cache hits counter: %w", err)
	}

	cacheMisses, err := meter.Int64Counter("veriface_cache_misses_total",
		metric.WithDescription("Cache misses by cache name"))
	if err != nil {
		return nil, fmt.Errorf("create cache misses counter: %w", err)
	}

	return &OtelMetrics{
		decisions:    decisions,
		scanDuration: scanDuration,
		cacheHits:    cacheHits,
		cacheMisses:  cacheMisses,
	}, nil
}

// RecordDecision increments the decision counter for one enrollment attempt.
func (m *OtelMetrics) RecordDecision(ctx context.Context, decision string) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}

// RecordScanDuration records one duplicate-scan duration and its candidate count.
func (m *OtelMetrics) RecordScanDuration(ctx context.Context, d time.Duration, candidates int) {
	m.scanDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Int("candidates", candidates)))
}

// RecordHit increments the cache hit counter for the named cache.
func (m *OtelMetrics) RecordHit(ctx context.Context, cache string) {
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cache)))
}

// RecordMiss increments the cache miss counter for the named cache.
func (m *OtelMetrics) RecordMiss(ctx context.Context, cache string) {
	m.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cache)))
}
