package metrics

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
// Make fields public so they can be accessed from other packages.
type AppMetrics struct {
	ResolutionsTotal        metric.Int64Counter
	ResolutionFailuresTotal metric.Int64Counter
	GeocodeRequestsTotal    metric.Int64Counter
	GeocodeDurationSeconds  metric.Float64Histogram
	DbQueryDurationSeconds  metric.Float64Histogram
}

var (
	// Global instance of AppMetrics (initialized once)
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("tripweave")
		var err error
		m := &AppMetrics{}

		m.ResolutionsTotal, err = meter.Int64Counter(
			"resolutions_total",
			metric.WithDescription("Total number of city resolutions completed, by outcome"),
			metric.WithUnit("{resolution}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create resolutions_total: %v", err)
		}

		m.ResolutionFailuresTotal, err = meter.Int64Counter(
			"resolution_failures_total",
			metric.WithDescription("Total number of resolutions that ended in a failure"),
			metric.WithUnit("{resolution}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create resolution_failures_total: %v", err)
		}

		m.GeocodeRequestsTotal, err = meter.Int64Counter(
			"geocode_requests_total",
			metric.WithDescription("Total number of outbound Google geocoding calls"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create geocode_requests_total: %v", err)
		}

		m.GeocodeDurationSeconds, err = meter.Float64Histogram(
			"geocode_duration_seconds",
			metric.WithDescription("Duration of Google geocoding calls in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create geocode_duration_seconds: %v", err)
		}

		m.DbQueryDurationSeconds, err = meter.Float64Histogram(
			"db_query_duration_seconds",
			metric.WithDescription("Duration of database queries in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_duration_seconds: %v", err)
		}

		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}

// ObserveDBQuery records the duration of a single database query under
// the given operation label. Meant to be used as
// defer metrics.ObserveDBQuery(ctx, "city.UpsertCity", time.Now()).
func ObserveDBQuery(ctx context.Context, op string, start time.Time) {
	Get().DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("op", op)))
}
