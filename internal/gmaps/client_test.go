package gmaps

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/tripweave/tripweave/app/observability/metrics"
)

var metricReader *sdkmetric.ManualReader

func TestMain(m *testing.M) {
	metricReader = sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricReader)))
	metrics.InitAppMetrics()
	os.Exit(m.Run())
}

func collectedMetricNames(t *testing.T) map[string]bool {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, metricReader.Collect(context.Background(), &rm))
	names := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			names[m.Name] = true
		}
	}
	return names
}

const geocodeOKBody = `{
	"status": "OK",
	"results": [{
		"place_id": "ChIJParis",
		"formatted_address": "Paris, France",
		"address_components": [
			{"long_name": "Paris", "short_name": "Paris", "types": ["locality", "political"]},
			{"long_name": "France", "short_name": "FR", "types": ["country", "political"]}
		],
		"geometry": {"location": {"lat": 48.8566, "lng": 2.3522}}
	}]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient("test-key", logger, WithBaseURL(srv.URL)), &calls
}

func TestClient_Geocode(t *testing.T) {
	ctx := context.Background()

	t.Run("parses a successful response", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/maps/api/geocode/json", r.URL.Path)
			assert.Equal(t, "Paris, France", r.URL.Query().Get("address"))
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))
			io.WriteString(w, geocodeOKBody)
		})

		result, err := client.Geocode(ctx, "Paris, France")
		require.NoError(t, err)
		assert.Equal(t, "ChIJParis", result.PlaceID)
		assert.Equal(t, "Paris, France", result.FormattedAddress)
		assert.Len(t, result.AddressComponents, 2)
		assert.Equal(t, 48.8566, result.Geometry.Location.Lat)
	})

	t.Run("zero results maps to ErrZeroResults", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
		})

		result, err := client.Geocode(ctx, "xyzzy")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrZeroResults)
	})

	t.Run("error status surfaces the API message", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"status": "REQUEST_DENIED", "error_message": "The provided API key is invalid."}`)
		})

		_, err := client.Geocode(ctx, "Paris")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REQUEST_DENIED")
		assert.Contains(t, err.Error(), "API key is invalid")
	})

	t.Run("non-200 HTTP status is an error", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := client.Geocode(ctx, "Paris")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("repeated lookups hit the cache", func(t *testing.T) {
		client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, geocodeOKBody)
		})

		first, err := client.Geocode(ctx, "Paris, France")
		require.NoError(t, err)
		second, err := client.Geocode(ctx, "Paris, France")
		require.NoError(t, err)

		assert.Equal(t, first.PlaceID, second.PlaceID)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("records request count and duration", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, geocodeOKBody)
		})

		_, err := client.Geocode(ctx, "Paris, France")
		require.NoError(t, err)

		names := collectedMetricNames(t)
		assert.True(t, names["geocode_requests_total"])
		assert.True(t, names["geocode_duration_seconds"])
	})

	t.Run("misses are not cached", func(t *testing.T) {
		client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
		})

		_, err := client.Geocode(ctx, "xyzzy")
		assert.ErrorIs(t, err, ErrZeroResults)
		_, err = client.Geocode(ctx, "xyzzy")
		assert.ErrorIs(t, err, ErrZeroResults)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestClient_PlaceDetails(t *testing.T) {
	ctx := context.Background()

	t.Run("parses a successful response", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/maps/api/place/details/json", r.URL.Path)
			assert.Equal(t, "ChIJEiffel", r.URL.Query().Get("place_id"))
			io.WriteString(w, `{
				"status": "OK",
				"result": {
					"place_id": "ChIJEiffel",
					"name": "Eiffel Tower",
					"formatted_address": "Champ de Mars, Paris, France",
					"geometry": {"location": {"lat": 48.8584, "lng": 2.2945}},
					"rating": 4.7,
					"user_ratings_total": 350000
				}
			}`)
		})

		result, err := client.PlaceDetails(ctx, "ChIJEiffel")
		require.NoError(t, err)
		assert.Equal(t, "Eiffel Tower", result.Name)
		require.NotNil(t, result.Rating)
		assert.Equal(t, 4.7, *result.Rating)
		require.NotNil(t, result.UserRatingsTotal)
		assert.Equal(t, 350000, *result.UserRatingsTotal)
	})

	t.Run("not found maps to ErrZeroResults", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"status": "NOT_FOUND"}`)
		})

		result, err := client.PlaceDetails(ctx, "ChIJGone")
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrZeroResults)
	})

	t.Run("repeated lookups hit the cache", func(t *testing.T) {
		client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"status": "OK", "result": {"place_id": "ChIJEiffel", "name": "Eiffel Tower"}}`)
		})

		_, err := client.PlaceDetails(ctx, "ChIJEiffel")
		require.NoError(t, err)
		_, err = client.PlaceDetails(ctx, "ChIJEiffel")
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}
