package gmaps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tripweave/tripweave/app/observability/metrics"
)

const defaultBaseURL = "https://maps.googleapis.com"

// ErrZeroResults is returned when the API answers with ZERO_RESULTS. Callers
// treat it as a soft miss, not a failure.
var ErrZeroResults = errors.New("gmaps: zero results")

// AddressComponent mirrors the address_components entries of the Geocoding and
// Place Details responses.
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// GeocodeResult is a single result of a forward-geocoding call.
type GeocodeResult struct {
	PlaceID           string             `json:"place_id"`
	FormattedAddress  string             `json:"formatted_address"`
	AddressComponents []AddressComponent `json:"address_components"`
	Geometry          struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

// PlaceDetailsResult is the subset of the Place Details response the resolver
// consumes.
type PlaceDetailsResult struct {
	PlaceID           string             `json:"place_id"`
	Name              string             `json:"name"`
	FormattedAddress  string             `json:"formatted_address"`
	AddressComponents []AddressComponent `json:"address_components"`
	Geometry          struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Rating           *float64 `json:"rating,omitempty"`
	UserRatingsTotal *int     `json:"user_ratings_total,omitempty"`
}

type geocodeResponse struct {
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message"`
	Results      []GeocodeResult `json:"results"`
}

type placeDetailsResponse struct {
	Status       string             `json:"status"`
	ErrorMessage string             `json:"error_message"`
	Result       PlaceDetailsResult `json:"result"`
}

// Client wraps the Google Geocoding and Place Details endpoints. Successful
// responses are cached in memory for the configured TTL so repeated backfill
// runs don't burn quota re-resolving the same strings.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      *gocache.Cache
	logger     *slog.Logger
}

type Option func(*Client)

// WithBaseURL overrides the API host, used by tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cache = gocache.New(ttl, 2*ttl) }
}

func NewClient(apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      gocache.New(30*time.Minute, time.Hour),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Geocode resolves a free-text address into structured components and
// coordinates. Returns ErrZeroResults when Google finds nothing.
func (c *Client) Geocode(ctx context.Context, address string) (*GeocodeResult, error) {
	cacheKey := "geocode:" + address
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.(*GeocodeResult), nil
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", c.apiKey)

	var resp geocodeResponse
	if err := c.get(ctx, "/maps/api/geocode/json", params, &resp); err != nil {
		return nil, err
	}
	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrZeroResults
	default:
		return nil, fmt.Errorf("gmaps: geocode status %s: %s", resp.Status, resp.ErrorMessage)
	}
	if len(resp.Results) == 0 {
		return nil, ErrZeroResults
	}

	result := &resp.Results[0]
	c.cache.SetDefault(cacheKey, result)
	return result, nil
}

// PlaceDetails fetches structured details for a Google place ID.
func (c *Client) PlaceDetails(ctx context.Context, placeID string) (*PlaceDetailsResult, error) {
	cacheKey := "place:" + placeID
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.(*PlaceDetailsResult), nil
	}

	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "place_id,name,formatted_address,address_component,geometry,rating,user_ratings_total")
	params.Set("key", c.apiKey)

	var resp placeDetailsResponse
	if err := c.get(ctx, "/maps/api/place/details/json", params, &resp); err != nil {
		return nil, err
	}
	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return nil, ErrZeroResults
	default:
		return nil, fmt.Errorf("gmaps: place details status %s: %s", resp.Status, resp.ErrorMessage)
	}

	result := &resp.Result
	c.cache.SetDefault(cacheKey, result)
	return result, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dst any) error {
	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("gmaps: failed to build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)

	m := metrics.Get()
	m.GeocodeRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
	m.GeocodeDurationSeconds.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("path", path)))

	if err != nil {
		return fmt.Errorf("gmaps: request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "Google Maps API call",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", elapsed),
	)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gmaps: unexpected HTTP status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("gmaps: failed to decode response: %w", err)
	}
	return nil
}
