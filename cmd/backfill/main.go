package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	database "github.com/tripweave/tripweave/app/db"
	"github.com/tripweave/tripweave/app/observability/metrics"
	"github.com/tripweave/tripweave/app/tracer"
	"github.com/tripweave/tripweave/config"
	"github.com/tripweave/tripweave/internal/ai"
	"github.com/tripweave/tripweave/internal/api/city"
	"github.com/tripweave/tripweave/internal/api/place"
	"github.com/tripweave/tripweave/internal/api/trip"
	"github.com/tripweave/tripweave/internal/gmaps"
	"github.com/tripweave/tripweave/internal/resolve"
)

const usage = `backfill links legacy free-text location fields to canonical rows.

Commands:
  link-trip-cities          resolve trips.destination into destination_city_id + trip_cities
  backfill-place-cities     attach cities to places using their stored address
  backfill-activity-places  resolve itinerary activities into places

Flags/env:
  --cmd, --limit, --dry-run, --skip-google, --report <file>
  DRY_RUN=1, LIMIT=n, SKIP_GOOGLE=1, CONFIRM=yes (required for live runs)
`

func main() {
	var (
		command    = flag.String("cmd", "", "command to run (see usage)")
		limit      = flag.Int("limit", 0, "max records to process, 0 = all")
		dryRun     = flag.Bool("dry-run", false, "resolve and log but write nothing")
		skipGoogle = flag.Bool("skip-google", false, "disable the Google Maps fallback")
		reportPath = flag.String("report", "", "write the run report as JSON to this file")
	)
	flag.Parse()

	// Env vars mirror the flags so the commands can run from cron.
	if os.Getenv("DRY_RUN") == "1" || os.Getenv("DRY_RUN") == "true" {
		*dryRun = true
	}
	if os.Getenv("SKIP_GOOGLE") == "1" || os.Getenv("SKIP_GOOGLE") == "true" {
		*skipGoogle = true
	}
	if v := os.Getenv("LIMIT"); v != "" && *limit == 0 {
		if n, err := strconv.Atoi(v); err == nil {
			*limit = n
		}
	}

	if *command == "" {
		fmt.Print(usage)
		os.Exit(1)
	}
	if !*dryRun && os.Getenv("CONFIRM") != "yes" {
		fmt.Println("Refusing to run live without CONFIRM=yes. Use --dry-run to preview.")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	tracer.InitTracingAndMetrics()
	metrics.InitAppMetrics()

	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := pgxpool.New(ctx, dbConfig.ConnectionURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Connected to database successfully")

	// Wire the same resolution stack the API server uses.
	var geocoder resolve.Geocoder
	var maps place.Maps
	if !*skipGoogle {
		client := gmaps.NewClient(os.Getenv("GOOGLE_MAPS_API_KEY"), logger,
			gmaps.WithHTTPTimeout(cfg.Google.MapsTimeout),
			gmaps.WithCacheTTL(cfg.Google.MapsCacheTTL),
		)
		geocoder = client
		maps = client
	}

	var inferrer city.Inferrer
	if !*skipGoogle && os.Getenv("GOOGLE_GEMINI_API_KEY") != "" {
		cityInferrer, err := ai.NewCityInferrer(ctx, logger)
		if err != nil {
			logger.Warn("AI city inference unavailable", slog.Any("error", err))
		} else {
			inferrer = cityInferrer
		}
	}

	cityRepo := city.NewPostgresRepository(dbpool, logger)
	matcher := resolve.NewMatcher(cfg.Resolver.FuzzyThreshold)
	resolver := resolve.NewResolver(cityRepo, logger)
	cityService := city.NewService(cityRepo, matcher, resolver, geocoder, inferrer, logger)

	placeRepo := place.NewPostgresRepository(dbpool, logger)
	placeService := place.NewService(placeRepo, cityService, maps, logger)

	tripRepo := trip.NewPostgresRepository(dbpool, logger)
	tripService := trip.NewService(tripRepo, cityService, placeService, logger)

	resolveOpts := city.ResolveOptions{DryRun: *dryRun, SkipGoogle: *skipGoogle}
	batchOpts := resolve.BatchOptions{Limit: *limit, Delay: cfg.Resolver.RequestDelay}

	var report resolve.Report
	switch *command {
	case "link-trip-cities":
		report, err = tripService.LinkAllDestinations(ctx, trip.LinkBatchOptions{Resolve: resolveOpts, Batch: batchOpts})
	case "backfill-place-cities":
		report, err = placeService.LinkAllPlaceCities(ctx, place.LinkBatchOptions{Resolve: resolveOpts, Batch: batchOpts})
	case "backfill-activity-places":
		report, err = tripService.LinkAllActivities(ctx, trip.LinkBatchOptions{Resolve: resolveOpts, Batch: batchOpts})
	default:
		fmt.Printf("Unknown command %q\n\n%s", *command, usage)
		os.Exit(1)
	}

	report.Log(logger)
	if *reportPath != "" {
		if writeErr := writeReport(*reportPath, report); writeErr != nil {
			logger.Error("Failed to write report file", slog.Any("error", writeErr))
		}
	}

	// Per-record failures are already in the report; only a fatal error (DB
	// loss, cancellation) flips the exit code.
	if err != nil {
		logger.Error("Batch aborted", slog.Any("error", err))
		os.Exit(1)
	}
}

func writeReport(path string, report resolve.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
