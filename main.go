package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	database "github.com/tripweave/tripweave/app/db"
	appLogger "github.com/tripweave/tripweave/app/logger"
	appMiddleware "github.com/tripweave/tripweave/app/middleware"
	"github.com/tripweave/tripweave/app/observability/metrics"
	"github.com/tripweave/tripweave/app/tracer"
	"github.com/tripweave/tripweave/config"
	"github.com/tripweave/tripweave/internal/ai"
	"github.com/tripweave/tripweave/internal/api/city"
	"github.com/tripweave/tripweave/internal/api/place"
	"github.com/tripweave/tripweave/internal/api/trip"
	"github.com/tripweave/tripweave/internal/gmaps"
	"github.com/tripweave/tripweave/internal/resolve"
	"github.com/tripweave/tripweave/internal/router"
)

func main() {
	// --- Initial Loading ---
	// Use standard log until slog is configured, in case godotenv fails
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	// --- Logger Setup ---
	logger := setupLogger()
	slog.SetDefault(logger)

	// --- Application Context & Shutdown ---
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Observability ---
	metricsHandler := tracer.InitTracingAndMetrics()
	metrics.InitAppMetrics()

	// --- Database Setup ---
	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}

	// Run migrations *before* initializing the main pool
	err = database.RunMigrations(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to run database migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if !database.WaitForDB(ctx, pool, logger) {
		logger.Error("Database not ready after waiting, exiting.")
		os.Exit(1)
	}

	// --- Dependency Injection ---
	mapsClient := gmaps.NewClient(os.Getenv("GOOGLE_MAPS_API_KEY"), logger,
		gmaps.WithHTTPTimeout(cfg.Google.MapsTimeout),
		gmaps.WithCacheTTL(cfg.Google.MapsCacheTTL),
	)

	var inferrer city.Inferrer
	if os.Getenv("GOOGLE_GEMINI_API_KEY") != "" {
		cityInferrer, err := ai.NewCityInferrer(ctx, logger)
		if err != nil {
			logger.Warn("AI city inference unavailable", slog.Any("error", err))
		} else {
			inferrer = cityInferrer
		}
	}

	cityRepo := city.NewPostgresRepository(pool, logger)
	matcher := resolve.NewMatcher(cfg.Resolver.FuzzyThreshold)
	resolver := resolve.NewResolver(cityRepo, logger)
	cityService := city.NewService(cityRepo, matcher, resolver, mapsClient, inferrer, logger)
	cityHandler := city.NewHandler(cityService, cityRepo, logger)

	placeRepo := place.NewPostgresRepository(pool, logger)
	placeService := place.NewService(placeRepo, cityService, mapsClient, logger)

	tripRepo := trip.NewPostgresRepository(pool, logger)
	tripService := trip.NewService(tripRepo, cityService, placeService, logger)
	tripHandler := trip.NewHandler(tripService, tripRepo, logger)

	// --- Router Setup ---
	mainRouter := router.SetupRouter(&router.Config{
		CityHandler:            cityHandler,
		TripHandler:            tripHandler,
		AuthenticateMiddleware: appMiddleware.Authenticate,
	})

	r := chi.NewMux()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appLogger.StructuredLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Timeout(cfg.Server.Timeout))
	r.Use(middleware.Compress(5, "application/json"))
	r.Mount("/", mainRouter)

	// --- HTTP Servers ---
	serverAddress := fmt.Sprintf(":%s", cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddress,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler)
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Handlers.Prometheus.Port),
		Handler: metricsMux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", serverAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting metrics server", slog.String("address", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		logger.Info("Shutdown signal received, starting graceful shutdown...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
		}
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server graceful shutdown failed", slog.Any("error", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down complete.")
}

// setupLogger configures and returns the application logger.
func setupLogger() *slog.Logger {
	var logger *slog.Logger
	env := os.Getenv("APP_ENV")

	if env == "development" || env == "" { // Default to development if not set
		// Colored logs for development
		tintOpts := &tint.Options{
			Level:      slog.LevelDebug, // More verbose in dev
			TimeFormat: time.Kitchen,
			AddSource:  true, // Show file:line
		}
		logger = slog.New(tint.NewHandler(os.Stdout, tintOpts))
		log.Println("Initialized development logger (tint)")
	} else {
		// JSON logs for production or other environments
		jsonOpts := &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: false,
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, jsonOpts))
		log.Println("Initialized production logger (JSON)")
	}
	return logger
}
