package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/tripweave/tripweave/internal/api/city"
	"github.com/tripweave/tripweave/internal/api/trip"
)

// Config contains dependencies needed for the router setup
type Config struct {
	CityHandler            *city.Handler
	TripHandler            *trip.Handler
	AuthenticateMiddleware func(http.Handler) http.Handler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (like logger, requestID, recoverer) are expected
// to be applied *before* mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// --- Public read routes ---
		r.Group(func(r chi.Router) {
			r.Post("/resolve", cfg.CityHandler.Resolve)
			r.Get("/cities", cfg.CityHandler.Search)
			r.Get("/trips", cfg.TripHandler.ListTrips)
			r.Get("/trips/{tripID}", cfg.TripHandler.GetTrip)
		})

		// --- Protected routes (writes) ---
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)
			r.Post("/trips/{tripID}/resolve-destination", cfg.TripHandler.ResolveDestination)
		})
	})

	return r
}
