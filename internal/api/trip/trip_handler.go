package trip

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tripweave/tripweave/internal/api"
	"github.com/tripweave/tripweave/internal/api/city"
)

type Handler struct {
	service Service
	repo    Repository
	logger  *slog.Logger
}

func NewHandler(service Service, repo Repository, logger *slog.Logger) *Handler {
	return &Handler{service: service, repo: repo, logger: logger}
}

// GetTrip handles GET /api/v1/trips/{tripID}.
func (h *Handler) GetTrip(w http.ResponseWriter, r *http.Request) {
	tripID, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "invalid trip id")
		return
	}

	trip, err := h.repo.GetTrip(r.Context(), tripID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to get trip", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to get trip")
		return
	}
	if trip == nil {
		api.ErrorResponse(w, r, http.StatusNotFound, "trip not found")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, trip)
}

// ListTrips handles GET /api/v1/trips?unlinked=true&limit=.
func (h *Handler) ListTrips(w http.ResponseWriter, r *http.Request) {
	unlinked := r.URL.Query().Get("unlinked") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	trips, err := h.repo.ListTrips(r.Context(), unlinked, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to list trips", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to list trips")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{
		"success": true,
		"trips":   trips,
	})
}

// ResolveDestination handles POST /api/v1/trips/{tripID}/resolve-destination.
func (h *Handler) ResolveDestination(w http.ResponseWriter, r *http.Request) {
	tripID, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "invalid trip id")
		return
	}

	outcome, err := h.service.LinkDestination(r.Context(), tripID, city.ResolveOptions{})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to resolve trip destination",
			slog.String("trip_id", tripID.String()), slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to resolve destination")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, outcome)
}
