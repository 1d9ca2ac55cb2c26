package city

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tripweave/tripweave/internal/api"
)

type Handler struct {
	service Service
	repo    Repository
	logger  *slog.Logger
}

func NewHandler(service Service, repo Repository, logger *slog.Logger) *Handler {
	return &Handler{service: service, repo: repo, logger: logger}
}

type resolveRequest struct {
	Query      string `json:"query"`
	SkipGoogle bool   `json:"skip_google,omitempty"`
}

// Resolve handles POST /api/v1/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "query is required")
		return
	}

	outcome, err := h.service.ResolveQuery(r.Context(), req.Query, ResolveOptions{SkipGoogle: req.SkipGoogle})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Resolution failed",
			slog.String("query", req.Query), slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to resolve location")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, outcome)
}

// Search handles GET /api/v1/cities?search=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	cities, err := h.repo.SearchCities(r.Context(), search, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "City search failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to search cities")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, map[string]any{
		"success": true,
		"cities":  cities,
	})
}
