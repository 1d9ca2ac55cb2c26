package city

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tripweave/tripweave/internal/resolve"
	"github.com/tripweave/tripweave/internal/types"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ResolveQuery(ctx context.Context, query string, opts ResolveOptions) (*ResolveOutcome, error) {
	args := m.Called(ctx, query, opts)
	var o *ResolveOutcome
	if args.Get(0) != nil {
		o = args.Get(0).(*ResolveOutcome)
	}
	return o, args.Error(1)
}

func TestHandler_Resolve(t *testing.T) {
	t.Run("returns the outcome as JSON", func(t *testing.T) {
		svc := new(MockService)
		cityID := uuid.New()
		svc.On("ResolveQuery", mock.Anything, "Paris, France", ResolveOptions{}).
			Return(&ResolveOutcome{Outcome: resolve.OutcomeMatched, CityID: cityID, CityName: "Paris", MatchMethod: "exact"}, nil)
		handler := NewHandler(svc, nil, discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(`{"query": "Paris, France"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.Resolve(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var out ResolveOutcome
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, resolve.OutcomeMatched, out.Outcome)
		assert.Equal(t, cityID, out.CityID)
		assert.Equal(t, "exact", out.MatchMethod)
	})

	t.Run("forwards skip_google", func(t *testing.T) {
		svc := new(MockService)
		svc.On("ResolveQuery", mock.Anything, "Paris", ResolveOptions{SkipGoogle: true}).
			Return(&ResolveOutcome{Outcome: resolve.OutcomeSkipped}, nil)
		handler := NewHandler(svc, nil, discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(`{"query": "Paris", "skip_google": true}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.Resolve(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("empty query is a bad request", func(t *testing.T) {
		svc := new(MockService)
		handler := NewHandler(svc, nil, discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.Resolve(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "ResolveQuery", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		handler := NewHandler(new(MockService), nil, discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(`{"query":`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.Resolve(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("service failure is a 500", func(t *testing.T) {
		svc := new(MockService)
		svc.On("ResolveQuery", mock.Anything, "Paris", ResolveOptions{}).
			Return(nil, errors.New("db down"))
		handler := NewHandler(svc, nil, discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(`{"query": "Paris"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.Resolve(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandler_Search(t *testing.T) {
	t.Run("returns matching cities", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("SearchCities", mock.Anything, "par", 10).
			Return([]types.CityCandidate{{ID: uuid.New(), Name: "Paris"}}, nil)
		handler := NewHandler(nil, repo, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/cities?search=par&limit=10", nil)
		rec := httptest.NewRecorder()
		handler.Search(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Success bool                  `json:"success"`
			Cities  []types.CityCandidate `json:"cities"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Success)
		require.Len(t, body.Cities, 1)
		assert.Equal(t, "Paris", body.Cities[0].Name)
	})

	t.Run("repository failure is a 500", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("SearchCities", mock.Anything, "", 0).Return(nil, errors.New("db down"))
		handler := NewHandler(nil, repo, discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/cities", nil)
		rec := httptest.NewRecorder()
		handler.Search(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
