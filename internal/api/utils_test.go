package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Name string `json:"name"`
}

func decodeRequest(t *testing.T, body string, dst interface{}) error {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()
	return DecodeJSONBody(w, r, dst)
}

func TestDecodeJSONBody(t *testing.T) {
	t.Run("decodes a valid body", func(t *testing.T) {
		var payload samplePayload
		require.NoError(t, decodeRequest(t, `{"name": "Lisbon"}`, &payload))
		assert.Equal(t, "Lisbon", payload.Name)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		var payload samplePayload
		err := decodeRequest(t, `{"name": `, &payload)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "badly-formed JSON")
	})

	t.Run("rejects an empty body", func(t *testing.T) {
		var payload samplePayload
		err := decodeRequest(t, "", &payload)
		require.EqualError(t, err, "body must not be empty")
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		var payload samplePayload
		err := decodeRequest(t, `{"name": "Lisbon", "extra": 1}`, &payload)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown key "extra"`)
	})

	t.Run("rejects trailing values", func(t *testing.T) {
		var payload samplePayload
		err := decodeRequest(t, `{"name": "Lisbon"}{"name": "Porto"}`, &payload)
		require.EqualError(t, err, "body must only contain a single JSON value")
	})

	t.Run("rejects a wrong field type", func(t *testing.T) {
		var payload samplePayload
		err := decodeRequest(t, `{"name": 42}`, &payload)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `incorrect JSON type for field "name"`)
	})
}

func TestWriteJSONResponse(t *testing.T) {
	t.Run("writes status and body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		WriteJSONResponse(w, r, http.StatusOK, map[string]string{"hello": "world"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "world", body["hello"])
	})

	t.Run("no content writes only the header", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		WriteJSONResponse(w, r, http.StatusNoContent, nil)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Zero(t, w.Body.Len())
	})
}

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ErrorResponse(w, r, http.StatusBadRequest, "query is required")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "query is required", body["error"])
}
