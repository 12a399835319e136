package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		errorCode  string
		message    string
	}{
		{"missing question", http.StatusBadRequest, "missing_question", "Question is required"},
		{"invalid limit", http.StatusBadRequest, "invalid_limit", "limit must be a positive integer"},
		{"internal error", http.StatusInternalServerError, "internal_error", "Failed to resolve question"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			err := ErrorResponse(w, tt.statusCode, tt.errorCode, tt.message)
			require.NoError(t, err)

			resp := w.Result()
			defer resp.Body.Close()

			assert.Equal(t, tt.statusCode, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var body map[string]string
			err = json.NewDecoder(resp.Body).Decode(&body)
			require.NoError(t, err)
			assert.Equal(t, tt.errorCode, body["error"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestWriteJSON_Status200(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]string{"key": "value"}})
	require.NoError(t, err)

	resp := w.Result()
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body ApiResponse
	err = json.NewDecoder(resp.Body).Decode(&body)
	require.NoError(t, err)
	assert.True(t, body.Success)
	data := body.Data.(map[string]any)
	assert.Equal(t, "value", data["key"])
}

func TestWriteJSON_NonOKStatus(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusUnprocessableEntity, ApiResponse{Success: false, Error: "metric_no_data"})
	require.NoError(t, err)

	resp := w.Result()
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestWriteJSON_UnencodableData(t *testing.T) {
	w := httptest.NewRecorder()

	// Channels cannot be JSON-encoded.
	err := WriteJSON(w, http.StatusOK, make(chan int))
	assert.Error(t, err)
}

func TestApiResponse_OmitsEmptyFields(t *testing.T) {
	raw, err := json.Marshal(ApiResponse{Success: true, Data: "x"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "error")
	assert.NotContains(t, string(raw), "message")
}
