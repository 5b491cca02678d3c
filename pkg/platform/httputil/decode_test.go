package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idcapture/pkg/domain-errors"
)

type testRequest struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type validatingRequest struct {
	Name string `json:"name"`
}

func (r *validatingRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type domainValidatingRequest struct {
	ID string `json:"id"`
}

func (r *domainValidatingRequest) Validate() error {
	if r.ID == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "id is required")
	}
	return nil
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var errResp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	return errResp
}

func TestDecodeJSON(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("successful decode", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"test","value":42}`))
		w := httptest.NewRecorder()

		result, ok := DecodeJSON[testRequest](w, req, logger, ctx, "test-request-id")

		assert.True(t, ok)
		require.NotNil(t, result)
		assert.Equal(t, "test", result.Name)
		assert.Equal(t, 42, result.Value)
	})

	t.Run("invalid JSON returns error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{invalid json}`))
		w := httptest.NewRecorder()

		result, ok := DecodeJSON[testRequest](w, req, logger, ctx, "test-request-id")

		assert.False(t, ok)
		assert.Nil(t, result)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decodeError(t, w)["error"])
	})

	t.Run("empty body returns error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(""))
		w := httptest.NewRecorder()

		_, ok := DecodeJSON[testRequest](w, req, logger, ctx, "test-request-id")

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDecodeAndValidate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("valid request passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"front"}`))
		w := httptest.NewRecorder()

		result, ok := DecodeAndValidate[validatingRequest](w, req, logger, ctx, "rid")

		assert.True(t, ok)
		assert.Equal(t, "front", result.Name)
	})

	t.Run("preserves domain error code", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"id":""}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndValidate[domainValidatingRequest](w, req, logger, ctx, "rid")

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		errResp := decodeError(t, w)
		assert.Equal(t, "validation_error", errResp["error"])
		assert.Contains(t, errResp["error_description"], "id is required")
	})

	t.Run("wraps plain error as invalid input", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":""}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndValidate[validatingRequest](w, req, logger, ctx, "rid")

		assert.False(t, ok)
		assert.Equal(t, "bad_request", decodeError(t, w)["error"])
	})
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{dErrors.New(dErrors.CodeMissingConsent, "consent"), http.StatusForbidden, "missing_consent"},
		{dErrors.New(dErrors.CodeInvalidState, "state"), http.StatusConflict, "invalid_state"},
		{dErrors.New(dErrors.CodeCaptureFailed, "quality"), http.StatusUnprocessableEntity, "capture_failed"},
		{dErrors.New(dErrors.CodeCameraUnavailable, "busy"), http.StatusServiceUnavailable, "camera_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorWithKey(w, tt.err, "identity.camera.error.unknown")

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w)["error"])
		})
	}
}
