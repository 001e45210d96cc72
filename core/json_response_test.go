package core_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepstudio/stepstudio/core"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) core.JSONResponse {
	t.Helper()
	var body core.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJSON(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	core.JSON(w, http.StatusOK, map[string]string{"session_id": "abc"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	body := decode(t, w)
	assert.Nil(t, body.Error)
	assert.Equal(t, "abc", body.Data.(map[string]any)["session_id"])
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	t.Run("http error mapped to its status", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		core.JSONError(w, core.ErrForbidden)

		assert.Equal(t, http.StatusForbidden, w.Code)
		body := decode(t, w)
		require.NotNil(t, body.Error)
		assert.Equal(t, "forbidden", body.Error.Code)
	})

	t.Run("wrapped http error still mapped", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		core.JSONError(w, errors.Join(core.ErrUnauthorized, errors.New("cause")))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "unauthorized", decode(t, w).Error.Code)
	})

	t.Run("validation error carries field details", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		core.JSONError(w, core.ValidationError{"target_role": {"unknown role"}})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		body := decode(t, w)
		assert.Equal(t, "validation_error", body.Error.Code)
		assert.Equal(t, []string{"unknown role"}, body.Error.Details["target_role"])
	})

	t.Run("unknown error becomes 500 without leaking", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		core.JSONError(w, errors.New("pg: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, "internal_server_error", body.Error.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}

func TestNewHTTPError(t *testing.T) {
	t.Parallel()

	err := core.NewHTTPError(http.StatusGone, "token_expired")
	assert.Equal(t, http.StatusGone, err.Code)
	assert.Equal(t, "token_expired", err.Error())
}
