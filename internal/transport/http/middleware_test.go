package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/apperr"
	"fleettrack/internal/auth"
)

func TestWriteError_RendersEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperr.Validation("lat out of range"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(apperr.KindValidation), body["error"])
	assert.Equal(t, "lat out of range", body["message"])
}

func TestWriteError_EscapesSpecialCharactersInMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperr.Validation(`message with "quotes" and \backslash`))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, `message with "quotes" and \backslash`, body["message"])
}

func TestWriteError_SetsRetryAfterHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperr.Throttled(2000))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 2000, body["retryAfterMs"])
}

func TestWriteError_RendersDetailsFromValidationFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperr.Validation("invalid payload", "lat out of range", "speed must be non-negative"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	details, ok := body["details"].([]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"lat out of range", "speed must be non-negative"}, details)
}

func TestWriteError_WrapsGenericErrorAsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthMiddleware_RequireAuth_RejectsMissingToken(t *testing.T) {
	mw := NewAuthMiddleware(auth.New("secret", time.Minute))
	called := false
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/sos", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_OptionalAuth_ContinuesAnonymously(t *testing.T) {
	mw := NewAuthMiddleware(auth.New("secret", time.Minute))
	var gotIdentity bool
	handler := mw.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, gotIdentity = Identity(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/nearby", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, gotIdentity)
}

func TestBearerToken_ParsesAuthorizationHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", bearerToken(req))
}

func TestBearerToken_RejectsNonBearerScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc123")
	assert.Equal(t, "", bearerToken(req))
}
