// Package http holds the cross-cutting HTTP middleware the chi router
// wraps its handlers with, generalized from the teacher's single
// AuthMiddleware into a bearer-token equivalent plus request logging.
package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"fleettrack/internal/apperr"
	"fleettrack/internal/auth"
	"fleettrack/internal/logging"
)

type identityKey struct{}

// Identity returns the request's validated identity, if RequireAuth or
// OptionalAuth populated one.
func Identity(ctx context.Context) (*auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*auth.Identity)
	return id, ok
}

type AuthMiddleware struct {
	auth *auth.Authenticator
}

func NewAuthMiddleware(a *auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: a}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// RequireAuth rejects the request with AuthRequired when the bearer
// token is missing or invalid, otherwise injects the decoded Identity.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.auth.Validate(r.Context(), bearerToken(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth injects an Identity when the bearer token validates, and
// otherwise continues the chain as anonymous. The router does not mount
// it; the open query endpoints run with no auth middleware at all.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := bearerToken(r); token != "" {
			if id, err := m.auth.Validate(r.Context(), token); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), identityKey{}, id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// WriteError renders an *apperr.Error (or a generic error, wrapped as
// Internal) as the standard JSON error envelope: {error, message, code?,
// details?, retryAfterMs?}. RetryAfterMs is rendered both as the
// Retry-After header (whole seconds, rounded up) and as the documented
// body field; Details carries every offending field from a validation
// failure at once, not just the first.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*apperr.Error)
	if !ok {
		appErr = apperr.Internal("unexpected error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	if appErr.RetryAfterMs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa((appErr.RetryAfterMs+999)/1000))
	}
	w.WriteHeader(appErr.HTTPStatus())

	envelope := map[string]any{"error": string(appErr.Kind), "message": appErr.Message}
	if appErr.Code != "" {
		envelope["code"] = appErr.Code
	}
	if len(appErr.Details) > 0 {
		envelope["details"] = appErr.Details
	}
	if appErr.RetryAfterMs > 0 {
		envelope["retryAfterMs"] = appErr.RetryAfterMs
	}
	_ = json.NewEncoder(w).Encode(envelope)
}

// RequestLogger logs one structured line per request, grounded on the
// teacher-pack's prometheus/requestid middleware shape: wrap, measure,
// log after the handler returns.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("latency", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
