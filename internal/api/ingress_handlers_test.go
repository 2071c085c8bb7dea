package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/cache"
	"fleettrack/internal/gate"
	"fleettrack/internal/ingress"
)

type acceptingBus struct{}

func (acceptingBus) Publish(ctx context.Context, stream, key string, payload []byte) (bool, error) {
	return true, nil
}

func (acceptingBus) Subscribe(ctx context.Context, stream, group string, handler func(ctx context.Context, subject string, data []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (acceptingBus) Close() error { return nil }

func newTestHandlers() *handlers {
	c := cache.NewLocalCache(time.Minute)
	g := gate.New(c)
	svc := ingress.New(g, c, acceptingBus{}, nil)
	return &handlers{deps: &Deps{Ingest: svc, Cache: c}}
}

func TestPushLocation_AcceptedReturns202(t *testing.T) {
	h := newTestHandlers()
	r := chi.NewRouter()
	r.Post("/api/vehicles/{id}/location", h.pushLocation)

	body := `{"lat":1,"lng":2,"speed_kmh":10,"heading_deg":90}`
	req := httptest.NewRequest(http.MethodPost, "/api/vehicles/v1/location", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["accepted"])
	assert.EqualValues(t, 5000, resp["nextPingMs"])
	assert.NotContains(t, resp, "reason")
}

func TestPushLocation_NoMovementReportsReason(t *testing.T) {
	h := newTestHandlers()
	r := chi.NewRouter()
	r.Post("/api/vehicles/{id}/location", h.pushLocation)

	body := `{"lat":1,"lng":2,"speed_kmh":10,"heading_deg":90}`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/vehicles/v1/location", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		if i == 1 {
			assert.Equal(t, "no_movement", resp["reason"])
			assert.EqualValues(t, 5000, resp["nextPingMs"])
		}
	}
}

func TestPushLocation_RejectsInvalidPayload(t *testing.T) {
	h := newTestHandlers()
	r := chi.NewRouter()
	r.Post("/api/vehicles/{id}/location", h.pushLocation)

	body := `{"lat":999,"lng":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/vehicles/v1/location", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPushLocation_SetsRetryAfterWhenThrottled(t *testing.T) {
	h := newTestHandlers()
	r := chi.NewRouter()
	r.Post("/api/vehicles/{id}/location", h.pushLocation)

	for i := 0; i < int(gate.DefaultRMax)+1; i++ {
		body := `{"lat":1,"lng":2,"speed_kmh":10,"heading_deg":90}`
		req := httptest.NewRequest(http.MethodPost, "/api/vehicles/v1/location", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if i == int(gate.DefaultRMax) {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.EqualValues(t, 1000, resp["retryAfterMs"])
			assert.NotContains(t, resp, "accepted")
		}
	}
}

func TestPushBatchLocations_SeparatesValidFromRejected(t *testing.T) {
	h := newTestHandlers()
	r := chi.NewRouter()
	r.Post("/api/vehicles/batch", h.pushBatchLocations)

	body := `{"positions":[
		{"vehicle_id":"v1","lat":1,"lng":2,"speed_kmh":10,"heading_deg":90},
		{"vehicle_id":"v2","lat":999,"lng":2,"speed_kmh":10,"heading_deg":90}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/api/vehicles/batch", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["processed"])
	assert.Equal(t, float64(1), resp["rejected"])
}

func TestPushBatchLocations_RejectsOversizedBatch(t *testing.T) {
	h := newTestHandlers()
	r := chi.NewRouter()
	r.Post("/api/vehicles/batch", h.pushBatchLocations)

	positions := make([]string, 1001)
	for i := range positions {
		positions[i] = `{"vehicle_id":"v1","lat":1,"lng":2}`
	}
	body := `{"positions":[` + joinJSON(positions) + `]}`
	req := httptest.NewRequest(http.MethodPost, "/api/vehicles/batch", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func joinJSON(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}
