package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fleettrack/internal/apperr"
	"fleettrack/internal/domain"
	"fleettrack/internal/geo"
	fthttp "fleettrack/internal/transport/http"
)

// getLocation is cache-then-history: a cache hit is tagged _source:cache,
// a miss falls through to the latest history row tagged _source:history.
func (h *handlers) getLocation(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "id")

	if pos, ok, err := h.deps.Cache.Get(r.Context(), vehicleID); err == nil && ok {
		writeJSON(w, http.StatusOK, withSource(pos, "cache"))
		return
	}

	pos, err := h.deps.Store.LatestPosition(r.Context(), vehicleID)
	if err != nil {
		fthttp.WriteError(w, apperr.Internal("failed to query location", err))
		return
	}
	if pos == nil {
		fthttp.WriteError(w, apperr.NotFound("no known location for vehicle"))
		return
	}
	writeJSON(w, http.StatusOK, withSource(pos, "history"))
}

func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "id")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	history, err := h.deps.Store.History(r.Context(), vehicleID, limit)
	if err != nil {
		fthttp.WriteError(w, apperr.Internal("failed to query history", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": history})
}

// getNearby filters the last 60s of public positions by planar distance,
// ascending, capped at 100, radius<=5 (km).
func (h *handlers) getNearby(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		fthttp.WriteError(w, apperr.Validation("lat and lng query params are required"))
		return
	}

	radiusKm := 5.0
	if v := r.URL.Query().Get("radius"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 && parsed <= 5 {
			radiusKm = parsed
		}
	}

	positions, public, err := h.deps.Store.RecentPublicPositions(r.Context(), time.Now().Add(-60*time.Second))
	if err != nil {
		fthttp.WriteError(w, apperr.Internal("failed to query nearby vehicles", err))
		return
	}

	type ranked struct {
		pos      *domain.Position
		distance float64
	}
	var nearby []ranked
	for _, p := range positions {
		if !public[p.VehicleID] {
			continue
		}
		d := geo.PlanarDistanceKm(lat, lng, p.Lat, p.Lng)
		if d <= radiusKm {
			nearby = append(nearby, ranked{pos: p, distance: d})
		}
	}
	for i := 1; i < len(nearby); i++ {
		for j := i; j > 0 && nearby[j].distance < nearby[j-1].distance; j-- {
			nearby[j], nearby[j-1] = nearby[j-1], nearby[j]
		}
	}
	if len(nearby) > 100 {
		nearby = nearby[:100]
	}

	out := make([]map[string]any, len(nearby))
	for i, n := range nearby {
		out[i] = map[string]any{"position": n.pos, "distance_km": n.distance}
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": out})
}

func withSource(pos *domain.Position, source string) map[string]any {
	return map[string]any{"position": pos, "_source": source}
}
