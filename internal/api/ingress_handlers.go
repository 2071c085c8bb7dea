package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"fleettrack/internal/apperr"
	"fleettrack/internal/domain"
	"fleettrack/internal/gate"
	fthttp "fleettrack/internal/transport/http"
)

// pushLocation is the single-push path: sequence gate->cache
// put->log publish, §4.D-direct inline on publish failure, response
// time independent of persistence latency (the handler returns as soon
// as the gate/cache/publish sequence completes, not after any batched
// flush).
func (h *handlers) pushLocation(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "id")

	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fthttp.WriteError(w, apperr.Validation("malformed JSON body"))
		return
	}
	req.VehicleID = vehicleID

	if err := validate.Struct(req); err != nil {
		fthttp.WriteError(w, apperr.Validation("invalid location payload", err.Error()))
		return
	}

	pos := req.toPosition(time.Now())
	result, err := h.deps.Ingest.Push(r.Context(), pos)
	if err != nil {
		fthttp.WriteError(w, apperr.Internal("failed to process location", err))
		return
	}

	if result.Verdict == gate.Throttled {
		fthttp.WriteError(w, apperr.Throttled(result.RetryAfterMs))
		return
	}

	resp := map[string]any{"accepted": true, "nextPingMs": result.NextPingMs}
	if result.Verdict == gate.AcceptedNoMotion {
		resp["reason"] = "no_movement"
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// pushBatchLocations validates up to 1000 elements, classifying each
// valid/invalid, then runs the valid ones through one pipelined cache put
// and one log publish per record (ingress.Service.PushBatch).
func (h *handlers) pushBatchLocations(w http.ResponseWriter, r *http.Request) {
	var req BatchLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fthttp.WriteError(w, apperr.Validation("malformed JSON body"))
		return
	}
	if len(req.Positions) > 1000 {
		fthttp.WriteError(w, apperr.Validation("batch exceeds 1000 elements"))
		return
	}

	now := time.Now()
	var valid []*domain.Position
	var rejectedIDs []string

	for _, lr := range req.Positions {
		if err := validate.Struct(lr); err != nil {
			rejectedIDs = append(rejectedIDs, lr.VehicleID)
			continue
		}
		valid = append(valid, lr.toPosition(now))
	}

	if _, err := h.deps.Ingest.PushBatch(r.Context(), valid); err != nil {
		fthttp.WriteError(w, apperr.Internal("failed to process batch", err))
		return
	}

	truncated := rejectedIDs
	if len(truncated) > 10 {
		truncated = truncated[:10]
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"processed":   len(valid),
		"rejected":    len(rejectedIDs),
		"rejectedIds": truncated,
	})
}
