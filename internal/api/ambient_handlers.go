package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"fleettrack/internal/apperr"
	"fleettrack/internal/broker"
	"fleettrack/internal/domain"
	fthttp "fleettrack/internal/transport/http"
)

// postReport is a thin pass-through: the core only transports hazard
// payloads (spec.md §1 scopes hazard business logic out), validating
// shape and handing the record to the event log and history store.
func (h *handlers) postReport(w http.ResponseWriter, r *http.Request) {
	var req HazardReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fthttp.WriteError(w, apperr.Validation("malformed JSON body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		fthttp.WriteError(w, apperr.Validation("invalid hazard report", err.Error()))
		return
	}

	now := time.Now()
	report := &domain.HazardReport{
		ID:        uuid.NewString(),
		Kind:      domain.HazardKind(req.Kind),
		Severity:  req.Severity,
		Lat:       req.Lat,
		Lng:       req.Lng,
		RadiusM:   req.RadiusM,
		CreatedAt: now,
		ExpiresAt: now.Add(domain.DefaultHazardTTL),
	}

	if err := h.deps.Store.InsertHazardReport(r.Context(), report); err != nil {
		fthttp.WriteError(w, apperr.Internal("failed to store hazard report", err))
		return
	}

	payload, _ := json.Marshal(report)
	_, _ = h.deps.Bus.Publish(r.Context(), "route-alerts", report.ID, payload)

	// new-hazard is a direct, undurable broadcast pushed the moment the
	// report lands, independent of the alert-processor's durable
	// route-alert relay off the event log (§4.E).
	if h.deps.BrokerDeps != nil {
		h.deps.BrokerDeps.Hub.PushToRoom(broker.RoomNearbyAll, broker.EventNewHazard, report)
	}

	writeJSON(w, http.StatusCreated, report)
}

// postSOS gates via internal/sos before transporting the event the same
// way postReport does.
func (h *handlers) postSOS(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromCtx(r)
	if !ok {
		fthttp.WriteError(w, apperr.AuthRequired("authentication required", ""))
		return
	}

	var req SOSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fthttp.WriteError(w, apperr.Validation("malformed JSON body"))
		return
	}
	if err := validate.Struct(req); err != nil {
		fthttp.WriteError(w, apperr.Validation("invalid SOS payload", err.Error()))
		return
	}

	ip := clientIP(r)
	if err := h.deps.SOS.Allow(r.Context(), identity.UserID, ip); err != nil {
		fthttp.WriteError(w, err)
		return
	}

	event := &domain.SOSEvent{
		ID:        uuid.NewString(),
		UserID:    identity.UserID,
		VehicleID: identity.VehicleID,
		Lat:       req.Lat,
		Lng:       req.Lng,
		CreatedAt: time.Now(),
	}

	if err := h.deps.Store.InsertSOSEvent(r.Context(), event); err != nil {
		fthttp.WriteError(w, apperr.Internal("failed to store SOS event", err))
		return
	}

	// vehicle-events carries more than one event kind (spec.md §4.C), so
	// every publish wraps its record in {kind, data} for the
	// vehicle-events consumer to dispatch on.
	payload, _ := json.Marshal(map[string]any{"kind": "sos", "data": event})
	_, _ = h.deps.Bus.Publish(r.Context(), "vehicle-events", event.ID, payload)

	writeJSON(w, http.StatusCreated, event)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
