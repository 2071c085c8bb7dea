// Package api is the chi-routed HTTP ingress/query surface (§4.G, §4.H).
package api

import (
	"time"

	"github.com/go-playground/validator/v10"

	"fleettrack/internal/domain"
)

var validate = validator.New()

// LocationRequest is the wire shape for one position push. Validation
// rules are exactly spec.md §4.G: lat in [-90,90], lng in [-180,180],
// non-empty vehicle_id, speed>=0, heading in [0,360). Missing numerics
// default to zero via the JSON zero value; a missing timestamp defaults
// to receive time, applied after validation since nil is valid here.
type LocationRequest struct {
	VehicleID  string     `json:"vehicle_id" validate:"required"`
	FleetID    string     `json:"fleet_id"`
	Lat        float64    `json:"lat" validate:"gte=-90,lte=90"`
	Lng        float64    `json:"lng" validate:"gte=-180,lte=180"`
	SpeedKmh   float64    `json:"speed_kmh" validate:"gte=0"`
	HeadingDeg float64    `json:"heading_deg" validate:"gte=0,lt=360"`
	AccuracyM  float64    `json:"accuracy_m"`
	AltitudeM  float64    `json:"altitude_m"`
	IsMoving   bool       `json:"is_moving"`
	Timestamp  *time.Time `json:"timestamp"`
	RawPayload []byte     `json:"-"`
}

func (r LocationRequest) toPosition(receivedAt time.Time) *domain.Position {
	ts := receivedAt
	if r.Timestamp != nil {
		ts = *r.Timestamp
	}
	return &domain.Position{
		VehicleID:  r.VehicleID,
		FleetID:    r.FleetID,
		Lat:        r.Lat,
		Lng:        r.Lng,
		SpeedKmh:   r.SpeedKmh,
		HeadingDeg: r.HeadingDeg,
		AccuracyM:  r.AccuracyM,
		AltitudeM:  r.AltitudeM,
		IsMoving:   r.IsMoving,
		Timestamp:  ts,
		ReceivedAt: receivedAt,
		RawPayload: r.RawPayload,
	}
}

// BatchLocationRequest is the wire shape for /api/vehicles/batch/locations.
type BatchLocationRequest struct {
	Positions []LocationRequest `json:"positions" validate:"required,max=1000,dive"`
}

type HazardReportRequest struct {
	Kind      string  `json:"kind" validate:"required"`
	Severity  string  `json:"severity"`
	Lat       float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng       float64 `json:"lng" validate:"gte=-180,lte=180"`
	RadiusM   float64 `json:"radius_m"`
	RawPayload []byte `json:"-"`
}

type SOSRequest struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}
