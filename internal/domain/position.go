package domain

import "time"

// Position is the canonical ingest record: a single GPS reading from a
// vehicle. Every write path in the system — ingress, cache, event log,
// history store, broker — passes this shape around instead of the raw
// wire payload.
type Position struct {
	VehicleID string
	FleetID   string

	Lat float64
	Lng float64

	SpeedKmh   float64
	HeadingDeg float64
	AccuracyM  float64
	AltitudeM  float64

	Timestamp  time.Time
	ReceivedAt time.Time

	IsMoving bool

	RawPayload []byte
}

// VehicleDescriptor is the subset of externally-owned vehicle metadata
// the core reads and the two fields it is allowed to mutate as a side
// effect of ingest.
type VehicleDescriptor struct {
	VehicleID string
	OwnerID   string
	FleetID   string
	IsPublic  bool
	Status    string
	LastSeen  time.Time
}

const (
	VehicleStatusActive   = "active"
	VehicleStatusInactive = "inactive"
)

// HazardKind enumerates the advisory categories the core transports
// without interpreting.
type HazardKind string

const (
	HazardAccident     HazardKind = "accident"
	HazardTraffic      HazardKind = "traffic"
	HazardConstruction HazardKind = "construction"
	HazardPothole      HazardKind = "pothole"
	HazardHarassment   HazardKind = "harassment"
	HazardFlooding     HazardKind = "flooding"
	HazardOther        HazardKind = "other"
)

// HazardReport is a geotagged advisory. The core treats its payload as
// opaque cargo for the broker; only the fields needed for broadcast
// routing and retention are typed.
type HazardReport struct {
	ID       string
	Kind     HazardKind
	Severity string
	Lat      float64
	Lng      float64
	RadiusM  float64

	CreatedAt time.Time
	ExpiresAt time.Time

	Payload []byte
}

// DefaultHazardTTL is the default expiry applied when a report omits one.
const DefaultHazardTTL = 6 * time.Hour

// SOSEvent is a one-time emergency signal from an authenticated user.
type SOSEvent struct {
	ID        string
	UserID    string
	VehicleID string
	Lat       float64
	Lng       float64
	CreatedAt time.Time
}
