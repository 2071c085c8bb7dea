// Package cache implements the Hot Cache component (§4.A): a keyed,
// TTL-bounded mapping from vehicle_id to its last-known Position, plus
// the two small atomic helpers the throttle/dead-zone gate needs.
//
// Two implementations satisfy the same Cacher trait (spec.md §9's
// "single capability trait with two implementations selected at boot"):
// RedisCache for production, LocalCache as the in-process fallback used
// when Redis is absent or unreachable at boot.
package cache

import (
	"context"
	"time"

	"fleettrack/internal/domain"
)

// Cacher is the capability surface both implementations provide. Every
// method may fail; callers apply the fail-open / fail-true / fail-silent
// policy from spec.md §4.A rather than switching implementations on a
// transient error.
type Cacher interface {
	// Put stores pos under its vehicle_id with TTL, unless an existing
	// entry already carries a newer or equal timestamp (invariant 1).
	Put(ctx context.Context, pos *domain.Position) error

	// Get returns the cached Position for vehicleID, or ok=false on miss.
	Get(ctx context.Context, vehicleID string) (pos *domain.Position, ok bool, err error)

	// PutBatch applies Put to every element in a bounded number of
	// round trips, irrespective of batch size.
	PutBatch(ctx context.Context, positions []*domain.Position) error

	// IncrThrottle atomically increments the per-vehicle, per-window
	// counter used by the gate, setting a TTL of window on first write.
	IncrThrottle(ctx context.Context, vehicleID string, window time.Duration) (int64, error)

	// HasMoved reports whether vehicleID's current cached position is at
	// least minMeters from (lat, lng). A vehicle with no cached entry is
	// reported as moved (nothing to suppress against).
	HasMoved(ctx context.Context, vehicleID string, lat, lng, minMeters float64) (bool, error)

	// Ping reports whether the backing store is reachable, used by
	// /health and by boot-time implementation selection.
	Ping(ctx context.Context) error

	Close() error
}
