// Package gate implements the throttle/dead-zone admission check (§4.B):
// every inbound position runs incr_throttle before has_moved, so a
// stationary vehicle cannot dodge the rate limit by reporting no motion.
package gate

import (
	"context"
	"time"

	"fleettrack/internal/cache"
	"fleettrack/internal/domain"
	"fleettrack/internal/logging"
)

// Verdict is the gate's outcome for one inbound Position.
type Verdict string

const (
	Accepted         Verdict = "accepted"
	AcceptedNoMotion Verdict = "accepted_no_motion"
	Throttled        Verdict = "throttled"
)

// Result carries the verdict plus the advisory timing fields the
// ingress handler echoes back to the caller.
type Result struct {
	Verdict      Verdict
	RetryAfterMs int
	NextPingMs   int
}

// Spec defaults (spec.md §4.B): R_max=5 within a 1s window, D_min=10m.
// nextPingMs is the client-facing ping advisory for every non-throttled
// verdict; it is distinct from a throttled response's retry_after_ms.
const (
	DefaultRMax      int64         = 5
	DefaultWindow    time.Duration = time.Second
	DefaultDMinM     float64       = 10.0
	nextPingMs                     = 5000
)

// Gate evaluates one inbound position against the cache, using the
// thresholds config.Config supplies at boot.
type Gate struct {
	cache  cache.Cacher
	rMax   int64
	window time.Duration
	dMinM  float64
}

// New builds a Gate with the spec defaults; use WithThresholds to
// override from configuration.
func New(c cache.Cacher) *Gate {
	return &Gate{cache: c, rMax: DefaultRMax, window: DefaultWindow, dMinM: DefaultDMinM}
}

// WithThresholds overrides the throttle/dead-zone thresholds, used by
// boot wiring to apply THROTTLE_MAX/DEAD_ZONE_MIN_M from the environment.
func (g *Gate) WithThresholds(rMax int64, window time.Duration, dMinM float64) *Gate {
	g.rMax = rMax
	g.window = window
	g.dMinM = dMinM
	return g
}

// Check runs incr_throttle then has_moved, in that order, per spec.md
// §4.B. Throttle failures fail-open (permit); movement-check failures
// fail-true (treat as moved, i.e. accept).
func (g *Gate) Check(ctx context.Context, pos *domain.Position) Result {
	count, err := g.cache.IncrThrottle(ctx, pos.VehicleID, g.window)
	if err != nil {
		logging.Warn().Err(err).Str("vehicle_id", pos.VehicleID).Msg("gate: throttle check failed, failing open")
	} else if count > g.rMax {
		return Result{Verdict: Throttled, RetryAfterMs: int(g.window / time.Millisecond)}
	}

	moved, err := g.cache.HasMoved(ctx, pos.VehicleID, pos.Lat, pos.Lng, g.dMinM)
	if err != nil {
		logging.Warn().Err(err).Str("vehicle_id", pos.VehicleID).Msg("gate: movement check failed, failing true")
		moved = true
	}
	if !moved {
		return Result{Verdict: AcceptedNoMotion, NextPingMs: nextPingMs}
	}
	return Result{Verdict: Accepted, NextPingMs: nextPingMs}
}
