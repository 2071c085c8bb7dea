package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/domain"
)

// fakeCacher is a hand-rolled Cacher test double — the pack has no
// testify/mock usage to ground a generated mock on, so this follows the
// plain-struct test-double shape every example repo uses instead.
type fakeCacher struct {
	throttleCount int64
	throttleErr   error
	moved         bool
	movedErr      error
}

func (f *fakeCacher) Put(ctx context.Context, pos *domain.Position) error { return nil }
func (f *fakeCacher) Get(ctx context.Context, vehicleID string) (*domain.Position, bool, error) {
	return nil, false, nil
}
func (f *fakeCacher) PutBatch(ctx context.Context, positions []*domain.Position) error { return nil }
func (f *fakeCacher) IncrThrottle(ctx context.Context, vehicleID string, window time.Duration) (int64, error) {
	return f.throttleCount, f.throttleErr
}
func (f *fakeCacher) HasMoved(ctx context.Context, vehicleID string, lat, lng, minMeters float64) (bool, error) {
	return f.moved, f.movedErr
}
func (f *fakeCacher) Ping(ctx context.Context) error { return nil }
func (f *fakeCacher) Close() error                   { return nil }

func testPosition() *domain.Position {
	return &domain.Position{VehicleID: "veh-1", Lat: 12.9, Lng: 77.6, Timestamp: time.Now()}
}

func TestGate_Accepted(t *testing.T) {
	c := &fakeCacher{throttleCount: 1, moved: true}
	g := New(c)

	result := g.Check(context.Background(), testPosition())
	assert.Equal(t, Accepted, result.Verdict)
	assert.Equal(t, 5000, result.NextPingMs)
}

func TestGate_Throttled_WhenOverRMax(t *testing.T) {
	c := &fakeCacher{throttleCount: DefaultRMax + 1, moved: true}
	g := New(c)

	result := g.Check(context.Background(), testPosition())
	require.Equal(t, Throttled, result.Verdict)
	assert.Equal(t, int(DefaultWindow/time.Millisecond), result.RetryAfterMs)
}

func TestGate_AcceptedNoMotion_WhenNotMoved(t *testing.T) {
	c := &fakeCacher{throttleCount: 1, moved: false}
	g := New(c)

	result := g.Check(context.Background(), testPosition())
	require.Equal(t, AcceptedNoMotion, result.Verdict)
	assert.Equal(t, 5000, result.NextPingMs)
}

func TestGate_ThrottleCheckRunsBeforeMotionCheck(t *testing.T) {
	// a vehicle reporting no movement must still be throttled if it is
	// over rate — the dead-zone check can never be used to dodge the
	// throttle. This is the gate's core ordering invariant (spec.md §4.B).
	c := &fakeCacher{throttleCount: DefaultRMax + 1, moved: false}
	g := New(c)

	result := g.Check(context.Background(), testPosition())
	assert.Equal(t, Throttled, result.Verdict)
}

func TestGate_ThrottleFailsOpen(t *testing.T) {
	c := &fakeCacher{throttleErr: errors.New("cache unavailable"), moved: true}
	g := New(c)

	result := g.Check(context.Background(), testPosition())
	assert.Equal(t, Accepted, result.Verdict)
}

func TestGate_MotionCheckFailsTrue(t *testing.T) {
	c := &fakeCacher{throttleCount: 1, movedErr: errors.New("cache unavailable")}
	g := New(c)

	result := g.Check(context.Background(), testPosition())
	assert.Equal(t, Accepted, result.Verdict)
}

func TestGate_WithThresholds_OverridesDefaults(t *testing.T) {
	c := &fakeCacher{throttleCount: 2, moved: true}
	g := New(c).WithThresholds(1, 5*time.Second, 50.0)

	result := g.Check(context.Background(), testPosition())
	require.Equal(t, Throttled, result.Verdict)
	assert.Equal(t, 5000, result.RetryAfterMs)
}
