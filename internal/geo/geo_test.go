package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanarDistanceKm_SamePoint(t *testing.T) {
	d := PlanarDistanceKm(12.97, 77.59, 12.97, 77.59)
	assert.Zero(t, d)
}

func TestPlanarDistanceKm_OneDegreeLat(t *testing.T) {
	// one degree of latitude is defined as exactly degreeKm kilometres
	// in this approximation, regardless of longitude compression.
	d := PlanarDistanceKm(0, 0, 1, 0)
	assert.InDelta(t, 111.0, d, 0.0001)
}

func TestPlanarDistanceKm_IgnoresLongitudeCompression(t *testing.T) {
	// at the equator and near the pole, one degree of longitude is
	// treated identically — this is the deliberate inaccuracy recorded
	// in DESIGN.md, not a bug.
	equator := PlanarDistanceKm(0, 0, 0, 1)
	nearPole := PlanarDistanceKm(80, 0, 80, 1)
	assert.InDelta(t, equator, nearPole, 0.0001)
}

func TestPlanarDistanceM_IsKmTimesThousand(t *testing.T) {
	km := PlanarDistanceKm(12.0, 77.0, 12.1, 77.1)
	m := PlanarDistanceM(12.0, 77.0, 12.1, 77.1)
	assert.InDelta(t, km*1000, m, 0.0001)
}
