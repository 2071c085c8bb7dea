// Package geo implements the planar-distance approximation the spec
// calls for (Glossary: "Planar distance"), not a geodesic one — the
// Non-goals explicitly accept this inaccuracy in exchange for a cheap,
// allocation-free distance check on the ingest hot path.
package geo

import "math"

// degreeKm is the source's single conversion constant. It ignores
// longitude compression at higher latitudes, which is the open question
// recorded in DESIGN.md: preserved here for compatibility rather than
// corrected for accuracy.
const degreeKm = 111.0

// PlanarDistanceKm returns the approximate distance between two
// lat/lng points in kilometres, per the spec's glossary formula.
func PlanarDistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat1 - lat2) * degreeKm
	dLng := (lng1 - lng2) * degreeKm
	return math.Sqrt(dLat*dLat + dLng*dLng)
}

// PlanarDistanceM is PlanarDistanceKm expressed in metres, used by the
// dead-zone gate's D_min comparison.
func PlanarDistanceM(lat1, lng1, lat2, lng2 float64) float64 {
	return PlanarDistanceKm(lat1, lng1, lat2, lng2) * 1000
}
