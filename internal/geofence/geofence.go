// Package geofence validates submitted coordinates against a work site.
package geofence

import "math"

// Mean Earth radius in meters.
const earthRadiusMeters = 6371000

type CheckResult struct {
	DistanceMeters float64 `json:"distance_meters"`
	WithinRadius   bool    `json:"within_radius"`
}

// Distance returns the haversine great-circle distance in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// IsWithinRadius checks a submitted coordinate against a site. The boundary
// is inclusive: a point exactly at radiusMeters is inside.
func IsWithinRadius(lat, lon, siteLat, siteLon, radiusMeters float64) CheckResult {
	d := Distance(lat, lon, siteLat, siteLon)
	return CheckResult{DistanceMeters: d, WithinRadius: d <= radiusMeters}
}
