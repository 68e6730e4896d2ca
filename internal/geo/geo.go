package geo

import "math"

// earthRadiusM is the mean Earth radius used by the spherical approximation.
const earthRadiusM = 6371000.0

// Distance returns the great-circle distance in meters between two points
// given in decimal degrees, using the haversine formula. Inputs are assumed
// to be valid coordinates; callers validate ranges before calling.
//
// The spherical model is accurate to a few meters at classroom distances.
// Geofence thresholds were tuned against it, so it must not be swapped for a
// geodesic model without re-checking boundary behavior.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// ValidCoordinate reports whether lat/lng fall inside the valid WGS ranges.
func ValidCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
