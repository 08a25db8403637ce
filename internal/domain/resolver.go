package domain

import "math"

// DefaultNearestRadius is the fallback search radius for nearest-location
// resolution, in the same degree units as the stored coordinates.
const DefaultNearestRadius = 100.0

// Distance returns the flat Euclidean distance between two coordinate pairs
// in degree-space. This intentionally ignores the curvature of the earth:
// records and queries live in a small coordinate neighbourhood and the
// resolver only compares distances against each other and a radius in the
// same units.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return math.Sqrt(math.Pow(lat2-lat1, 2) + math.Pow(lon2-lon1, 2))
}

// NearestLocation resolves a query to a stored location key.
//
// An exact key match always wins, regardless of distance. Otherwise the
// record with the strictly smallest distance to (lat, lon) is chosen, and
// only returned if that distance is strictly inside radius. Ties keep the
// earlier record; iteration follows the order of records, so callers that
// need deterministic tie-breaks should pass records in a stable order.
func NearestLocation(records []WeatherRecord, query string, lat, lon, radius float64) (string, bool) {
	for _, rec := range records {
		if rec.Location == query {
			return rec.Location, true
		}
	}

	closest := ""
	closestDistance := radius
	for _, rec := range records {
		d := Distance(lat, lon, rec.Latitude, rec.Longitude)
		if d < closestDistance {
			closestDistance = d
			closest = rec.Location
		}
	}
	if closest == "" {
		return "", false
	}
	return closest, true
}
