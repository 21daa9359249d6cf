package reconcile

import (
	"github.com/sitewatch/sitewatch/internal/capture"
	"github.com/sitewatch/sitewatch/internal/geo"
)

// Match is the nearest prior record for a new capture's coordinates.
type Match struct {
	Record         *capture.Record
	DistanceMeters float64
}

// Nearest returns the closest record within radiusMeters of the given
// point, or nil when none qualifies. Records must all belong to the
// same camera; cross-camera matching is the caller's bug, not a feature.
// Equal distances resolve to the lowest record id, so iterating records
// in ascending id order makes the result deterministic.
func Nearest(records []*capture.Record, lat, lon, radiusMeters float64) *Match {
	var best *Match

	for _, rec := range records {
		d := geo.DistanceMeters(lat, lon, rec.Lat, rec.Lon)
		if !geo.WithinRadius(d, radiusMeters) {
			continue
		}

		switch {
		case best == nil:
			best = &Match{Record: rec, DistanceMeters: d}
		case d < best.DistanceMeters:
			best = &Match{Record: rec, DistanceMeters: d}
		case d == best.DistanceMeters && rec.ID < best.Record.ID:
			best = &Match{Record: rec, DistanceMeters: d}
		}
	}
	return best
}
