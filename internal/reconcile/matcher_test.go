package reconcile

import (
	"testing"

	"github.com/sitewatch/sitewatch/internal/capture"
	"github.com/sitewatch/sitewatch/internal/geo"
)

func rec(id int64, lat, lon float64) *capture.Record {
	return &capture.Record{ID: id, CameraID: "camera-01", Lat: lat, Lon: lon}
}

func TestNearest_NoRecords(t *testing.T) {
	if m := Nearest(nil, 52.52, 13.405, 10); m != nil {
		t.Errorf("Nearest(nil) = %+v, want nil", m)
	}
}

func TestNearest_NoneWithinRadius(t *testing.T) {
	records := []*capture.Record{
		rec(1, 52.60, 13.50),
		rec(2, 52.70, 13.60),
	}
	if m := Nearest(records, 52.52, 13.405, 10); m != nil {
		t.Errorf("Nearest = record %d, want nil", m.Record.ID)
	}
}

func TestNearest_PicksMinimumDistance(t *testing.T) {
	records := []*capture.Record{
		rec(1, 52.52006, 13.40500), // ~7m
		rec(2, 52.52002, 13.40500), // ~2m
		rec(3, 52.52008, 13.40500), // ~9m
	}

	m := Nearest(records, 52.52, 13.405, 10)
	if m == nil {
		t.Fatal("Nearest = nil, want record 2")
	}
	if m.Record.ID != 2 {
		t.Errorf("Nearest = record %d, want 2", m.Record.ID)
	}

	// Proximity monotonicity: nothing else is closer.
	for _, r := range records {
		d := geo.DistanceMeters(52.52, 13.405, r.Lat, r.Lon)
		if d < m.DistanceMeters {
			t.Errorf("record %d at %vm is closer than match at %vm", r.ID, d, m.DistanceMeters)
		}
	}
}

func TestNearest_TieBreaksToLowestID(t *testing.T) {
	// Identical coordinates, so identical distances.
	records := []*capture.Record{
		rec(7, 52.52001, 13.40501),
		rec(3, 52.52001, 13.40501),
		rec(5, 52.52001, 13.40501),
	}

	m := Nearest(records, 52.52, 13.405, 10)
	if m == nil {
		t.Fatal("Nearest = nil")
	}
	if m.Record.ID != 3 {
		t.Errorf("tie resolved to record %d, want 3", m.Record.ID)
	}
}

func TestNearest_BoundaryDistanceIncluded(t *testing.T) {
	target := rec(1, 52.52, 13.405)
	// Offset north so the distance is just under 10m, then check a
	// radius exactly equal to the computed distance matches.
	other := rec(2, 52.52008, 13.405)
	d := geo.DistanceMeters(target.Lat, target.Lon, other.Lat, other.Lon)

	m := Nearest([]*capture.Record{other}, target.Lat, target.Lon, d)
	if m == nil {
		t.Fatalf("record at exactly radius (%vm) not matched", d)
	}
}
