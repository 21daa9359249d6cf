package geo

import (
	"errors"
	"math"
	"testing"
)

func TestDistanceMeters_Zero(t *testing.T) {
	d := DistanceMeters(52.5200, 13.4050, 52.5200, 13.4050)
	if d != 0 {
		t.Errorf("distance between identical points = %v, want 0", d)
	}
}

func TestDistanceMeters_KnownDistance(t *testing.T) {
	// Two points in Berlin roughly 6 m apart.
	d := DistanceMeters(52.5200, 13.4050, 52.52005, 13.40495)
	if d < 5 || d > 8 {
		t.Errorf("distance = %v, want ~6m", d)
	}

	// Berlin Alexanderplatz to Brandenburg Gate, about 2.5 km.
	d = DistanceMeters(52.5219, 13.4132, 52.5163, 13.3777)
	if d < 2300 || d > 2700 {
		t.Errorf("distance = %v, want ~2.5km", d)
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	a := DistanceMeters(52.52, 13.40, 48.85, 2.35)
	b := DistanceMeters(48.85, 2.35, 52.52, 13.40)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("asymmetric distance: %v vs %v", a, b)
	}
	if a < 0 {
		t.Errorf("negative distance: %v", a)
	}
}

func TestWithinRadius_BoundaryInclusive(t *testing.T) {
	if !WithinRadius(10, 10) {
		t.Error("distance equal to radius should be within")
	}
	if WithinRadius(10.0001, 10) {
		t.Error("distance beyond radius should not be within")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{"valid", 52.52, 13.40, false},
		{"lat boundary", 90, 180, false},
		{"lat too high", 90.01, 0, true},
		{"lat too low", -90.01, 0, true},
		{"lon too high", 0, 180.01, true},
		{"lon too low", 0, -180.01, true},
		{"nan", math.NaN(), 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.lat, tc.lon)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate(%v, %v) error = %v, wantErr %v", tc.lat, tc.lon, err, tc.wantErr)
			}
			if err != nil {
				var coordErr *ErrInvalidCoordinate
				if !errors.As(err, &coordErr) {
					t.Errorf("error type = %T, want *ErrInvalidCoordinate", err)
				}
			}
		})
	}
}
