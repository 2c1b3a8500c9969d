package geo

import (
	"math"
	"testing"

	"charity-delivery/internal/models"
)

func TestHaversineKm(t *testing.T) {
	// Oakland to San Francisco city hall, roughly 13.4 km.
	d := HaversineKm(37.8044, -122.2712, 37.7793, -122.4193)
	if math.Abs(d-13.4) > 0.5 {
		t.Errorf("HaversineKm = %.2f, want ~13.4", d)
	}

	if d := HaversineKm(37.80, -122.27, 37.80, -122.27); d != 0 {
		t.Errorf("distance to self = %v, want 0", d)
	}

	forward := HaversineKm(37.80, -122.27, 40.71, -74.00)
	back := HaversineKm(40.71, -74.00, 37.80, -122.27)
	if math.Abs(forward-back) > 1e-9 {
		t.Errorf("distance not symmetric: %v vs %v", forward, back)
	}
}

func TestSortRankedBranchesByDistanceThenID(t *testing.T) {
	ranked := []models.RankedBranch{
		{Branch: models.Branch{ID: "c"}, DistanceKm: 5},
		{Branch: models.Branch{ID: "b"}, DistanceKm: 5},
		{Branch: models.Branch{ID: "a"}, DistanceKm: 9},
		{Branch: models.Branch{ID: "d"}, DistanceKm: 1},
	}
	sortRankedBranches(ranked)

	want := []string{"d", "b", "c", "a"}
	for i, id := range want {
		if ranked[i].Branch.ID != id {
			t.Fatalf("ranked[%d] = %s, want %s (order %v)", i, ranked[i].Branch.ID, id, ranked)
		}
	}
}
