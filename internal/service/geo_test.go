package service

import "testing"

func TestHaversineOneDegreeLatitude(t *testing.T) {
	distance := HaversineMeters(0, 0, 1, 0)
	if distance < 110000 || distance > 112000 {
		t.Fatalf("expected ~111km for one degree of latitude, got %.0fm", distance)
	}
}

func TestHaversineZeroDistance(t *testing.T) {
	if distance := HaversineMeters(30.2672, -97.7431, 30.2672, -97.7431); distance != 0 {
		t.Fatalf("expected zero distance, got %v", distance)
	}
}

func TestHaversineSymmetry(t *testing.T) {
	forward := HaversineMeters(30.2672, -97.7431, 30.25, -97.75)
	backward := HaversineMeters(30.25, -97.75, 30.2672, -97.7431)
	if diff := forward - backward; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("expected symmetric distance, got %v and %v", forward, backward)
	}
}
