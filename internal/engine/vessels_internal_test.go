package engine

import (
	"math/rand"
	"testing"

	"tidewater/internal/domain"
)

var testImmune = map[string]bool{"ocean_view": true, "not_new_eden": true, "beautiful_forest": true}

func testVessel() domain.Vessel {
	return domain.Vessel{
		Key:           "boat",
		Route:         []string{"beautiful_forest", "not_new_eden", "ocean_view", "temple_island", "risible_rock"},
		CurrentIndex:  2,
		LastMovedTurn: -1,
	}
}

func TestStepVesselImmuneLegAlwaysAdvances(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		v := testVessel()
		v.CurrentIndex = 0 // beautiful_forest -> not_new_eden, both immune
		if step := stepVessel(&v, int64(i), rng, testImmune, 1.0, 0); step != vesselAdvanced {
			t.Fatalf("immune leg step = %d, want advance", step)
		}
		if v.At() != "not_new_eden" {
			t.Fatalf("vessel at %s", v.At())
		}
	}
}

func TestStepVesselTransitionsOncePerTurn(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	v := testVessel()
	v.CurrentIndex = 0
	if step := stepVessel(&v, 10, rng, testImmune, 0, 0); step != vesselAdvanced {
		t.Fatalf("first step = %d", step)
	}
	if step := stepVessel(&v, 10, rng, testImmune, 0, 0); step != vesselSkipped {
		t.Fatalf("repeat step = %d, want skip", step)
	}
}

func TestStepVesselStuckHoldsUntilReleased(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	v := testVessel()
	if step := stepVessel(&v, 1, rng, testImmune, 1.0, 0); step != vesselBecameStuck {
		t.Fatalf("step = %d, want stuck", step)
	}
	if v.At() != "ocean_view" || v.StuckTurns != 1 {
		t.Fatalf("stuck state: %+v", v)
	}
	// Stuck vessels stay put even when the roll would pass.
	for turnNo := int64(2); turnNo <= 4; turnNo++ {
		if step := stepVessel(&v, turnNo, rng, testImmune, 0, 0); step != vesselHeldStuck {
			t.Fatalf("turn %d step = %d, want held", turnNo, step)
		}
	}
	if v.StuckTurns != 4 {
		t.Fatalf("stuck turns = %d, want 4", v.StuckTurns)
	}

	// A manual release makes the next transition a normal roll.
	v.Stuck = false
	v.StuckTurns = 0
	if step := stepVessel(&v, 5, rng, testImmune, 0, 0); step != vesselAdvanced {
		t.Fatalf("post-release step = %d, want advance", step)
	}
	if v.At() != "temple_island" {
		t.Fatalf("vessel at %s, want temple_island", v.At())
	}
}

func TestStepVesselAutoRelease(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	v := testVessel()
	if step := stepVessel(&v, 1, rng, testImmune, 1.0, 3); step != vesselBecameStuck {
		t.Fatalf("step = %d", step)
	}
	if step := stepVessel(&v, 2, rng, testImmune, 1.0, 3); step != vesselHeldStuck {
		t.Fatalf("turn 2 step = %d", step)
	}
	if step := stepVessel(&v, 3, rng, testImmune, 1.0, 3); step != vesselAdvanced {
		t.Fatalf("turn 3 step = %d, want auto-release advance", step)
	}
	if v.Stuck || v.At() != "temple_island" {
		t.Fatalf("post-release state: %+v", v)
	}
}

func TestStepVesselStuckRatio(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	stuck := 0
	const trials = 4000
	for i := 0; i < trials; i++ {
		v := testVessel()
		if stepVessel(&v, int64(i), rng, testImmune, 0.5, 0) == vesselBecameStuck {
			stuck++
		}
	}
	ratio := float64(stuck) / trials
	if ratio < 0.46 || ratio > 0.54 {
		t.Fatalf("stuck ratio = %.3f, want about 0.5", ratio)
	}
}

func TestStepVesselRouteWraps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	v := testVessel()
	v.CurrentIndex = len(v.Route) - 1
	if step := stepVessel(&v, 1, rng, testImmune, 0, 0); step != vesselAdvanced {
		t.Fatalf("step = %d", step)
	}
	if v.At() != "beautiful_forest" {
		t.Fatalf("vessel at %s, want route start", v.At())
	}
}
