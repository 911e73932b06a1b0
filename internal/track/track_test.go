package track

import (
	"testing"
)

func det(x, y float64) Detection {
	return Detection{X: x, Y: y, W: 40, H: 80, Confidence: 0.9}
}

func singleID(t *testing.T, assigned map[int]Detection) int {
	t.Helper()
	if len(assigned) != 1 {
		t.Fatalf("got %d assignments, want 1", len(assigned))
	}
	for id := range assigned {
		return id
	}
	return 0
}

func TestTracker_StableIdentity(t *testing.T) {
	tr := NewTracker(Config{})

	id := singleID(t, tr.Update([]Detection{det(100, 100)}))
	if id != 1 {
		t.Fatalf("first id = %d, want 1", id)
	}

	// Small movement keeps the same id.
	got := singleID(t, tr.Update([]Detection{det(110, 105)}))
	if got != id {
		t.Errorf("id after movement = %d, want %d", got, id)
	}
}

func TestTracker_NewTrackBeyondGate(t *testing.T) {
	tr := NewTracker(Config{MaxDistance: 100})
	tr.Update([]Detection{det(100, 100)})

	// Centroid jump of 500px exceeds the gate: old track misses, new track starts.
	assigned := tr.Update([]Detection{det(600, 100)})
	if _, ok := assigned[2]; !ok {
		t.Errorf("expected new id 2, got %v", assigned)
	}
	if tr.ActiveCount() != 2 {
		t.Errorf("ActiveCount = %d, want 2 (old track still within missing budget)", tr.ActiveCount())
	}
}

func TestTracker_GreedyFavoursOlderTrack(t *testing.T) {
	tr := NewTracker(Config{})
	tr.Update([]Detection{det(100, 100)})
	tr.Update([]Detection{det(100, 100), det(160, 100)})

	// One detection equidistant-ish between both tracks: track 1 scans first
	// and claims its nearest; track 2 gets nothing.
	assigned := tr.Update([]Detection{det(120, 100)})
	if _, ok := assigned[1]; !ok {
		t.Errorf("expected track 1 to claim the detection, got %v", assigned)
	}
	if _, ok := assigned[2]; ok {
		t.Error("track 2 should not share the single detection")
	}
}

func TestTracker_OneDetectionOneTrack(t *testing.T) {
	tr := NewTracker(Config{})
	tr.Update([]Detection{det(100, 100), det(150, 100)})

	// Both existing tracks are within the gate of a single detection; only
	// one may claim it.
	assigned := tr.Update([]Detection{det(125, 100)})
	if len(assigned) != 1 {
		t.Errorf("got %d assignments for one detection, want 1: %v", len(assigned), assigned)
	}
}

func TestTracker_Eviction(t *testing.T) {
	tr := NewTracker(Config{MaxFramesMissing: 3})
	tr.Update([]Detection{det(100, 100)})

	for i := 0; i < 3; i++ {
		tr.Update(nil)
	}
	if tr.ActiveCount() != 1 {
		t.Fatalf("track evicted too early after 3 missing frames")
	}
	tr.Update(nil)
	if tr.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after exceeding missing budget, want 0", tr.ActiveCount())
	}

	// Reappearance gets a fresh id, never a recycled one.
	got := singleID(t, tr.Update([]Detection{det(100, 100)}))
	if got != 2 {
		t.Errorf("id after eviction = %d, want 2", got)
	}
}

func TestTracker_MatchResetsMissingCounter(t *testing.T) {
	tr := NewTracker(Config{MaxFramesMissing: 2})
	tr.Update([]Detection{det(100, 100)})
	tr.Update(nil)
	tr.Update(nil)
	tr.Update([]Detection{det(100, 100)})
	tr.Update(nil)
	tr.Update(nil)

	if tr.ActiveCount() != 1 {
		t.Error("missing counter should reset on a successful match")
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(Config{})
	tr.Update([]Detection{det(100, 100), det(400, 100)})
	tr.Reset()

	if tr.ActiveCount() != 0 {
		t.Fatalf("ActiveCount after Reset = %d, want 0", tr.ActiveCount())
	}

	// Id sequence continues across resets.
	got := singleID(t, tr.Update([]Detection{det(100, 100)}))
	if got != 3 {
		t.Errorf("id after reset = %d, want 3", got)
	}
}

func TestTracker_MultiplePeople(t *testing.T) {
	tr := NewTracker(Config{})
	tr.Update([]Detection{det(100, 100), det(500, 100)})

	// Both move slightly; each keeps its id.
	assigned := tr.Update([]Detection{det(505, 110), det(95, 105)})
	if assigned[1].X != 95 {
		t.Errorf("track 1 = %+v, want the left detection", assigned[1])
	}
	if assigned[2].X != 505 {
		t.Errorf("track 2 = %+v, want the right detection", assigned[2])
	}
}
