package exercise

import (
	"math"
	"testing"
	"time"

	"github.com/visiontrack/visiontrack/internal/event"
	"github.com/visiontrack/visiontrack/internal/pose"
	"github.com/visiontrack/visiontrack/internal/timeutil"
)

// squatLandmarks builds a pose whose fused knee angle equals the given value.
func squatLandmarks(knee float64) pose.Landmarks {
	var l pose.Landmarks
	l.LeftHip = lm(90, 100)
	l.RightHip = lm(110, 100)
	l.LeftKnee = lm(90, 200)
	l.RightKnee = lm(110, 200)

	phi := (180 - knee) * math.Pi / 180
	dx := 100 * math.Sin(phi)
	dy := 100 * math.Cos(phi)
	l.LeftAnkle = lm(90+dx, 200+dy)
	l.RightAnkle = lm(110+dx, 200+dy)
	return l
}

func runSquatSequence(c *Coordinator, clock *timeutil.MockClock, id int) {
	for _, angle := range []float64{170, 150, 120, 95, 120, 150, 170} {
		for i := 0; i < 8; i++ {
			clock.Advance(50 * time.Millisecond)
			c.UpdatePerson(id, squatLandmarks(angle), clock.Now())
		}
	}
}

func TestCoordinator_FullRepWithEvents(t *testing.T) {
	clock := timeutil.NewMockClock(testTime)
	var events []event.Event
	sink := event.SinkFunc(func(ev event.Event) {
		events = append(events, ev)
	})

	c := NewCoordinator(TypeSquat, Tuning{}, clock, sink)
	runSquatSequence(c, clock, 1)

	var newPerson, reps, transitions int
	var repEvent event.Event
	for _, ev := range events {
		switch ev.Kind {
		case event.KindNewPerson:
			newPerson++
		case event.KindRepCompleted:
			reps++
			repEvent = ev
		case event.KindStateChanged:
			transitions++
		}
	}

	if newPerson != 1 {
		t.Errorf("NewPerson events = %d, want 1", newPerson)
	}
	if reps != 1 {
		t.Fatalf("RepCompleted events = %d, want 1", reps)
	}
	if repEvent.PersonID != 1 || repEvent.RepCount != 1 || repEvent.Exercise != string(TypeSquat) {
		t.Errorf("rep event = %+v, want person 1, rep 1, squat", repEvent)
	}
	if math.Abs(repEvent.MinAngle-95) > 1e-6 {
		t.Errorf("rep event MinAngle = %v, want 95", repEvent.MinAngle)
	}
	if transitions < 4 {
		t.Errorf("StateChanged events = %d, want the full phase cycle", transitions)
	}
}

func TestCoordinator_AggregateStats(t *testing.T) {
	clock := timeutil.NewMockClock(testTime)
	c := NewCoordinator(TypeSquat, Tuning{}, clock, nil)

	runSquatSequence(c, clock, 1)
	// Person 2 just stands there.
	for i := 0; i < 8; i++ {
		clock.Advance(50 * time.Millisecond)
		c.UpdatePerson(2, squatLandmarks(175), clock.Now())
	}

	s := c.AggregateStats()
	if s.TotalReps != 1 || s.ActivePeople != 2 {
		t.Errorf("stats = %+v, want 1 rep across 2 people", s)
	}
	if s.AvgRepsPerPerson != 0.5 {
		t.Errorf("AvgRepsPerPerson = %v, want 0.5", s.AvgRepsPerPerson)
	}
	if s.BestPerformer != 1 || s.BestRepCount != 1 {
		t.Errorf("best = person %d with %d, want person 1 with 1", s.BestPerformer, s.BestRepCount)
	}
	if s.SessionDuration <= 0 {
		t.Errorf("SessionDuration = %v, want positive", s.SessionDuration)
	}
}

func TestCoordinator_ResetPreservesIdentities(t *testing.T) {
	clock := timeutil.NewMockClock(testTime)
	c := NewCoordinator(TypeSquat, Tuning{}, clock, nil)
	runSquatSequence(c, clock, 1)
	c.UpdatePerson(2, squatLandmarks(175), clock.Now())

	c.Reset()

	if got := c.AggregateStats().TotalReps; got != 0 {
		t.Errorf("TotalReps after reset = %d, want 0", got)
	}
	ids := c.PersonIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("PersonIDs after reset = %v, want [1 2]", ids)
	}
}

func TestCoordinator_RemoveInactive(t *testing.T) {
	clock := timeutil.NewMockClock(testTime)
	c := NewCoordinator(TypeSquat, Tuning{}, clock, nil)

	c.UpdatePerson(1, squatLandmarks(175), clock.Now())
	clock.Advance(31 * time.Second)
	c.UpdatePerson(2, squatLandmarks(175), clock.Now())

	removed := c.RemoveInactive(30*time.Second, clock.Now())
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	ids := c.PersonIDs()
	if len(ids) != 1 || ids[0] != 2 {
		t.Errorf("PersonIDs = %v, want [2]", ids)
	}
}

func TestCoordinator_PanickingSinkDoesNotCorruptState(t *testing.T) {
	clock := timeutil.NewMockClock(testTime)
	sink := event.SinkFunc(func(ev event.Event) {
		panic("subscriber bug")
	})
	c := NewCoordinator(TypeSquat, Tuning{}, clock, sink)

	runSquatSequence(c, clock, 1)

	if got := c.AggregateStats().TotalReps; got != 1 {
		t.Errorf("TotalReps = %d with panicking sink, want 1", got)
	}
}

func TestCoordinator_SetExercise(t *testing.T) {
	clock := timeutil.NewMockClock(testTime)
	c := NewCoordinator(TypeSquat, Tuning{}, clock, nil)
	c.UpdatePerson(1, squatLandmarks(170), clock.Now())

	c.SetExercise(TypeCurl)
	res := c.UpdatePerson(1, squatLandmarks(170), clock.Now())
	if res.Type != TypeCurl {
		t.Errorf("result type = %v after SetExercise, want curl", res.Type)
	}
}
