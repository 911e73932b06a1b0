package pipeline

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiontrack/visiontrack/internal/alert"
	"github.com/visiontrack/visiontrack/internal/db"
	"github.com/visiontrack/visiontrack/internal/event"
	"github.com/visiontrack/visiontrack/internal/exercise"
	"github.com/visiontrack/visiontrack/internal/geom"
	"github.com/visiontrack/visiontrack/internal/pose"
	"github.com/visiontrack/visiontrack/internal/timeutil"
)

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func lm(x, y float64) pose.Landmark {
	return pose.Landmark{Pos: geom.Point{X: x, Y: y}, Visibility: 1, Valid: true}
}

// squatPose builds a person whose fused knee angle equals the given value.
func squatPose(knee float64) pose.PersonPose {
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

	return pose.PersonPose{
		BBox:       pose.BBox{X: 40, Y: 50, W: 120, H: 260},
		Confidence: 0.95,
		Landmarks:  l,
	}
}

// standingAt builds an upright person with hips centred on (x, y).
func standingAt(x, y float64) pose.PersonPose {
	var l pose.Landmarks
	l.LeftShoulder = lm(x-10, y-60)
	l.RightShoulder = lm(x+10, y-60)
	l.LeftHip = lm(x-10, y)
	l.RightHip = lm(x+10, y)
	return pose.PersonPose{Confidence: 0.9, Landmarks: l}
}

// runSquat drives one full repetition through the runner frame by frame.
func runSquat(r *Runner, clock *timeutil.MockClock) {
	for _, angle := range []float64{170, 150, 120, 95, 120, 150, 170} {
		for i := 0; i < 8; i++ {
			clock.Advance(50 * time.Millisecond)
			r.ProcessFrame(pose.Frame{
				Time:   clock.Now(),
				People: []pose.PersonPose{squatPose(angle)},
			})
		}
	}
}

func TestRunner_FitnessRep(t *testing.T) {
	clock := timeutil.NewMockClock(testTime)
	var events []event.Event
	r := NewRunner(RunnerConfig{
		Mode:  ModeFitness,
		Clock: clock,
		Sink:  event.SinkFunc(func(ev event.Event) { events = append(events, ev) }),
	})

	runSquat(r, clock)

	snap := r.Snapshot()
	assert.Equal(t, ModeFitness, snap.Mode)
	assert.EqualValues(t, 56, snap.FramesProcessed)
	assert.Equal(t, exercise.TypeSquat, snap.ActiveExercise)
	assert.Equal(t, 1, snap.Fitness.TotalReps)
	assert.Equal(t, 1, snap.Fitness.ActivePeople)
	assert.True(t, snap.LastFrameTime.Equal(clock.Now()))

	var newPerson, reps int
	for _, ev := range events {
		switch ev.Kind {
		case event.KindNewPerson:
			newPerson++
		case event.KindRepCompleted:
			reps++
			assert.Equal(t, 1, ev.PersonID)
			assert.InDelta(t, 95, ev.MinAngle, 1e-6)
		}
	}
	assert.Equal(t, 1, newPerson)
	assert.Equal(t, 1, reps)
}

func TestRunner_FitnessTracksWithoutBBox(t *testing.T) {
	clock := timeutil.NewMockClock(testTime)
	r := NewRunner(RunnerConfig{Mode: ModeFitness, Clock: clock})

	// The detector box is absent; tracking falls back to the hip position.
	person := squatPose(170)
	person.BBox = pose.BBox{}
	r.ProcessFrame(pose.Frame{Time: clock.Now(), People: []pose.PersonPose{person}})

	assert.Equal(t, 1, r.Snapshot().Fitness.ActivePeople)
}

func TestRunner_SurveillanceAlerts(t *testing.T) {
	clock := timeutil.NewMockClock(testTime)
	var events []event.Event
	r := NewRunner(RunnerConfig{
		Mode:  ModeSurveillance,
		Clock: clock,
		Sink:  event.SinkFunc(func(ev event.Event) { events = append(events, ev) }),
	})

	// Hips at (400, 300), well outside the default restricted zone.
	r.ProcessFrame(pose.Frame{
		Time:   clock.Now(),
		People: []pose.PersonPose{standingAt(400, 300)},
	})

	snap := r.Snapshot()
	assert.Equal(t, 1, snap.Surveillance.TotalPeopleDetected)
	assert.Equal(t, 1, snap.Surveillance.ActiveTracks)
	assert.Equal(t, 1, snap.AlertStats.Total)

	require.Len(t, events, 1)
	assert.Equal(t, event.KindAlert, events[0].Kind)
	assert.Equal(t, string(alert.TypePersonDetected), events[0].AlertType)
	assert.Equal(t, 1, events[0].PersonID)
}

func TestRunner_SetModeSwitchesAnalysis(t *testing.T) {
	clock := timeutil.NewMockClock(testTime)
	r := NewRunner(RunnerConfig{Mode: ModeFitness, Clock: clock})

	r.ProcessFrame(pose.Frame{Time: clock.Now(), People: []pose.PersonPose{squatPose(170)}})
	r.SetMode(ModeSurveillance)
	clock.Advance(50 * time.Millisecond)
	r.ProcessFrame(pose.Frame{Time: clock.Now(), People: []pose.PersonPose{standingAt(400, 300)}})

	snap := r.Snapshot()
	assert.Equal(t, ModeSurveillance, snap.Mode)
	assert.Equal(t, 1, snap.Fitness.ActivePeople)
	assert.Equal(t, 1, snap.Surveillance.TotalPeopleDetected)
}

func TestRunner_Reset(t *testing.T) {
	clock := timeutil.NewMockClock(testTime)
	r := NewRunner(RunnerConfig{Mode: ModeFitness, Clock: clock})
	runSquat(r, clock)
	require.Equal(t, 1, r.Snapshot().Fitness.TotalReps)

	r.Reset()

	snap := r.Snapshot()
	assert.Equal(t, 0, snap.Fitness.TotalReps)
	assert.Equal(t, 0, snap.AlertStats.Total)
}

func TestRunner_StartStop(t *testing.T) {
	src := &pose.ChanSource{C: make(chan pose.Frame, 8)}
	r := NewRunner(RunnerConfig{Mode: ModeFitness, Source: src})

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.Snapshot().Running)
	assert.Error(t, r.Start(context.Background()))

	for i := 0; i < 3; i++ {
		src.C <- pose.Frame{Time: testTime.Add(time.Duration(i) * 50 * time.Millisecond)}
	}
	close(src.C)

	deadline := time.Now().Add(2 * time.Second)
	for r.Snapshot().FramesProcessed < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.EqualValues(t, 3, r.Snapshot().FramesProcessed)

	r.Stop()
	assert.False(t, r.Snapshot().Running)
	r.Stop()
}

func openTestStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.MigrateUp("../../migrations"))
	return store
}

func TestRunner_AlertsOutsideSessionStayInMemory(t *testing.T) {
	store := openTestStore(t)
	clock := timeutil.NewMockClock(testTime)
	r := NewRunner(RunnerConfig{
		Mode:  ModeSurveillance,
		Store: store,
		Clock: clock,
	})

	// No Start: frames driven directly, so there is no session row.
	r.ProcessFrame(pose.Frame{
		Time:   clock.Now(),
		People: []pose.PersonPose{standingAt(400, 300)},
	})
	require.Equal(t, 1, r.Snapshot().AlertStats.Total)

	var count int
	require.NoError(t, store.QueryRow(`SELECT COUNT(*) FROM alerts`).Scan(&count))
	assert.Zero(t, count)
}

func TestRunner_PersistsSessionRepsAndAlerts(t *testing.T) {
	store := openTestStore(t)

	clock := timeutil.NewMockClock(testTime)
	src := &pose.ChanSource{C: make(chan pose.Frame)}
	r := NewRunner(RunnerConfig{
		Mode:   ModeFitness,
		Source: src,
		Store:  store,
		Clock:  clock,
	})

	require.NoError(t, r.Start(context.Background()))
	sessionID := r.Snapshot().SessionID
	require.NotEmpty(t, sessionID)

	runSquat(r, clock)

	r.SetMode(ModeSurveillance)
	clock.Advance(50 * time.Millisecond)
	r.ProcessFrame(pose.Frame{
		Time:   clock.Now(),
		People: []pose.PersonPose{standingAt(400, 300)},
	})

	clock.Advance(time.Minute)
	r.Stop()

	sessions, err := store.Sessions(0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].ID)
	require.NotNil(t, sessions[0].EndTime)
	assert.Equal(t, 1, sessions[0].TotalReps)
	assert.Equal(t, 1, sessions[0].TotalAlerts)
	assert.Equal(t, 1, sessions[0].PeopleDetected)

	reps, err := store.SessionReps(sessionID)
	require.NoError(t, err)
	require.Len(t, reps, 1)
	assert.Equal(t, "squat", reps[0].Exercise)
	assert.Equal(t, 1, reps[0].RepNumber)

	alerts, err := store.SessionAlerts(sessionID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.TypePersonDetected, alerts[0].Type)
}
