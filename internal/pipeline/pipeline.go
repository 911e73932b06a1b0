// Package pipeline runs the frame-at-a-time analysis loop and publishes
// mutex-guarded snapshots for the HTTP layer.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/visiontrack/visiontrack/internal/alert"
	"github.com/visiontrack/visiontrack/internal/config"
	"github.com/visiontrack/visiontrack/internal/db"
	"github.com/visiontrack/visiontrack/internal/event"
	"github.com/visiontrack/visiontrack/internal/exercise"
	"github.com/visiontrack/visiontrack/internal/monitoring"
	"github.com/visiontrack/visiontrack/internal/pose"
	"github.com/visiontrack/visiontrack/internal/surveillance"
	"github.com/visiontrack/visiontrack/internal/timeutil"
	"github.com/visiontrack/visiontrack/internal/track"
)

// Mode selects which analysis runs on incoming frames.
type Mode string

const (
	ModeFitness      Mode = "fitness"
	ModeSurveillance Mode = "surveillance"
)

// ParseMode validates a mode name from the API.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeFitness, ModeSurveillance:
		return Mode(s), true
	}
	return "", false
}

// Snapshot is the point-in-time state the HTTP layer reads. All fields are
// copies; reading a snapshot never races the frame loop.
type Snapshot struct {
	Running         bool                 `json:"running"`
	Mode            Mode                 `json:"mode"`
	SessionID       string               `json:"session_id"`
	FramesProcessed int64                `json:"frames_processed"`
	LastFrameTime   time.Time            `json:"last_frame_time"`
	ActiveExercise  exercise.Type        `json:"active_exercise"`
	Fitness         exercise.Stats       `json:"fitness"`
	Surveillance    surveillance.Summary `json:"surveillance"`
	AlertStats      alert.Stats          `json:"alert_stats"`
}

// RunnerConfig wires the runner's collaborators.
type RunnerConfig struct {
	Mode   Mode
	Source pose.Source

	// Store is optional; without it sessions and reps are not persisted.
	Store *db.DB

	Tuning *config.TuningConfig
	Zones  []surveillance.Zone
	Clock  timeutil.Clock

	// Sink receives analysis events in addition to the runner's own
	// persistence handling.
	Sink event.Sink
}

// Runner owns the trackers and drives them from the frame source. The
// mutex makes snapshot reads and control calls atomic with respect to the
// frame loop; all tracker state is only ever touched under it.
type Runner struct {
	mu sync.Mutex

	source pose.Source
	store  *db.DB
	clock  timeutil.Clock
	sink   event.Sink

	mode    Mode
	tracker *track.Tracker
	coord   *exercise.Coordinator
	engine  *surveillance.Engine
	alerts  *alert.System

	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	sessionID string

	framesProcessed int64
	lastFrameTime   time.Time
}

// NewRunner builds a runner and its analysis components from the tuning
// config.
func NewRunner(cfg RunnerConfig) *Runner {
	tuning := cfg.Tuning
	if tuning == nil {
		tuning = &config.TuningConfig{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeFitness
	}
	zones := cfg.Zones
	if zones == nil {
		zones = surveillance.DefaultZones()
	}

	r := &Runner{
		source: cfg.Source,
		store:  cfg.Store,
		clock:  clock,
		sink:   cfg.Sink,
		mode:   mode,
	}

	r.alerts = alert.NewSystem(alert.Config{
		Cooldown:   tuning.GetAlertCooldown(),
		MaxHistory: tuning.GetMaxAlertsInMemory(),
		Clock:      clock,
		Forward:    r.forwardAlert,
	})
	r.tracker = track.NewTracker(track.Config{
		MaxDistance:      tuning.GetMaxDistance(),
		MaxFramesMissing: tuning.GetMaxFramesMissing(),
	})
	r.coord = exercise.NewCoordinator(exercise.TypeSquat, exercise.Tuning{
		SmoothWindow:     tuning.GetSmoothWindow(),
		MinStateDuration: tuning.GetMinStateDuration(),
	}, clock, event.SinkFunc(r.handleExerciseEvent))
	r.engine = surveillance.NewEngine(surveillance.Config{
		MaxMatchDistance: tuning.GetMaxDistance(),
		SpeedThreshold:   tuning.GetSpeedThreshold(),
		LoiterVariance:   tuning.GetLoiterVariance(),
		LoiterWindow:     tuning.GetLoiterWindow(),
		LoiterTime:       tuning.GetLoiterTime(),
		FallAngle:        tuning.GetFallAngle(),
	}, zones, r.alerts)
	return r
}

// Alerts exposes the alert system for the HTTP layer.
func (r *Runner) Alerts() *alert.System {
	return r.alerts
}

// Zones returns the surveillance zones.
func (r *Runner) Zones() []surveillance.Zone {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.Zones()
}

// AddZone registers a surveillance zone.
func (r *Runner) AddZone(z surveillance.Zone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engine.AddZone(z)
}

// RemoveZone deletes a surveillance zone by id.
func (r *Runner) RemoveZone(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.RemoveZone(id)
}

// Start begins a session and launches the frame loop. It returns an error
// when already running.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("pipeline already running")
	}

	sessionID := fmt.Sprintf("%s_%s", r.mode, uuid.NewString())
	if r.store != nil {
		id, err := r.store.CreateSession(string(r.mode), r.clock.Now())
		if err != nil {
			return fmt.Errorf("failed to start session: %w", err)
		}
		sessionID = id
	}
	r.sessionID = sessionID
	r.engine.SetSessionID(sessionID)

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.loop(loopCtx)
	monitoring.Logf("pipeline started: session %s mode %s", sessionID, r.mode)
	return nil
}

// Stop halts the frame loop and closes the session. Safe to call when not
// running.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	if r.store != nil && r.sessionID != "" {
		stats := r.coord.AggregateStats()
		summary := r.engine.Summarize()
		if err := r.store.EndSession(r.sessionID, r.clock.Now(),
			stats.TotalReps, r.alerts.Stats().Total, summary.TotalPeopleDetected); err != nil {
			monitoring.Logf("failed to close session %s: %v", r.sessionID, err)
		}
	}
	monitoring.Logf("pipeline stopped: session %s", r.sessionID)
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)
	frames := r.source.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			r.ProcessFrame(frame)
		}
	}
}

// ProcessFrame runs one frame through the active analysis. Exported so
// replay tooling and tests can drive the pipeline synchronously.
func (r *Runner) ProcessFrame(frame pose.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.mode {
	case ModeSurveillance:
		r.engine.ProcessFrame(frame)
	default:
		r.processFitness(frame)
	}

	r.framesProcessed++
	r.lastFrameTime = frame.Time
}

func (r *Runner) processFitness(frame pose.Frame) {
	detections := make([]track.Detection, 0, len(frame.People))
	for i, person := range frame.People {
		box := person.BBox
		if box.W == 0 && box.H == 0 {
			// No detector box; fall back to a nominal box around the hips.
			hip, ok := person.Landmarks.HipMidpoint()
			if !ok {
				continue
			}
			box = pose.BBox{X: hip.X - 50, Y: hip.Y - 100, W: 100, H: 200}
		}
		detections = append(detections, track.Detection{
			X: box.X, Y: box.Y, W: box.W, H: box.H,
			Confidence: person.Confidence,
			Index:      i,
		})
	}

	assigned := r.tracker.Update(detections)
	for id, det := range assigned {
		r.coord.UpdatePerson(id, frame.People[det.Index].Landmarks, frame.Time)
	}
}

// handleExerciseEvent persists reps and forwards every event to the
// configured sink.
func (r *Runner) handleExerciseEvent(ev event.Event) {
	if ev.Kind == event.KindRepCompleted && r.store != nil && r.sessionID != "" {
		err := r.store.InsertRep(db.RepRow{
			SessionID: r.sessionID,
			PersonID:  ev.PersonID,
			Exercise:  ev.Exercise,
			RepNumber: ev.RepCount,
			MinAngle:  ev.MinAngle,
			FormScore: ev.FormScore,
			Time:      ev.Time,
		})
		if err != nil {
			monitoring.Logf("failed to persist rep: %v", err)
		}
	}
	event.Dispatch(r.sink, ev)
}

// forwardAlert persists delivered alerts and forwards them as events.
// Alerts raised outside a session have no row to attach to and stay
// in memory only.
func (r *Runner) forwardAlert(a alert.Alert) {
	if r.store != nil && r.sessionID != "" {
		if err := r.store.InsertAlert(a); err != nil {
			monitoring.Logf("failed to persist alert: %v", err)
		}
	}
	event.Dispatch(r.sink, event.Event{
		Kind:       event.KindAlert,
		Time:       a.Time,
		PersonID:   a.PersonID,
		AlertID:    a.ID,
		AlertType:  string(a.Type),
		Message:    a.Description,
		Confidence: a.Confidence,
	})
}

// SetMode switches the analysis mode for subsequent frames.
func (r *Runner) SetMode(m Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = m
}

// SetExercise switches the active exercise type.
func (r *Runner) SetExercise(t exercise.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coord.SetExercise(t)
}

// SetAutoDetect toggles exercise auto-detection.
func (r *Runner) SetAutoDetect(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coord.SetAutoDetect(enabled)
}

// Reset zeroes counters and histories while keeping identities and the
// current session.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coord.Reset()
	r.engine.Reset()
	r.alerts.Reset()
	r.tracker.Reset()
}

// RemoveInactive evicts people inactive beyond the threshold.
func (r *Runner) RemoveInactive(threshold time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coord.RemoveInactive(threshold, r.clock.Now())
}

// Snapshot returns a copy of the current state.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Running:         r.running,
		Mode:            r.mode,
		SessionID:       r.sessionID,
		FramesProcessed: r.framesProcessed,
		LastFrameTime:   r.lastFrameTime,
		ActiveExercise:  r.coord.ActiveExercise(),
		Fitness:         r.coord.AggregateStats(),
		Surveillance:    r.engine.Summarize(),
		AlertStats:      r.alerts.Stats(),
	}
}
