package surveillance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/visiontrack/visiontrack/internal/alert"
	"github.com/visiontrack/visiontrack/internal/geom"
	"github.com/visiontrack/visiontrack/internal/pose"
)

// Config contains surveillance engine tuning.
type Config struct {
	// MaxMatchDistance gates position-based identity matching, in pixels.
	MaxMatchDistance float64

	// SpeedThreshold raises a rapid-movement alert, in px/s.
	SpeedThreshold float64

	// LoiterVariance is the positional variance ceiling for loitering, px².
	LoiterVariance float64

	// LoiterWindow is how many recent positions loitering is judged over.
	LoiterWindow int

	// LoiterTime is the minimum dwell before loitering can fire.
	LoiterTime time.Duration

	// FallAngle is the posture angle from vertical that counts as a fall,
	// in degrees.
	FallAngle float64

	// PositionHistory and PoseHistory bound the per-track ring buffers.
	PositionHistory int
	PoseHistory     int
}

// DefaultConfig returns the standard surveillance tuning.
func DefaultConfig() Config {
	return Config{
		MaxMatchDistance: 100,
		SpeedThreshold:   300,
		LoiterVariance:   1000,
		LoiterWindow:     10,
		LoiterTime:       30 * time.Second,
		FallAngle:        45,
		PositionHistory:  50,
		PoseHistory:      20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxMatchDistance <= 0 {
		c.MaxMatchDistance = def.MaxMatchDistance
	}
	if c.SpeedThreshold <= 0 {
		c.SpeedThreshold = def.SpeedThreshold
	}
	if c.LoiterVariance <= 0 {
		c.LoiterVariance = def.LoiterVariance
	}
	if c.LoiterWindow <= 0 {
		c.LoiterWindow = def.LoiterWindow
	}
	if c.LoiterTime <= 0 {
		c.LoiterTime = def.LoiterTime
	}
	if c.FallAngle <= 0 {
		c.FallAngle = def.FallAngle
	}
	if c.PositionHistory <= 0 {
		c.PositionHistory = def.PositionHistory
	}
	if c.PoseHistory <= 0 {
		c.PoseHistory = def.PoseHistory
	}
	return c
}

type timedPoint struct {
	Pos  geom.Point
	Time time.Time
}

// PersonTrack is the per-person surveillance record.
type PersonTrack struct {
	ID         int
	FirstSeen  time.Time
	LastSeen   time.Time
	Speed      float64
	AlertCount int

	positions   []timedPoint
	features    []pose.Features
	zonesInside map[string]bool
}

// Position returns the most recent tracked position.
func (t *PersonTrack) Position() geom.Point {
	if len(t.positions) == 0 {
		return geom.Point{}
	}
	return t.positions[len(t.positions)-1].Pos
}

// TrackSummary is the API-facing view of a track.
type TrackSummary struct {
	ID         int        `json:"id"`
	Position   geom.Point `json:"position"`
	Speed      float64    `json:"speed"`
	FirstSeen  time.Time  `json:"first_seen"`
	LastSeen   time.Time  `json:"last_seen"`
	AlertCount int        `json:"alert_count"`
	InZones    []string   `json:"in_zones"`
}

// Summary is the engine-wide surveillance snapshot.
type Summary struct {
	TotalPeopleDetected int                `json:"total_people_detected"`
	ActiveTracks        int                `json:"active_tracks"`
	AlertsByType        map[alert.Type]int `json:"alerts_by_type"`
	AlertsByPerson      map[int]int        `json:"alerts_by_person"`
	Tracks              []TrackSummary     `json:"tracks"`
}

// Engine analyzes per-frame positions and pose features, raising alerts
// through the alert system. Owned by the frame-processing goroutine; not
// safe for concurrent use.
type Engine struct {
	config    Config
	zones     []Zone
	alerts    *alert.System
	sessionID string

	tracks      map[int]*PersonTrack
	nextID      int
	totalPeople int

	byType   map[alert.Type]int
	byPerson map[int]int
}

// NewEngine creates a surveillance engine. Zero-valued config fields take
// defaults.
func NewEngine(config Config, zones []Zone, alerts *alert.System) *Engine {
	return &Engine{
		config:   config.withDefaults(),
		zones:    zones,
		alerts:   alerts,
		tracks:   make(map[int]*PersonTrack),
		nextID:   1,
		byType:   make(map[alert.Type]int),
		byPerson: make(map[int]int),
	}
}

// SetSessionID tags subsequent alerts with the session identifier.
func (e *Engine) SetSessionID(id string) {
	e.sessionID = id
}

// Zones returns the configured zones.
func (e *Engine) Zones() []Zone {
	out := make([]Zone, len(e.zones))
	copy(out, e.zones)
	return out
}

// AddZone registers a zone for subsequent frames.
func (e *Engine) AddZone(z Zone) {
	e.zones = append(e.zones, z)
}

// RemoveZone deletes a zone by id, reporting whether it existed.
func (e *Engine) RemoveZone(id string) bool {
	for i, z := range e.zones {
		if z.ID == id {
			e.zones = append(e.zones[:i], e.zones[i+1:]...)
			return true
		}
	}
	return false
}

// ProcessFrame runs one frame of surveillance analysis.
func (e *Engine) ProcessFrame(frame pose.Frame) {
	for _, person := range frame.People {
		pos, ok := person.Landmarks.HipMidpoint()
		if !ok {
			continue
		}
		track := e.match(pos, frame.Time, person.Confidence)
		e.observe(track, pos, frame.Time, person.Landmarks)
	}
}

// match finds the nearest existing track within the gate, scanning in
// ascending id order, or starts a new one.
func (e *Engine) match(pos geom.Point, now time.Time, confidence float64) *PersonTrack {
	ids := make([]int, 0, len(e.tracks))
	for id := range e.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var best *PersonTrack
	bestDist := e.config.MaxMatchDistance
	for _, id := range ids {
		t := e.tracks[id]
		d := t.Position().Dist(pos)
		if d <= bestDist {
			bestDist = d
			best = t
		}
	}
	if best != nil {
		return best
	}

	t := &PersonTrack{
		ID:          e.nextID,
		FirstSeen:   now,
		zonesInside: make(map[string]bool),
	}
	e.nextID++
	e.totalPeople++
	e.tracks[t.ID] = t

	e.addAlert(alert.TypePersonDetected, t, pos, confidence,
		fmt.Sprintf("person %d detected", t.ID))
	return t
}

// observe records the frame's position and features and runs the alert
// heuristics.
func (e *Engine) observe(t *PersonTrack, pos geom.Point, now time.Time, lm pose.Landmarks) {
	t.positions = append(t.positions, timedPoint{Pos: pos, Time: now})
	if len(t.positions) > e.config.PositionHistory {
		t.positions = t.positions[1:]
	}
	t.LastSeen = now

	if features, ok := lm.ComputeFeatures(); ok {
		t.features = append(t.features, features)
		if len(t.features) > e.config.PoseHistory {
			t.features = t.features[1:]
		}
		e.checkFall(t, pos, features)
	}

	e.checkSpeed(t, pos)
	e.checkLoitering(t, pos)
	e.checkZones(t, pos)
}

func (e *Engine) checkSpeed(t *PersonTrack, pos geom.Point) {
	n := len(t.positions)
	if n < 2 {
		t.Speed = 0
		return
	}
	prev, cur := t.positions[n-2], t.positions[n-1]
	dt := cur.Time.Sub(prev.Time).Seconds()
	if dt <= 0 {
		return
	}
	t.Speed = prev.Pos.Dist(cur.Pos) / dt
	if t.Speed > e.config.SpeedThreshold {
		e.addAlert(alert.TypeRapidMovement, t, pos, 0.8,
			fmt.Sprintf("person %d moving at %.0f px/s", t.ID, t.Speed))
	}
}

func (e *Engine) checkLoitering(t *PersonTrack, pos geom.Point) {
	if len(t.positions) < e.config.LoiterWindow {
		return
	}
	window := t.positions[len(t.positions)-e.config.LoiterWindow:]
	span := window[len(window)-1].Time.Sub(window[0].Time)
	if span <= e.config.LoiterTime {
		return
	}

	xs := make([]float64, len(window))
	ys := make([]float64, len(window))
	for i, p := range window {
		xs[i] = p.Pos.X
		ys[i] = p.Pos.Y
	}
	centroid := geom.Point{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil)}
	variance := 0.0
	for _, p := range window {
		d := p.Pos.Dist(centroid)
		variance += d * d
	}
	variance /= float64(len(window))

	if variance < e.config.LoiterVariance {
		e.addAlert(alert.TypeLoitering, t, pos, 0.7,
			fmt.Sprintf("person %d loitering for %.0fs", t.ID, span.Seconds()))
	}
}

func (e *Engine) checkZones(t *PersonTrack, pos geom.Point) {
	for _, z := range e.zones {
		if !z.Enabled {
			continue
		}
		inside := z.Contains(pos)
		was := t.zonesInside[z.ID]
		switch {
		case inside && !was:
			t.zonesInside[z.ID] = true
			e.addAlert(z.AlertType, t, pos, 0.9,
				fmt.Sprintf("person %d entered %s", t.ID, z.Name))
		case !inside && was:
			// Exit clears occupancy silently; no alert.
			delete(t.zonesInside, z.ID)
		}
	}
}

func (e *Engine) checkFall(t *PersonTrack, pos geom.Point, f pose.Features) {
	angle := math.Abs(f.PostureAngle)
	if angle <= e.config.FallAngle {
		return
	}
	confidence := angle / 90
	if confidence > 0.9 {
		confidence = 0.9
	}
	e.addAlert(alert.TypeFallDetected, t, pos, confidence,
		fmt.Sprintf("person %d posture %.0f degrees from vertical", t.ID, angle))
}

// addAlert is the single funnel to the alert system. Only delivered alerts
// (cooldown passed) are counted; suppressed duplicates are dropped
// entirely.
func (e *Engine) addAlert(at alert.Type, t *PersonTrack, pos geom.Point, confidence float64, description string) {
	if e.alerts == nil {
		return
	}
	if !e.alerts.Trigger(at, t.ID, pos, confidence, description, e.sessionID) {
		return
	}
	e.byType[at]++
	e.byPerson[t.ID]++
	t.AlertCount++
}

// Summarize returns the engine-wide snapshot.
func (e *Engine) Summarize() Summary {
	s := Summary{
		TotalPeopleDetected: e.totalPeople,
		ActiveTracks:        len(e.tracks),
		AlertsByType:        make(map[alert.Type]int, len(e.byType)),
		AlertsByPerson:      make(map[int]int, len(e.byPerson)),
	}
	for k, v := range e.byType {
		s.AlertsByType[k] = v
	}
	for k, v := range e.byPerson {
		s.AlertsByPerson[k] = v
	}

	ids := make([]int, 0, len(e.tracks))
	for id := range e.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		t := e.tracks[id]
		zones := make([]string, 0, len(t.zonesInside))
		for z := range t.zonesInside {
			zones = append(zones, z)
		}
		sort.Strings(zones)
		s.Tracks = append(s.Tracks, TrackSummary{
			ID:         t.ID,
			Position:   t.Position(),
			Speed:      t.Speed,
			FirstSeen:  t.FirstSeen,
			LastSeen:   t.LastSeen,
			AlertCount: t.AlertCount,
			InZones:    zones,
		})
	}
	return s
}

// Reset drops all tracks and counters for a fresh session. Zones are kept;
// track ids continue, never recycled.
func (e *Engine) Reset() {
	e.tracks = make(map[int]*PersonTrack)
	e.totalPeople = 0
	e.byType = make(map[alert.Type]int)
	e.byPerson = make(map[int]int)
}
