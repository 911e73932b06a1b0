// Package exercise converts per-frame joint angles into repetition counts,
// phase transitions and form scores, one state machine per person and
// exercise type.
package exercise

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/visiontrack/visiontrack/internal/geom"
	"github.com/visiontrack/visiontrack/internal/pose"
)

// Type identifies an exercise.
type Type string

const (
	TypeSquat  Type = "squat"
	TypePushup Type = "pushup"
	TypeCurl   Type = "bicep_curl"
)

// Types lists the supported exercise types.
var Types = []Type{TypeSquat, TypePushup, TypeCurl}

// ParseType validates an exercise name from the API.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeSquat, TypePushup, TypeCurl:
		return Type(s), true
	}
	return "", false
}

// Phase is the position within a rep's motion cycle.
type Phase string

const (
	PhaseUnknown    Phase = "unknown"
	PhaseStanding   Phase = "standing"
	PhaseDescending Phase = "descending"
	PhaseBottom     Phase = "bottom"
	PhaseAscending  Phase = "ascending"
)

// scoreMode selects how form quality is judged.
type scoreMode int

const (
	// scoreDepth rewards reaching a target angle band at the bottom.
	scoreDepth scoreMode = iota
	// scoreSmoothness rewards steady frame-to-frame angle motion.
	scoreSmoothness
)

// Params are the per-type thresholds. UpThreshold is the "upright/extended"
// side and DownThreshold the "compressed/curled" side of the motion; for
// every supported type the compressed side is the numerically smaller angle,
// so one threshold topology serves all three.
type Params struct {
	Type          Type
	UpThreshold   float64
	DownThreshold float64
	DepthMin      float64
	DepthMax      float64
	Mode          scoreMode
	Confidence    float64
}

// ParamsFor returns the standard tuning for an exercise type.
func ParamsFor(t Type) Params {
	switch t {
	case TypePushup:
		return Params{
			Type:          TypePushup,
			UpThreshold:   160,
			DownThreshold: 90,
			DepthMin:      80,
			DepthMax:      100,
			Mode:          scoreDepth,
			Confidence:    0.8,
		}
	case TypeCurl:
		return Params{
			Type:          TypeCurl,
			UpThreshold:   160,
			DownThreshold: 40,
			Mode:          scoreSmoothness,
			Confidence:    0.7,
		}
	default:
		return Params{
			Type:          TypeSquat,
			UpThreshold:   160,
			DownThreshold: 100,
			DepthMin:      90,
			DepthMax:      110,
			Mode:          scoreDepth,
			Confidence:    0.9,
		}
	}
}

// AngleFor measures the joint angle an exercise type is driven by, fusing
// the left and right limbs. ok=false means no usable reading this frame.
func AngleFor(t Type, lm pose.Landmarks) (float64, bool) {
	switch t {
	case TypeSquat:
		return fusedAngle(lm.LeftHip, lm.LeftKnee, lm.LeftAnkle,
			lm.RightHip, lm.RightKnee, lm.RightAnkle)
	default:
		return fusedAngle(lm.LeftShoulder, lm.LeftElbow, lm.LeftWrist,
			lm.RightShoulder, lm.RightElbow, lm.RightWrist)
	}
}

func fusedAngle(la, lb, lc, ra, rb, rc pose.Landmark) (float64, bool) {
	var left, right float64
	var leftOK, rightOK bool
	if la.Valid && lb.Valid && lc.Valid {
		left, leftOK = geom.Angle(la.Pos, lb.Pos, lc.Pos)
	}
	if ra.Valid && rb.Valid && rc.Valid {
		right, rightOK = geom.Angle(ra.Pos, rb.Pos, rc.Pos)
	}
	return geom.Average(left, right, leftOK, rightOK)
}

// RepRecord is one completed repetition.
type RepRecord struct {
	MinAngle float64
	Time     time.Time
}

// Result is the outcome of one state machine update.
type Result struct {
	Type          Type
	Phase         Phase
	SmoothedAngle float64
	AngleValid    bool
	RepCount      int
	FormScore     float64
	Confidence    float64

	// Set on the update that commits the rep-completing transition.
	RepCompleted bool
	MinAngle     float64

	// Set on any committed phase transition.
	PhaseChanged bool
	PrevPhase    Phase
}

const (
	defaultSmoothWindow     = 5
	defaultMinStateDuration = 3

	formScoreFloor = 60
	formScoreCeil  = 100
)

// Tuning are the noise-handling knobs shared by all machines.
type Tuning struct {
	// SmoothWindow is the bounded angle queue length.
	SmoothWindow int

	// MinStateDuration is how many consecutive frames a candidate phase
	// must be recomputed before it commits.
	MinStateDuration int
}

// DefaultTuning returns the standard smoothing and debounce settings.
func DefaultTuning() Tuning {
	return Tuning{
		SmoothWindow:     defaultSmoothWindow,
		MinStateDuration: defaultMinStateDuration,
	}
}

// StateMachine tracks one person performing one exercise type. Not safe for
// concurrent use.
type StateMachine struct {
	params Params
	tuning Tuning

	window   []float64
	smoothed float64
	prev     float64
	prevOK   bool

	phase          Phase
	candidate      Phase
	candidateCount int

	repCount    int
	minAngle    float64
	minRecorded bool
	reps        []RepRecord

	formScore float64
}

// NewStateMachine creates a machine with the given parameters. Zero-valued
// tuning fields take defaults.
func NewStateMachine(params Params, tuning Tuning) *StateMachine {
	def := DefaultTuning()
	if tuning.SmoothWindow <= 0 {
		tuning.SmoothWindow = def.SmoothWindow
	}
	if tuning.MinStateDuration <= 0 {
		tuning.MinStateDuration = def.MinStateDuration
	}
	return &StateMachine{
		params:    params,
		tuning:    tuning,
		phase:     PhaseUnknown,
		formScore: formScoreCeil,
	}
}

// Update feeds one frame's angle reading. angleOK=false holds the current
// state without touching the smoothing window, so sporadic missing data
// never resets progress.
func (m *StateMachine) Update(angle float64, angleOK bool, now time.Time) Result {
	res := Result{
		Type:       m.params.Type,
		Phase:      m.phase,
		RepCount:   m.repCount,
		FormScore:  m.formScore,
		Confidence: m.params.Confidence,
	}
	if !angleOK {
		res.SmoothedAngle = m.smoothed
		res.AngleValid = len(m.window) > 0
		return res
	}

	m.window = append(m.window, angle)
	if len(m.window) > m.tuning.SmoothWindow {
		m.window = m.window[1:]
	}
	m.prevOK = len(m.window) > 1
	m.prev = m.smoothed
	m.smoothed = stat.Mean(m.window, nil)

	newPhase := m.computePhase()
	m.debounce(newPhase, now, &res)

	if m.phase == PhaseBottom {
		if !m.minRecorded || m.smoothed < m.minAngle {
			m.minAngle = m.smoothed
		}
		m.minRecorded = true
	}
	m.score()

	res.Phase = m.phase
	res.SmoothedAngle = m.smoothed
	res.AngleValid = true
	res.RepCount = m.repCount
	res.FormScore = m.formScore
	return res
}

// computePhase maps the smoothed angle onto a phase. In the band between
// the two thresholds the trend of the smoothed signal disambiguates
// direction; a flat signal holds the current phase so an isolated outlier
// sample cannot manufacture motion.
func (m *StateMachine) computePhase() Phase {
	switch {
	case m.smoothed >= m.params.UpThreshold:
		return PhaseStanding
	case m.smoothed <= m.params.DownThreshold:
		return PhaseBottom
	}

	if m.prevOK {
		if m.smoothed < m.prev {
			return PhaseDescending
		}
		if m.smoothed > m.prev {
			return PhaseAscending
		}
	}
	return m.phase
}

// debounce commits newPhase only after it has been recomputed for
// MinStateDuration consecutive frames, then applies transition effects.
func (m *StateMachine) debounce(newPhase Phase, now time.Time, res *Result) {
	if newPhase == m.phase {
		m.candidate = ""
		m.candidateCount = 0
		return
	}
	if newPhase != m.candidate {
		m.candidate = newPhase
		m.candidateCount = 1
	} else {
		m.candidateCount++
	}
	if m.candidateCount < m.tuning.MinStateDuration {
		return
	}

	prev := m.phase
	m.phase = newPhase
	m.candidate = ""
	m.candidateCount = 0
	res.PhaseChanged = true
	res.PrevPhase = prev

	if prev == PhaseAscending && newPhase == PhaseStanding && m.minRecorded {
		m.repCount++
		m.reps = append(m.reps, RepRecord{MinAngle: m.minAngle, Time: now})
		res.RepCompleted = true
		res.MinAngle = m.minAngle
		m.minRecorded = false
	}
}

// score adjusts the running form score. Depth-scored exercises are judged
// in the bottom phase against the target band; smoothness-scored exercises
// are judged every frame on the angle delta.
func (m *StateMachine) score() {
	switch m.params.Mode {
	case scoreDepth:
		if m.phase != PhaseBottom {
			return
		}
		if m.smoothed >= m.params.DepthMin && m.smoothed <= m.params.DepthMax {
			m.formScore += 1
		} else {
			m.formScore -= 2
		}
	case scoreSmoothness:
		if !m.prevOK {
			return
		}
		delta := m.smoothed - m.prev
		if delta < 0 {
			delta = -delta
		}
		if delta < 5 {
			m.formScore += 0.5
		} else if delta > 15 {
			m.formScore -= 1
		}
	}
	if m.formScore > formScoreCeil {
		m.formScore = formScoreCeil
	}
	if m.formScore < formScoreFloor {
		m.formScore = formScoreFloor
	}
}

// RepCount returns the number of completed reps.
func (m *StateMachine) RepCount() int {
	return m.repCount
}

// Phase returns the current committed phase.
func (m *StateMachine) Phase() Phase {
	return m.phase
}

// FormScore returns the current form score.
func (m *StateMachine) FormScore() float64 {
	return m.formScore
}

// Reps returns the completed rep records in order.
func (m *StateMachine) Reps() []RepRecord {
	out := make([]RepRecord, len(m.reps))
	copy(out, m.reps)
	return out
}

// Reset zeroes counters, history and smoothing for a fresh session.
func (m *StateMachine) Reset() {
	m.window = nil
	m.smoothed = 0
	m.prev = 0
	m.prevOK = false
	m.phase = PhaseUnknown
	m.candidate = ""
	m.candidateCount = 0
	m.repCount = 0
	m.minAngle = 0
	m.minRecorded = false
	m.reps = nil
	m.formScore = formScoreCeil
}
