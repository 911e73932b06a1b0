package exercise

import (
	"sort"
	"time"

	"github.com/visiontrack/visiontrack/internal/event"
	"github.com/visiontrack/visiontrack/internal/pose"
	"github.com/visiontrack/visiontrack/internal/timeutil"
)

// Stats is the session-wide aggregate over all tracked people.
type Stats struct {
	TotalReps        int           `json:"total_reps"`
	ActivePeople     int           `json:"active_people"`
	AvgRepsPerPerson float64       `json:"avg_reps_per_person"`
	BestPerformer    int           `json:"best_performer"`
	BestRepCount     int           `json:"best_rep_count"`
	SessionDuration  time.Duration `json:"session_duration"`
}

type personState struct {
	machines  map[Type]*StateMachine
	current   Type
	firstSeen time.Time
	lastSeen  time.Time
	lastRep   time.Time
}

func (p *personState) machine(t Type, tuning Tuning) *StateMachine {
	m, ok := p.machines[t]
	if !ok {
		m = NewStateMachine(ParamsFor(t), tuning)
		p.machines[t] = m
	}
	return m
}

func (p *personState) totalReps() int {
	total := 0
	for _, m := range p.machines {
		total += m.RepCount()
	}
	return total
}

// Coordinator owns one state machine bundle per tracked person and routes
// landmark updates to them. It is owned by the frame-processing goroutine
// and is not safe for concurrent use.
type Coordinator struct {
	tuning       Tuning
	clock        timeutil.Clock
	sink         event.Sink
	active       Type
	autoDetect   bool
	people       map[int]*personState
	sessionStart time.Time
}

// NewCoordinator creates a coordinator starting in the given exercise type.
func NewCoordinator(active Type, tuning Tuning, clock timeutil.Clock, sink event.Sink) *Coordinator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Coordinator{
		tuning:       tuning,
		clock:        clock,
		sink:         sink,
		active:       active,
		people:       make(map[int]*personState),
		sessionStart: clock.Now(),
	}
}

// SetExercise switches the active exercise type for subsequent updates.
func (c *Coordinator) SetExercise(t Type) {
	c.active = t
}

// ActiveExercise returns the currently selected exercise type.
func (c *Coordinator) ActiveExercise() Type {
	return c.active
}

// SetAutoDetect toggles per-person exercise auto-detection.
func (c *Coordinator) SetAutoDetect(enabled bool) {
	c.autoDetect = enabled
}

// UpdatePerson routes one frame's landmarks for one identity to its state
// machine and returns the result. The first sighting of an id fires a
// NewPerson event; committed transitions and completed reps fire their
// events synchronously through the sink.
func (c *Coordinator) UpdatePerson(id int, lm pose.Landmarks, now time.Time) Result {
	p, ok := c.people[id]
	if !ok {
		p = &personState{
			machines:  make(map[Type]*StateMachine),
			current:   c.active,
			firstSeen: now,
		}
		c.people[id] = p
		event.Dispatch(c.sink, event.Event{
			Kind:     event.KindNewPerson,
			Time:     now,
			PersonID: id,
		})
	}
	p.lastSeen = now

	if c.autoDetect {
		p.current = Detect(lm, p.current)
	} else {
		p.current = c.active
	}

	machine := p.machine(p.current, c.tuning)
	angle, angleOK := AngleFor(p.current, lm)
	res := machine.Update(angle, angleOK, now)

	if res.PhaseChanged {
		event.Dispatch(c.sink, event.Event{
			Kind:      event.KindStateChanged,
			Time:      now,
			PersonID:  id,
			Exercise:  string(p.current),
			FromState: string(res.PrevPhase),
			ToState:   string(res.Phase),
		})
	}
	if res.RepCompleted {
		p.lastRep = now
		event.Dispatch(c.sink, event.Event{
			Kind:      event.KindRepCompleted,
			Time:      now,
			PersonID:  id,
			Exercise:  string(p.current),
			RepCount:  res.RepCount,
			MinAngle:  res.MinAngle,
			FormScore: res.FormScore,
		})
	}
	return res
}

// PersonIDs returns the known identities in ascending order.
func (c *Coordinator) PersonIDs() []int {
	ids := make([]int, 0, len(c.people))
	for id := range c.people {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// AggregateStats sums over all owned state machines.
func (c *Coordinator) AggregateStats() Stats {
	s := Stats{
		ActivePeople:    len(c.people),
		SessionDuration: c.clock.Since(c.sessionStart),
	}
	bestID := 0
	for id, p := range c.people {
		reps := p.totalReps()
		s.TotalReps += reps
		if reps > s.BestRepCount || (reps == s.BestRepCount && reps > 0 && (bestID == 0 || id < bestID)) {
			s.BestRepCount = reps
			bestID = id
		}
	}
	s.BestPerformer = bestID
	if s.ActivePeople > 0 {
		s.AvgRepsPerPerson = float64(s.TotalReps) / float64(s.ActivePeople)
	}
	return s
}

// Reset zeroes every machine's counters but keeps the id to machine
// assignment: a fresh session, not a fresh identity space.
func (c *Coordinator) Reset() {
	for _, p := range c.people {
		for _, m := range p.machines {
			m.Reset()
		}
		p.lastRep = time.Time{}
	}
	c.sessionStart = c.clock.Now()
}

// RemoveInactive evicts people whose last rep (or first sighting, when they
// never completed one) is older than threshold. Returns how many were
// removed. This bounds memory; it is an explicit call, never automatic.
func (c *Coordinator) RemoveInactive(threshold time.Duration, now time.Time) int {
	removed := 0
	for id, p := range c.people {
		ref := p.lastRep
		if ref.IsZero() {
			ref = p.firstSeen
		}
		if now.Sub(ref) > threshold {
			delete(c.people, id)
			removed++
		}
	}
	return removed
}
