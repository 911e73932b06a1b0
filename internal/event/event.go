// Package event carries analysis events from the frame loop to subscribers
// (persistence, exports, logging) with panic isolation.
package event

import (
	"time"

	"github.com/visiontrack/visiontrack/internal/monitoring"
)

// Kind identifies an event type.
type Kind string

const (
	// KindNewPerson fires the first time an identity is seen.
	KindNewPerson Kind = "new_person"

	// KindRepCompleted fires once per counted repetition.
	KindRepCompleted Kind = "rep_completed"

	// KindStateChanged fires on every committed exercise phase transition.
	KindStateChanged Kind = "state_changed"

	// KindAlert fires when a surveillance alert passes cooldown.
	KindAlert Kind = "alert"
)

// Event is a single analysis event. Only the fields relevant to Kind are
// populated.
type Event struct {
	Kind     Kind
	Time     time.Time
	PersonID int

	// Exercise events.
	Exercise  string
	RepCount  int
	MinAngle  float64
	FormScore float64
	FromState string
	ToState   string

	// Alert events.
	AlertID    string
	AlertType  string
	Message    string
	Confidence float64
}

// Sink receives events synchronously on the frame-processing goroutine.
// Handlers must return quickly.
type Sink interface {
	HandleEvent(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

// HandleEvent calls f.
func (f SinkFunc) HandleEvent(ev Event) {
	f(ev)
}

// Dispatch delivers ev to sink, recovering and logging any handler panic so
// a misbehaving subscriber cannot corrupt analysis state. A nil sink is a
// no-op.
func Dispatch(sink Sink, ev Event) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("event handler panic on %s: %v", ev.Kind, r)
		}
	}()
	sink.HandleEvent(ev)
}

// Multi fans one event out to several sinks, each individually guarded.
type Multi []Sink

// HandleEvent delivers ev to every sink in order.
func (m Multi) HandleEvent(ev Event) {
	for _, s := range m {
		Dispatch(s, ev)
	}
}
