package event

import (
	"testing"
)

func TestDispatch_RecoversPanic(t *testing.T) {
	saved := make([]Event, 0)
	panicky := SinkFunc(func(ev Event) {
		panic("subscriber bug")
	})
	recorder := SinkFunc(func(ev Event) {
		saved = append(saved, ev)
	})

	// Must not propagate the panic.
	Dispatch(panicky, Event{Kind: KindRepCompleted})

	// Later subscribers still receive events.
	Dispatch(recorder, Event{Kind: KindRepCompleted, PersonID: 3})
	if len(saved) != 1 || saved[0].PersonID != 3 {
		t.Fatalf("recorder got %v, want one event for person 3", saved)
	}
}

func TestDispatch_NilSink(t *testing.T) {
	Dispatch(nil, Event{Kind: KindAlert})
}

func TestMulti_IsolatesPanickingSink(t *testing.T) {
	var got []Kind
	m := Multi{
		SinkFunc(func(ev Event) { got = append(got, ev.Kind) }),
		SinkFunc(func(ev Event) { panic("boom") }),
		SinkFunc(func(ev Event) { got = append(got, ev.Kind) }),
	}

	m.HandleEvent(Event{Kind: KindNewPerson})

	if len(got) != 2 {
		t.Errorf("got %d deliveries, want 2 despite middle sink panicking", len(got))
	}
}
