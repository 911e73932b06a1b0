// Package alert delivers surveillance alerts with per-(type,person)
// cooldown suppression, bounded history and per-type statistics.
package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/visiontrack/visiontrack/internal/geom"
	"github.com/visiontrack/visiontrack/internal/monitoring"
	"github.com/visiontrack/visiontrack/internal/timeutil"
)

// Type identifies an alert category.
type Type string

const (
	TypePersonDetected Type = "person_detected"
	TypeZoneEntry      Type = "restricted_zone_entry"
	TypeRapidMovement  Type = "rapid_movement"
	TypeFallDetected   Type = "fall_detected"
	TypeLoitering      Type = "loitering"
	TypeObjectLeft     Type = "object_left"
	TypeUnusualPosture Type = "unusual_posture"
)

// Alert is one delivered alert record. Immutable after creation except for
// the Resolved flag.
type Alert struct {
	ID          string     `json:"id"`
	Type        Type       `json:"type"`
	Time        time.Time  `json:"time"`
	PersonID    int        `json:"person_id"`
	Location    geom.Point `json:"location"`
	Confidence  float64    `json:"confidence"`
	Description string     `json:"description"`
	SessionID   string     `json:"session_id"`
	Resolved    bool       `json:"resolved"`
}

// DefaultCooldown is the minimum interval between two delivered alerts of
// the same (type, person) pair.
const DefaultCooldown = 3 * time.Second

// DefaultMaxHistory bounds the in-memory alert history.
const DefaultMaxHistory = 100

// Config contains alert system tuning.
type Config struct {
	Cooldown   time.Duration
	MaxHistory int
	Clock      timeutil.Clock

	// Forward, when set, receives every delivered alert. It is isolated
	// from panics.
	Forward func(Alert)
}

// Stats summarizes delivered alerts.
type Stats struct {
	Total      int          `json:"total"`
	Unresolved int          `json:"unresolved"`
	ByType     map[Type]int `json:"by_type"`
}

// System applies cooldown and retains recent alerts. Safe for concurrent
// use; the API reads history while the frame loop triggers.
type System struct {
	mu       sync.Mutex
	cooldown time.Duration
	maxHist  int
	clock    timeutil.Clock
	forward  func(Alert)

	lastFired map[string]time.Time
	history   []Alert
	byType    map[Type]int
}

// NewSystem creates an alert system. Zero-valued config fields take
// defaults.
func NewSystem(config Config) *System {
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = DefaultMaxHistory
	}
	if config.Clock == nil {
		config.Clock = timeutil.RealClock{}
	}
	return &System{
		cooldown:  config.Cooldown,
		maxHist:   config.MaxHistory,
		clock:     config.Clock,
		forward:   config.Forward,
		lastFired: make(map[string]time.Time),
		byType:    make(map[Type]int),
	}
}

func cooldownKey(t Type, personID int) string {
	return fmt.Sprintf("%s/%d", t, personID)
}

// Trigger attempts to deliver an alert. A duplicate of the same
// (type, person) within the cooldown window is dropped entirely and Trigger
// returns false; callers never assume delivery.
func (s *System) Trigger(t Type, personID int, location geom.Point, confidence float64, description, sessionID string) bool {
	s.mu.Lock()
	now := s.clock.Now()
	key := cooldownKey(t, personID)
	if last, ok := s.lastFired[key]; ok && now.Sub(last) < s.cooldown {
		s.mu.Unlock()
		return false
	}
	s.lastFired[key] = now

	a := Alert{
		ID:          uuid.NewString(),
		Type:        t,
		Time:        now,
		PersonID:    personID,
		Location:    location,
		Confidence:  confidence,
		Description: description,
		SessionID:   sessionID,
	}
	s.history = append(s.history, a)
	if len(s.history) > s.maxHist {
		s.history = s.history[len(s.history)-s.maxHist:]
	}
	s.byType[t]++
	forward := s.forward
	s.mu.Unlock()

	if forward != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					monitoring.Logf("alert forward panic on %s: %v", t, r)
				}
			}()
			forward(a)
		}()
	}
	return true
}

// Recent returns up to n most recent alerts, newest last.
func (s *System) Recent(n int) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]Alert, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// Resolve flips the resolved flag on the alert with the given id. It
// reports false when the alert is unknown or already resolved.
func (s *System) Resolve(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.history {
		if s.history[i].ID == id {
			if s.history[i].Resolved {
				return false
			}
			s.history[i].Resolved = true
			return true
		}
	}
	return false
}

// Stats returns delivery counts.
func (s *System) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{ByType: make(map[Type]int, len(s.byType))}
	for t, n := range s.byType {
		st.ByType[t] = n
		st.Total += n
	}
	for _, a := range s.history {
		if !a.Resolved {
			st.Unresolved++
		}
	}
	return st
}

// Reset clears history, statistics and cooldown state.
func (s *System) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFired = make(map[string]time.Time)
	s.history = nil
	s.byType = make(map[Type]int)
}
