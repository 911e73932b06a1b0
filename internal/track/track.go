// Package track assigns stable integer identities to person detections
// across frames using greedy gated nearest-centroid matching.
package track

import (
	"sort"

	"github.com/visiontrack/visiontrack/internal/geom"
)

// Detection is a person bounding box reported for one frame.
type Detection struct {
	X          float64
	Y          float64
	W          float64
	H          float64
	Confidence float64

	// Index is an opaque caller tag, carried through matching unchanged.
	// The pipeline uses it to map assigned ids back to frame people.
	Index int
}

// Centroid returns the box centre used for matching.
func (d Detection) Centroid() geom.Point {
	return geom.Point{X: d.X + d.W/2, Y: d.Y + d.H/2}
}

// Config contains tracker tuning parameters.
type Config struct {
	// MaxDistance is the matching gate in pixels. A detection farther than
	// this from every track centroid starts a new track.
	MaxDistance float64

	// MaxFramesMissing is how many consecutive frames a track may go
	// unmatched before it is evicted.
	MaxFramesMissing int
}

// DefaultConfig returns the standard tracker tuning.
func DefaultConfig() Config {
	return Config{
		MaxDistance:      100,
		MaxFramesMissing: 30,
	}
}

type trackState struct {
	last    Detection
	missing int
}

// Tracker matches detections to persistent person ids frame by frame. Not
// safe for concurrent use; the pipeline owns it on a single goroutine.
type Tracker struct {
	config Config
	tracks map[int]*trackState
	nextID int
}

// NewTracker creates a tracker. Zero-valued config fields take defaults.
func NewTracker(config Config) *Tracker {
	def := DefaultConfig()
	if config.MaxDistance <= 0 {
		config.MaxDistance = def.MaxDistance
	}
	if config.MaxFramesMissing <= 0 {
		config.MaxFramesMissing = def.MaxFramesMissing
	}
	return &Tracker{
		config: config,
		tracks: make(map[int]*trackState),
		nextID: 1,
	}
}

// Update matches the frame's detections to existing tracks and returns the
// resulting id assignment. Matching is greedy in ascending id order so that
// long-lived tracks claim detections first; each detection is claimable by
// at most one track per frame. Unclaimed detections start new tracks with
// fresh sequential ids. Ids are never reused.
func (t *Tracker) Update(detections []Detection) map[int]Detection {
	claimed := make([]bool, len(detections))
	assigned := make(map[int]Detection, len(detections))

	ids := make([]int, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		state := t.tracks[id]
		best := -1
		bestDist := t.config.MaxDistance
		for i, det := range detections {
			if claimed[i] {
				continue
			}
			d := state.last.Centroid().Dist(det.Centroid())
			if d <= bestDist {
				bestDist = d
				best = i
			}
		}
		if best >= 0 {
			claimed[best] = true
			state.last = detections[best]
			state.missing = 0
			assigned[id] = detections[best]
		} else {
			state.missing++
		}
	}

	for i, det := range detections {
		if claimed[i] {
			continue
		}
		id := t.nextID
		t.nextID++
		t.tracks[id] = &trackState{last: det}
		assigned[id] = det
	}

	for _, id := range ids {
		if t.tracks[id].missing > t.config.MaxFramesMissing {
			delete(t.tracks, id)
		}
	}

	return assigned
}

// ActiveCount returns the number of live tracks, including ones missing for
// fewer than MaxFramesMissing frames.
func (t *Tracker) ActiveCount() int {
	return len(t.tracks)
}

// Reset drops all tracks. The id sequence continues; a person seen after a
// reset gets a new id, never a recycled one.
func (t *Tracker) Reset() {
	t.tracks = make(map[int]*trackState)
}
