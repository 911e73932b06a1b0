// Package pose models per-frame 2D pose estimates received from an external
// pose estimator. A frame carries zero or more people, each with a bounding
// box and a fixed set of named landmarks in pixel coordinates.
package pose

import (
	"time"

	"github.com/visiontrack/visiontrack/internal/geom"
)

// Landmark is a single named joint position. Valid is false when the
// estimator did not report the joint or reported it below the visibility
// threshold; consumers must skip invalid landmarks rather than treat them as
// coordinates.
type Landmark struct {
	Pos        geom.Point
	Visibility float64
	Valid      bool
}

// Landmarks is the fixed set of joints the analyzers consume. Named fields
// instead of an index map so a missing joint is a compile error at the use
// site, not a runtime lookup miss.
type Landmarks struct {
	Nose          Landmark
	LeftShoulder  Landmark
	RightShoulder Landmark
	LeftElbow     Landmark
	RightElbow    Landmark
	LeftWrist     Landmark
	RightWrist    Landmark
	LeftHip       Landmark
	RightHip      Landmark
	LeftKnee      Landmark
	RightKnee     Landmark
	LeftAnkle     Landmark
	RightAnkle    Landmark
}

// BBox is a person bounding box in pixel coordinates.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Centroid returns the box centre.
func (b BBox) Centroid() geom.Point {
	return geom.Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// PersonPose is one detected person in a frame.
type PersonPose struct {
	BBox       BBox
	Confidence float64
	Landmarks  Landmarks
}

// Frame is one time-stamped pose frame.
type Frame struct {
	Time   time.Time
	People []PersonPose
}

// midpoint fuses a left/right landmark pair into a single point, falling back
// to whichever side is valid.
func midpoint(left, right Landmark) (geom.Point, bool) {
	switch {
	case left.Valid && right.Valid:
		return geom.Point{
			X: (left.Pos.X + right.Pos.X) / 2,
			Y: (left.Pos.Y + right.Pos.Y) / 2,
		}, true
	case left.Valid:
		return left.Pos, true
	case right.Valid:
		return right.Pos, true
	default:
		return geom.Point{}, false
	}
}

// HipMidpoint returns the hip centre used as the person's tracked position.
func (l Landmarks) HipMidpoint() (geom.Point, bool) {
	return midpoint(l.LeftHip, l.RightHip)
}

// ShoulderMidpoint returns the shoulder centre.
func (l Landmarks) ShoulderMidpoint() (geom.Point, bool) {
	return midpoint(l.LeftShoulder, l.RightShoulder)
}

// Inclination returns the torso inclination from vertical in degrees. It
// fuses hips and shoulders first so a one-sided occlusion still produces a
// reading.
func (l Landmarks) Inclination() (float64, bool) {
	hip, hipOK := l.HipMidpoint()
	shoulder, shoulderOK := l.ShoulderMidpoint()
	if !hipOK || !shoulderOK {
		return 0, false
	}
	return geom.Inclination(hip, shoulder)
}

// Features are the per-frame pose descriptors the surveillance analyzers
// consume.
type Features struct {
	ShoulderWidth float64
	BodyHeight    float64
	PostureAngle  float64
	HeadPosition  geom.Point
	HeadValid     bool
}

// ComputeFeatures derives Features from the landmarks. It reports ok=false
// when shoulders or hips are entirely missing; partial landmark sets degrade
// to zero values on the affected fields rather than failing the whole frame.
func (l Landmarks) ComputeFeatures() (Features, bool) {
	shoulder, shoulderOK := l.ShoulderMidpoint()
	hip, hipOK := l.HipMidpoint()
	if !shoulderOK || !hipOK {
		return Features{}, false
	}

	var f Features
	f.PostureAngle = geom.PostureAngle(shoulder, hip)

	if l.LeftShoulder.Valid && l.RightShoulder.Valid {
		f.ShoulderWidth = l.LeftShoulder.Pos.Dist(l.RightShoulder.Pos)
	}
	if l.Nose.Valid {
		f.HeadPosition = l.Nose.Pos
		f.HeadValid = true
		f.BodyHeight = l.Nose.Pos.Dist(hip)
	} else {
		f.BodyHeight = shoulder.Dist(hip)
	}
	return f, true
}
