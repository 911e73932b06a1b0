// Package geom provides 2D joint-angle calculations for pose analysis.
//
// All angles are in degrees. Points use image coordinates (y grows
// downward), which matters for the inclination helpers.
package geom

import "math"

// Point is a 2D position in pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Angle returns the angle at vertex b between rays b->a and b->c, in
// degrees within [0, 180]. It reports ok=false when either ray has zero
// length; callers treat that as "no reading this frame", not an error.
func Angle(a, b, c Point) (float64, bool) {
	ba := a.Sub(b)
	bc := c.Sub(b)

	magBA := math.Hypot(ba.X, ba.Y)
	magBC := math.Hypot(bc.X, bc.Y)
	if magBA == 0 || magBC == 0 {
		return 0, false
	}

	cos := (ba.X*bc.X + ba.Y*bc.Y) / (magBA * magBC)
	// Clamp against floating error before acos.
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi, true
}

// Average fuses two optional angle estimates (typically left and right
// limbs) into one. It returns the mean of whichever inputs are valid, so a
// one-sided occlusion still yields a usable signal, and ok=false only when
// neither side is valid.
func Average(left, right float64, leftOK, rightOK bool) (float64, bool) {
	switch {
	case leftOK && rightOK:
		return (left + right) / 2, true
	case leftOK:
		return left, true
	case rightOK:
		return right, true
	default:
		return 0, false
	}
}

// Inclination returns the unsigned body inclination from vertical given hip
// and shoulder positions, in degrees within [0, 90]. ok=false when the two
// points coincide.
func Inclination(hip, shoulder Point) (float64, bool) {
	dx := shoulder.X - hip.X
	dy := shoulder.Y - hip.Y
	if dx == 0 && dy == 0 {
		return 0, false
	}
	return math.Atan2(math.Abs(dx), math.Abs(dy)) * 180 / math.Pi, true
}

// PostureAngle returns the signed shoulder->hip deviation from vertical in
// degrees. Zero means upright; the magnitude approaches 90 as the torso
// approaches horizontal.
func PostureAngle(shoulder, hip Point) float64 {
	return math.Atan2(hip.X-shoulder.X, hip.Y-shoulder.Y) * 180 / math.Pi
}
