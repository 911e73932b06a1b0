package exercise

import (
	"github.com/visiontrack/visiontrack/internal/pose"
)

// Plausibility gates for auto-detection, in degrees of torso inclination
// from vertical.
const (
	// pushupMinInclination: the torso must be within 30 degrees of
	// horizontal for a push-up to be plausible.
	pushupMinInclination = 60

	// curlMaxInclination: the torso must be within 20 degrees of vertical
	// for a curl to be plausible.
	curlMaxInclination = 20

	// Knee angle working range for a squat in progress.
	squatKneeMin = 90
	squatKneeMax = 170
)

// plausible reports whether the body geometry is consistent with t being
// performed, along with the type's self-reported confidence.
func plausible(t Type, lm pose.Landmarks) (bool, float64) {
	inclination, ok := lm.Inclination()
	if !ok {
		return false, 0
	}
	params := ParamsFor(t)
	switch t {
	case TypePushup:
		return inclination >= pushupMinInclination, params.Confidence
	case TypeCurl:
		return inclination <= curlMaxInclination, params.Confidence
	case TypeSquat:
		if inclination > 45 {
			return false, 0
		}
		knee, kneeOK := AngleFor(TypeSquat, lm)
		if !kneeOK {
			return false, 0
		}
		return knee >= squatKneeMin && knee <= squatKneeMax, params.Confidence
	}
	return false, 0
}

// Detect picks the exercise type whose plausibility check passes with the
// highest confidence. When no type matches it keeps current, so transient
// bad geometry never thrashes the active machine.
func Detect(lm pose.Landmarks, current Type) Type {
	best := current
	bestConf := 0.0
	for _, t := range Types {
		ok, conf := plausible(t, lm)
		if ok && conf > bestConf {
			best = t
			bestConf = conf
		}
	}
	return best
}
