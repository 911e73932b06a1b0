package pose

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultMinVisibility is the visibility score below which a reported joint
// is treated as missing.
const DefaultMinVisibility = 0.5

// wireLandmark is a joint on the wire: [x, y, visibility].
type wireLandmark [3]float64

// wirePerson is one person in a wire frame. Landmark keys follow the
// estimator's snake_case joint names.
type wirePerson struct {
	BBox       [4]float64              `json:"bbox"`
	Confidence float64                 `json:"confidence"`
	Landmarks  map[string]wireLandmark `json:"landmarks"`
}

// wireFrame is the JSON payload the estimator sends per frame.
type wireFrame struct {
	TimestampMS int64        `json:"timestamp_ms"`
	People      []wirePerson `json:"people"`
}

// DecodeFrame parses one JSON frame payload. Joints with visibility below
// minVisibility, and joints absent from the payload, decode as invalid
// landmarks. A zero timestamp falls back to fallbackTime.
func DecodeFrame(data []byte, minVisibility float64, fallbackTime time.Time) (Frame, error) {
	var wf wireFrame
	if err := json.Unmarshal(data, &wf); err != nil {
		return Frame{}, fmt.Errorf("failed to decode pose frame: %w", err)
	}

	frame := Frame{Time: fallbackTime}
	if wf.TimestampMS > 0 {
		frame.Time = time.UnixMilli(wf.TimestampMS)
	}

	for _, wp := range wf.People {
		person := PersonPose{
			BBox: BBox{
				X: wp.BBox[0],
				Y: wp.BBox[1],
				W: wp.BBox[2],
				H: wp.BBox[3],
			},
			Confidence: wp.Confidence,
		}
		lm := &person.Landmarks
		for name, dst := range map[string]*Landmark{
			"nose":           &lm.Nose,
			"left_shoulder":  &lm.LeftShoulder,
			"right_shoulder": &lm.RightShoulder,
			"left_elbow":     &lm.LeftElbow,
			"right_elbow":    &lm.RightElbow,
			"left_wrist":     &lm.LeftWrist,
			"right_wrist":    &lm.RightWrist,
			"left_hip":       &lm.LeftHip,
			"right_hip":      &lm.RightHip,
			"left_knee":      &lm.LeftKnee,
			"right_knee":     &lm.RightKnee,
			"left_ankle":     &lm.LeftAnkle,
			"right_ankle":    &lm.RightAnkle,
		} {
			wl, ok := wp.Landmarks[name]
			if !ok {
				continue
			}
			dst.Pos.X = wl[0]
			dst.Pos.Y = wl[1]
			dst.Visibility = wl[2]
			dst.Valid = wl[2] >= minVisibility
		}
		frame.People = append(frame.People, person)
	}
	return frame, nil
}
