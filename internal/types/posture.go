package types

import "time"

// Classification grades one posture axis.
type Classification int

const (
	ClassUnknown Classification = iota
	ClassOK
	ClassWarn
	ClassBad
)

func (c Classification) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassWarn:
		return "warn"
	case ClassBad:
		return "bad"
	default:
		return "unknown"
	}
}

// MarshalText renders the classification by name for JSON payloads.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Axis identifies a posture status line.
type Axis string

const (
	AxisFace     Axis = "face"
	AxisDistance Axis = "distance"
	AxisEyeLevel Axis = "eyelevel"
)

// Axes lists the posture axes in display order.
var Axes = []Axis{AxisFace, AxisDistance, AxisEyeLevel}

// Cause records which threshold produced a Classification.
type Cause int

const (
	CauseNone Cause = iota
	CauseDetecting
	CauseFaceFound
	CauseFaceMissing
	CauseTooClose
	CauseSlightlyClose
	CauseTooFar
	CauseGoodDistance
	CauseTooHigh
	CauseTooLow
	CauseSlightlyHigh
	CauseGoodEyeLevel
)

var causeText = map[Cause]string{
	CauseNone:          "—",
	CauseDetecting:     "Detecting…",
	CauseFaceFound:     "Yes ✓",
	CauseFaceMissing:   "Not detected",
	CauseTooClose:      "Too close! 🚨",
	CauseSlightlyClose: "Slightly close",
	CauseTooFar:        "Too far away",
	CauseGoodDistance:  "Good distance ✓",
	CauseTooHigh:       "Screen too high ↑",
	CauseTooLow:        "Screen too low ↓",
	CauseSlightlyHigh:  "Slightly high",
	CauseGoodEyeLevel:  "Good eye level ✓",
}

var causeName = map[Cause]string{
	CauseNone:          "none",
	CauseDetecting:     "detecting",
	CauseFaceFound:     "face_found",
	CauseFaceMissing:   "face_missing",
	CauseTooClose:      "too_close",
	CauseSlightlyClose: "slightly_close",
	CauseTooFar:        "too_far",
	CauseGoodDistance:  "good_distance",
	CauseTooHigh:       "too_high",
	CauseTooLow:        "too_low",
	CauseSlightlyHigh:  "slightly_high",
	CauseGoodEyeLevel:  "good_eye_level",
}

// Text is the human-readable status line for the cause.
func (c Cause) Text() string {
	if s, ok := causeText[c]; ok {
		return s
	}
	return causeText[CauseNone]
}

func (c Cause) String() string {
	if s, ok := causeName[c]; ok {
		return s
	}
	return "none"
}

// MarshalText renders the cause by name for JSON payloads.
func (c Cause) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Reading is the graded result for a single axis.
type Reading struct {
	Class Classification `json:"class"`
	Cause Cause          `json:"cause"`
}

// Text is the status line shown for this reading.
func (r Reading) Text() string {
	return r.Cause.Text()
}

// PostureStatus is the outcome of one evaluation cycle.
//
// FaceRatio and RelY are only meaningful when FaceDetected is true.
type PostureStatus struct {
	FaceDetected bool      `json:"face_detected"`
	Face         Reading   `json:"face"`
	Distance     Reading   `json:"distance"`
	EyeLevel     Reading   `json:"eye_level"`
	FaceRatio    float64   `json:"face_ratio,omitempty"`
	RelY         float64   `json:"rel_y,omitempty"`
	EvaluatedAt  time.Time `json:"evaluated_at,omitempty"`
}

// Reading returns the reading for the given axis.
func (s PostureStatus) Reading(axis Axis) Reading {
	switch axis {
	case AxisFace:
		return s.Face
	case AxisDistance:
		return s.Distance
	case AxisEyeLevel:
		return s.EyeLevel
	default:
		return Reading{}
	}
}

// DetectingStatus is the status shown while no evaluation has completed,
// and after the monitor is disabled.
func DetectingStatus() PostureStatus {
	return PostureStatus{
		Face:     Reading{Class: ClassUnknown, Cause: CauseNone},
		Distance: Reading{Class: ClassUnknown, Cause: CauseDetecting},
		EyeLevel: Reading{Class: ClassUnknown, Cause: CauseDetecting},
	}
}

// UndetectedStatus is the status of a cycle that found no face.
func UndetectedStatus() PostureStatus {
	return PostureStatus{
		Face:     Reading{Class: ClassWarn, Cause: CauseFaceMissing},
		Distance: Reading{Class: ClassUnknown, Cause: CauseNone},
		EyeLevel: Reading{Class: ClassUnknown, Cause: CauseNone},
	}
}
