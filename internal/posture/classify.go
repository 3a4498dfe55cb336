package posture

import "github.com/e7canasta/orion-wellness/internal/types"

// Distance thresholds on faceRatio, the share of the frame covered by the
// face box.
const (
	TooCloseRatio      = 0.20
	SlightlyCloseRatio = 0.13
	TooFarRatio        = 0.02
)

// Eye-level thresholds on relY, the vertical center of the face box as a
// fraction of frame height.
const (
	TooHighRelY      = 0.60
	TooLowRelY       = 0.30
	SlightlyHighRelY = 0.55
)

// Classify grades a detected face box within a frame of the given size.
// It is pure: equal inputs give equal results. A degenerate frame yields
// unknown distance and eye level.
func Classify(box types.BoundingBox, frameWidth, frameHeight int) types.PostureStatus {
	status := types.PostureStatus{
		FaceDetected: true,
		Face:         types.Reading{Class: types.ClassOK, Cause: types.CauseFaceFound},
	}
	if frameWidth <= 0 || frameHeight <= 0 {
		status.Distance = types.Reading{Class: types.ClassUnknown, Cause: types.CauseNone}
		status.EyeLevel = types.Reading{Class: types.ClassUnknown, Cause: types.CauseNone}
		return status
	}

	status.FaceRatio = box.Area() / float64(frameWidth*frameHeight)
	status.RelY = box.CenterY() / float64(frameHeight)
	status.Distance = classifyDistance(status.FaceRatio)
	status.EyeLevel = classifyEyeLevel(status.RelY)
	return status
}

func classifyDistance(ratio float64) types.Reading {
	switch {
	case ratio > TooCloseRatio:
		return types.Reading{Class: types.ClassBad, Cause: types.CauseTooClose}
	case ratio > SlightlyCloseRatio:
		return types.Reading{Class: types.ClassWarn, Cause: types.CauseSlightlyClose}
	case ratio < TooFarRatio:
		return types.Reading{Class: types.ClassWarn, Cause: types.CauseTooFar}
	default:
		return types.Reading{Class: types.ClassOK, Cause: types.CauseGoodDistance}
	}
}

// Bad bands are checked before the warn band they overlap.
func classifyEyeLevel(relY float64) types.Reading {
	switch {
	case relY > TooHighRelY:
		return types.Reading{Class: types.ClassBad, Cause: types.CauseTooHigh}
	case relY < TooLowRelY:
		return types.Reading{Class: types.ClassBad, Cause: types.CauseTooLow}
	case relY > SlightlyHighRelY:
		return types.Reading{Class: types.ClassWarn, Cause: types.CauseSlightlyHigh}
	default:
		return types.Reading{Class: types.ClassOK, Cause: types.CauseGoodEyeLevel}
	}
}
