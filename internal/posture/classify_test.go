package posture

import (
	"reflect"
	"testing"

	"github.com/e7canasta/orion-wellness/internal/types"
)

const (
	frameW = 640
	frameH = 480
)

// boxAt builds a w×h box whose vertical center sits at centerY.
func boxAt(w, h, centerY float64) types.BoundingBox {
	return types.BoundingBox{X: 0, Y: centerY - h/2, Width: w, Height: h}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		box           types.BoundingBox
		wantDistance  types.Classification
		wantDistCause types.Cause
		wantEye       types.Classification
		wantEyeCause  types.Cause
	}{
		// faceRatio = 0.25 with relY across the ok band.
		{"ratio .25 relY .30", boxAt(640, 120, 144), types.ClassBad, types.CauseTooClose, types.ClassOK, types.CauseGoodEyeLevel},
		{"ratio .25 relY .42", boxAt(640, 120, 200), types.ClassBad, types.CauseTooClose, types.ClassOK, types.CauseGoodEyeLevel},
		{"ratio .25 relY .55", boxAt(640, 120, 264), types.ClassBad, types.CauseTooClose, types.ClassOK, types.CauseGoodEyeLevel},

		// relY = 0.58 with faceRatio = 0.05.
		{"ratio .05 relY .58", boxAt(160, 96, 0.58*frameH), types.ClassOK, types.CauseGoodDistance, types.ClassWarn, types.CauseSlightlyHigh},

		// Distance band edges (relY 0.45).
		{"ratio exactly .20", boxAt(640, 96, 216), types.ClassWarn, types.CauseSlightlyClose, types.ClassOK, types.CauseGoodEyeLevel},
		{"ratio exactly .13", boxAt(416, 96, 216), types.ClassOK, types.CauseGoodDistance, types.ClassOK, types.CauseGoodEyeLevel},
		{"ratio exactly .02", boxAt(64, 96, 216), types.ClassOK, types.CauseGoodDistance, types.ClassOK, types.CauseGoodEyeLevel},
		{"ratio .01 too far", boxAt(32, 96, 216), types.ClassWarn, types.CauseTooFar, types.ClassOK, types.CauseGoodEyeLevel},

		// Eye-level band edges (faceRatio 0.05).
		{"relY exactly .60", boxAt(160, 96, 288), types.ClassOK, types.CauseGoodDistance, types.ClassWarn, types.CauseSlightlyHigh},
		{"relY .625 too high", boxAt(160, 96, 300), types.ClassOK, types.CauseGoodDistance, types.ClassBad, types.CauseTooHigh},
		{"relY exactly .30", boxAt(160, 96, 144), types.ClassOK, types.CauseGoodDistance, types.ClassOK, types.CauseGoodEyeLevel},
		{"relY .25 too low", boxAt(160, 96, 120), types.ClassOK, types.CauseGoodDistance, types.ClassBad, types.CauseTooLow},
		{"relY exactly .55", boxAt(160, 96, 264), types.ClassOK, types.CauseGoodDistance, types.ClassOK, types.CauseGoodEyeLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.box, frameW, frameH)

			if !got.FaceDetected || got.Face.Class != types.ClassOK {
				t.Errorf("face not marked detected: %+v", got.Face)
			}
			if got.Distance.Class != tt.wantDistance || got.Distance.Cause != tt.wantDistCause {
				t.Errorf("distance = %s/%s, want %s/%s (ratio %.4f)",
					got.Distance.Class, got.Distance.Cause, tt.wantDistance, tt.wantDistCause, got.FaceRatio)
			}
			if got.EyeLevel.Class != tt.wantEye || got.EyeLevel.Cause != tt.wantEyeCause {
				t.Errorf("eye level = %s/%s, want %s/%s (relY %.4f)",
					got.EyeLevel.Class, got.EyeLevel.Cause, tt.wantEye, tt.wantEyeCause, got.RelY)
			}
		})
	}
}

func TestClassify_IsPure(t *testing.T) {
	box := types.BoundingBox{X: 123, Y: 77, Width: 211, Height: 190}
	first := Classify(box, frameW, frameH)
	for i := 0; i < 100; i++ {
		if got := Classify(box, frameW, frameH); !reflect.DeepEqual(got, first) {
			t.Fatalf("call %d differs: %+v vs %+v", i, got, first)
		}
	}
	t.Logf("✅ Classify is deterministic: distance=%s eye=%s", first.Distance.Class, first.EyeLevel.Class)
}

func TestClassify_DegenerateFrame(t *testing.T) {
	got := Classify(types.BoundingBox{Width: 10, Height: 10}, 0, 480)
	if got.Distance.Class != types.ClassUnknown || got.EyeLevel.Class != types.ClassUnknown {
		t.Fatalf("zero-width frame classified: %+v", got)
	}
}

func TestReadingTexts(t *testing.T) {
	got := Classify(boxAt(640, 120, 200), frameW, frameH)
	if got.Distance.Text() != "Too close! 🚨" {
		t.Errorf("distance text = %q", got.Distance.Text())
	}
	if got.EyeLevel.Text() != "Good eye level ✓" {
		t.Errorf("eye text = %q", got.EyeLevel.Text())
	}
	if got.Face.Text() != "Yes ✓" {
		t.Errorf("face text = %q", got.Face.Text())
	}
}
