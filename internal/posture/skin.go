package posture

import (
	"context"

	"github.com/e7canasta/orion-wellness/internal/types"
)

const (
	// SampleStride is the grid step, in pixels, along both axes.
	SampleStride = 4
	// MinSkinCoverage is the share of sampled pixels that must match.
	MinSkinCoverage = 0.01
	// MinSkinSpan is the minimum horizontal extent of the matches in pixels.
	MinSkinSpan = 30
)

// IsSkin applies the RGB skin-tone rule.
func IsSkin(r, g, b uint8) bool {
	ri, gi, bi := int(r), int(g), int(b)
	return ri > 95 && gi > 40 && bi > 20 &&
		ri > gi && ri > bi &&
		ri-min(gi, bi) > 15 &&
		abs(ri-gi) > 15
}

// DetectSkin estimates a face box from skin-toned pixels on a sparse grid.
// It reports false when too few pixels match, when they span less than
// MinSkinSpan horizontally, or when the frame is not Valid.
func DetectSkin(frame types.Frame) (types.BoundingBox, bool) {
	if !frame.Valid() {
		return types.BoundingBox{}, false
	}

	minX, minY := frame.Width, frame.Height
	maxX, maxY := 0, 0
	matched, sampled := 0, 0

	for y := 0; y < frame.Height; y += SampleStride {
		for x := 0; x < frame.Width; x += SampleStride {
			sampled++
			if !IsSkin(frame.Pixel(x, y)) {
				continue
			}
			matched++
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}

	if float64(matched) < MinSkinCoverage*float64(sampled) || maxX-minX < MinSkinSpan {
		return types.BoundingBox{}, false
	}

	return types.BoundingBox{
		X:      float64(minX),
		Y:      float64(minY),
		Width:  float64(maxX - minX),
		Height: float64(maxY - minY),
	}, true
}

// SkinDetector adapts DetectSkin to the Detector interface.
type SkinDetector struct{}

// DetectFace never fails.
func (SkinDetector) DetectFace(_ context.Context, frame types.Frame) (types.BoundingBox, bool, error) {
	box, ok := DetectSkin(frame)
	return box, ok, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
