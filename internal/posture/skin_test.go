package posture

import (
	"testing"

	"github.com/e7canasta/orion-wellness/internal/types"
)

func newFrame(w, h int) types.Frame {
	data := make([]byte, w*h*types.BytesPerPixel)
	for i := 3; i < len(data); i += types.BytesPerPixel {
		data[i] = 0xff
	}
	return types.Frame{Width: w, Height: h, Data: data}
}

func paint(f types.Frame, x0, y0, x1, y1 int, r, g, b uint8) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			i := (y*f.Width + x) * types.BytesPerPixel
			f.Data[i], f.Data[i+1], f.Data[i+2] = r, g, b
		}
	}
}

func TestIsSkin(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    bool
	}{
		{"typical skin", 200, 140, 110, true},
		{"dark skin", 120, 80, 60, true},
		{"black", 0, 0, 0, false},
		{"white", 255, 255, 255, false},
		{"grey", 128, 128, 128, false},
		{"pure red", 255, 0, 0, false},
		{"r too close to g", 200, 190, 100, false},
		{"blue dominates", 100, 60, 150, false},
		{"r not above 95", 95, 50, 30, false},
	}
	for _, tt := range tests {
		if got := IsSkin(tt.r, tt.g, tt.b); got != tt.want {
			t.Errorf("%s: IsSkin(%d,%d,%d) = %v, want %v", tt.name, tt.r, tt.g, tt.b, got, tt.want)
		}
	}
}

func TestDetectSkin_BlackFrameUndetected(t *testing.T) {
	if _, ok := DetectSkin(newFrame(640, 480)); ok {
		t.Fatal("black frame reported a face")
	}
	t.Logf("✅ black frame → undetected")
}

func TestDetectSkin_FindsRectangle(t *testing.T) {
	f := newFrame(640, 480)
	paint(f, 200, 100, 320, 260, 200, 140, 110)

	box, ok := DetectSkin(f)
	if !ok {
		t.Fatal("skin rectangle not detected")
	}
	want := types.BoundingBox{X: 200, Y: 100, Width: 116, Height: 156}
	if box != want {
		t.Fatalf("box = %+v, want %+v", box, want)
	}
}

func TestDetectSkin_Rejections(t *testing.T) {
	t.Run("narrow span", func(t *testing.T) {
		f := newFrame(640, 480)
		// Tall strip: plenty of matches, extent under 30 px.
		paint(f, 300, 0, 324, 480, 200, 140, 110)
		if _, ok := DetectSkin(f); ok {
			t.Fatal("strip narrower than 30 px accepted")
		}
	})

	t.Run("below one percent", func(t *testing.T) {
		f := newFrame(640, 480)
		// One sampled row across 400 px: 100 of 19200 samples.
		paint(f, 100, 200, 500, 201, 200, 140, 110)
		if _, ok := DetectSkin(f); ok {
			t.Fatal("coverage under 1% accepted")
		}
	})

	t.Run("short buffer", func(t *testing.T) {
		f := types.Frame{Width: 640, Height: 480, Data: make([]byte, 16)}
		if _, ok := DetectSkin(f); ok {
			t.Fatal("truncated frame accepted")
		}
	})
}
