package webcam

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/e7canasta/orion-wellness/internal/capture"
)

func TestBuildCaps(t *testing.T) {
	tests := []struct {
		fps  float64
		want string
	}{
		{5, "video/x-raw,format=RGBA,width=640,height=480,framerate=5/1"},
		{1, "video/x-raw,format=RGBA,width=640,height=480,framerate=1/1"},
		{0.5, "video/x-raw,format=RGBA,width=640,height=480,framerate=1/2"},
	}
	for _, tt := range tests {
		if got := buildCaps(640, 480, tt.fps); got != tt.want {
			t.Errorf("buildCaps(%v) = %q, want %q", tt.fps, got, tt.want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Width: 640, Height: 480}); err == nil {
		t.Error("expected error for missing device")
	}
	if _, err := New(Config{Device: "/dev/video0", Width: 0, Height: 480}); err == nil {
		t.Error("expected error for zero width")
	}
	src, err := New(Config{Device: "/dev/video0", Width: 640, Height: 480})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if src.cfg.FPS != 5 || src.cfg.StartTimeout == 0 {
		t.Errorf("defaults not applied: %+v", src.cfg)
	}
}

func TestAcquire_MissingDevice(t *testing.T) {
	src, err := New(Config{Device: filepath.Join(t.TempDir(), "video9"), Width: 640, Height: 480})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := src.Acquire(context.Background()); !errors.Is(err, capture.ErrUnavailable) {
		t.Fatalf("Acquire err = %v, want ErrUnavailable", err)
	}
}
