package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/orion-wellness/internal/types"
)

const helperEnv = "WELLNESS_HELPER_DETECTOR"

// TestHelperDetector is not a real test: it is the detector process the
// other tests spawn by re-executing the test binary.
func TestHelperDetector(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}
	defer os.Exit(0)

	in := bufio.NewReader(os.Stdin)
	for {
		var req Request
		if err := readMessage(in, &req); err != nil {
			return
		}

		var resp Response
		switch mode {
		case "face":
			resp = Response{ID: req.ID, Faces: []Face{
				{X: 10, Y: 20, Width: 100, Height: 120, Score: 0.4},
				{X: 200, Y: 100, Width: 160, Height: 200, Score: 0.9},
				{X: 0, Y: 0, Width: 50, Height: 50, Score: 0.6},
			}}
		case "none":
			resp = Response{ID: req.ID}
		case "error":
			resp = Response{ID: req.ID, Error: "model not loaded"}
		case "silent":
			continue
		case "crash":
			os.Exit(3)
		}
		if err := writeMessage(os.Stdout, resp); err != nil {
			return
		}
	}
}

func startHelper(t *testing.T, mode string, timeout time.Duration) *ProcessDetector {
	t.Helper()
	t.Setenv(helperEnv, mode)

	d, err := NewProcessDetector(Config{
		WorkerID: "helper-" + mode,
		Command:  os.Args[0],
		Args:     []string{"-test.run=^TestHelperDetector$"},
		Timeout:  timeout,
		MinScore: 0.5,
	})
	if err != nil {
		t.Fatalf("NewProcessDetector: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	return d
}

func testFrame() types.Frame {
	return types.Frame{
		Seq:       1,
		Timestamp: time.Now(),
		Width:     8,
		Height:    8,
		Data:      make([]byte, 8*8*types.BytesPerPixel),
		TraceID:   "trace-1",
	}
}

func TestProcessDetector_PicksBestFace(t *testing.T) {
	d := startHelper(t, "face", 5*time.Second)

	box, found, err := d.DetectFace(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("DetectFace: %v", err)
	}
	want := types.BoundingBox{X: 200, Y: 100, Width: 160, Height: 200}
	if !found || box != want {
		t.Fatalf("got %+v found=%v, want %+v", box, found, want)
	}

	// A second round trip on the same process.
	if _, _, err := d.DetectFace(context.Background(), testFrame()); err != nil {
		t.Fatalf("second DetectFace: %v", err)
	}
	stats := d.Stats()
	if stats.Requests != 2 || stats.Responses != 2 || stats.Failures != 0 {
		t.Errorf("stats = %+v", stats)
	}
	t.Logf("✅ best face selected, avg latency %.2fms", stats.AvgLatencyMS)
}

func TestProcessDetector_NoFace(t *testing.T) {
	d := startHelper(t, "none", 5*time.Second)

	_, found, err := d.DetectFace(context.Background(), testFrame())
	if err != nil || found {
		t.Fatalf("found=%v err=%v, want no face and no error", found, err)
	}
}

func TestProcessDetector_ReportedError(t *testing.T) {
	d := startHelper(t, "error", 5*time.Second)

	_, _, err := d.DetectFace(context.Background(), testFrame())
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("err = %v, want detector error", err)
	}
}

func TestProcessDetector_Timeout(t *testing.T) {
	d := startHelper(t, "silent", 200*time.Millisecond)

	start := time.Now()
	_, _, err := d.DetectFace(context.Background(), testFrame())
	if err == nil || !strings.Contains(err.Error(), "no response") {
		t.Fatalf("err = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}

func TestProcessDetector_Crash(t *testing.T) {
	d := startHelper(t, "crash", 2*time.Second)

	if _, _, err := d.DetectFace(context.Background(), testFrame()); err == nil {
		t.Fatal("expected error from crashed process")
	}
	if _, _, err := d.DetectFace(context.Background(), testFrame()); err == nil {
		t.Fatal("expected error while restart backoff is pending")
	}
	if d.Stats().Failures < 2 {
		t.Errorf("failures = %d", d.Stats().Failures)
	}
}

func TestBestFace(t *testing.T) {
	faces := []Face{
		{Width: 10, Height: 10, Score: 0.3},
		{Width: 0, Height: 10, Score: 0.99},
		{X: 5, Width: 20, Height: 20, Score: 0.7},
	}
	box, ok := bestFace(faces, 0.5)
	if !ok || box.X != 5 {
		t.Fatalf("bestFace = %+v, %v", box, ok)
	}
	if _, ok := bestFace(faces, 0.8); ok {
		t.Fatal("face below threshold accepted")
	}
	if _, ok := bestFace(nil, 0); ok {
		t.Fatal("empty list produced a face")
	}
}

func TestReadMessage_RejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], maxMessageSize+1)
	buf.Write(prefix[:])

	var resp Response
	if err := readMessage(&buf, &resp); err == nil {
		t.Fatal("oversize message accepted")
	}
}

func TestNewProcessDetector_RequiresCommand(t *testing.T) {
	if _, err := NewProcessDetector(Config{}); err == nil {
		t.Fatal("expected error for empty command")
	}
}
