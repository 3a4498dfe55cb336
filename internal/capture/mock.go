package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-wellness/internal/types"
)

// Scene selects what a MockSource draws.
type Scene string

const (
	// SceneBlack renders all-black frames.
	SceneBlack Scene = "black"
	// SceneFace renders a skin-toned rectangle at FaceBox on a dark
	// background.
	SceneFace Scene = "face"
)

// skinRGB is a tone accepted by the skin heuristic.
var skinRGB = [3]uint8{200, 140, 110}

// MockConfig configures a MockSource.
type MockConfig struct {
	Width  int
	Height int
	// FPS <= 0 renders one static frame at Acquire and nothing after.
	FPS     int
	Scene   Scene
	FaceBox types.BoundingBox
	// AcquireErr, when set, is returned by every Acquire.
	AcquireErr error
}

// MockSource is a synthetic camera for headless runs and tests.
type MockSource struct {
	cfg MockConfig

	mu      sync.Mutex
	scene   Scene
	faceBox types.BoundingBox
	open    int32
}

// NewMockSource validates cfg and returns a MockSource.
func NewMockSource(cfg MockConfig) (*MockSource, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("mock capture: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Scene == "" {
		cfg.Scene = SceneBlack
	}
	return &MockSource{cfg: cfg, scene: cfg.Scene, faceBox: cfg.FaceBox}, nil
}

// SetScene changes what subsequent frames show.
func (m *MockSource) SetScene(scene Scene, box types.BoundingBox) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scene = scene
	m.faceBox = box
}

// OpenStreams returns the number of streams acquired and not yet released.
func (m *MockSource) OpenStreams() int {
	return int(atomic.LoadInt32(&m.open))
}

// Acquire starts a synthetic stream.
func (m *MockSource) Acquire(ctx context.Context) (Stream, error) {
	if m.cfg.AcquireErr != nil {
		return nil, m.cfg.AcquireErr
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &mockStream{source: m, cancel: cancel, done: make(chan struct{})}
	s.emit()

	if m.cfg.FPS > 0 {
		go s.generate(sctx, time.Second/time.Duration(m.cfg.FPS))
	} else {
		close(s.done)
	}

	atomic.AddInt32(&m.open, 1)
	slog.Info("capture: mock stream acquired",
		"width", m.cfg.Width,
		"height", m.cfg.Height,
		"fps", m.cfg.FPS,
		"scene", m.cfg.Scene,
	)
	return s, nil
}

// Release stops a stream returned by Acquire.
func (m *MockSource) Release(stream Stream) error {
	s, ok := stream.(*mockStream)
	if !ok {
		return fmt.Errorf("mock capture: foreign stream %T", stream)
	}
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	<-s.done
	atomic.AddInt32(&m.open, -1)
	slog.Info("capture: mock stream released", "frames_emitted", atomic.LoadUint64(&s.seq))
	return nil
}

func (m *MockSource) render(seq uint64) types.Frame {
	m.mu.Lock()
	scene, box := m.scene, m.faceBox
	m.mu.Unlock()

	w, h := m.cfg.Width, m.cfg.Height
	data := make([]byte, w*h*types.BytesPerPixel)
	for i := 3; i < len(data); i += types.BytesPerPixel {
		data[i] = 0xff
	}

	if scene == SceneFace {
		x0, y0 := int(box.X), int(box.Y)
		x1, y1 := int(box.X+box.Width), int(box.Y+box.Height)
		for y := max(y0, 0); y < min(y1, h); y++ {
			for x := max(x0, 0); x < min(x1, w); x++ {
				i := (y*w + x) * types.BytesPerPixel
				data[i], data[i+1], data[i+2] = skinRGB[0], skinRGB[1], skinRGB[2]
			}
		}
	}

	return types.Frame{
		Seq:          seq,
		Timestamp:    time.Now(),
		Width:        w,
		Height:       h,
		Data:         data,
		SourceStream: "mock",
		TraceID:      uuid.New().String(),
	}
}

type mockStream struct {
	source   *MockSource
	latest   LatestFrame
	seq      uint64
	cancel   context.CancelFunc
	done     chan struct{}
	released atomic.Bool
}

func (s *mockStream) CurrentFrame() (types.Frame, bool) {
	return s.latest.Load()
}

func (s *mockStream) emit() {
	seq := atomic.AddUint64(&s.seq, 1)
	s.latest.Store(s.source.render(seq))
}

func (s *mockStream) generate(ctx context.Context, every time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.emit()
		}
	}
}
