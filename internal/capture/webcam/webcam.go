// Package webcam captures frames from a V4L2 camera through GStreamer.
package webcam

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-wellness/internal/capture"
	"github.com/e7canasta/orion-wellness/internal/types"
)

// Config describes the camera and the frames delivered to the poller.
type Config struct {
	Device string
	Width  int
	Height int
	FPS    float64
	// StartTimeout bounds how long Acquire waits for the first frame.
	StartTimeout time.Duration
}

// Source opens a webcam on demand. It implements capture.Source.
type Source struct {
	cfg Config
}

// New validates cfg and returns a Source. No device is opened until Acquire.
func New(cfg Config) (*Source, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("webcam: device is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("webcam: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 5
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 5 * time.Second
	}
	return &Source{cfg: cfg}, nil
}

// Stream is an open webcam.
type Stream struct {
	elements *pipelineElements
	latest   capture.LatestFrame

	frameCount uint64
	bytesRead  uint64
	startedAt  time.Time

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	released atomic.Bool
}

// CurrentFrame returns the newest frame delivered by the pipeline.
func (s *Stream) CurrentFrame() (types.Frame, bool) {
	return s.latest.Load()
}

// FrameCount returns the number of frames received so far.
func (s *Stream) FrameCount() uint64 {
	return atomic.LoadUint64(&s.frameCount)
}

// Acquire checks the device, starts the pipeline and waits until the camera
// delivers its first frame or reports an error.
func (src *Source) Acquire(ctx context.Context) (capture.Stream, error) {
	if err := capture.CheckDevice(src.cfg.Device); err != nil {
		return nil, err
	}

	elements, err := createPipeline(src.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrUnavailable, err)
	}

	s := &Stream{elements: elements, startedAt: time.Now()}
	first := make(chan struct{})
	var firstOnce sync.Once

	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			ret := s.onNewSample(sink, src.cfg)
			firstOnce.Do(func() { close(first) })
			return ret
		},
	})

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		destroyPipeline(elements)
		return nil, capture.Classify(err.Error(), "")
	}

	if err := src.awaitFirstFrame(ctx, elements, first); err != nil {
		destroyPipeline(elements)
		return nil, err
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		monitorBus(monitorCtx, elements.Pipeline, src.cfg.Device, &s.frameCount)
	}()

	slog.Info("webcam: stream acquired",
		"device", src.cfg.Device,
		"resolution", fmt.Sprintf("%dx%d", src.cfg.Width, src.cfg.Height),
		"fps", src.cfg.FPS,
		"startup", time.Since(s.startedAt),
	)
	return s, nil
}

// Release stops the pipeline. Releasing twice is a no-op.
func (src *Source) Release(stream capture.Stream) error {
	s, ok := stream.(*Stream)
	if !ok {
		return fmt.Errorf("webcam: foreign stream %T", stream)
	}
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}

	s.cancel()
	s.wg.Wait()
	err := destroyPipeline(s.elements)
	s.latest.Reset()

	slog.Info("webcam: stream released",
		"device", src.cfg.Device,
		"uptime", time.Since(s.startedAt),
		"frames", atomic.LoadUint64(&s.frameCount),
		"bytes_read", atomic.LoadUint64(&s.bytesRead),
	)
	return err
}

// awaitFirstFrame watches the bus until a frame arrives, an error is posted,
// the context ends or the start timeout elapses.
func (src *Source) awaitFirstFrame(ctx context.Context, elements *pipelineElements, first <-chan struct{}) error {
	bus := elements.Pipeline.GetPipelineBus()
	deadline := time.Now().Add(src.cfg.StartTimeout)

	for {
		select {
		case <-first:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: no frame from %s within %s", capture.ErrUnavailable, src.cfg.Device, src.cfg.StartTimeout)
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		if msg.Type() == gst.MessageError {
			gerr := msg.ParseError()
			slog.Warn("webcam: pipeline error during start",
				"device", src.cfg.Device,
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			return capture.Classify(gerr.Error(), gerr.DebugString())
		}
	}
}

// onNewSample copies the mapped buffer into the latest-frame slot.
func (s *Stream) onNewSample(sink *app.Sink, cfg Config) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("webcam: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("webcam: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("webcam: empty buffer received")
		return gst.FlowOK
	}

	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	seq := atomic.AddUint64(&s.frameCount, 1)
	atomic.AddUint64(&s.bytesRead, uint64(len(data)))

	s.latest.Store(types.Frame{
		Seq:          seq,
		Timestamp:    time.Now(),
		Width:        cfg.Width,
		Height:       cfg.Height,
		Data:         frameData,
		SourceStream: cfg.Device,
		TraceID:      uuid.New().String(),
	})
	return gst.FlowOK
}

// monitorBus logs pipeline errors and EOS after startup. Frames simply stop
// arriving in that case and the poller keeps evaluating the last one.
func monitorBus(ctx context.Context, pipeline *gst.Pipeline, device string, frames *uint64) {
	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("webcam: context cancelled, stopping bus monitor")
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Warn("webcam: end of stream", "device", device, "frames", atomic.LoadUint64(frames))
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("webcam: pipeline error",
				"device", device,
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"class", capture.Classify(gerr.Error(), gerr.DebugString()),
				"frames", atomic.LoadUint64(frames),
			)
			return
		}
	}
}
