// Package posture watches the user through the camera and warns about
// sitting too close to the screen or at a bad eye level.
//
// A Monitor is either idle or active. While active it polls the camera on a
// fixed period, runs the face detector (falling back to a skin-tone
// heuristic), classifies the face box, renders the result and dispatches at
// most one warning per cooldown window. All monitor state is owned by one
// event-loop goroutine; Disable cancels an in-flight cycle from outside the
// loop so its result is discarded instead of applied.
package posture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/e7canasta/orion-wellness/internal/alert"
	"github.com/e7canasta/orion-wellness/internal/capture"
	"github.com/e7canasta/orion-wellness/internal/clock"
	"github.com/e7canasta/orion-wellness/internal/types"
)

var (
	// ErrAlreadyActive is returned by Enable while the monitor is active or
	// another Enable is acquiring the camera.
	ErrAlreadyActive = errors.New("posture: monitor already active")

	// ErrNotRunning is returned when the event loop is not running.
	ErrNotRunning = errors.New("posture: not running")

	// ErrDisabledDuringEnable is returned by Enable when Disable was called
	// while the camera was being acquired.
	ErrDisabledDuringEnable = errors.New("posture: disabled while acquiring camera")
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultCooldown     = 30 * time.Second
)

// Detector locates a face in a frame. found=false with a nil error means
// the detector ran and saw no face.
type Detector interface {
	DetectFace(ctx context.Context, frame types.Frame) (box types.BoundingBox, found bool, err error)
}

// StatusDisplay receives one line per axis after every status change.
type StatusDisplay interface {
	RenderStatus(axis types.Axis, class types.Classification, text string)
}

// Notifier delivers a posture warning.
type Notifier interface {
	Notify(title, body string, isWarning bool)
}

// Observer is told about every applied status, including resets.
type Observer interface {
	PostureUpdated(status types.PostureStatus)
}

// Config wires a Monitor. Source is required; Detector is optional and the
// skin heuristic is used when it is nil or fails.
type Config struct {
	Source        capture.Source
	Detector      Detector
	Display       StatusDisplay
	Notifier      Notifier
	Observers     []Observer
	Clock         clock.Clock
	PollInterval  time.Duration
	Cooldown      time.Duration
	DetectTimeout time.Duration
}

// Snapshot is a point-in-time view of the monitor.
type Snapshot struct {
	Active      bool                `json:"active"`
	Status      types.PostureStatus `json:"status"`
	LastAlertAt time.Time           `json:"last_alert_at,omitempty"`
	Cycles      uint64              `json:"cycles"`
	Skipped     uint64              `json:"skipped"`
	Discarded   uint64              `json:"discarded"`
	Fallbacks   uint64              `json:"fallbacks"`
	Alerts      uint64              `json:"alerts"`
}

type request struct {
	fn   func()
	done chan struct{}
}

// Monitor is the posture state machine.
type Monitor struct {
	source        capture.Source
	detector      Detector
	fallback      Detector
	display       StatusDisplay
	notifier      Notifier
	observers     []Observer
	clock         clock.Clock
	pollInterval  time.Duration
	detectTimeout time.Duration
	limiter       *rate.Limiter

	// Loop-owned.
	loopCtx    context.Context
	active     bool
	stream     capture.Stream
	ticker     clock.Ticker
	sessionCtx context.Context
	status     types.PostureStatus
	lastAlert  time.Time
	stats      Snapshot

	requests chan request
	enabling atomic.Bool
	disables atomic.Uint64

	sessionMu     sync.Mutex
	sessionCancel context.CancelFunc

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New returns an idle Monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("posture: capture source is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}

	return &Monitor{
		source:        cfg.Source,
		detector:      cfg.Detector,
		fallback:      SkinDetector{},
		display:       cfg.Display,
		notifier:      cfg.Notifier,
		observers:     cfg.Observers,
		clock:         cfg.Clock,
		pollInterval:  cfg.PollInterval,
		detectTimeout: cfg.DetectTimeout,
		limiter:       rate.NewLimiter(rate.Every(cfg.Cooldown), 1),
		status:        types.DetectingStatus(),
		requests:      make(chan request),
	}, nil
}

// Start launches the event loop in the idle state.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("posture: already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.loopCtx = loopCtx
	m.cancel = cancel
	m.stopped = make(chan struct{})
	m.running = true

	m.renderStatus()
	go m.loop(loopCtx, m.stopped)

	slog.Info("posture: monitor started",
		"poll_interval", m.pollInterval,
		"detector", m.detector != nil,
	)
	return nil
}

// Stop disables the monitor and ends the loop. Safe to call more than once.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel, stopped := m.cancel, m.stopped
	m.mu.Unlock()

	m.cancelSession()
	cancel()
	<-stopped

	slog.Info("posture: monitor stopped")
	return nil
}

func (m *Monitor) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	for {
		select {
		case <-ctx.Done():
			m.deactivate()
			return
		case req := <-m.requests:
			req.fn()
			close(req.done)
		case <-m.pollC():
			m.runCycle()
		}
	}
}

func (m *Monitor) pollC() <-chan time.Time {
	if m.ticker == nil {
		return nil
	}
	return m.ticker.C()
}

func (m *Monitor) do(fn func()) error {
	m.mu.Lock()
	running, stopped := m.running, m.stopped
	m.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	req := request{fn: fn, done: make(chan struct{})}
	select {
	case m.requests <- req:
	case <-stopped:
		return ErrNotRunning
	}
	<-req.done
	return nil
}

// Enable acquires the camera and starts polling. Acquisition errors wrap
// capture.ErrPermissionDenied or capture.ErrUnavailable and leave the
// monitor idle.
func (m *Monitor) Enable(ctx context.Context) error {
	if !m.enabling.CompareAndSwap(false, true) {
		return ErrAlreadyActive
	}
	defer m.enabling.Store(false)

	var active bool
	if err := m.do(func() { active = m.active }); err != nil {
		return err
	}
	if active {
		return ErrAlreadyActive
	}

	epoch := m.disables.Load()
	stream, err := m.source.Acquire(ctx)
	if err != nil {
		slog.Warn("posture: camera acquisition failed", "error", err)
		return err
	}

	var activateErr error
	err = m.do(func() {
		if m.disables.Load() != epoch {
			activateErr = ErrDisabledDuringEnable
			return
		}
		m.activate(stream)
	})
	if err == nil {
		err = activateErr
	}
	if err != nil {
		if relErr := m.source.Release(stream); relErr != nil {
			slog.Warn("posture: failed to release camera", "error", relErr)
		}
		return err
	}
	return nil
}

// Disable stops polling, releases the camera and resets the status. An
// in-flight cycle is cancelled and its result discarded. Disabling an idle
// monitor is a no-op.
func (m *Monitor) Disable() error {
	m.disables.Add(1)
	m.cancelSession()
	return m.do(m.deactivate)
}

// Toggle enables an idle monitor or disables an active one and reports
// whether it is active afterwards.
func (m *Monitor) Toggle(ctx context.Context) (bool, error) {
	var active bool
	if err := m.do(func() { active = m.active }); err != nil {
		return false, err
	}
	if active {
		return false, m.Disable()
	}
	if err := m.Enable(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Snapshot returns the current state.
func (m *Monitor) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := m.do(func() {
		snap = m.stats
		snap.Active = m.active
		snap.Status = m.status
		snap.LastAlertAt = m.lastAlert
	})
	return snap, err
}

func (m *Monitor) cancelSession() {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	if m.sessionCancel != nil {
		m.sessionCancel()
		m.sessionCancel = nil
	}
}

// activate and deactivate run on the loop goroutine.
func (m *Monitor) activate(stream capture.Stream) {
	sessionCtx, cancel := context.WithCancel(m.loopCtx)
	m.sessionMu.Lock()
	m.sessionCancel = cancel
	m.sessionMu.Unlock()

	m.sessionCtx = sessionCtx
	m.stream = stream
	m.ticker = m.clock.NewTicker(m.pollInterval)
	m.active = true
	m.setStatus(types.DetectingStatus())

	slog.Info("posture: monitor enabled", "poll_interval", m.pollInterval)
}

func (m *Monitor) deactivate() {
	if !m.active {
		return
	}
	m.cancelSession()

	m.ticker.Stop()
	m.ticker = nil
	if err := m.source.Release(m.stream); err != nil {
		slog.Warn("posture: failed to release camera", "error", err)
	}
	m.stream = nil
	m.sessionCtx = nil
	m.active = false
	m.setStatus(types.DetectingStatus())

	slog.Info("posture: monitor disabled",
		"cycles", m.stats.Cycles,
		"alerts", m.stats.Alerts,
	)
}

func (m *Monitor) runCycle() {
	frame, ok := m.stream.CurrentFrame()
	if !ok {
		m.stats.Skipped++
		slog.Debug("posture: no frame yet, skipping cycle")
		return
	}

	ctx := m.sessionCtx
	status, ok := m.evaluate(ctx, frame)
	if !ok || ctx.Err() != nil {
		m.stats.Discarded++
		slog.Debug("posture: discarding cycle result after disable", "trace_id", frame.TraceID)
		return
	}

	status.EvaluatedAt = m.clock.Now()
	m.stats.Cycles++
	m.setStatus(status)
	m.maybeAlert(status)
}

// evaluate returns false when the session was cancelled mid-detection.
func (m *Monitor) evaluate(ctx context.Context, frame types.Frame) (types.PostureStatus, bool) {
	if m.detector != nil {
		dctx := ctx
		if m.detectTimeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(ctx, m.detectTimeout)
			defer cancel()
		}

		box, found, err := m.detector.DetectFace(dctx, frame)
		if err == nil {
			return m.statusFor(box, found, frame), true
		}
		if ctx.Err() != nil {
			return types.PostureStatus{}, false
		}
		m.stats.Fallbacks++
		slog.Warn("posture: detector failed, using skin heuristic",
			"error", err,
			"trace_id", frame.TraceID,
		)
	}

	box, found, _ := m.fallback.DetectFace(ctx, frame)
	return m.statusFor(box, found, frame), true
}

func (m *Monitor) statusFor(box types.BoundingBox, found bool, frame types.Frame) types.PostureStatus {
	if !found {
		return types.UndetectedStatus()
	}
	return Classify(box, frame.Width, frame.Height)
}

func (m *Monitor) maybeAlert(status types.PostureStatus) {
	msg, bad := alert.PostureMessage(status)
	if !bad {
		return
	}

	now := m.clock.Now()
	if !m.limiter.AllowN(now, 1) {
		slog.Debug("posture: alert suppressed by cooldown",
			"title", msg.Title,
			"since_last", now.Sub(m.lastAlert),
		)
		return
	}

	m.lastAlert = now
	m.stats.Alerts++
	if m.notifier != nil {
		m.notifier.Notify(msg.Title, msg.Body, msg.Warning)
	}
}

func (m *Monitor) setStatus(status types.PostureStatus) {
	m.status = status
	m.renderStatus()
	for _, obs := range m.observers {
		obs.PostureUpdated(status)
	}
}

func (m *Monitor) renderStatus() {
	if m.display == nil {
		return
	}
	for _, axis := range types.Axes {
		r := m.status.Reading(axis)
		m.display.RenderStatus(axis, r.Class, r.Text())
	}
}
