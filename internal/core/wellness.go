// Package core wires the timers, posture monitor and alert channels into
// one service and manages its lifecycle.
package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/orion-wellness/internal/alert"
	"github.com/e7canasta/orion-wellness/internal/capture"
	"github.com/e7canasta/orion-wellness/internal/clock"
	"github.com/e7canasta/orion-wellness/internal/config"
	"github.com/e7canasta/orion-wellness/internal/control"
	"github.com/e7canasta/orion-wellness/internal/display"
	"github.com/e7canasta/orion-wellness/internal/emitter"
	"github.com/e7canasta/orion-wellness/internal/posture"
	"github.com/e7canasta/orion-wellness/internal/scheduler"
	"github.com/e7canasta/orion-wellness/internal/types"
	"github.com/e7canasta/orion-wellness/internal/worker"
)

const (
	appName             = "wellnessd"
	healthPublishPeriod = 30 * time.Second
)

// Options injects capabilities that depend on the host. Zero values select
// the defaults.
type Options struct {
	Clock clock.Clock
	// Source overrides the capture source built from cfg.Camera. Required
	// for camera.source v4l2, which lives behind cgo.
	Source capture.Source
	// Out receives the terminal display; nil means stdout.
	Out  io.Writer
	Live bool
	// Notifier overrides the desktop notifier.
	Notifier alert.Notifier
	// NewMQTTClient overrides the paho client constructor.
	NewMQTTClient func(opts *mqtt.ClientOptions) mqtt.Client
}

// Wellness is the main service orchestrator
type Wellness struct {
	cfg   *config.Config
	clock clock.Clock

	// Core components
	terminal       *display.Terminal
	dispatcher     *alert.Dispatcher
	scheduler      *scheduler.Scheduler
	monitor        *posture.Monitor
	source         capture.Source
	detector       *worker.ProcessDetector
	emitter        *emitter.MQTTEmitter
	controlHandler *control.Handler
	healthServer   *http.Server

	// Lifecycle management
	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	cancelCtx context.CancelFunc // For MQTT shutdown command
}

// New builds the service from a validated configuration.
func New(cfg *config.Config, opts Options) (*Wellness, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	w := &Wellness{cfg: cfg, clock: opts.Clock}

	if opts.Out != nil {
		w.terminal = display.NewTerminal(opts.Out, opts.Live)
	} else {
		w.terminal = display.NewStdout()
	}

	fanout := &display.Fanout{
		Timers:   []display.TimerRenderer{w.terminal},
		Statuses: []display.StatusRenderer{w.terminal},
		Toasts:   []alert.ToastView{w.terminal},
	}

	var sinks []alert.Sink
	var observers []posture.Observer
	if cfg.MQTT.Broker != "" {
		w.emitter = emitter.NewMQTTEmitter(cfg)
		if opts.NewMQTTClient != nil {
			w.emitter.NewClient = opts.NewMQTTClient
		}
		fanout.Timers = append(fanout.Timers, w.emitter)
		sinks = append(sinks, w.emitter)
		observers = append(observers, w.emitter)
	}

	alertCfg := alert.Config{
		Clock:        opts.Clock,
		View:         fanout,
		Sinks:        sinks,
		DismissAfter: cfg.ToastDismiss(),
	}
	switch {
	case opts.Notifier != nil:
		alertCfg.Notifier = opts.Notifier
	case cfg.Alerts.Desktop:
		alertCfg.Notifier = alert.NewDesktop(appName)
	}
	if cfg.Alerts.Chime {
		alertCfg.Chime = alert.NewChime(cfg.Alerts.ChimeVolume)
	}
	w.dispatcher = alert.NewDispatcher(alertCfg)

	sched, err := scheduler.New(scheduler.Config{
		Durations: map[types.TimerType]int{
			types.TimerBlink:   cfg.Timers.BlinkS,
			types.TimerPosture: cfg.Timers.PostureS,
			types.TimerStretch: cfg.Timers.StretchS,
			types.TimerScreen:  cfg.Timers.ScreenS,
		},
		TickInterval: cfg.TickInterval(),
		AdjustStep:   cfg.Timers.AdjustStepS,
		Clock:        opts.Clock,
		Display:      fanout,
		Notifier:     w.dispatcher,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	w.scheduler = sched

	w.source = opts.Source
	if w.source == nil {
		if w.source, err = NewMockSource(cfg.Camera); err != nil {
			return nil, err
		}
	}

	monitorCfg := posture.Config{
		Source:        w.source,
		Display:       fanout,
		Notifier:      w.dispatcher,
		Observers:     observers,
		Clock:         opts.Clock,
		PollInterval:  cfg.PollInterval(),
		Cooldown:      cfg.Cooldown(),
		DetectTimeout: cfg.DetectorTimeout(),
	}
	if cfg.Detector.Command != "" {
		w.detector, err = worker.NewProcessDetector(worker.Config{
			Command:  cfg.Detector.Command,
			Args:     cfg.Detector.Args,
			Timeout:  cfg.DetectorTimeout(),
			MinScore: cfg.Detector.MinScore,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create face detector: %w", err)
		}
		monitorCfg.Detector = w.detector
	}

	w.monitor, err = posture.New(monitorCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create posture monitor: %w", err)
	}

	slog.Info("core: service configured",
		"instance_id", cfg.InstanceID,
		"camera_source", cfg.Camera.Source,
		"detector", cfg.Detector.Command != "",
		"mqtt", cfg.MQTT.Broker != "",
	)

	return w, nil
}

// NewMockSource builds the synthetic camera described by cam.
func NewMockSource(cam config.CameraConfig) (*capture.MockSource, error) {
	if cam.Source != "mock" {
		return nil, fmt.Errorf("camera source %q must be provided by the caller", cam.Source)
	}
	scene := capture.Scene(cam.MockScene)
	if scene == "" {
		scene = capture.SceneFace
	}
	w, h := float64(cam.Width), float64(cam.Height)
	return capture.NewMockSource(capture.MockConfig{
		Width:   cam.Width,
		Height:  cam.Height,
		FPS:     int(cam.FPS),
		Scene:   scene,
		FaceBox: types.BoundingBox{X: 0.35 * w, Y: 0.275 * h, Width: 0.3 * w, Height: 0.35 * h}, // comfortable posture
	})
}

// Run starts the service and blocks until ctx is cancelled or a shutdown
// command arrives.
func (w *Wellness) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	w.isRunning = true
	w.started = w.clock.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.cancelCtx = cancel
	w.mu.Unlock()

	slog.Info("core: service starting", "instance_id", w.cfg.InstanceID)

	if w.detector != nil {
		if err := w.detector.Start(ctx); err != nil {
			slog.Warn("core: face detector failed to start, using skin heuristic until it recovers",
				"error", err)
		}
	}

	if w.emitter != nil {
		w.startMQTT(ctx)
	}

	if err := w.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if err := w.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start posture monitor: %w", err)
	}

	if w.cfg.Timers.Autostart {
		if err := w.scheduler.StartAll(); err != nil {
			slog.Error("core: failed to autostart timers", "error", err)
		}
	}
	if w.cfg.Posture.Enabled {
		if err := w.enableCamera(ctx); err != nil {
			slog.Warn("core: camera not enabled at startup", "error", err)
		}
	}

	slog.Info("core: service running",
		"autostart", w.cfg.Timers.Autostart,
		"camera_enabled", w.cfg.Posture.Enabled,
	)

	<-ctx.Done()

	slog.Info("core: run loop exiting")
	return nil
}

// startMQTT connects the emitter and the control plane. MQTT is a
// companion channel, so failures degrade the service instead of stopping it.
func (w *Wellness) startMQTT(ctx context.Context) {
	if err := w.emitter.Connect(ctx); err != nil {
		slog.Warn("core: mqtt unavailable, continuing without companion channel", "error", err)
		return
	}

	w.controlHandler = control.NewHandler(w.cfg, w.emitter.Client(), w.callbacks())
	if err := w.controlHandler.Start(ctx); err != nil {
		slog.Warn("core: control plane unavailable", "error", err)
		w.controlHandler = nil
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.publishHealth(ctx, healthPublishPeriod)
	}()
}

// Shutdown performs graceful shutdown of all components
func (w *Wellness) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancelCtx
	w.mu.Unlock()

	slog.Info("core: shutting down")

	// 1. Camera first so no posture alert races the rest of the teardown.
	if err := w.monitor.Stop(); err != nil {
		slog.Error("core: failed to stop posture monitor", "error", err)
	}

	// 2. Timers
	if err := w.scheduler.Stop(); err != nil {
		slog.Error("core: failed to stop scheduler", "error", err)
	}

	// 3. Control plane
	if w.controlHandler != nil {
		if err := w.controlHandler.Stop(); err != nil {
			slog.Error("core: failed to stop control handler", "error", err)
		}
	}

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()

	// 4. Detector process
	if w.detector != nil {
		if err := w.detector.Stop(); err != nil {
			slog.Error("core: failed to stop face detector", "error", err)
		}
	}

	// 5. MQTT
	if w.emitter != nil {
		if err := w.emitter.Disconnect(); err != nil {
			slog.Error("core: failed to disconnect mqtt", "error", err)
		}
	}

	// 6. Health server
	w.mu.Lock()
	srv := w.healthServer
	w.healthServer = nil
	w.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("core: failed to stop health server", "error", err)
		}
	}

	w.mu.Lock()
	uptime := w.clock.Now().Sub(w.started)
	w.isRunning = false
	w.mu.Unlock()

	slog.Info("core: shutdown complete", "uptime", uptime)
	return nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (w *Wellness) ShutdownTimeout() time.Duration {
	timeout := w.cfg.ShutdownTimeout()
	if timeout == 0 {
		return 5 * time.Second
	}
	return timeout
}

// Scheduler exposes the timer scheduler.
func (w *Wellness) Scheduler() *scheduler.Scheduler { return w.scheduler }

// Monitor exposes the posture monitor.
func (w *Wellness) Monitor() *posture.Monitor { return w.monitor }

// Dispatcher exposes the alert dispatcher.
func (w *Wellness) Dispatcher() *alert.Dispatcher { return w.dispatcher }
