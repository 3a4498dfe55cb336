package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/e7canasta/orion-wellness/internal/alert"
	"github.com/e7canasta/orion-wellness/internal/capture"
	"github.com/e7canasta/orion-wellness/internal/control"
	"github.com/e7canasta/orion-wellness/internal/types"
)

func (w *Wellness) callbacks() control.CommandCallbacks {
	s := w.scheduler
	return control.CommandCallbacks{
		OnGetStatus:     w.getStatus,
		OnShutdown:      w.shutdownViaControl,
		OnStartTimer:    s.StartTimer,
		OnStopTimer:     s.StopTimer,
		OnToggleTimer:   s.ToggleTimer,
		OnStartAll:      s.StartAll,
		OnResetAll:      s.ResetAll,
		OnIncrement:     s.Increment,
		OnDecrement:     s.Decrement,
		OnSetDuration:   s.SetDurationText,
		OnEnableCamera:  w.enableCamera,
		OnDisableCamera: w.monitor.Disable,
		OnToggleCamera: func(ctx context.Context) (bool, error) {
			active, err := w.monitor.Toggle(ctx)
			w.reportCameraFailure(err)
			return active, err
		},
	}
}

// getStatus returns the current service status
func (w *Wellness) getStatus() map[string]any {
	w.mu.RLock()
	started, running := w.started, w.isRunning
	w.mu.RUnlock()

	status := map[string]any{
		"instance_id": w.cfg.InstanceID,
		"uptime_s":    w.clock.Now().Sub(started).Seconds(),
		"running":     running,
	}

	if timers, err := w.scheduler.Snapshot(); err == nil {
		status["timers"] = timers
	} else {
		status["timers_error"] = err.Error()
	}

	if snap, err := w.monitor.Snapshot(); err == nil {
		status["posture"] = snap
	} else {
		status["posture_error"] = err.Error()
	}

	if toast, ok := w.dispatcher.ActiveToast(); ok {
		status["toast"] = toast
	}
	if w.detector != nil {
		status["detector"] = w.detector.Stats()
	}
	if w.emitter != nil {
		status["mqtt"] = w.emitter.Stats()
	}

	status["config"] = map[string]any{
		"durations": map[types.TimerType]int{
			types.TimerBlink:   w.cfg.Timers.BlinkS,
			types.TimerPosture: w.cfg.Timers.PostureS,
			types.TimerStretch: w.cfg.Timers.StretchS,
			types.TimerScreen:  w.cfg.Timers.ScreenS,
		},
		"camera_source":  w.cfg.Camera.Source,
		"poll_interval":  w.cfg.PollInterval().String(),
		"alert_cooldown": w.cfg.Cooldown().String(),
	}

	return status
}

// shutdownViaControl cancels the run context, which makes Run return.
func (w *Wellness) shutdownViaControl() error {
	w.mu.RLock()
	cancel := w.cancelCtx
	w.mu.RUnlock()

	if cancel == nil {
		return fmt.Errorf("service is not running")
	}
	slog.Warn("core: shutdown requested via control plane")
	cancel()
	return nil
}

// enableCamera enables the posture monitor and warns the user when the
// camera cannot be acquired.
func (w *Wellness) enableCamera(ctx context.Context) error {
	err := w.monitor.Enable(ctx)
	w.reportCameraFailure(err)
	return err
}

func (w *Wellness) reportCameraFailure(err error) {
	if !errors.Is(err, capture.ErrPermissionDenied) && !errors.Is(err, capture.ErrUnavailable) {
		return
	}
	w.dispatcher.Send(alert.CameraMessage(err))
}
