// Package display renders timer countdowns, posture status lines and
// toasts.
package display

import (
	"github.com/e7canasta/orion-wellness/internal/alert"
	"github.com/e7canasta/orion-wellness/internal/types"
)

// TimerRenderer shows a timer's formatted remaining time.
type TimerRenderer interface {
	RenderTimer(t types.TimerType, formatted string)
}

// StatusRenderer shows one posture status line.
type StatusRenderer interface {
	RenderStatus(axis types.Axis, class types.Classification, text string)
}

// Fanout forwards every update to each of its targets in order.
type Fanout struct {
	Timers   []TimerRenderer
	Statuses []StatusRenderer
	Toasts   []alert.ToastView
}

func (f *Fanout) RenderTimer(t types.TimerType, formatted string) {
	for _, r := range f.Timers {
		r.RenderTimer(t, formatted)
	}
}

func (f *Fanout) RenderStatus(axis types.Axis, class types.Classification, text string) {
	for _, r := range f.Statuses {
		r.RenderStatus(axis, class, text)
	}
}

func (f *Fanout) ShowToast(t alert.Toast) {
	for _, v := range f.Toasts {
		v.ShowToast(t)
	}
}

func (f *Fanout) HideToast(id string) {
	for _, v := range f.Toasts {
		v.HideToast(id)
	}
}
