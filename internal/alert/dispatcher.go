// Package alert delivers reminders and posture warnings to the user.
//
// A Dispatcher prefers the platform notification channel when it is present
// and authorized, and otherwise shows a single in-app toast that dismisses
// itself after a fixed delay. Every alert is also mirrored to the configured
// sinks (MQTT) and may trigger an audible chime.
package alert

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-wellness/internal/clock"
)

// DefaultToastDismiss is how long a toast stays visible.
const DefaultToastDismiss = 5 * time.Second

const (
	warningMarker = "⚠️ "
	infoMarker    = "🔔 "
)

// Channel names the path an alert was delivered through.
type Channel string

const (
	ChannelDesktop Channel = "desktop"
	ChannelToast   Channel = "toast"
)

// Notifier is a platform notification capability.
type Notifier interface {
	IsAuthorized() bool
	Send(title, body string) error
}

// Toast is the in-app fallback notification.
type Toast struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Warning bool      `json:"warning"`
	ShownAt time.Time `json:"shown_at"`
}

// ToastView renders and hides the in-app toast.
type ToastView interface {
	ShowToast(t Toast)
	HideToast(id string)
}

// Sounder plays an audible cue.
type Sounder interface {
	Play(warning bool)
}

// Event describes one delivered alert.
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Warning   bool      `json:"warning"`
	Channel   Channel   `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives a copy of every delivered alert.
type Sink interface {
	PublishAlert(e Event)
}

// Config wires a Dispatcher. Notifier, Chime and Sinks are optional.
type Config struct {
	Clock        clock.Clock
	Notifier     Notifier
	View         ToastView
	Chime        Sounder
	Sinks        []Sink
	DismissAfter time.Duration
}

// Dispatcher is the single entry point for user-facing alerts.
// It is safe for concurrent use.
type Dispatcher struct {
	clock        clock.Clock
	notifier     Notifier
	view         ToastView
	chime        Sounder
	sinks        []Sink
	dismissAfter time.Duration

	mu      sync.Mutex
	active  *Toast
	dismiss clock.Timer
}

// NewDispatcher creates a Dispatcher. A nil Clock uses the wall clock and a
// zero DismissAfter uses DefaultToastDismiss.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.DismissAfter <= 0 {
		cfg.DismissAfter = DefaultToastDismiss
	}
	return &Dispatcher{
		clock:        cfg.Clock,
		notifier:     cfg.Notifier,
		view:         cfg.View,
		chime:        cfg.Chime,
		sinks:        cfg.Sinks,
		dismissAfter: cfg.DismissAfter,
	}
}

// Notify delivers one alert.
func (d *Dispatcher) Notify(title, body string, isWarning bool) {
	ev := Event{
		ID:        uuid.New().String(),
		Title:     title,
		Body:      body,
		Warning:   isWarning,
		Timestamp: d.clock.Now(),
	}

	ev.Channel = ChannelToast
	if d.notifier != nil && d.notifier.IsAuthorized() {
		if err := d.notifier.Send(title, body); err != nil {
			slog.Warn("alert: notifier failed, falling back to toast",
				"title", title,
				"error", err,
			)
		} else {
			ev.Channel = ChannelDesktop
		}
	}

	if ev.Channel == ChannelToast {
		d.showToast(ev)
	}

	if d.chime != nil {
		d.chime.Play(isWarning)
	}

	for _, sink := range d.sinks {
		sink.PublishAlert(ev)
	}

	slog.Info("alert: delivered",
		"alert_id", ev.ID,
		"title", title,
		"warning", isWarning,
		"channel", ev.Channel,
	)
}

// Send adapts a resolved Message to Notify.
func (d *Dispatcher) Send(m Message) {
	d.Notify(m.Title, m.Body, m.Warning)
}

// ActiveToast returns the toast currently on screen, if any.
func (d *Dispatcher) ActiveToast() (Toast, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return Toast{}, false
	}
	return *d.active, true
}

func (d *Dispatcher) showToast(ev Event) {
	marker := infoMarker
	if ev.Warning {
		marker = warningMarker
	}
	toast := Toast{
		ID:      ev.ID,
		Title:   marker + ev.Title,
		Body:    ev.Body,
		Warning: ev.Warning,
		ShownAt: ev.Timestamp,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dismiss != nil {
		d.dismiss.Stop()
	}
	d.active = &toast
	if d.view != nil {
		d.view.ShowToast(toast)
	}
	d.dismiss = d.clock.AfterFunc(d.dismissAfter, func() {
		d.expire(toast.ID)
	})
}

func (d *Dispatcher) expire(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil || d.active.ID != id {
		return
	}
	d.active = nil
	d.dismiss = nil
	if d.view != nil {
		d.view.HideToast(id)
	}
}
