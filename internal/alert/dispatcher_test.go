package alert

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/orion-wellness/internal/capture"
	"github.com/e7canasta/orion-wellness/internal/clock"
	"github.com/e7canasta/orion-wellness/internal/types"
)

type fakeNotifier struct {
	authorized bool
	err        error
	sent       []string
}

func (n *fakeNotifier) IsAuthorized() bool { return n.authorized }

func (n *fakeNotifier) Send(title, body string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, title+"|"+body)
	return nil
}

type fakeView struct {
	mu     sync.Mutex
	shown  []Toast
	hidden []string
}

func (v *fakeView) ShowToast(t Toast) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shown = append(v.shown, t)
}

func (v *fakeView) HideToast(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hidden = append(v.hidden, id)
}

type fakeSink struct{ events []Event }

func (s *fakeSink) PublishAlert(e Event) { s.events = append(s.events, e) }

type fakeChime struct{ warnings []bool }

func (c *fakeChime) Play(warning bool) { c.warnings = append(c.warnings, warning) }

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func TestDispatcher_AuthorizedNotifierSkipsToast(t *testing.T) {
	fc := clock.NewFake(epoch)
	n := &fakeNotifier{authorized: true}
	view := &fakeView{}
	sink := &fakeSink{}
	chime := &fakeChime{}
	d := NewDispatcher(Config{Clock: fc, Notifier: n, View: view, Sinks: []Sink{sink}, Chime: chime})

	d.Notify("Title", "Body", false)

	if len(n.sent) != 1 || n.sent[0] != "Title|Body" {
		t.Fatalf("expected one desktop notification, got %v", n.sent)
	}
	if len(view.shown) != 0 {
		t.Errorf("toast shown despite authorized notifier")
	}
	if len(sink.events) != 1 || sink.events[0].Channel != ChannelDesktop {
		t.Errorf("expected sink event on desktop channel, got %+v", sink.events)
	}
	if len(chime.warnings) != 1 || chime.warnings[0] {
		t.Errorf("expected one info chime, got %v", chime.warnings)
	}
}

func TestDispatcher_ToastFallback(t *testing.T) {
	tests := []struct {
		name     string
		notifier Notifier
		warning  bool
		prefix   string
	}{
		{"no notifier, info", nil, false, infoMarker},
		{"unauthorized, warning", &fakeNotifier{authorized: false}, true, warningMarker},
		{"send fails", &fakeNotifier{authorized: true, err: errors.New("dbus down")}, true, warningMarker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := clock.NewFake(epoch)
			view := &fakeView{}
			sink := &fakeSink{}
			d := NewDispatcher(Config{Clock: fc, Notifier: tt.notifier, View: view, Sinks: []Sink{sink}})

			d.Notify("Heads up", "details", tt.warning)

			if len(view.shown) != 1 {
				t.Fatalf("expected one toast, got %d", len(view.shown))
			}
			toast := view.shown[0]
			if !strings.HasPrefix(toast.Title, tt.prefix) || !strings.HasSuffix(toast.Title, "Heads up") {
				t.Errorf("toast title = %q, want prefix %q", toast.Title, tt.prefix)
			}
			if toast.Body != "details" {
				t.Errorf("toast body = %q", toast.Body)
			}
			if sink.events[0].Channel != ChannelToast {
				t.Errorf("expected toast channel, got %s", sink.events[0].Channel)
			}
		})
	}
}

func TestDispatcher_ToastAutoDismiss(t *testing.T) {
	fc := clock.NewFake(epoch)
	view := &fakeView{}
	d := NewDispatcher(Config{Clock: fc, View: view})

	d.Notify("A", "a", false)
	fc.Advance(4 * time.Second)
	if _, ok := d.ActiveToast(); !ok {
		t.Fatal("toast dismissed early")
	}

	fc.Advance(time.Second)
	if _, ok := d.ActiveToast(); ok {
		t.Fatal("toast still active after 5s")
	}
	if len(view.hidden) != 1 || view.hidden[0] != view.shown[0].ID {
		t.Errorf("expected hide for first toast, got %v", view.hidden)
	}
	t.Logf("✅ toast dismissed after %s", DefaultToastDismiss)
}

func TestDispatcher_NewToastCancelsPendingDismiss(t *testing.T) {
	fc := clock.NewFake(epoch)
	view := &fakeView{}
	d := NewDispatcher(Config{Clock: fc, View: view})

	d.Notify("first", "1", false)
	fc.Advance(3 * time.Second)
	d.Notify("second", "2", true)

	// The first toast's dismissal would have fired here.
	fc.Advance(3 * time.Second)
	active, ok := d.ActiveToast()
	if !ok {
		t.Fatal("second toast dismissed by the first toast's timer")
	}
	if !strings.HasSuffix(active.Title, "second") {
		t.Errorf("active toast = %q, want second", active.Title)
	}
	if len(view.hidden) != 0 {
		t.Errorf("unexpected hides: %v", view.hidden)
	}
	if fc.PendingTimers() != 1 {
		t.Errorf("expected a single pending dismissal, got %d", fc.PendingTimers())
	}

	fc.Advance(2 * time.Second)
	if _, ok := d.ActiveToast(); ok {
		t.Fatal("second toast not dismissed 5s after it was shown")
	}
}

func TestTimerMessage(t *testing.T) {
	for _, tt := range types.TimerTypes {
		m := TimerMessage(tt)
		if m.Title != TimerTitle {
			t.Errorf("%s: title = %q", tt, m.Title)
		}
		if m.Body == "" || m.Warning {
			t.Errorf("%s: unexpected message %+v", tt, m)
		}
	}
	if !strings.Contains(TimerMessage(types.TimerBlink).Body, "blink") {
		t.Errorf("blink body = %q", TimerMessage(types.TimerBlink).Body)
	}
}

func TestPostureMessage(t *testing.T) {
	bad := func(c types.Cause) types.Reading { return types.Reading{Class: types.ClassBad, Cause: c} }
	ok := func(c types.Cause) types.Reading { return types.Reading{Class: types.ClassOK, Cause: c} }
	warn := func(c types.Cause) types.Reading { return types.Reading{Class: types.ClassWarn, Cause: c} }

	tests := []struct {
		name      string
		status    types.PostureStatus
		wantAlert bool
		wantTitle string
		wantBody  string
	}{
		{"all ok", types.PostureStatus{Distance: ok(types.CauseGoodDistance), EyeLevel: ok(types.CauseGoodEyeLevel)}, false, "", ""},
		{"warn only", types.PostureStatus{Distance: warn(types.CauseSlightlyClose), EyeLevel: warn(types.CauseSlightlyHigh)}, false, "", ""},
		{"too close", types.PostureStatus{Distance: bad(types.CauseTooClose), EyeLevel: ok(types.CauseGoodEyeLevel)}, true, "Too Close to Screen", "Move back"},
		{"distance wins", types.PostureStatus{Distance: bad(types.CauseTooClose), EyeLevel: bad(types.CauseTooHigh)}, true, "Too Close to Screen", "Move back"},
		{"too high", types.PostureStatus{Distance: ok(types.CauseGoodDistance), EyeLevel: bad(types.CauseTooHigh)}, true, "Eye Level Alert", "Raise your screen"},
		{"too low", types.PostureStatus{Distance: ok(types.CauseGoodDistance), EyeLevel: bad(types.CauseTooLow)}, true, "Eye Level Alert", "Lower your screen"},
		{"undetected", types.UndetectedStatus(), false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, alert := PostureMessage(tt.status)
			if alert != tt.wantAlert {
				t.Fatalf("alert = %v, want %v", alert, tt.wantAlert)
			}
			if !alert {
				return
			}
			if m.Title != tt.wantTitle || !strings.HasPrefix(m.Body, tt.wantBody) || !m.Warning {
				t.Errorf("got %+v, want title %q body prefix %q", m, tt.wantTitle, tt.wantBody)
			}
		})
	}
}

func TestCameraMessage(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantTitle string
	}{
		{"permission denied", fmt.Errorf("v4l2: %w", capture.ErrPermissionDenied), "Camera Access Denied"},
		{"unavailable", fmt.Errorf("v4l2: %w", capture.ErrUnavailable), "Camera Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := CameraMessage(tt.err)
			if msg.Title != tt.wantTitle || !msg.Warning {
				t.Errorf("message = %+v, want warning titled %q", msg, tt.wantTitle)
			}
			if !strings.HasPrefix(msg.Body, "Camera access denied or not available: ") ||
				!strings.HasSuffix(msg.Body, tt.err.Error()) {
				t.Errorf("body = %q", msg.Body)
			}
		})
	}
}
