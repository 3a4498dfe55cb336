package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/e7canasta/orion-wellness/internal/alert"
	"github.com/e7canasta/orion-wellness/internal/types"
)

func withoutColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestTerminal_PlainOutput(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	term := NewTerminal(&buf, false)

	term.RenderTimer(types.TimerBlink, "0:20")
	term.RenderTimer(types.TimerBlink, "0:19")
	if buf.Len() != 0 {
		t.Fatalf("timer ticks printed in plain mode: %q", buf.String())
	}

	term.RenderStatus(types.AxisDistance, types.ClassBad, "Too close! 🚨")
	term.RenderStatus(types.AxisDistance, types.ClassBad, "Too close! 🚨")
	if got := strings.Count(buf.String(), "Too close"); got != 1 {
		t.Fatalf("status printed %d times, want 1 (dedup)", got)
	}

	term.ShowToast(alert.Toast{ID: "a", Title: "🔔 Screen Wellness Reminder", Body: "blink"})
	if !strings.Contains(buf.String(), "Screen Wellness Reminder blink") &&
		!strings.Contains(buf.String(), "Screen Wellness Reminder  blink") {
		t.Errorf("toast not printed: %q", buf.String())
	}

	line := term.Line()
	for _, want := range []string{"blink 0:19", "posture -:--", "distance: Too close!"} {
		if !strings.Contains(line, want) {
			t.Errorf("dashboard %q missing %q", line, want)
		}
	}
}

func TestTerminal_LiveRedraw(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	term := NewTerminal(&buf, true)

	term.RenderTimer(types.TimerStretch, "20:00")
	if !strings.HasPrefix(buf.String(), "\r\033[K") {
		t.Fatalf("live mode did not redraw in place: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "stretch 20:00") {
		t.Errorf("redraw missing timer: %q", buf.String())
	}
}

func TestTerminal_HideToastMatchesID(t *testing.T) {
	term := NewTerminal(&bytes.Buffer{}, false)
	term.ShowToast(alert.Toast{ID: "b"})
	term.HideToast("a")
	if term.toast == nil {
		t.Fatal("hiding a different toast cleared the active one")
	}
	term.HideToast("b")
	if term.toast != nil {
		t.Fatal("toast not hidden")
	}
}

type countingRenderer struct{ timers, statuses, shown, hidden int }

func (c *countingRenderer) RenderTimer(types.TimerType, string) { c.timers++ }
func (c *countingRenderer) RenderStatus(types.Axis, types.Classification, string) {
	c.statuses++
}
func (c *countingRenderer) ShowToast(alert.Toast) { c.shown++ }
func (c *countingRenderer) HideToast(string)      { c.hidden++ }

func TestFanout(t *testing.T) {
	a, b := &countingRenderer{}, &countingRenderer{}
	f := &Fanout{
		Timers:   []TimerRenderer{a, b},
		Statuses: []StatusRenderer{a},
		Toasts:   []alert.ToastView{b},
	}

	f.RenderTimer(types.TimerBlink, "0:01")
	f.RenderStatus(types.AxisFace, types.ClassOK, "Yes ✓")
	f.ShowToast(alert.Toast{})
	f.HideToast("")

	if a.timers != 1 || b.timers != 1 || a.statuses != 1 || b.statuses != 0 || b.shown != 1 || b.hidden != 1 || a.shown != 0 {
		t.Fatalf("unexpected fan-out counts: a=%+v b=%+v", a, b)
	}
}
