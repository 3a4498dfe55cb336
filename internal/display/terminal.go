package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/e7canasta/orion-wellness/internal/alert"
	"github.com/e7canasta/orion-wellness/internal/types"
)

var (
	okColor      = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	badColor     = color.New(color.FgRed, color.Bold)
	unknownColor = color.New(color.FgHiBlack)
	timerColor   = color.New(color.FgCyan)
	toastColor   = color.New(color.FgBlack, color.BgYellow)
	infoColor    = color.New(color.FgBlack, color.BgCyan)
)

// Terminal draws a one-line dashboard.
//
// On a terminal the line is redrawn in place after every update. Otherwise
// timer ticks are kept silent and only status changes and toasts are
// printed, one per line.
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	live   bool
	timers map[types.TimerType]string
	status map[types.Axis]statusLine
	toast  *alert.Toast
}

type statusLine struct {
	class types.Classification
	text  string
}

// NewTerminal writes to out. live selects in-place redrawing.
func NewTerminal(out io.Writer, live bool) *Terminal {
	return &Terminal{
		out:    out,
		live:   live,
		timers: make(map[types.TimerType]string, len(types.TimerTypes)),
		status: make(map[types.Axis]statusLine, len(types.Axes)),
	}
}

// NewStdout returns a Terminal on stdout, live when stdout is a terminal
// with color enabled.
func NewStdout() *Terminal {
	return NewTerminal(color.Output, !color.NoColor && isatty.IsTerminal(os.Stdout.Fd()))
}

func (t *Terminal) RenderTimer(tt types.TimerType, formatted string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timers[tt] == formatted {
		return
	}
	t.timers[tt] = formatted
	if t.live {
		t.redraw()
	}
}

func (t *Terminal) RenderStatus(axis types.Axis, class types.Classification, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	line := statusLine{class, text}
	if t.status[axis] == line {
		return
	}
	t.status[axis] = line
	if t.live {
		t.redraw()
		return
	}
	fmt.Fprintf(t.out, "%-9s %s\n", axis+":", classColor(class).Sprint(text))
}

func (t *Terminal) ShowToast(toast alert.Toast) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toast = &toast

	c := infoColor
	if toast.Warning {
		c = toastColor
	}
	if t.live {
		fmt.Fprint(t.out, "\r\033[K")
	}
	fmt.Fprintf(t.out, "%s %s\n", c.Sprintf(" %s ", toast.Title), toast.Body)
	if t.live {
		t.redraw()
	}
}

func (t *Terminal) HideToast(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.toast != nil && t.toast.ID == id {
		t.toast = nil
	}
}

// Line returns the dashboard as plain text.
func (t *Terminal) Line() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.compose(false)
}

func (t *Terminal) redraw() {
	fmt.Fprint(t.out, "\r\033[K"+t.compose(true))
}

func (t *Terminal) compose(colored bool) string {
	var b strings.Builder
	for _, tt := range types.TimerTypes {
		v, ok := t.timers[tt]
		if !ok {
			v = "-:--"
		}
		if colored {
			v = timerColor.Sprint(v)
		}
		fmt.Fprintf(&b, "%s %s  ", tt, v)
	}
	b.WriteString("|")
	for _, axis := range types.Axes {
		line, ok := t.status[axis]
		if !ok {
			continue
		}
		text := line.text
		if colored {
			text = classColor(line.class).Sprint(text)
		}
		fmt.Fprintf(&b, " %s: %s", axis, text)
	}
	return b.String()
}

func classColor(c types.Classification) *color.Color {
	switch c {
	case types.ClassOK:
		return okColor
	case types.ClassWarn:
		return warnColor
	case types.ClassBad:
		return badColor
	default:
		return unknownColor
	}
}
