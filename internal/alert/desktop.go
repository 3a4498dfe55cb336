package alert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
	"unicode/utf8"
)

const (
	maxSummaryRunes = 200
	maxBodyRunes    = 500

	// DefaultSendTimeout bounds one notify-send run. Callers sit on the
	// scheduler and posture loops.
	DefaultSendTimeout = 2 * time.Second
)

// Desktop posts freedesktop notifications through notify-send.
type Desktop struct {
	appName string
	binary  string
	lookErr error
	timeout time.Duration
}

// NewDesktop locates notify-send once. A missing binary leaves the notifier
// unauthorized rather than failing.
func NewDesktop(appName string) *Desktop {
	bin, err := exec.LookPath("notify-send")
	if err != nil {
		slog.Warn("alert: notify-send not found; desktop notifications disabled")
	}
	return &Desktop{appName: appName, binary: bin, lookErr: err, timeout: DefaultSendTimeout}
}

// IsAuthorized reports whether notify-send exists and a graphical session
// is reachable.
func (d *Desktop) IsAuthorized() bool {
	if d.lookErr != nil || d.binary == "" {
		return false
	}
	for _, env := range []string{"DBUS_SESSION_BUS_ADDRESS", "DISPLAY", "WAYLAND_DISPLAY"} {
		if os.Getenv(env) != "" {
			return true
		}
	}
	return false
}

// Send posts one notification. A notify-send that outlives the timeout is
// killed and reported as an error.
func (d *Desktop) Send(title, body string) error {
	if d.binary == "" {
		return fmt.Errorf("notify-send unavailable: %w", d.lookErr)
	}
	timeout := d.timeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.binary,
		"--app-name="+d.appName,
		truncate(title, maxSummaryRunes),
		truncate(body, maxBodyRunes),
	)
	// Grandchildren holding the output pipe must not outlive the deadline.
	cmd.WaitDelay = 100 * time.Millisecond
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("notify-send: timed out after %s: %w", timeout, ctx.Err())
		}
		return fmt.Errorf("notify-send: %w (%s)", err, out)
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
