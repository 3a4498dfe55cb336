package alert

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/orion-wellness/internal/clock"
)

// writeNotifySend installs a shell script standing in for notify-send.
func writeNotifySend(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unsupported")
	}
	path := filepath.Join(t.TempDir(), "notify-send")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestDesktop_Send(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr string
	}{
		{"success", "exit 0", ""},
		{"failure", "echo no bus >&2; exit 1", "no bus"},
		{"hung binary", "sleep 3", "timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Desktop{
				appName: "wellness-test",
				binary:  writeNotifySend(t, tt.script),
				timeout: 200 * time.Millisecond,
			}

			start := time.Now()
			err := d.Send("Title", "Body")
			elapsed := time.Since(start)

			if elapsed > 2*time.Second {
				t.Fatalf("Send blocked for %s", elapsed)
			}
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			} else if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
			t.Logf("✅ %s returned in %s", tt.name, elapsed.Round(time.Millisecond))
		})
	}
}

func TestDispatcher_HungDesktopFallsBackToToast(t *testing.T) {
	d := &Desktop{
		appName: "wellness-test",
		binary:  writeNotifySend(t, "sleep 3"),
		timeout: 200 * time.Millisecond,
	}
	t.Setenv("DISPLAY", ":0")
	if !d.IsAuthorized() {
		t.Fatal("desktop should be authorized with DISPLAY set")
	}

	view := &fakeView{}
	sink := &fakeSink{}
	disp := NewDispatcher(Config{Clock: clock.NewFake(epoch), Notifier: d, View: view, Sinks: []Sink{sink}})

	start := time.Now()
	disp.Notify("Blink", "Look away", false)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Notify blocked for %s", elapsed)
	}

	if len(view.shown) != 1 {
		t.Fatalf("expected toast fallback, got %d toasts", len(view.shown))
	}
	if len(sink.events) != 1 || sink.events[0].Channel != ChannelToast {
		t.Errorf("expected toast channel event, got %+v", sink.events)
	}
	t.Logf("✅ hung notify-send fell back to toast")
}
