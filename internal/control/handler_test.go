package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/orion-wellness/internal/capture"
	"github.com/e7canasta/orion-wellness/internal/config"
	"github.com/e7canasta/orion-wellness/internal/scheduler"
	"github.com/e7canasta/orion-wellness/internal/types"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeClient struct {
	mqtt.Client

	mu       sync.Mutex
	handler  mqtt.MessageHandler
	subTopic string
	out      chan []byte
}

func (c *fakeClient) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subTopic = topic
	c.handler = cb
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(...string) mqtt.Token { return &fakeToken{} }
func (c *fakeClient) IsConnected() bool                { return true }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.out <- payload.([]byte)
	return &fakeToken{}
}

func (c *fakeClient) deliver(payload string) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(c, &fakeMessage{topic: c.subTopic, payload: []byte(payload)})
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.InstanceID = "desk-1"
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestExecute(t *testing.T) {
	var calls []string
	record := func(s string) { calls = append(calls, s) }

	cb := CommandCallbacks{
		OnGetStatus: func() map[string]any { return map[string]any{"ok": true} },
		OnStartTimer: func(tt types.TimerType) error {
			record("start " + string(tt))
			return nil
		},
		OnToggleTimer: func(tt types.TimerType) (bool, error) { return true, nil },
		OnIncrement: func(tt types.TimerType) error {
			record("up " + string(tt))
			return nil
		},
		OnDecrement: func(tt types.TimerType) (bool, error) { return tt != types.TimerBlink, nil },
		OnSetDuration: func(tt types.TimerType, v string) error {
			_, err := scheduler.ParseClock(v)
			return err
		},
		OnEnableCamera: func(context.Context) error {
			return fmt.Errorf("open /dev/video0: %w", capture.ErrPermissionDenied)
		},
		OnDisableCamera: func() error { return nil },
	}
	h := NewHandler(testConfig(t), nil, cb)

	tests := []struct {
		name       string
		cmd        Command
		wantStatus string
		wantData   map[string]any
	}{
		{"get status", Command{Command: "get_status"}, StatusSuccess, map[string]any{"ok": true}},
		{"start blink", Command{Command: "start", Params: map[string]any{"timer": "blink"}}, StatusSuccess, nil},
		{"start unknown timer", Command{Command: "start", Params: map[string]any{"timer": "nap"}}, StatusError, nil},
		{"start missing timer", Command{Command: "start"}, StatusError, nil},
		{"stop not wired", Command{Command: "stop", Params: map[string]any{"timer": "blink"}}, StatusError, nil},
		{"toggle", Command{Command: "toggle", Params: map[string]any{"timer": "screen"}}, StatusSuccess, map[string]any{"running": true}},
		{"adjust up", Command{Command: "adjust", Params: map[string]any{"timer": "posture", "direction": "up"}}, StatusSuccess, nil},
		{"adjust down below floor", Command{Command: "adjust", Params: map[string]any{"timer": "blink", "direction": "down"}}, StatusIgnored, nil},
		{"adjust bad direction", Command{Command: "adjust", Params: map[string]any{"timer": "blink", "direction": "left"}}, StatusError, nil},
		{"set duration text", Command{Command: "set_duration", Params: map[string]any{"timer": "stretch", "value": "1:30"}}, StatusSuccess, map[string]any{"value": "1:30"}},
		{"set duration seconds", Command{Command: "set_duration", Params: map[string]any{"timer": "stretch", "value": float64(90)}}, StatusSuccess, map[string]any{"value": "90"}},
		{"set duration garbage", Command{Command: "set_duration", Params: map[string]any{"timer": "stretch", "value": "abc"}}, StatusIgnored, nil},
		{"enable camera denied", Command{Command: "enable_camera"}, StatusError, map[string]any{"reason": "permission_denied"}},
		{"disable camera", Command{Command: "disable_camera"}, StatusSuccess, map[string]any{"camera_active": false}},
		{"unknown", Command{Command: "dance"}, StatusError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.Execute(context.Background(), tt.cmd)
			if resp.Status != tt.wantStatus {
				t.Fatalf("status = %q, want %q (error %q)", resp.Status, tt.wantStatus, resp.Error)
			}
			if resp.CommandAck != tt.cmd.Command {
				t.Errorf("command_ack = %q", resp.CommandAck)
			}
			for k, want := range tt.wantData {
				if got := resp.Data[k]; got != want {
					t.Errorf("data[%s] = %v, want %v", k, got, want)
				}
			}
			t.Logf("✅ %s → %s", tt.cmd.Command, resp.Status)
		})
	}

	if len(calls) != 2 || calls[0] != "start blink" || calls[1] != "up posture" {
		t.Errorf("calls = %v", calls)
	}
}

func receive(t *testing.T, ch <-chan []byte) Response {
	t.Helper()
	select {
	case payload := <-ch:
		var resp Response
		if err := json.Unmarshal(payload, &resp); err != nil {
			t.Fatalf("response payload: %v", err)
		}
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return Response{}
	}
}

func TestMessageRoundTrip(t *testing.T) {
	client := &fakeClient{out: make(chan []byte, 4)}
	shutdown := make(chan struct{})
	h := NewHandler(testConfig(t), client, CommandCallbacks{
		OnStartAll: func() error { return nil },
		OnShutdown: func() error {
			close(shutdown)
			return nil
		},
	})
	h.ShutdownDelay = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if client.subTopic != "wellness/desk-1/control" {
		t.Errorf("subscribed to %q", client.subTopic)
	}

	client.deliver(`{"command":"start_all"}`)
	resp := receive(t, client.out)
	if resp.CommandAck != "start_all" || resp.Status != StatusSuccess || resp.Timestamp == "" {
		t.Errorf("response = %+v", resp)
	}

	client.deliver(`not json`)
	resp = receive(t, client.out)
	if resp.CommandAck != "unknown" || resp.Error != "invalid JSON" {
		t.Errorf("response = %+v", resp)
	}

	client.deliver(`{"command":"shutdown"}`)
	resp = receive(t, client.out)
	if resp.Status != StatusSuccess {
		t.Errorf("shutdown response = %+v", resp)
	}
	select {
	case <-shutdown:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback not invoked")
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Messages after Stop are dropped without panicking.
	client.deliver(`{"command":"start_all"}`)
	if err := h.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	t.Logf("✅ Commands received, executed and acknowledged over MQTT")
}
