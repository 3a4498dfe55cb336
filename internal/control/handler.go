// Package control accepts commands over MQTT in place of on-screen buttons.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/orion-wellness/internal/capture"
	"github.com/e7canasta/orion-wellness/internal/config"
	"github.com/e7canasta/orion-wellness/internal/scheduler"
	"github.com/e7canasta/orion-wellness/internal/types"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusIgnored = "ignored"
	StatusError   = "error"
)

// Command represents a control plane command
type Command struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string         `json:"command_ack"`
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// CommandCallbacks contains callback functions for commands
type CommandCallbacks struct {
	OnGetStatus func() map[string]any
	OnShutdown  func() error
	// Timer commands
	OnStartTimer  func(types.TimerType) error
	OnStopTimer   func(types.TimerType) error
	OnToggleTimer func(types.TimerType) (running bool, err error)
	OnStartAll    func() error
	OnResetAll    func() error
	OnIncrement   func(types.TimerType) error
	OnDecrement   func(types.TimerType) (applied bool, err error)
	OnSetDuration func(t types.TimerType, value string) error
	// Camera commands
	OnEnableCamera  func(context.Context) error
	OnDisableCamera func() error
	OnToggleCamera  func(context.Context) (active bool, err error)
}

// Handler handles control plane commands
type Handler struct {
	cfg      *config.Config
	client   mqtt.Client
	commands chan Command

	// ShutdownDelay separates the shutdown ack from the shutdown itself.
	ShutdownDelay time.Duration

	mu        sync.Mutex
	stopped   bool
	callbacks CommandCallbacks
}

// NewHandler creates a new control plane handler
func NewHandler(cfg *config.Config, client mqtt.Client, callbacks CommandCallbacks) *Handler {
	return &Handler{
		cfg:           cfg,
		client:        client,
		commands:      make(chan Command, 10),
		ShutdownDelay: 500 * time.Millisecond,
		callbacks:     callbacks,
	}
}

// ResponseTopic is where command responses are published.
func (h *Handler) ResponseTopic() string {
	return h.cfg.MQTT.Topics.Control + "/response"
}

// Start starts listening for control commands
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.MQTT.Topics.Control
	qos := h.cfg.MQTT.QoS["control"]

	slog.Info("control: subscribing", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control: handler started")

	go h.processCommands(ctx)

	return nil
}

// Stop stops the control plane handler
func (h *Handler) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	close(h.commands)
	h.mu.Unlock()

	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(h.cfg.MQTT.Topics.Control)
		token.WaitTimeout(2 * time.Second)
	}

	slog.Info("control: handler stopped")
	return nil
}

// messageHandler is called when a control message is received
func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("control: failed to parse command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     StatusError,
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control: command received", "command", cmd.Command)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	select {
	case h.commands <- cmd:
	default:
		slog.Warn("control: command queue full, dropping command", "command", cmd.Command)
	}
}

// processCommands processes commands from the queue
func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			resp := h.Execute(ctx, cmd)
			h.sendResponse(resp)
			if cmd.Command == "shutdown" && resp.Status == StatusSuccess {
				go h.shutdown()
			}
		}
	}
}

func (h *Handler) shutdown() {
	time.Sleep(h.ShutdownDelay)
	if err := h.callbacks.OnShutdown(); err != nil {
		slog.Error("control: shutdown callback failed", "error", err)
	}
}

// Execute runs one command and builds its response. Shutdown is only
// acknowledged here; processCommands triggers it after the ack is sent.
func (h *Handler) Execute(ctx context.Context, cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}
	cb := h.callbacks

	switch cmd.Command {
	case "get_status":
		if cb.OnGetStatus == nil {
			return notImplemented(resp)
		}
		resp.Status = StatusSuccess
		resp.Data = cb.OnGetStatus()

	case "shutdown":
		if cb.OnShutdown == nil {
			return notImplemented(resp)
		}
		slog.Warn("control: shutdown command received")
		resp.Status = StatusSuccess
		resp.Data = map[string]any{
			"shutdown_initiated": true,
			"message":            "graceful shutdown in progress",
		}

	case "start", "stop", "toggle":
		t, err := timerParam(cmd.Params)
		if err != nil {
			return failed(resp, err)
		}
		switch cmd.Command {
		case "start":
			if cb.OnStartTimer == nil {
				return notImplemented(resp)
			}
			return result(resp, cb.OnStartTimer(t), map[string]any{"timer": t, "running": true})
		case "stop":
			if cb.OnStopTimer == nil {
				return notImplemented(resp)
			}
			return result(resp, cb.OnStopTimer(t), map[string]any{"timer": t, "running": false})
		default:
			if cb.OnToggleTimer == nil {
				return notImplemented(resp)
			}
			running, err := cb.OnToggleTimer(t)
			return result(resp, err, map[string]any{"timer": t, "running": running})
		}

	case "start_all":
		if cb.OnStartAll == nil {
			return notImplemented(resp)
		}
		return result(resp, cb.OnStartAll(), nil)

	case "reset_all":
		if cb.OnResetAll == nil {
			return notImplemented(resp)
		}
		return result(resp, cb.OnResetAll(), nil)

	case "adjust":
		t, err := timerParam(cmd.Params)
		if err != nil {
			return failed(resp, err)
		}
		direction, _ := cmd.Params["direction"].(string)
		switch direction {
		case "up":
			if cb.OnIncrement == nil {
				return notImplemented(resp)
			}
			return result(resp, cb.OnIncrement(t), map[string]any{"timer": t})
		case "down":
			if cb.OnDecrement == nil {
				return notImplemented(resp)
			}
			applied, err := cb.OnDecrement(t)
			if err == nil && !applied {
				resp.Status = StatusIgnored
				resp.Data = map[string]any{"timer": t, "reason": "below minimum duration"}
				return resp
			}
			return result(resp, err, map[string]any{"timer": t})
		default:
			return failed(resp, fmt.Errorf("missing or invalid 'direction' parameter (expected up or down)"))
		}

	case "set_duration":
		t, err := timerParam(cmd.Params)
		if err != nil {
			return failed(resp, err)
		}
		if cb.OnSetDuration == nil {
			return notImplemented(resp)
		}
		value, err := durationParam(cmd.Params)
		if err != nil {
			return failed(resp, err)
		}
		return result(resp, cb.OnSetDuration(t, value), map[string]any{"timer": t, "value": value})

	case "enable_camera":
		if cb.OnEnableCamera == nil {
			return notImplemented(resp)
		}
		return result(resp, cb.OnEnableCamera(ctx), map[string]any{"camera_active": true})

	case "disable_camera":
		if cb.OnDisableCamera == nil {
			return notImplemented(resp)
		}
		return result(resp, cb.OnDisableCamera(), map[string]any{"camera_active": false})

	case "toggle_camera":
		if cb.OnToggleCamera == nil {
			return notImplemented(resp)
		}
		active, err := cb.OnToggleCamera(ctx)
		return result(resp, err, map[string]any{"camera_active": active})

	default:
		resp.Status = StatusError
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	return resp
}

// result maps a callback error onto the response. Invalid durations are
// reported as ignored input rather than faults.
func result(resp Response, err error, data map[string]any) Response {
	switch {
	case err == nil:
		resp.Status = StatusSuccess
		resp.Data = data
	case errors.Is(err, scheduler.ErrInvalidDuration):
		resp.Status = StatusIgnored
		resp.Error = err.Error()
	default:
		resp = failed(resp, err)
		if reason := captureReason(err); reason != "" {
			resp.Data = map[string]any{"reason": reason}
		}
	}
	return resp
}

func captureReason(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, capture.ErrUnavailable):
		return "unavailable"
	default:
		return ""
	}
}

func failed(resp Response, err error) Response {
	resp.Status = StatusError
	resp.Error = err.Error()
	return resp
}

func notImplemented(resp Response) Response {
	resp.Status = StatusError
	resp.Error = resp.CommandAck + " not implemented"
	return resp
}

func timerParam(params map[string]any) (types.TimerType, error) {
	name, ok := params["timer"].(string)
	if !ok {
		return "", fmt.Errorf("missing or invalid 'timer' parameter (expected string)")
	}
	return types.ParseTimerType(name)
}

// durationParam accepts "M:SS" text or a number of seconds.
func durationParam(params map[string]any) (string, error) {
	switch v := params["value"].(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("missing or invalid 'value' parameter (expected \"M:SS\" or seconds)")
	}
}

// sendResponse sends a command response
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("control: failed to marshal response", "error", err)
		return
	}

	topic := h.ResponseTopic()
	qos := h.cfg.MQTT.QoS["control"]

	token := h.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("control: response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("control: failed to publish response", "error", err)
		return
	}

	slog.Debug("control: response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
