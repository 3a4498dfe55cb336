// Package emitter mirrors alerts, timer displays and posture status to an
// MQTT broker for companion dashboards.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/retry-go"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/orion-wellness/internal/alert"
	"github.com/e7canasta/orion-wellness/internal/config"
	"github.com/e7canasta/orion-wellness/internal/types"
)

const (
	defaultQueueSize      = 64
	defaultConnectTimeout = 5 * time.Second
	publishTimeout        = 2 * time.Second
)

// ErrNotConnected is returned when publishing without a broker session.
var ErrNotConnected = errors.New("mqtt not connected")

// TimerEvent is the payload published on every timer display change.
type TimerEvent struct {
	Timer     types.TimerType `json:"timer"`
	Display   string          `json:"display"`
	Timestamp time.Time       `json:"timestamp"`
}

// PostureEvent is the payload published on every posture status change.
type PostureEvent struct {
	InstanceID string              `json:"instance_id"`
	Status     types.PostureStatus `json:"status"`
	Timestamp  time.Time           `json:"timestamp"`
}

type outbound struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// MQTTEmitter publishes events to the MQTT broker. Event methods never block
// the caller. Alerts go through a bounded queue and are dropped when it is
// full. Retained topics keep only their latest pending value, so the last
// timer and posture state always reaches the broker.
type MQTTEmitter struct {
	cfg *config.Config

	// NewClient builds the paho client. Replaced in tests.
	NewClient func(opts *mqtt.ClientOptions) mqtt.Client
	// ConnectAttempts bounds the initial connection retries (default 3).
	ConnectAttempts uint

	client mqtt.Client
	queue  chan outbound
	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup

	retainMu sync.Mutex
	latest   map[string]outbound
	order    []string

	errors    atomic.Uint64
	dropped   atomic.Uint64
	coalesced atomic.Uint64

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	connected bool
	closed    bool
}

// NewMQTTEmitter creates a new MQTT emitter
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:             cfg,
		NewClient:       mqtt.NewClient,
		ConnectAttempts: 3,
		published:       make(map[string]uint64),
	}
}

// BrokerURL adds the tcp scheme when the broker is given as host:port.
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect establishes the broker connection, retrying with backoff, and
// starts the publish loop.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	broker := BrokerURL(e.cfg.MQTT.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established",
			"broker", broker,
			"client_id", e.cfg.InstanceID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", broker)
	}

	e.client = e.NewClient(opts)

	slog.Info("emitter: connecting to mqtt broker", "broker", broker)

	err := retry.Do(
		func() error {
			token := e.client.Connect()
			if !token.WaitTimeout(defaultConnectTimeout) {
				return fmt.Errorf("mqtt connection timeout")
			}
			return token.Error()
		},
		retry.Context(ctx),
		retry.Attempts(e.ConnectAttempts),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("emitter: mqtt connect attempt failed", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)

	e.mu.Lock()
	e.queue = make(chan outbound, defaultQueueSize)
	e.wake = make(chan struct{}, 1)
	e.done = make(chan struct{})
	e.closed = false
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run()

	return nil
}

// Client returns the underlying paho client for the control plane.
func (e *MQTTEmitter) Client() mqtt.Client {
	return e.client
}

func (e *MQTTEmitter) run() {
	defer e.wg.Done()
	for {
		select {
		case msg := <-e.queue:
			e.send(msg)
		case <-e.wake:
			for _, msg := range e.takeRetained() {
				e.send(msg)
			}
		case <-e.done:
			return
		}
	}
}

func (e *MQTTEmitter) send(msg outbound) {
	if err := e.publish(msg); err != nil {
		slog.Debug("emitter: publish failed", "topic", msg.topic, "error", err)
	}
}

// takeRetained returns the pending retained messages in first-update order.
func (e *MQTTEmitter) takeRetained() []outbound {
	e.retainMu.Lock()
	defer e.retainMu.Unlock()
	msgs := make([]outbound, 0, len(e.order))
	for _, topic := range e.order {
		msgs = append(msgs, e.latest[topic])
	}
	e.latest = nil
	e.order = e.order[:0]
	return msgs
}

// PublishAlert implements alert.Sink.
func (e *MQTTEmitter) PublishAlert(ev alert.Event) {
	e.enqueue(e.cfg.MQTT.Topics.Alerts, e.qos("alerts"), false, ev)
}

// RenderTimer publishes a timer display change.
func (e *MQTTEmitter) RenderTimer(t types.TimerType, formatted string) {
	topic := fmt.Sprintf("%s/%s", e.cfg.MQTT.Topics.Timers, t)
	e.enqueue(topic, e.qos("timers"), true, TimerEvent{
		Timer:     t,
		Display:   formatted,
		Timestamp: time.Now(),
	})
}

// PostureUpdated implements posture.Observer.
func (e *MQTTEmitter) PostureUpdated(status types.PostureStatus) {
	e.enqueue(e.cfg.MQTT.Topics.Posture, e.qos("posture"), true, PostureEvent{
		InstanceID: e.cfg.InstanceID,
		Status:     status,
		Timestamp:  time.Now(),
	})
}

// PublishHealth publishes a health message synchronously.
func (e *MQTTEmitter) PublishHealth(payload []byte) error {
	return e.publish(outbound{
		topic:   e.cfg.MQTT.Topics.Health,
		qos:     e.qos("health"),
		payload: payload,
	})
}

func (e *MQTTEmitter) enqueue(topic string, qos byte, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		e.countError()
		slog.Error("emitter: failed to marshal event", "topic", topic, "error", err)
		return
	}

	msg := outbound{topic: topic, qos: qos, retained: retained, payload: payload}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.queue == nil || e.closed {
		return
	}

	if retained {
		e.retainMu.Lock()
		if e.latest == nil {
			e.latest = make(map[string]outbound)
		}
		if _, pending := e.latest[topic]; pending {
			e.coalesced.Add(1)
		} else {
			e.order = append(e.order, topic)
		}
		e.latest[topic] = msg
		e.retainMu.Unlock()

		select {
		case e.wake <- struct{}{}:
		default:
		}
		return
	}

	select {
	case e.queue <- msg:
	default:
		e.dropped.Add(1)
	}
}

func (e *MQTTEmitter) publish(msg outbound) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	token := e.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[msg.topic]++
	e.mu.Unlock()

	slog.Debug("emitter: event published",
		"topic", msg.topic,
		"qos", msg.qos,
		"size", len(msg.payload),
	)
	return nil
}

// Disconnect stops the publish loop and closes the MQTT connection.
func (e *MQTTEmitter) Disconnect() error {
	e.mu.Lock()
	if e.done != nil && !e.closed {
		e.closed = true
		close(e.done)
	}
	e.mu.Unlock()
	e.wg.Wait()

	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250) // 250ms grace period
		slog.Info("emitter: mqtt disconnected")
	}

	e.setConnected(false)
	return nil
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
	Dropped   uint64            `json:"dropped"`
	Coalesced uint64            `json:"coalesced"` // retained updates superseded before sending
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors.Load(),
		Dropped:   e.dropped.Load(),
		Coalesced: e.coalesced.Load(),
	}
}

// IsConnected reports the broker session state.
func (e *MQTTEmitter) IsConnected() bool {
	return e.isConnected()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.errors.Add(1)
}

func (e *MQTTEmitter) qos(kind string) byte {
	if qos, ok := e.cfg.MQTT.QoS[kind]; ok {
		return qos
	}
	return 0
}
