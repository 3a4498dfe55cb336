package core

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// HealthStatus represents the health state of the service
type HealthStatus struct {
	Status        string `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds int64  `json:"uptime_seconds"`
	TimersRunning int    `json:"timers_running"`
	CameraActive  bool   `json:"camera_active"`
	CameraWanted  bool   `json:"camera_wanted"`
	MQTTEnabled   bool   `json:"mqtt_enabled"`
	MQTTConnected bool   `json:"mqtt_connected"`
}

// HealthCheck returns the current health status of the service
func (w *Wellness) HealthCheck() HealthStatus {
	w.mu.RLock()
	running, started := w.isRunning, w.started
	w.mu.RUnlock()

	status := HealthStatus{
		Status:       "healthy",
		CameraWanted: w.cfg.Posture.Enabled,
		MQTTEnabled:  w.emitter != nil,
	}
	if !running {
		status.Status = "unhealthy"
		return status
	}
	status.UptimeSeconds = int64(w.clock.Now().Sub(started).Seconds())

	if timers, err := w.scheduler.Snapshot(); err == nil {
		for _, t := range timers {
			if t.Running {
				status.TimersRunning++
			}
		}
	} else {
		status.Status = "unhealthy"
	}

	if snap, err := w.monitor.Snapshot(); err == nil {
		status.CameraActive = snap.Active
	} else {
		status.Status = "unhealthy"
	}

	if w.emitter != nil {
		status.MQTTConnected = w.emitter.IsConnected()
	}

	if status.Status == "healthy" {
		if (status.MQTTEnabled && !status.MQTTConnected) || (status.CameraWanted && !status.CameraActive) {
			status.Status = "degraded"
		}
	}

	return status
}

// LivenessHandler handles /health endpoint (simple liveness check)
func (w *Wellness) LivenessHandler(rw http.ResponseWriter, r *http.Request) {
	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()

	writeJSON(rw, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": int64(w.clock.Now().Sub(started).Seconds()),
	})
}

// ReadinessHandler handles /readiness endpoint (detailed readiness check)
func (w *Wellness) ReadinessHandler(rw http.ResponseWriter, r *http.Request) {
	health := w.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(rw, statusCode, health)
}

// StatusHandler handles /status endpoint (timer and posture snapshot)
func (w *Wellness) StatusHandler(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, w.getStatus())
}

// HealthMux returns the health endpoints.
func (w *Wellness) HealthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", w.LivenessHandler)
	mux.HandleFunc("/readiness", w.ReadinessHandler)
	mux.HandleFunc("/status", w.StatusHandler)
	return mux
}

// StartHealthServer starts the HTTP health check server on the given port.
// It does not block; Shutdown stops it.
func (w *Wellness) StartHealthServer(port int) error {
	addr := net.JoinHostPort("", strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:      w.HealthMux(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	w.mu.Lock()
	w.healthServer = server
	w.mu.Unlock()

	slog.Info("core: starting health check server",
		"addr", ln.Addr().String(),
		"endpoints", []string{"/health", "/readiness", "/status"},
	)

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("core: health check server failed", "error", err)
		}
	}()

	return nil
}

// publishHealth mirrors HealthCheck to the MQTT health topic.
func (w *Wellness) publishHealth(ctx context.Context, every time.Duration) {
	ticker := w.clock.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			payload, err := json.Marshal(w.HealthCheck())
			if err != nil {
				slog.Error("core: failed to marshal health", "error", err)
				continue
			}
			if err := w.emitter.PublishHealth(payload); err != nil {
				slog.Debug("core: health publish failed", "error", err)
			}
		}
	}
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		slog.Debug("core: failed to write response", "error", err)
	}
}
