package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete wellness daemon configuration
type Config struct {
	InstanceID       string         `yaml:"instance_id" validate:"required"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s" validate:"gte=0"` // Graceful shutdown timeout in seconds (default: 5)
	Timers           TimersConfig   `yaml:"timers"`
	Posture          PostureConfig  `yaml:"posture"`
	Camera           CameraConfig   `yaml:"camera"`
	Detector         DetectorConfig `yaml:"detector"`
	Alerts           AlertsConfig   `yaml:"alerts"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
	Health           HealthConfig   `yaml:"health"`
	Log              LogConfig      `yaml:"log"`
}

// TimersConfig contains reminder periods in seconds
type TimersConfig struct {
	BlinkS         int  `yaml:"blink_s" validate:"gte=0"`
	PostureS       int  `yaml:"posture_s" validate:"gte=0"`
	StretchS       int  `yaml:"stretch_s" validate:"gte=0"`
	ScreenS        int  `yaml:"screen_s" validate:"gte=0"`
	TickIntervalMS int  `yaml:"tick_interval_ms" validate:"gte=0"`
	AdjustStepS    int  `yaml:"adjust_step_s" validate:"gte=0"`
	Autostart      bool `yaml:"autostart"` // start all four timers at boot
}

// PostureConfig contains posture monitor settings
type PostureConfig struct {
	Enabled        bool `yaml:"enabled"` // enable the camera at boot
	PollIntervalMS int  `yaml:"poll_interval_ms" validate:"gte=0"`
	CooldownS      int  `yaml:"cooldown_s" validate:"gte=0"`
}

// CameraConfig contains capture settings
type CameraConfig struct {
	Source    string  `yaml:"source" validate:"oneof=v4l2 mock"`
	Device    string  `yaml:"device"`
	Width     int     `yaml:"width" validate:"gte=0"`
	Height    int     `yaml:"height" validate:"gte=0"`
	FPS       float64 `yaml:"fps" validate:"gte=0"`
	MockScene string  `yaml:"mock_scene" validate:"omitempty,oneof=black face"`
}

// DetectorConfig describes the optional external face detector
type DetectorConfig struct {
	Command   string   `yaml:"command"` // empty: skin-tone heuristic only
	Args      []string `yaml:"args"`
	TimeoutMS int      `yaml:"timeout_ms" validate:"gte=0"`
	MinScore  float64  `yaml:"min_score" validate:"gte=0,lte=1"`
}

// AlertsConfig selects the alert channels
type AlertsConfig struct {
	Desktop       bool    `yaml:"desktop"`
	Chime         bool    `yaml:"chime"`
	ChimeVolume   float64 `yaml:"chime_volume" validate:"gte=-8,lte=2"`
	ToastDismissS int     `yaml:"toast_dismiss_s" validate:"gte=0"`
}

// MQTTConfig contains MQTT broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic names
type MQTTTopics struct {
	Control string `yaml:"control"`
	Alerts  string `yaml:"alerts"`
	Timers  string `yaml:"timers"`
	Posture string `yaml:"posture"`
	Health  string `yaml:"health"`
}

// HealthConfig controls the HTTP health server
type HealthConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port" validate:"gte=0,lte=65535"`
}

// LogConfig controls logging
type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `yaml:"file"` // optional rotated log file
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// Default returns a runnable configuration: timers stopped, camera off,
// mock capture, no MQTT.
func Default() *Config {
	return &Config{
		InstanceID:       "wellness-local",
		ShutdownTimeoutS: 5,
		Timers: TimersConfig{
			BlinkS:         20,
			PostureS:       300,
			StretchS:       1200,
			ScreenS:        1200,
			TickIntervalMS: 1000,
			AdjustStepS:    60,
		},
		Posture: PostureConfig{
			PollIntervalMS: 2000,
			CooldownS:      30,
		},
		Camera: CameraConfig{
			Source:    "mock",
			Device:    "/dev/video0",
			Width:     640,
			Height:    480,
			FPS:       5,
			MockScene: "face",
		},
		Detector: DetectorConfig{
			TimeoutMS: 1500,
			MinScore:  0.5,
		},
		Alerts: AlertsConfig{
			Desktop:       true,
			Chime:         false,
			ToastDismissS: 5,
		},
		Health: HealthConfig{
			Enabled: true,
			Port:    8089,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load reads a YAML file over Default, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the validated
// defaults with environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}

	slog.Info("config: file not found, using defaults", "path", path)
	cfg = Default()
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Environment variables that override file values.
const (
	EnvMQTTBroker   = "WELLNESS_MQTT_BROKER"
	EnvCameraDevice = "WELLNESS_CAMERA_DEVICE"
	EnvLogLevel     = "WELLNESS_LOG_LEVEL"
	EnvInstanceID   = "WELLNESS_INSTANCE_ID"
)

// ApplyEnv overrides selected fields from the environment.
func ApplyEnv(cfg *Config) {
	override := func(env string, dst *string) {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			slog.Debug("config: environment override", "env", env)
			*dst = v
		}
	}
	override(EnvInstanceID, &cfg.InstanceID)
	override(EnvMQTTBroker, &cfg.MQTT.Broker)
	override(EnvCameraDevice, &cfg.Camera.Device)
	override(EnvLogLevel, &cfg.Log.Level)
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// TickInterval returns the timer tick period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Timers.TickIntervalMS) * time.Millisecond
}

// PollInterval returns the posture poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Posture.PollIntervalMS) * time.Millisecond
}

// Cooldown returns the minimum spacing between posture alerts.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Posture.CooldownS) * time.Second
}

// DetectorTimeout returns the detector round-trip limit.
func (c *Config) DetectorTimeout() time.Duration {
	return time.Duration(c.Detector.TimeoutMS) * time.Millisecond
}

// ToastDismiss returns how long a toast stays on screen.
func (c *Config) ToastDismiss() time.Duration {
	return time.Duration(c.Alerts.ToastDismissS) * time.Second
}
