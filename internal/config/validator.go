package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)
	validate          = validator.New()
)

// Validate checks struct constraints, fills zero values with defaults and
// runs cross-field checks.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return describe(err)
	}

	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	def := Default()
	fill := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}
	fill(&cfg.ShutdownTimeoutS, def.ShutdownTimeoutS)
	fill(&cfg.Timers.BlinkS, def.Timers.BlinkS)
	fill(&cfg.Timers.PostureS, def.Timers.PostureS)
	fill(&cfg.Timers.StretchS, def.Timers.StretchS)
	fill(&cfg.Timers.ScreenS, def.Timers.ScreenS)
	fill(&cfg.Timers.TickIntervalMS, def.Timers.TickIntervalMS)
	fill(&cfg.Timers.AdjustStepS, def.Timers.AdjustStepS)
	fill(&cfg.Posture.PollIntervalMS, def.Posture.PollIntervalMS)
	fill(&cfg.Posture.CooldownS, def.Posture.CooldownS)
	fill(&cfg.Camera.Width, def.Camera.Width)
	fill(&cfg.Camera.Height, def.Camera.Height)
	fill(&cfg.Detector.TimeoutMS, def.Detector.TimeoutMS)
	fill(&cfg.Alerts.ToastDismissS, def.Alerts.ToastDismissS)
	fill(&cfg.Health.Port, def.Health.Port)
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = def.Camera.FPS
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}

	if cfg.Camera.Source == "v4l2" && cfg.Camera.Device == "" {
		return fmt.Errorf("camera.device is required for source v4l2")
	}
	if cfg.Detector.Command != "" && cfg.Detector.TimeoutMS >= cfg.Posture.PollIntervalMS {
		return fmt.Errorf("detector.timeout_ms (%d) must be shorter than posture.poll_interval_ms (%d)",
			cfg.Detector.TimeoutMS, cfg.Posture.PollIntervalMS)
	}

	// Set default topics if not provided
	prefix := fmt.Sprintf("wellness/%s", cfg.InstanceID)
	topics := &cfg.MQTT.Topics
	for _, t := range []struct {
		dst  *string
		name string
	}{
		{&topics.Control, "control"},
		{&topics.Alerts, "alerts"},
		{&topics.Timers, "timers"},
		{&topics.Posture, "posture"},
		{&topics.Health, "health"},
	} {
		if *t.dst == "" {
			*t.dst = prefix + "/" + t.name
		}
	}

	// Set default QoS if not provided
	if cfg.MQTT.QoS == nil {
		cfg.MQTT.QoS = map[string]byte{
			"control": 1,
			"alerts":  1,
			"timers":  0,
			"posture": 0,
			"health":  0,
		}
	}
	for name, qos := range cfg.MQTT.QoS {
		if qos > 2 {
			return fmt.Errorf("mqtt.qos.%s must be 0, 1 or 2", name)
		}
	}

	return nil
}

// describe flattens validator errors into one message naming each field.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
