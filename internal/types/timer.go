package types

import (
	"fmt"
	"strings"
)

// TimerType names one of the four wellness reminders.
type TimerType string

const (
	TimerBlink   TimerType = "blink"
	TimerPosture TimerType = "posture"
	TimerStretch TimerType = "stretch"
	TimerScreen  TimerType = "screen"
)

// TimerTypes lists every timer in display order.
var TimerTypes = []TimerType{TimerBlink, TimerPosture, TimerStretch, TimerScreen}

// ParseTimerType maps a case-insensitive name to its TimerType.
func ParseTimerType(s string) (TimerType, error) {
	t := TimerType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range TimerTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown timer type %q", s)
}

// TimerConfig is the observable state of one reminder timer.
type TimerConfig struct {
	Name             TimerType `json:"name"`
	DurationSeconds  int       `json:"duration_seconds"`
	Running          bool      `json:"running"`
	RemainingSeconds int       `json:"remaining_seconds"`
}
