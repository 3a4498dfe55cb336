package alert

import (
	"errors"

	"github.com/e7canasta/orion-wellness/internal/capture"
	"github.com/e7canasta/orion-wellness/internal/types"
)

// Message is a fully resolved alert ready for the Dispatcher.
type Message struct {
	Title   string
	Body    string
	Warning bool
}

// TimerTitle heads every reminder notification.
const TimerTitle = "Screen Wellness Reminder"

var timerBodies = map[types.TimerType]string{
	types.TimerBlink:   "👁️ Time to blink! Give your eyes a rest.",
	types.TimerPosture: "🪑 Check your posture! Sit up straight.",
	types.TimerStretch: "🤸 Take a stretch break! Move your body.",
	types.TimerScreen:  "🖥️ Look away from the screen! Rest your eyes.",
}

// TimerMessage returns the reminder shown when a timer of type t fires.
func TimerMessage(t types.TimerType) Message {
	body, ok := timerBodies[t]
	if !ok {
		body = "Time for a break."
	}
	return Message{Title: TimerTitle, Body: body}
}

// PostureMessage returns the warning for a posture status, and false when the
// status does not warrant one. Distance takes priority over eye level.
func PostureMessage(status types.PostureStatus) (Message, bool) {
	switch {
	case status.Distance.Class == types.ClassBad:
		return Message{
			Title:   "Too Close to Screen",
			Body:    "Move back at least 50–70 cm from your monitor.",
			Warning: true,
		}, true
	case status.EyeLevel.Class == types.ClassBad:
		body := "Lower your screen or adjust your chair – screen is too low."
		if status.EyeLevel.Cause == types.CauseTooHigh {
			body = "Raise your screen or sit up – it's too high for your eye level."
		}
		return Message{Title: "Eye Level Alert", Body: body, Warning: true}, true
	default:
		return Message{}, false
	}
}

// CameraMessage returns the warning shown when the camera cannot be enabled.
func CameraMessage(err error) Message {
	title := "Camera Unavailable"
	if errors.Is(err, capture.ErrPermissionDenied) {
		title = "Camera Access Denied"
	}
	return Message{
		Title:   title,
		Body:    "Camera access denied or not available: " + err.Error(),
		Warning: true,
	}
}
