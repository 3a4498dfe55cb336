// Package capture defines the camera capability used by the posture monitor
// and the frame plumbing shared by its implementations.
package capture

import (
	"context"
	"errors"

	"github.com/e7canasta/orion-wellness/internal/types"
)

var (
	// ErrPermissionDenied means the camera exists but access was refused.
	ErrPermissionDenied = errors.New("capture: permission denied")

	// ErrUnavailable means no usable camera could be opened.
	ErrUnavailable = errors.New("capture: camera unavailable")
)

// Source acquires and releases camera streams.
type Source interface {
	// Acquire opens the camera. Failures wrap ErrPermissionDenied or
	// ErrUnavailable.
	Acquire(ctx context.Context) (Stream, error)

	// Release closes a stream returned by Acquire. Releasing twice is a no-op.
	Release(stream Stream) error
}

// Stream exposes the most recent frame of an open camera.
type Stream interface {
	// CurrentFrame returns the latest frame, or false while the camera has
	// not produced one yet.
	CurrentFrame() (types.Frame, bool)
}
