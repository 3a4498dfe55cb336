package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
)

var permissionKeywords = []string{
	"permission denied",
	"not permitted",
	"access denied",
	"eacces",
	"eperm",
	"unauthorized",
	"forbidden",
}

var unavailableKeywords = []string{
	"no such file",
	"not found",
	"cannot identify device",
	"busy",
	"could not open",
	"failed to open",
	"not a capture device",
	"no such device",
	"not negotiated",
	"missing plugin",
}

// Classify maps an acquisition failure message to ErrPermissionDenied or
// ErrUnavailable, returning an error that wraps the sentinel and keeps the
// raw text. Unrecognized messages are treated as unavailable.
func Classify(message, debug string) error {
	combined := strings.ToLower(message + " " + debug)
	detail := strings.TrimSpace(message)

	if containsAny(combined, permissionKeywords) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, detail)
	}
	if containsAny(combined, unavailableKeywords) {
		return fmt.Errorf("%w: %s", ErrUnavailable, detail)
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, detail)
}

// CheckDevice verifies that a device node exists and can be opened for
// reading before a pipeline is built around it.
func CheckDevice(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return classifyOSError(path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrUnavailable, path)
	}

	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return classifyOSError(path, err)
	}
	return f.Close()
}

func classifyOSError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, path, err)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s does not exist", ErrUnavailable, path)
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %s is busy", ErrUnavailable, path)
	default:
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
