package scheduler

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatClock renders seconds as M:SS. Minutes are not capped, so an hour
// renders as 60:00. Negative input renders as 0:00.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// ParseClock reads an M:SS value (or a bare number of seconds) into seconds.
// The result must be positive.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidDuration)
	}

	var total int
	mins, secs, hasColon := strings.Cut(s, ":")
	if !hasColon {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		total = n
	} else {
		m, err := strconv.Atoi(mins)
		if err != nil || m < 0 {
			return 0, fmt.Errorf("%w: bad minutes in %q", ErrInvalidDuration, s)
		}
		sec, err := strconv.Atoi(secs)
		if err != nil || sec < 0 || sec > 59 || len(secs) != 2 {
			return 0, fmt.Errorf("%w: bad seconds in %q", ErrInvalidDuration, s)
		}
		total = m*60 + sec
	}

	if total <= 0 {
		return 0, fmt.Errorf("%w: %q is not positive", ErrInvalidDuration, s)
	}
	return total, nil
}
