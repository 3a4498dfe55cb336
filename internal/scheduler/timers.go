package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/e7canasta/orion-wellness/internal/types"
)

// SetDuration replaces the duration of timer t. A running timer keeps
// counting down from the value it was started with; a stopped timer shows
// the new duration immediately.
func (s *Scheduler) SetDuration(t types.TimerType, seconds int) error {
	if seconds <= 0 {
		slog.Debug("scheduler: ignoring non-positive duration", "timer", t, "seconds", seconds)
		return fmt.Errorf("%w: %d", ErrInvalidDuration, seconds)
	}

	var opErr error
	err := s.do(func() {
		st, err := s.lookup(t)
		if err != nil {
			opErr = err
			return
		}
		st.cfg.DurationSeconds = seconds
		if !st.cfg.Running {
			st.cfg.RemainingSeconds = seconds
		}
		s.render(t)
		slog.Info("scheduler: duration set", "timer", t, "duration_s", seconds, "running", st.cfg.Running)
	})
	if err != nil {
		return err
	}
	return opErr
}

// SetDurationText parses an M:SS value and applies it with SetDuration.
func (s *Scheduler) SetDurationText(t types.TimerType, value string) error {
	seconds, err := ParseClock(value)
	if err != nil {
		slog.Debug("scheduler: ignoring unparseable duration", "timer", t, "value", value)
		return err
	}
	return s.SetDuration(t, seconds)
}

// Adjust changes the duration of timer t by deltaSeconds. Increments always
// apply. A decrement that would take the duration below MinDuration is
// ignored and reported as applied=false.
func (s *Scheduler) Adjust(t types.TimerType, deltaSeconds int) (applied bool, err error) {
	var opErr error
	err = s.do(func() {
		st, err := s.lookup(t)
		if err != nil {
			opErr = err
			return
		}
		next := st.cfg.DurationSeconds + deltaSeconds
		if deltaSeconds < 0 && next < MinDuration {
			slog.Debug("scheduler: decrement below floor ignored",
				"timer", t,
				"duration_s", st.cfg.DurationSeconds,
				"delta_s", deltaSeconds,
			)
			return
		}
		st.cfg.DurationSeconds = next
		if !st.cfg.Running {
			st.cfg.RemainingSeconds = next
		}
		applied = deltaSeconds != 0
		s.render(t)
	})
	if err != nil {
		return false, err
	}
	return applied, opErr
}

// Increment adds one adjust step to timer t.
func (s *Scheduler) Increment(t types.TimerType) error {
	_, err := s.Adjust(t, s.adjustStep)
	return err
}

// Decrement removes one adjust step from timer t, respecting MinDuration.
func (s *Scheduler) Decrement(t types.TimerType) (bool, error) {
	return s.Adjust(t, -s.adjustStep)
}

// StartTimer begins counting down timer t from its current duration.
// Starting a running timer is a no-op.
func (s *Scheduler) StartTimer(t types.TimerType) error {
	var opErr error
	err := s.do(func() {
		st, err := s.lookup(t)
		if err != nil {
			opErr = err
			return
		}
		s.startLocked(st)
	})
	if err != nil {
		return err
	}
	return opErr
}

// StopTimer halts timer t and discards its progress. Stopping a stopped
// timer is a no-op.
func (s *Scheduler) StopTimer(t types.TimerType) error {
	var opErr error
	err := s.do(func() {
		st, err := s.lookup(t)
		if err != nil {
			opErr = err
			return
		}
		s.stopLocked(st)
	})
	if err != nil {
		return err
	}
	return opErr
}

// ToggleTimer starts a stopped timer or stops a running one, and reports
// whether the timer is running afterwards.
func (s *Scheduler) ToggleTimer(t types.TimerType) (bool, error) {
	var (
		opErr   error
		running bool
	)
	err := s.do(func() {
		st, err := s.lookup(t)
		if err != nil {
			opErr = err
			return
		}
		if st.cfg.Running {
			s.stopLocked(st)
		} else {
			s.startLocked(st)
		}
		running = st.cfg.Running
	})
	if err != nil {
		return false, err
	}
	return running, opErr
}

// StartAll starts every stopped timer.
func (s *Scheduler) StartAll() error {
	return s.do(func() {
		for _, t := range types.TimerTypes {
			s.startLocked(s.timers[t])
		}
	})
}

// ResetAll stops every timer, returning each to its full duration.
func (s *Scheduler) ResetAll() error {
	return s.do(func() {
		for _, t := range types.TimerTypes {
			st := s.timers[t]
			s.stopLocked(st)
			st.cfg.RemainingSeconds = st.cfg.DurationSeconds
			s.render(t)
		}
	})
}

// Timer returns a snapshot of timer t.
func (s *Scheduler) Timer(t types.TimerType) (types.TimerConfig, error) {
	var (
		cfg   types.TimerConfig
		opErr error
	)
	err := s.do(func() {
		st, err := s.lookup(t)
		if err != nil {
			opErr = err
			return
		}
		cfg = st.cfg
	})
	if err != nil {
		return types.TimerConfig{}, err
	}
	return cfg, opErr
}

// Snapshot returns every timer in display order.
func (s *Scheduler) Snapshot() ([]types.TimerConfig, error) {
	out := make([]types.TimerConfig, 0, len(types.TimerTypes))
	err := s.do(func() {
		for _, t := range types.TimerTypes {
			out = append(out, s.timers[t].cfg)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// startLocked and stopLocked run on the loop goroutine.
func (s *Scheduler) startLocked(st *timerState) {
	if st.cfg.Running {
		return
	}
	st.initial = st.cfg.DurationSeconds
	st.cfg.RemainingSeconds = st.initial
	st.cfg.Running = true
	st.ticker = s.clock.NewTicker(s.tickInterval)
	s.render(st.cfg.Name)

	slog.Info("scheduler: timer started", "timer", st.cfg.Name, "duration_s", st.initial)
}

func (s *Scheduler) stopLocked(st *timerState) {
	if !st.cfg.Running {
		return
	}
	st.ticker.Stop()
	st.ticker = nil
	st.cfg.Running = false
	st.cfg.RemainingSeconds = st.cfg.DurationSeconds
	s.render(st.cfg.Name)

	slog.Info("scheduler: timer stopped", "timer", st.cfg.Name, "duration_s", st.cfg.DurationSeconds)
}
