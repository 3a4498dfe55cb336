// Package scheduler runs the four wellness reminder timers.
//
// All timer state is owned by a single event-loop goroutine. Public methods
// are synchronous requests to that loop, so callers observe a consistent
// state and the tick handlers never race with user commands.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/orion-wellness/internal/alert"
	"github.com/e7canasta/orion-wellness/internal/clock"
	"github.com/e7canasta/orion-wellness/internal/types"
)

var (
	// ErrInvalidDuration is returned for non-positive durations and
	// unparseable clock values. The timer is left untouched.
	ErrInvalidDuration = errors.New("scheduler: invalid duration")

	// ErrUnknownTimer is returned for a timer type outside types.TimerTypes.
	ErrUnknownTimer = errors.New("scheduler: unknown timer")

	// ErrNotRunning is returned when the event loop has not been started or
	// has already stopped.
	ErrNotRunning = errors.New("scheduler: not running")
)

const (
	// MinDuration is the floor enforced by Adjust decrements.
	MinDuration = 60

	DefaultTickInterval = time.Second
	DefaultAdjustStep   = 60
)

// DefaultDurations are the initial reminder periods in seconds.
var DefaultDurations = map[types.TimerType]int{
	types.TimerBlink:   20,
	types.TimerPosture: 300,
	types.TimerStretch: 1200,
	types.TimerScreen:  1200,
}

// Display receives the formatted remaining time of a timer after every
// state change.
type Display interface {
	RenderTimer(t types.TimerType, formatted string)
}

// Notifier delivers a fired reminder.
type Notifier interface {
	Notify(title, body string, isWarning bool)
}

// Config wires a Scheduler. Missing durations fall back to DefaultDurations.
type Config struct {
	Durations    map[types.TimerType]int
	TickInterval time.Duration
	AdjustStep   int
	Clock        clock.Clock
	Display      Display
	Notifier     Notifier
}

type timerState struct {
	cfg     types.TimerConfig
	initial int
	ticker  clock.Ticker
	fired   uint64
}

type request struct {
	fn   func()
	done chan struct{}
}

// Scheduler owns the reminder timers.
type Scheduler struct {
	clock        clock.Clock
	display      Display
	notifier     Notifier
	tickInterval time.Duration
	adjustStep   int

	// Loop-owned.
	timers map[types.TimerType]*timerState

	requests chan request

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New validates cfg and returns a stopped Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.AdjustStep <= 0 {
		cfg.AdjustStep = DefaultAdjustStep
	}

	s := &Scheduler{
		clock:        cfg.Clock,
		display:      cfg.Display,
		notifier:     cfg.Notifier,
		tickInterval: cfg.TickInterval,
		adjustStep:   cfg.AdjustStep,
		timers:       make(map[types.TimerType]*timerState, len(types.TimerTypes)),
		requests:     make(chan request),
	}

	for _, t := range types.TimerTypes {
		d, ok := cfg.Durations[t]
		if !ok {
			d = DefaultDurations[t]
		}
		if d <= 0 {
			return nil, fmt.Errorf("%w: %s=%d", ErrInvalidDuration, t, d)
		}
		s.timers[t] = &timerState{
			cfg: types.TimerConfig{
				Name:             t,
				DurationSeconds:  d,
				RemainingSeconds: d,
			},
			initial: d,
		}
	}

	return s, nil
}

// Start launches the event loop and renders the initial state.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler: already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})
	s.running = true

	for _, t := range types.TimerTypes {
		s.render(t)
	}

	go s.loop(loopCtx, s.stopped)

	slog.Info("scheduler: started",
		"tick_interval", s.tickInterval,
		"adjust_step_s", s.adjustStep,
	)
	return nil
}

// Stop halts the loop and every running timer. Safe to call more than once.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, stopped := s.cancel, s.stopped
	s.mu.Unlock()

	cancel()
	<-stopped

	slog.Info("scheduler: stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)
	defer s.releaseTickers()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			req.fn()
			close(req.done)
		case <-s.tickC(types.TimerBlink):
			s.tick(types.TimerBlink)
		case <-s.tickC(types.TimerPosture):
			s.tick(types.TimerPosture)
		case <-s.tickC(types.TimerStretch):
			s.tick(types.TimerStretch)
		case <-s.tickC(types.TimerScreen):
			s.tick(types.TimerScreen)
		}
	}
}

// tickC returns the tick channel of a running timer, or nil so the select
// case never fires for a stopped one.
func (s *Scheduler) tickC(t types.TimerType) <-chan time.Time {
	st := s.timers[t]
	if st.ticker == nil {
		return nil
	}
	return st.ticker.C()
}

func (s *Scheduler) releaseTickers() {
	for _, st := range s.timers {
		if st.ticker != nil {
			st.ticker.Stop()
			st.ticker = nil
		}
		st.cfg.Running = false
		st.cfg.RemainingSeconds = st.cfg.DurationSeconds
	}
}

// do runs fn on the loop and waits for it to finish.
func (s *Scheduler) do(fn func()) error {
	s.mu.Lock()
	running, stopped := s.running, s.stopped
	s.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	req := request{fn: fn, done: make(chan struct{})}
	select {
	case s.requests <- req:
	case <-stopped:
		return ErrNotRunning
	}
	<-req.done
	return nil
}

func (s *Scheduler) tick(t types.TimerType) {
	st := s.timers[t]
	if !st.cfg.Running {
		return
	}

	st.cfg.RemainingSeconds--
	if st.cfg.RemainingSeconds <= 0 {
		st.fired++
		msg := alert.TimerMessage(t)
		slog.Info("scheduler: timer fired",
			"timer", t,
			"duration_s", st.initial,
			"fired", st.fired,
		)
		if s.notifier != nil {
			s.notifier.Notify(msg.Title, msg.Body, msg.Warning)
		}
		st.cfg.RemainingSeconds = st.initial
	}

	s.render(t)
}

func (s *Scheduler) render(t types.TimerType) {
	if s.display == nil {
		return
	}
	st := s.timers[t]
	shown := st.cfg.DurationSeconds
	if st.cfg.Running {
		shown = st.cfg.RemainingSeconds
	}
	s.display.RenderTimer(t, FormatClock(shown))
}

func (s *Scheduler) lookup(t types.TimerType) (*timerState, error) {
	st, ok := s.timers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimer, t)
	}
	return st, nil
}
