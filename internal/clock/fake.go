package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock.
//
// Ticker channels are unbuffered: Advance hands each due tick directly to the
// goroutine selecting on it and only returns once every tick up to the new
// time has been received (or its ticker stopped). Timer callbacks run on the
// goroutine calling Advance.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

// NewFake returns a Fake clock reading start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		clock:  f,
		period: d,
		next:   f.now.Add(d),
		c:      make(chan time.Time),
		done:   make(chan struct{}),
	}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{clock: f, at: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// ActiveTickers returns the number of tickers not yet stopped.
func (f *Fake) ActiveTickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

// PendingTimers returns the number of AfterFunc callbacks still scheduled.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// Advance moves the clock forward by d, delivering due ticks and firing due
// timers in time order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		ticker, timer, at := f.nextDueLocked(target)
		if ticker == nil && timer == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = at
		if ticker != nil {
			ticker.next = ticker.next.Add(ticker.period)
		} else {
			f.removeTimerLocked(timer)
		}
		f.mu.Unlock()

		if ticker != nil {
			select {
			case ticker.c <- at:
			case <-ticker.done:
			}
		} else {
			timer.fn()
		}
	}
}

func (f *Fake) nextDueLocked(target time.Time) (*fakeTicker, *fakeTimer, time.Time) {
	var (
		bestTicker *fakeTicker
		bestTimer  *fakeTimer
		best       time.Time
	)
	for _, t := range f.tickers {
		if t.next.After(target) {
			continue
		}
		if bestTicker == nil && bestTimer == nil || t.next.Before(best) {
			bestTicker, bestTimer, best = t, nil, t.next
		}
	}
	sort.SliceStable(f.timers, func(i, j int) bool { return f.timers[i].at.Before(f.timers[j].at) })
	for _, t := range f.timers {
		if t.at.After(target) {
			break
		}
		if bestTicker == nil && bestTimer == nil || t.at.Before(best) {
			bestTicker, bestTimer, best = nil, t, t.at
		}
		break
	}
	return bestTicker, bestTimer, best
}

func (f *Fake) removeTickerLocked(t *fakeTicker) bool {
	for i, other := range f.tickers {
		if other == t {
			f.tickers = append(f.tickers[:i], f.tickers[i+1:]...)
			return true
		}
	}
	return false
}

func (f *Fake) removeTimerLocked(t *fakeTimer) bool {
	for i, other := range f.timers {
		if other == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return true
		}
	}
	return false
}

type fakeTicker struct {
	clock  *Fake
	period time.Duration
	next   time.Time
	c      chan time.Time
	done   chan struct{}
	once   sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.once.Do(func() {
		t.clock.mu.Lock()
		t.clock.removeTickerLocked(t)
		t.clock.mu.Unlock()
		close(t.done)
	})
}

type fakeTimer struct {
	clock *Fake
	at    time.Time
	fn    func()
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.clock.removeTimerLocked(t)
}
