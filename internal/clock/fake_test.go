package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func TestFake_TickerDeliversEachPeriod(t *testing.T) {
	fc := NewFake(epoch)
	ticker := fc.NewTicker(time.Second)

	got := make(chan time.Time, 10)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case at := <-ticker.C():
				got <- at
			case <-stop:
				return
			}
		}
	}()

	fc.Advance(3 * time.Second)
	defer close(stop)

	for i := 1; i <= 3; i++ {
		var at time.Time
		select {
		case at = <-got:
		case <-time.After(time.Second):
			t.Fatalf("tick %d not delivered", i)
		}
		want := epoch.Add(time.Duration(i) * time.Second)
		if !at.Equal(want) {
			t.Errorf("tick %d at %v, want %v", i, at, want)
		}
	}
	if !fc.Now().Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("clock not advanced: %v", fc.Now())
	}
	t.Logf("✅ 3 ticks delivered in order")
}

func TestFake_StoppedTickerDoesNotBlockAdvance(t *testing.T) {
	fc := NewFake(epoch)
	ticker := fc.NewTicker(time.Second)
	ticker.Stop()
	ticker.Stop()

	done := make(chan struct{})
	go func() {
		fc.Advance(5 * time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Advance blocked on a stopped ticker")
	}
	if fc.ActiveTickers() != 0 {
		t.Errorf("expected no active tickers, got %d", fc.ActiveTickers())
	}
}

func TestFake_AfterFunc(t *testing.T) {
	fc := NewFake(epoch)

	fired := 0
	fc.AfterFunc(5*time.Second, func() { fired++ })
	cancelled := fc.AfterFunc(2*time.Second, func() { t.Error("stopped timer fired") })

	if !cancelled.Stop() {
		t.Error("Stop on pending timer should report true")
	}
	if cancelled.Stop() {
		t.Error("second Stop should report false")
	}

	fc.Advance(4 * time.Second)
	if fired != 0 {
		t.Fatalf("timer fired early")
	}
	fc.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("expected timer to fire once, fired=%d", fired)
	}
	if fc.PendingTimers() != 0 {
		t.Errorf("expected no pending timers, got %d", fc.PendingTimers())
	}
	t.Logf("✅ AfterFunc fires at deadline, Stop cancels")
}
