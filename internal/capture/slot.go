package capture

import (
	"sync"
	"sync/atomic"

	"github.com/e7canasta/orion-wellness/internal/types"
)

// LatestFrame is a single-slot mailbox: each Store overwrites the previous
// frame, and Load never consumes. The poller only ever wants the newest
// frame, so older unread frames are counted as dropped.
type LatestFrame struct {
	mu    sync.Mutex
	frame types.Frame
	has   bool
	read  bool

	stored  uint64
	dropped uint64
}

// Store publishes f as the current frame.
func (l *LatestFrame) Store(f types.Frame) {
	l.mu.Lock()
	if l.has && !l.read {
		atomic.AddUint64(&l.dropped, 1)
	}
	l.frame = f
	l.has = true
	l.read = false
	l.mu.Unlock()

	atomic.AddUint64(&l.stored, 1)
}

// Load returns the current frame, or false if none was stored yet.
func (l *LatestFrame) Load() (types.Frame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.has {
		return types.Frame{}, false
	}
	l.read = true
	return l.frame, true
}

// Reset empties the slot.
func (l *LatestFrame) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame = types.Frame{}
	l.has = false
	l.read = false
}

// SlotStats counts frames through a LatestFrame.
type SlotStats struct {
	Stored  uint64 `json:"stored"`
	Dropped uint64 `json:"dropped"`
}

// Stats returns the slot counters.
func (l *LatestFrame) Stats() SlotStats {
	return SlotStats{
		Stored:  atomic.LoadUint64(&l.stored),
		Dropped: atomic.LoadUint64(&l.dropped),
	}
}
