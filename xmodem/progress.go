package xmodem

import (
	"sync"
	"time"
)

// ProgressFunc receives rate-limited progress: bytes transferred so far and
// the rate since the previous report in bytes per second.
type ProgressFunc func(transferred int64, rate float64)

// ProgressTracker turns status events into rate-limited progress reports.
type ProgressTracker struct {
	mu sync.Mutex

	transferred int64
	startTime   time.Time
	lastUpdate  time.Time
	lastBytes   int64

	callback       ProgressFunc
	updateInterval time.Duration

	now func() time.Time
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(callback ProgressFunc, interval time.Duration) *ProgressTracker {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	pt := &ProgressTracker{
		callback:       callback,
		updateInterval: interval,
		now:            time.Now,
	}
	pt.Start()
	return pt
}

// Start resets the tracker for a new transfer.
func (pt *ProgressTracker) Start() {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.transferred = 0
	pt.startTime = pt.now()
	pt.lastUpdate = pt.startTime
	pt.lastBytes = 0
}

// Handler returns an event handler suitable for EventStatus.
func (pt *ProgressTracker) Handler() Handler {
	return func(args ...interface{}) {
		if len(args) == 0 {
			return
		}
		if n, ok := args[0].(int64); ok {
			pt.Update(n)
		}
	}
}

// Update records progress and invokes the callback if enough time has passed.
func (pt *ProgressTracker) Update(transferred int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.transferred = transferred

	now := pt.now()
	if now.Sub(pt.lastUpdate) < pt.updateInterval {
		return
	}

	var rate float64
	if elapsed := now.Sub(pt.lastUpdate).Seconds(); elapsed > 0 {
		rate = float64(transferred-pt.lastBytes) / elapsed
	}

	if pt.callback != nil {
		pt.callback(transferred, rate)
	}

	pt.lastUpdate = now
	pt.lastBytes = transferred
}

// Complete reports the final value and returns the duration of the transfer.
func (pt *ProgressTracker) Complete() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	duration := pt.now().Sub(pt.startTime)

	var rate float64
	if duration > 0 {
		rate = float64(pt.transferred) / duration.Seconds()
	}
	if pt.callback != nil {
		pt.callback(pt.transferred, rate)
	}

	return duration
}

// Transferred returns the last recorded byte count.
func (pt *ProgressTracker) Transferred() int64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.transferred
}
