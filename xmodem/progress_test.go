package xmodem

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(cb ProgressFunc, interval time.Duration) (*ProgressTracker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	pt := NewProgressTracker(cb, interval)
	pt.now = clock.now
	pt.Start()
	return pt, clock
}

func TestProgressTrackerRateLimits(t *testing.T) {
	type report struct {
		n    int64
		rate float64
	}
	var reports []report
	pt, clock := newTestTracker(func(n int64, rate float64) {
		reports = append(reports, report{n, rate})
	}, time.Second)

	clock.advance(100 * time.Millisecond)
	pt.Update(128)
	if len(reports) != 0 {
		t.Fatalf("reported before the interval elapsed: %v", reports)
	}

	clock.advance(time.Second)
	pt.Update(1280)
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	// 1280 bytes over 1.1s
	if reports[0].n != 1280 || reports[0].rate < 1163 || reports[0].rate > 1164 {
		t.Errorf("report = %+v", reports[0])
	}
	if pt.Transferred() != 1280 {
		t.Errorf("Transferred = %d", pt.Transferred())
	}
}

func TestProgressTrackerHandler(t *testing.T) {
	var last int64
	pt, clock := newTestTracker(func(n int64, rate float64) { last = n }, time.Millisecond)

	h := pt.Handler()
	clock.advance(time.Second)
	h(int64(384))
	h("not a count")
	h()

	if last != 384 || pt.Transferred() != 384 {
		t.Errorf("last = %d, transferred = %d, want 384", last, pt.Transferred())
	}
}

func TestProgressTrackerComplete(t *testing.T) {
	var calls int
	var finalRate float64
	pt, clock := newTestTracker(func(n int64, rate float64) {
		calls++
		finalRate = rate
	}, time.Hour)

	pt.Update(1024)
	clock.advance(2 * time.Second)

	if d := pt.Complete(); d != 2*time.Second {
		t.Errorf("duration = %v, want 2s", d)
	}
	if calls != 1 || finalRate != 512 {
		t.Errorf("calls = %d, rate = %v, want 1 call at 512 B/s", calls, finalRate)
	}
}

func TestProgressTrackerSubscribedToEngine(t *testing.T) {
	port := NewMockPort()
	port.OnWrite = ackingPeer()
	port.Push([]byte{NAK})

	pt := NewProgressTracker(nil, time.Millisecond)
	s := NewSender(port, nil)
	s.Events().Subscribe(EventStatus, pt.Handler())

	if err := s.Send(context.Background(), seqPayload(300)); err != nil {
		t.Fatal(err)
	}
	if pt.Transferred() != 384 {
		t.Errorf("Transferred = %d, want 384", pt.Transferred())
	}
}
