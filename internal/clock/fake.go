package clock

import (
	"sync"
	"time"
)

// Fake is a manually-advanced Clock. Now never moves on its own; tests call
// Advance to move time forward, which fires any timers whose deadline has
// been reached. Safe for concurrent use.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{
		clock:    f,
		deadline: f.now.Add(d),
		ch:       make(chan time.Time, 1),
	}

	if d <= 0 {
		t.fired = true
		t.ch <- f.now
		return t
	}

	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d and fires every pending timer whose
// deadline is now due. Timers fire with the post-advance time, matching how a
// sleeping goroutine would observe a late wakeup.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)

	remaining := f.timers[:0]
	for _, t := range f.timers {
		if t.deadline.After(f.now) {
			remaining = append(remaining, t)
			continue
		}
		t.fired = true
		t.ch <- f.now
	}
	f.timers = remaining
}

// PendingTimers reports how many timers are armed, which lets tests confirm
// the dispatch loop has gone back to sleep before advancing again.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	ch       chan time.Time
	fired    bool
}

func (t *fakeTimer) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.fired {
		return false
	}
	for i, other := range t.clock.timers {
		if other == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			return true
		}
	}
	return false
}
