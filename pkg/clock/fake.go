package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Fake is a manually driven Clock.
//
// In manual mode Sleep and AfterFunc wait until Advance moves time past their deadline.
// In auto mode (NewAutoFake) Sleep advances time and returns at once, and AfterFunc
// fires immediately; every requested duration is still recorded.
type Fake struct {
	mu      sync.Mutex
	changed chan struct{}
	now     time.Time
	auto    bool
	waiters []*waiter
	sleeps  []time.Duration
	delays  []time.Duration
}

type waiter struct {
	at    time.Time
	fire  func()
	fired bool
}

// NewFake returns a manual fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, changed: make(chan struct{})}
}

// NewAutoFake returns a fake clock that never blocks.
func NewAutoFake(start time.Time) *Fake {
	f := NewFake(start)
	f.auto = true
	return f
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// notifyLocked wakes BlockUntil callers. Caller holds f.mu.
func (f *Fake) notifyLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.sleeps = append(f.sleeps, d)
	if f.auto || d <= 0 {
		if d > 0 {
			f.now = f.now.Add(d)
		}
		due := f.dueLocked()
		f.notifyLocked()
		f.mu.Unlock()
		runAll(due)
		return nil
	}

	done := make(chan struct{})
	w := &waiter{at: f.now.Add(d), fire: func() { close(done) }}
	f.waiters = append(f.waiters, w)
	f.notifyLocked()
	f.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		f.remove(w)
		return ctx.Err()
	}
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.delays = append(f.delays, d)
	w := &waiter{at: f.now.Add(d), fire: func() { go fn() }}
	if f.auto || d <= 0 {
		w.fired = true
		w.fire()
		return &fakeTimer{clock: f, w: w}
	}
	f.waiters = append(f.waiters, w)
	f.notifyLocked()
	return &fakeTimer{clock: f, w: w}
}

// Advance moves time forward by d and fires every waiter whose deadline has passed,
// earliest first.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	due := f.dueLocked()
	f.notifyLocked()
	f.mu.Unlock()
	runAll(due)
}

func (f *Fake) dueLocked() []*waiter {
	var due, pending []*waiter
	for _, w := range f.waiters {
		if !w.at.After(f.now) {
			w.fired = true
			due = append(due, w)
		} else {
			pending = append(pending, w)
		}
	}
	f.waiters = pending
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	return due
}

func runAll(ws []*waiter) {
	for _, w := range ws {
		w.fire()
	}
}

func (f *Fake) remove(target *waiter) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if target.fired {
		return false
	}
	for i, w := range f.waiters {
		if w == target {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			target.fired = true
			f.notifyLocked()
			return true
		}
	}
	return false
}

// Waiters returns the number of pending sleeps and timers.
func (f *Fake) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// BlockUntil waits until at least n sleeps or timers are pending, or ctx is done.
func (f *Fake) BlockUntil(ctx context.Context, n int) error {
	for {
		f.mu.Lock()
		if len(f.waiters) >= n {
			f.mu.Unlock()
			return nil
		}
		ch := f.changed
		f.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Sleeps returns every duration passed to Sleep, in call order.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

// Delays returns every duration passed to AfterFunc, in call order.
func (f *Fake) Delays() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.delays...)
}

type fakeTimer struct {
	clock *Fake
	w     *waiter
}

func (t *fakeTimer) Stop() bool {
	return t.clock.remove(t.w)
}
