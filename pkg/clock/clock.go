// Package clock abstracts time so pacing delays can be driven by a fake clock in tests.
package clock

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Timer is a pending AfterFunc submission.
type Timer interface {
	// Stop cancels the timer. It returns false if the function already ran or was stopped.
	Stop() bool
}

// Clock is the time source used by the scheduler, review pipeline and narrator.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever happens first.
	Sleep(ctx context.Context, d time.Duration) error
	// AfterFunc runs f in its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns the wall clock.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Jitter draws uniform random durations. Safe for concurrent use.
type Jitter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewJitter seeds a Jitter. Pass a fixed seed for reproducible tests.
func NewJitter(seed int64) *Jitter {
	return &Jitter{rng: rand.New(rand.NewSource(seed))} //nolint:gosec // pacing, not security
}

// Between returns a duration in [lo, hi], inclusive at millisecond granularity.
func (j *Jitter) Between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	span := int64((hi - lo) / time.Millisecond)
	j.mu.Lock()
	n := j.rng.Int63n(span + 1)
	j.mu.Unlock()
	return lo + time.Duration(n)*time.Millisecond
}
