package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func TestFakeSleepWaitsForAdvance(t *testing.T) {
	c := NewFake(epoch)
	done := make(chan error, 1)

	go func() { done <- c.Sleep(context.Background(), 5*time.Second) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.BlockUntil(ctx, 1))

	c.Advance(4 * time.Second)
	select {
	case <-done:
		t.Fatal("sleep returned before deadline")
	case <-time.After(20 * time.Millisecond):
	}

	c.Advance(time.Second)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sleep did not return after advance")
	}
	assert.Equal(t, epoch.Add(5*time.Second), c.Now())
}

func TestFakeSleepCancelled(t *testing.T) {
	c := NewFake(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- c.Sleep(ctx, time.Minute) }()
	require.NoError(t, c.BlockUntil(context.Background(), 1))
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, c.Waiters())
}

func TestFakeAfterFuncAndStop(t *testing.T) {
	c := NewFake(epoch)
	var fired atomic.Int32
	ran := make(chan struct{}, 2)

	c.AfterFunc(3*time.Second, func() { fired.Add(1); ran <- struct{}{} })
	stopped := c.AfterFunc(6*time.Second, func() { fired.Add(1); ran <- struct{}{} })

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	c.Advance(10 * time.Second)
	<-ran
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second}, c.Delays())
}

func TestAutoFakeNeverBlocks(t *testing.T) {
	c := NewAutoFake(epoch)
	ran := make(chan struct{})

	require.NoError(t, c.Sleep(context.Background(), 7*time.Second))
	c.AfterFunc(3*time.Second, func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("auto fake did not fire AfterFunc")
	}
	assert.Equal(t, epoch.Add(7*time.Second), c.Now())
	assert.Equal(t, []time.Duration{7 * time.Second}, c.Sleeps())
}

func TestJitterBounds(t *testing.T) {
	j := NewJitter(42)
	for i := 0; i < 500; i++ {
		d := j.Between(5*time.Second, 15*time.Second)
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.LessOrEqual(t, d, 15*time.Second)
	}
	assert.Equal(t, 2*time.Second, j.Between(2*time.Second, time.Second))
}

func TestRealSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Real().Sleep(ctx, time.Hour), context.Canceled)
}
