package disruptor

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type waitResult struct {
	available int64
	err       error
}

var waitStrategies = []struct {
	name string
	new  func() WaitStrategy
}{
	{"busy-spin", func() WaitStrategy { return NewBusySpinWaitStrategy() }},
	{"yielding", func() WaitStrategy { return NewYieldingWaitStrategy() }},
	{"sleeping", func() WaitStrategy { return NewSleepingWaitStrategy() }},
	{"blocking", func() WaitStrategy { return NewBlockingWaitStrategy() }},
	{"lite-blocking", func() WaitStrategy { return NewLiteBlockingWaitStrategy() }},
	{"timeout-blocking", func() WaitStrategy { return NewTimeoutBlockingWaitStrategy(time.Minute) }},
	{"phased-lock", func() WaitStrategy { return NewPhasedBackoffWithLock(time.Microsecond, time.Microsecond) }},
	{"phased-lite-lock", func() WaitStrategy { return NewPhasedBackoffWithLiteLock(time.Microsecond, time.Microsecond) }},
	{"phased-sleep", func() WaitStrategy { return NewPhasedBackoffWithSleep(time.Microsecond, time.Microsecond) }},
}

func waitAsync(barrier SequenceBarrier, sequence int64) <-chan waitResult {
	ch := make(chan waitResult, 1)
	go func() {
		available, err := barrier.WaitFor(sequence)
		ch <- waitResult{available, err}
	}()
	return ch
}

func receive(t *testing.T, ch <-chan waitResult) waitResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		require.FailNow(t, "wait did not return")
		return waitResult{}
	}
}

func TestWaitStrategyWakesOnPublish(t *testing.T) {
	for _, tc := range waitStrategies {
		t.Run(tc.name, func(t *testing.T) {
			rb := NewMultiProducer(newValueEvent, 8, tc.new())
			ch := waitAsync(rb.NewBarrier(), 0)

			time.Sleep(10 * time.Millisecond)
			rb.PublishEvent(func(e *valueEvent, seq int64) { e.value = 1 })

			r := receive(t, ch)
			require.NoError(t, r.err)
			assert.Equal(t, int64(0), r.available)
		})
	}
}

func TestWaitStrategyWaitsForDependents(t *testing.T) {
	for _, tc := range waitStrategies {
		t.Run(tc.name, func(t *testing.T) {
			rb := NewMultiProducer(newValueEvent, 8, tc.new())
			upstream := NewSequence(InitialSequenceValue)
			for i := 0; i < 3; i++ {
				rb.PublishEvent(func(e *valueEvent, seq int64) {})
			}

			ch := waitAsync(rb.NewBarrier(upstream), 0)
			time.Sleep(10 * time.Millisecond)
			select {
			case r := <-ch:
				require.FailNow(t, "wait returned before upstream progressed", "%+v", r)
			default:
			}

			upstream.Set(1)
			r := receive(t, ch)
			require.NoError(t, r.err)
			assert.Equal(t, int64(1), r.available)
		})
	}
}

func TestWaitStrategyAlert(t *testing.T) {
	for _, tc := range waitStrategies {
		t.Run(tc.name, func(t *testing.T) {
			rb := NewMultiProducer(newValueEvent, 8, tc.new())
			barrier := rb.NewBarrier()
			ch := waitAsync(barrier, 0)

			time.Sleep(10 * time.Millisecond)
			barrier.Alert()

			r := receive(t, ch)
			assert.ErrorIs(t, r.err, ErrAlert)
		})
	}
}

func TestTimeoutBlockingWaitStrategyTimesOut(t *testing.T) {
	rb := NewMultiProducer(newValueEvent, 8, NewTimeoutBlockingWaitStrategy(5*time.Millisecond))

	start := time.Now()
	r := receive(t, waitAsync(rb.NewBarrier(), 0))
	assert.ErrorIs(t, r.err, ErrTimeout)
	assert.True(t, time.Since(start) >= 5*time.Millisecond)
}

func TestSleepingWaitStrategyDefaults(t *testing.T) {
	w := NewSleepingWaitStrategyWith(10, 0, 0)
	assert.Equal(t, defaultMinSleep, w.minSleep)
	assert.Equal(t, defaultMinSleep, w.maxSleep)

	w = NewSleepingWaitStrategy()
	assert.Equal(t, defaultSleepRetries, w.retries)
	assert.Equal(t, defaultMaxSleep, w.maxSleep)
}

func TestSleepJitterWindow(t *testing.T) {
	for _, upTo := range []time.Duration{0, time.Microsecond, time.Millisecond} {
		for i := 0; i < 1000; i++ {
			j := jitter(upTo)
			require.True(t, j >= 0 && j <= upTo, "jitter %v outside [0, %v]", j, upTo)
		}
	}

	// Windows wider than a uint32 of nanoseconds are capped, not wrapped.
	var widest time.Duration
	for i := 0; i < 1000; i++ {
		j := jitter(20 * time.Second)
		require.True(t, j >= 0 && j <= math.MaxUint32, "jitter %v out of range", j)
		widest = max(widest, j)
	}
	assert.True(t, widest > 2*time.Second, "widest jitter %v", widest)
}
