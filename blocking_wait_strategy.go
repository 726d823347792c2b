package disruptor

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// BlockingWaitStrategy parks consumers on a condition variable until a
// producer publishes. Cheapest on CPU, highest wake-up latency.
type BlockingWaitStrategy struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func NewBlockingWaitStrategy() *BlockingWaitStrategy {
	w := &BlockingWaitStrategy{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *BlockingWaitStrategy) WaitFor(sequence int64, cursor, dependent SequenceReader, barrier SequenceBarrier) (int64, error) {
	if cursor.Get() < sequence {
		w.mu.Lock()
		for cursor.Get() < sequence {
			if err := barrier.CheckAlert(); err != nil {
				w.mu.Unlock()
				return cursor.Get(), err
			}
			w.cond.Wait()
		}
		w.mu.Unlock()
	}
	return spinOnDependent(sequence, dependent, barrier)
}

func (w *BlockingWaitStrategy) SignalAllWhenBlocking() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// LiteBlockingWaitStrategy behaves like BlockingWaitStrategy but lets
// producers skip the lock when no consumer is parked.
type LiteBlockingWaitStrategy struct {
	mu           sync.Mutex
	cond         *sync.Cond
	signalNeeded atomic.Bool
}

func NewLiteBlockingWaitStrategy() *LiteBlockingWaitStrategy {
	w := &LiteBlockingWaitStrategy{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *LiteBlockingWaitStrategy) WaitFor(sequence int64, cursor, dependent SequenceReader, barrier SequenceBarrier) (int64, error) {
	if cursor.Get() < sequence {
		w.mu.Lock()
		for {
			w.signalNeeded.Store(true)
			if cursor.Get() >= sequence {
				break
			}
			if err := barrier.CheckAlert(); err != nil {
				w.mu.Unlock()
				return cursor.Get(), err
			}
			w.cond.Wait()
		}
		w.mu.Unlock()
	}
	return spinOnDependent(sequence, dependent, barrier)
}

func (w *LiteBlockingWaitStrategy) SignalAllWhenBlocking() {
	if w.signalNeeded.Swap(false) {
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

// TimeoutBlockingWaitStrategy parks consumers like BlockingWaitStrategy but
// returns ErrTimeout when nothing is published within timeout. Processors
// report the timeout to handlers implementing TimeoutHandler.
type TimeoutBlockingWaitStrategy struct {
	timeout time.Duration
	mu      sync.Mutex
	wake    chan struct{}
}

func NewTimeoutBlockingWaitStrategy(timeout time.Duration) *TimeoutBlockingWaitStrategy {
	return &TimeoutBlockingWaitStrategy{
		timeout: timeout,
		wake:    make(chan struct{}),
	}
}

func (w *TimeoutBlockingWaitStrategy) WaitFor(sequence int64, cursor, dependent SequenceReader, barrier SequenceBarrier) (int64, error) {
	if cursor.Get() < sequence {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()

		for {
			w.mu.Lock()
			wake := w.wake
			w.mu.Unlock()

			if cursor.Get() >= sequence {
				break
			}
			if err := barrier.CheckAlert(); err != nil {
				return cursor.Get(), err
			}

			select {
			case <-wake:
			case <-timer.C:
				return cursor.Get(), ErrTimeout
			}
		}
	}
	return spinOnDependent(sequence, dependent, barrier)
}

func (w *TimeoutBlockingWaitStrategy) SignalAllWhenBlocking() {
	w.mu.Lock()
	close(w.wake)
	w.wake = make(chan struct{})
	w.mu.Unlock()
}

// spinOnDependent waits for upstream consumers once the cursor has already
// passed sequence. The gap is expected to be short, so it never parks.
func spinOnDependent(sequence int64, dependent SequenceReader, barrier SequenceBarrier) (int64, error) {
	var spins uint32
	var available int64
	for available = dependent.Get(); available < sequence; available = dependent.Get() {
		if err := barrier.CheckAlert(); err != nil {
			return available, err
		}
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
	return available, nil
}
