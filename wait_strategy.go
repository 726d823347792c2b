package disruptor

import (
	"math"
	"runtime"
	"time"

	"github.com/valyala/fastrand"
)

// WaitStrategy decides how a consumer idles while the sequence it needs is
// not yet available.
type WaitStrategy interface {
	// WaitFor blocks until dependent reaches sequence or barrier is alerted.
	// The returned sequence may be greater than requested, and may be lower when
	// the strategy gives up early (see TimeoutBlockingWaitStrategy).
	WaitFor(sequence int64, cursor, dependent SequenceReader, barrier SequenceBarrier) (int64, error)

	// SignalAllWhenBlocking wakes consumers parked inside WaitFor.
	// Producers call it after every publish.
	SignalAllWhenBlocking()
}

// BusySpinWaitStrategy re-reads the dependent sequence in a tight loop.
// Lowest latency, but it keeps a core fully busy; use only when consumers
// have dedicated CPUs.
type BusySpinWaitStrategy struct{}

func NewBusySpinWaitStrategy() *BusySpinWaitStrategy {
	return &BusySpinWaitStrategy{}
}

func (w *BusySpinWaitStrategy) WaitFor(sequence int64, _, dependent SequenceReader, barrier SequenceBarrier) (int64, error) {
	var available int64
	for available = dependent.Get(); available < sequence; available = dependent.Get() {
		if err := barrier.CheckAlert(); err != nil {
			return available, err
		}
	}
	return available, nil
}

func (w *BusySpinWaitStrategy) SignalAllWhenBlocking() {}

const yieldingSpinTries = 100

// YieldingWaitStrategy spins for a while and then yields the processor on
// every further iteration.
type YieldingWaitStrategy struct{}

func NewYieldingWaitStrategy() *YieldingWaitStrategy {
	return &YieldingWaitStrategy{}
}

func (w *YieldingWaitStrategy) WaitFor(sequence int64, _, dependent SequenceReader, barrier SequenceBarrier) (int64, error) {
	counter := yieldingSpinTries
	var available int64
	for available = dependent.Get(); available < sequence; available = dependent.Get() {
		if err := barrier.CheckAlert(); err != nil {
			return available, err
		}
		if counter == 0 {
			runtime.Gosched()
		} else {
			counter--
		}
	}
	return available, nil
}

func (w *YieldingWaitStrategy) SignalAllWhenBlocking() {}

const (
	defaultSleepRetries  = 200
	defaultMinSleep      = 100 * time.Nanosecond
	defaultMaxSleep      = time.Millisecond
	sleepingYieldRetries = 100
)

// SleepingWaitStrategy spins, then yields, then sleeps for a doubling
// interval capped at maxSleep. Sleeps are jittered so that a group of idle
// consumers does not wake in lockstep.
type SleepingWaitStrategy struct {
	retries  int
	minSleep time.Duration
	maxSleep time.Duration
}

func NewSleepingWaitStrategy() *SleepingWaitStrategy {
	return NewSleepingWaitStrategyWith(defaultSleepRetries, defaultMinSleep, defaultMaxSleep)
}

// NewSleepingWaitStrategyWith creates a sleeping strategy that busy-spins for
// retries-100 iterations and yields for 100 before it starts to sleep.
func NewSleepingWaitStrategyWith(retries int, minSleep, maxSleep time.Duration) *SleepingWaitStrategy {
	if minSleep <= 0 {
		minSleep = defaultMinSleep
	}
	if maxSleep < minSleep {
		maxSleep = minSleep
	}
	return &SleepingWaitStrategy{retries: retries, minSleep: minSleep, maxSleep: maxSleep}
}

func (w *SleepingWaitStrategy) WaitFor(sequence int64, _, dependent SequenceReader, barrier SequenceBarrier) (int64, error) {
	counter := w.retries
	sleep := w.minSleep
	var available int64
	for available = dependent.Get(); available < sequence; available = dependent.Get() {
		if err := barrier.CheckAlert(); err != nil {
			return available, err
		}
		switch {
		case counter > sleepingYieldRetries:
			counter--
		case counter > 0:
			counter--
			runtime.Gosched()
		default:
			time.Sleep(sleep/2 + jitter(sleep/2))
			if sleep < w.maxSleep {
				sleep = min(sleep*2, w.maxSleep)
			}
		}
	}
	return available, nil
}

func (w *SleepingWaitStrategy) SignalAllWhenBlocking() {}

// jitter returns a random duration in [0, upTo], capped at math.MaxUint32 ns.
func jitter(upTo time.Duration) time.Duration {
	if upTo >= math.MaxUint32 {
		return time.Duration(fastrand.Uint32n(math.MaxUint32))
	}
	return time.Duration(fastrand.Uint32n(uint32(upTo) + 1))
}

const phasedSpinTries = 10000

// PhasedBackoffWaitStrategy spins until spinTimeout has elapsed, yields until
// yieldTimeout has elapsed and then hands over to a fallback strategy.
type PhasedBackoffWaitStrategy struct {
	spinTimeout  time.Duration
	yieldTimeout time.Duration
	fallback     WaitStrategy
}

func NewPhasedBackoffWaitStrategy(spinTimeout, yieldTimeout time.Duration, fallback WaitStrategy) *PhasedBackoffWaitStrategy {
	return &PhasedBackoffWaitStrategy{
		spinTimeout:  spinTimeout,
		yieldTimeout: spinTimeout + yieldTimeout,
		fallback:     fallback,
	}
}

func NewPhasedBackoffWithLock(spinTimeout, yieldTimeout time.Duration) *PhasedBackoffWaitStrategy {
	return NewPhasedBackoffWaitStrategy(spinTimeout, yieldTimeout, NewBlockingWaitStrategy())
}

func NewPhasedBackoffWithLiteLock(spinTimeout, yieldTimeout time.Duration) *PhasedBackoffWaitStrategy {
	return NewPhasedBackoffWaitStrategy(spinTimeout, yieldTimeout, NewLiteBlockingWaitStrategy())
}

func NewPhasedBackoffWithSleep(spinTimeout, yieldTimeout time.Duration) *PhasedBackoffWaitStrategy {
	return NewPhasedBackoffWaitStrategy(spinTimeout, yieldTimeout, NewSleepingWaitStrategyWith(0, defaultMinSleep, defaultMaxSleep))
}

func (w *PhasedBackoffWaitStrategy) WaitFor(sequence int64, cursor, dependent SequenceReader, barrier SequenceBarrier) (int64, error) {
	var start time.Time
	counter := phasedSpinTries
	for {
		available := dependent.Get()
		if available >= sequence {
			return available, nil
		}
		if err := barrier.CheckAlert(); err != nil {
			return available, err
		}

		counter--
		if counter > 0 {
			continue
		}
		counter = phasedSpinTries

		if start.IsZero() {
			start = time.Now()
			continue
		}
		elapsed := time.Since(start)
		if elapsed > w.yieldTimeout {
			return w.fallback.WaitFor(sequence, cursor, dependent, barrier)
		}
		if elapsed > w.spinTimeout {
			runtime.Gosched()
		}
	}
}

func (w *PhasedBackoffWaitStrategy) SignalAllWhenBlocking() {
	w.fallback.SignalAllWhenBlocking()
}
