package disruptor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWorker struct {
	seen    []atomic.Int32
	handled atomic.Int64
}

func (w *countingWorker) OnEvent(e *valueEvent) error {
	w.seen[e.value].Add(1)
	w.handled.Add(1)
	return nil
}

// Every event must be handled by exactly one worker of the pool.
func TestWorkerPoolExactlyOnce(t *testing.T) {
	const (
		N       = 50_000
		workers = 4
	)

	seen := make([]atomic.Int32, N)
	handlers := make([]WorkHandler[valueEvent], workers)
	counters := make([]*countingWorker, workers)
	for i := range handlers {
		counters[i] = &countingWorker{seen: seen}
		handlers[i] = counters[i]
	}

	pool := NewStandaloneWorkerPool(newValueEvent, 1024, NewBlockingWaitStrategy(), nil, handlers...)
	executor := NewGroupExecutor(-1)
	rb, err := pool.Start(executor)
	require.NoError(t, err)
	assert.True(t, pool.IsRunning())

	for i := 0; i < N; i++ {
		PublishEventWith(rb, func(e *valueEvent, _ int64, v int64) { e.value = v }, int64(i))
	}

	pool.DrainAndHalt()
	require.NoError(t, executor.Wait())
	assert.False(t, pool.IsRunning())

	for i := range seen {
		require.Equal(t, int32(1), seen[i].Load(), "value %d", i)
	}
	var total int64
	for _, c := range counters {
		total += c.handled.Load()
	}
	assert.Equal(t, int64(N), total)
}

func TestWorkerPoolStartTwice(t *testing.T) {
	pool := NewStandaloneWorkerPool(newValueEvent, 8, NewBlockingWaitStrategy(), nil,
		WorkHandlerFunc(func(*valueEvent) error { return nil }))
	executor := NewGroupExecutor(-1)

	_, err := pool.Start(executor)
	require.NoError(t, err)
	_, err = pool.Start(executor)
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	pool.Halt()
	require.NoError(t, executor.Wait())
}

func TestWorkerPoolStartsAfterCursor(t *testing.T) {
	var handled atomic.Int64
	pool := NewStandaloneWorkerPool(newValueEvent, 8, NewBlockingWaitStrategy(), nil,
		WorkHandlerFunc(func(e *valueEvent) error {
			handled.Add(e.value)
			return nil
		}))

	// Published before Start: skipped.
	rb := pool.ring
	publishValues(rb, 100, 200)

	executor := NewGroupExecutor(-1)
	_, err := pool.Start(executor)
	require.NoError(t, err)
	for _, s := range pool.WorkerSequences() {
		assert.Equal(t, int64(1), s.Get())
	}

	publishValues(rb, 1, 2, 3)
	pool.DrainAndHalt()
	require.NoError(t, executor.Wait())
	assert.Equal(t, int64(6), handled.Load())
}

func TestWorkerPoolExceptionHandler(t *testing.T) {
	eh := &recordingExceptionHandler{}
	var handled atomic.Int64
	failing := WorkHandlerFunc(func(e *valueEvent) error {
		if e.value == 3 {
			return errBoom
		}
		if e.value == 4 {
			panic("worker exploded")
		}
		handled.Add(1)
		return nil
	})

	pool := NewStandaloneWorkerPool(newValueEvent, 8, NewBlockingWaitStrategy(), eh, failing, failing)
	executor := NewGroupExecutor(-1)
	rb, err := pool.Start(executor)
	require.NoError(t, err)

	publishValues(rb, 1, 2, 3, 4, 5, 6)
	pool.DrainAndHalt()
	require.NoError(t, executor.Wait())

	assert.Equal(t, int64(4), handled.Load())
	exceptions := eh.recorded()
	require.Len(t, exceptions, 2)
	var sawError, sawPanic bool
	for _, e := range exceptions {
		switch e.sequence {
		case 2:
			sawError = assert.ErrorIs(t, e.err, errBoom)
		case 3:
			sawPanic = assert.ErrorIs(t, e.err, ErrHandlerPanic)
		}
	}
	assert.True(t, sawError && sawPanic, "unexpected exceptions %+v", exceptions)
}

func TestWorkProcessorHaltsOnEscalatedFailure(t *testing.T) {
	rb := NewMultiProducer(newValueEvent, 8, NewBlockingWaitStrategy())
	workSequence := NewSequence(InitialSequenceValue)
	p := NewWorkProcessor(rb, rb.NewBarrier(), WorkHandlerFunc(func(*valueEvent) error { return errBoom }),
		ExceptionHandler[valueEvent](NewFatalExceptionHandler[valueEvent](nil)), workSequence)
	rb.AddGatingSequences(p.Sequence(), workSequence)

	done := startProcessor(p)
	rb.PublishEvent(func(e *valueEvent, seq int64) {})

	err := awaitRun(t, done)
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, p.IsRunning())

	// The worker is idle again and may be restarted.
	done = startProcessor(p)
	require.Eventually(t, p.IsRunning, 5*time.Second, time.Millisecond)
	p.Halt()
	require.NoError(t, awaitRun(t, done))
}

type lifecycleWorker struct {
	lifecycleHooks
}

func (w *lifecycleWorker) OnEvent(*valueEvent) error {
	w.handled.Add(1)
	return nil
}

func newTestWorkProcessor(h WorkHandler[valueEvent], eh ExceptionHandler[valueEvent]) (*RingBuffer[valueEvent], *WorkProcessor[valueEvent]) {
	rb := NewMultiProducer(newValueEvent, 8, NewBlockingWaitStrategy())
	workSequence := NewSequence(InitialSequenceValue)
	p := NewWorkProcessor(rb, rb.NewBarrier(), h, eh, workSequence)
	rb.AddGatingSequences(p.Sequence(), workSequence)
	return rb, p
}

func TestWorkProcessorEscalatesStartFailure(t *testing.T) {
	w := &lifecycleWorker{}
	w.startErr = errBoom
	rb, p := newTestWorkProcessor(w, NewFatalExceptionHandler[valueEvent](quietLogger()))
	rb.PublishEvent(func(e *valueEvent, seq int64) {})

	err := awaitRun(t, startProcessor(p))
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, w.handled.Load())
	assert.Zero(t, w.stopped.Load())
	assert.False(t, p.IsRunning())
}

func TestWorkProcessorEscalatesShutdownFailure(t *testing.T) {
	w := &lifecycleWorker{}
	w.shutdownErr = errBoom
	rb, p := newTestWorkProcessor(w, NewLoggingExceptionHandler[valueEvent](quietLogger()))

	done := startProcessor(p)
	rb.PublishEvent(func(e *valueEvent, seq int64) {})
	require.Eventually(t, func() bool { return w.handled.Load() == 1 }, 5*time.Second, time.Millisecond)

	p.Halt()
	err := awaitRun(t, done)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, int32(1), w.stopped.Load())
	assert.False(t, p.IsRunning())
}

func TestWorkProcessorRestartWhileWindingDown(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var counts [8]atomic.Int32
	h := WorkHandlerFunc(func(e *valueEvent) error {
		counts[e.value].Add(1)
		if e.value == 0 {
			close(entered)
			<-release
		}
		return nil
	})
	rb, p := newTestWorkProcessor(h, NewLoggingExceptionHandler[valueEvent](quietLogger()))
	setValue := func(e *valueEvent, _ int64, v int64) { e.value = v }

	first := startProcessor(p)
	PublishEventWith(rb, setValue, 0)
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "handler not called")
	}

	p.Halt()
	assert.ErrorIs(t, p.Run(), ErrAlreadyRunning)
	assert.True(t, p.IsRunning())

	close(release)
	require.NoError(t, awaitRun(t, first))
	assert.False(t, p.IsRunning())

	second := startProcessor(p)
	PublishEventsWith(rb, setValue, []int64{1, 2, 3})
	require.Eventually(t, func() bool { return counts[3].Load() == 1 }, 5*time.Second, time.Millisecond)
	p.Halt()
	require.NoError(t, awaitRun(t, second))

	for v := range 4 {
		assert.Equal(t, int32(1), counts[v].Load(), "value %d", v)
	}
}
