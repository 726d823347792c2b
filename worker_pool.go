package disruptor

import (
	"errors"
	"math"
	"runtime"
	"sync/atomic"
)

// WorkProcessor is one worker of a WorkerPool. Workers of a pool compete for
// sequences through the shared work sequence, so each event is handled by
// exactly one of them.
type WorkProcessor[T any] struct {
	running          atomic.Int32
	active           atomic.Bool // held by the goroutine inside Run
	sequence         *Sequence
	ring             *RingBuffer[T]
	barrier          SequenceBarrier
	handler          WorkHandler[T]
	exceptionHandler ExceptionHandler[T]
	workSequence     *Sequence
	timeoutHandler   TimeoutHandler
}

// NewWorkProcessor creates a worker claiming sequences from workSequence.
func NewWorkProcessor[T any](ring *RingBuffer[T], barrier SequenceBarrier, handler WorkHandler[T], exceptionHandler ExceptionHandler[T], workSequence *Sequence) *WorkProcessor[T] {
	p := &WorkProcessor[T]{
		sequence:         NewSequence(InitialSequenceValue),
		ring:             ring,
		barrier:          barrier,
		handler:          handler,
		exceptionHandler: exceptionHandler,
		workSequence:     workSequence,
	}
	p.timeoutHandler, _ = handler.(TimeoutHandler)
	return p
}

func (p *WorkProcessor[T]) Sequence() *Sequence {
	return p.sequence
}

func (p *WorkProcessor[T]) Halt() {
	p.running.Store(processorHalted)
	p.barrier.Alert()
}

func (p *WorkProcessor[T]) IsRunning() bool {
	return p.running.Load() != processorIdle
}

// Run claims and handles events until Halt is called. Like
// BatchEventProcessor.Run it returns ErrAlreadyRunning while a previous loop
// has not exited yet.
func (p *WorkProcessor[T]) Run() error {
	if !p.active.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.active.Store(false)
	defer p.running.Store(processorIdle)

	if !p.running.CompareAndSwap(processorIdle, processorRunning) {
		// halted before it ran
		if err := p.notifyStart(); err != nil {
			return err
		}
		return p.notifyShutdown()
	}

	p.barrier.ClearAlert()
	if err := p.notifyStart(); err != nil {
		return err
	}

	err := p.processEvents()
	if shutdownErr := p.notifyShutdown(); err == nil {
		err = shutdownErr
	}
	return err
}

func (p *WorkProcessor[T]) processEvents() error {
	processed := true
	cachedAvailable := int64(math.MinInt64)
	next := p.sequence.Get()

	for {
		if p.running.Load() != processorRunning {
			return nil
		}

		if processed {
			processed = false
			// Our sequence trails the claim by one: the claimed event is still
			// in flight until we come back here.
			for {
				next = p.workSequence.Get() + 1
				p.sequence.Set(next - 1)
				if p.workSequence.CompareAndSet(next-1, next) {
					break
				}
			}
		}

		if cachedAvailable >= next {
			if err := p.handle(next); err != nil {
				if err := p.exceptionHandler.HandleEventException(err, next, p.ring.Get(next)); err != nil {
					return err
				}
			}
			processed = true
			continue
		}

		available, err := p.barrier.WaitFor(next)
		switch {
		case err == nil:
			cachedAvailable = available
		case errors.Is(err, ErrAlert):
			if p.running.Load() != processorRunning {
				return nil
			}
		case errors.Is(err, ErrTimeout):
			if err := p.notifyTimeout(p.sequence.Get()); err != nil {
				return err
			}
		default:
			return err
		}
	}
}

func (p *WorkProcessor[T]) handle(sequence int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return p.handler.OnEvent(p.ring.Get(sequence))
}

func (p *WorkProcessor[T]) notifyTimeout(sequence int64) error {
	if p.timeoutHandler == nil {
		return nil
	}
	if err := p.timeoutHandler.OnTimeout(sequence); err != nil {
		return p.exceptionHandler.HandleEventException(err, sequence, nil)
	}
	return nil
}

func (p *WorkProcessor[T]) notifyStart() error {
	return notifyLifecycle(p.handler, LifecycleAware.OnStart, p.exceptionHandler.HandleOnStartException)
}

func (p *WorkProcessor[T]) notifyShutdown() error {
	return notifyLifecycle(p.handler, LifecycleAware.OnShutdown, p.exceptionHandler.HandleOnShutdownException)
}

// WorkerPool distributes events among a set of WorkHandlers: every event is
// processed by exactly one of them. Use it to spread expensive, independent
// work; use separate EventHandlers when every handler must see every event.
type WorkerPool[T any] struct {
	started      atomic.Bool
	workSequence *Sequence
	ring         *RingBuffer[T]
	processors   []*WorkProcessor[T]
}

// NewWorkerPool creates a pool with one worker per handler, all waiting on
// barrier. The caller is responsible for gating ring on WorkerSequences.
func NewWorkerPool[T any](ring *RingBuffer[T], barrier SequenceBarrier, exceptionHandler ExceptionHandler[T], handlers ...WorkHandler[T]) *WorkerPool[T] {
	if exceptionHandler == nil {
		exceptionHandler = NewLoggingExceptionHandler[T](nil)
	}
	wp := &WorkerPool[T]{
		workSequence: NewSequence(InitialSequenceValue),
		ring:         ring,
		processors:   make([]*WorkProcessor[T], len(handlers)),
	}
	for i, h := range handlers {
		wp.processors[i] = NewWorkProcessor(ring, barrier, h, exceptionHandler, wp.workSequence)
	}
	return wp
}

// NewStandaloneWorkerPool creates a ring for the pool and gates it on the
// workers, for the common case of a pool being the only consumer.
func NewStandaloneWorkerPool[T any](factory EventFactory[T], bufferSize int, waitStrategy WaitStrategy, exceptionHandler ExceptionHandler[T], handlers ...WorkHandler[T]) *WorkerPool[T] {
	ring := NewMultiProducer(factory, bufferSize, waitStrategy)
	wp := NewWorkerPool(ring, ring.NewBarrier(), exceptionHandler, handlers...)
	ring.AddGatingSequences(wp.WorkerSequences()...)
	return wp
}

// WorkerSequences returns the sequence of every worker plus the shared work
// sequence.
func (wp *WorkerPool[T]) WorkerSequences() []*Sequence {
	seqs := make([]*Sequence, 0, len(wp.processors)+1)
	for _, p := range wp.processors {
		seqs = append(seqs, p.Sequence())
	}
	return append(seqs, wp.workSequence)
}

// Start launches every worker on executor, beginning after the current
// cursor. It returns the ring for publishing.
func (wp *WorkerPool[T]) Start(executor Executor) (*RingBuffer[T], error) {
	if !wp.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}

	cursor := wp.ring.Cursor()
	wp.workSequence.Set(cursor)
	for _, p := range wp.processors {
		p.Sequence().Set(cursor)
		if err := executor.Execute(p.Run); err != nil {
			return nil, err
		}
	}
	return wp.ring, nil
}

// DrainAndHalt waits until the workers have processed everything published
// so far and then halts them. Publishing must have stopped.
func (wp *WorkerPool[T]) DrainAndHalt() {
	seqs := wp.WorkerSequences()
	var spins uint32
	for wp.ring.Cursor() > MinimumSequence(seqs, math.MaxInt64) {
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
	wp.Halt()
}

func (wp *WorkerPool[T]) Halt() {
	for _, p := range wp.processors {
		p.Halt()
	}
	wp.started.Store(false)
}

func (wp *WorkerPool[T]) IsRunning() bool {
	return wp.started.Load()
}
