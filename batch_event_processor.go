package disruptor

import (
	"errors"
	"sync/atomic"
)

// EventProcessor is a consumer loop that runs on a goroutine supplied by an
// Executor and reports its progress through its Sequence.
type EventProcessor interface {
	// Run processes events until Halt is called. It returns ErrAlreadyRunning
	// if the processor is already running, or the error the exception handler
	// escalated.
	Run() error
	Sequence() *Sequence
	Halt()
	IsRunning() bool
}

const (
	processorIdle int32 = iota
	processorHalted
	processorRunning
)

// BatchEventProcessor hands every available event to one EventHandler.
//
// Each wait on the barrier yields a batch [next, available]; the handler sees
// the events of the batch in order with endOfBatch set on the last one, and
// the processor sequence is advanced once per batch. That store is what
// releases the slots to downstream consumers and to producers.
type BatchEventProcessor[T any] struct {
	running          atomic.Int32
	active           atomic.Bool // held by the goroutine inside Run
	sequence         *Sequence
	dataProvider     DataProvider[T]
	barrier          SequenceBarrier
	handler          EventHandler[T]
	exceptionHandler ExceptionHandler[T]
	batchStartAware  BatchStartAware
	timeoutHandler   TimeoutHandler
}

// NewBatchEventProcessor creates a processor reading entries from
// dataProvider as barrier makes them available. Failures are logged and
// skipped until SetExceptionHandler installs another policy.
func NewBatchEventProcessor[T any](dataProvider DataProvider[T], barrier SequenceBarrier, handler EventHandler[T]) *BatchEventProcessor[T] {
	p := &BatchEventProcessor[T]{
		sequence:         NewSequence(InitialSequenceValue),
		dataProvider:     dataProvider,
		barrier:          barrier,
		handler:          handler,
		exceptionHandler: NewLoggingExceptionHandler[T](nil),
	}
	if reporting, ok := handler.(SequenceReportingEventHandler); ok {
		reporting.SetSequenceCallback(p.sequence)
	}
	p.batchStartAware, _ = handler.(BatchStartAware)
	p.timeoutHandler, _ = handler.(TimeoutHandler)
	return p
}

// SetExceptionHandler replaces the exception handler. Must be called before Run.
func (p *BatchEventProcessor[T]) SetExceptionHandler(exceptionHandler ExceptionHandler[T]) {
	if exceptionHandler == nil {
		panic("exception handler must not be nil")
	}
	p.exceptionHandler = exceptionHandler
}

func (p *BatchEventProcessor[T]) Sequence() *Sequence {
	return p.sequence
}

// Halt stops the processor at its next wait. The batch in progress, if any,
// is completed first.
func (p *BatchEventProcessor[T]) Halt() {
	p.running.Store(processorHalted)
	p.barrier.Alert()
}

func (p *BatchEventProcessor[T]) IsRunning() bool {
	return p.running.Load() != processorIdle
}

// Run processes events until Halt is called. A loop that is still winding
// down after Halt counts as running, so Run returns ErrAlreadyRunning until it
// has exited.
func (p *BatchEventProcessor[T]) Run() error {
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

	var err error
	if p.running.Load() == processorRunning {
		err = p.processEvents()
	}
	if shutdownErr := p.notifyShutdown(); err == nil {
		err = shutdownErr
	}
	return err
}

func (p *BatchEventProcessor[T]) processEvents() error {
	next := p.sequence.Get() + 1
	for {
		available, err := p.barrier.WaitFor(next)
		switch {
		case err == nil:
		case errors.Is(err, ErrAlert):
			if p.running.Load() != processorRunning {
				return nil
			}
			continue
		case errors.Is(err, ErrTimeout):
			if err := p.notifyTimeout(p.sequence.Get()); err != nil {
				return err
			}
			continue
		default:
			return err
		}

		if available < next {
			continue
		}
		if p.batchStartAware != nil {
			p.batchStartAware.OnBatchStart(available - next + 1)
		}

		failed, err := p.processBatch(next, available)
		if err == nil {
			p.sequence.Set(available)
			next = available + 1
			continue
		}

		if err := p.exceptionHandler.HandleEventException(err, failed, p.dataProvider.Get(failed)); err != nil {
			p.sequence.Set(failed - 1)
			return err
		}
		p.sequence.Set(failed)
		next = failed + 1
	}
}

// processBatch returns the sequence of the first failed event and its error.
// A panicking handler is reported like a returned error.
func (p *BatchEventProcessor[T]) processBatch(next, available int64) (failed int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			failed, err = next, recovered(r)
		}
	}()

	for ; next <= available; next++ {
		if err := p.handler.OnEvent(p.dataProvider.Get(next), next, next == available); err != nil {
			return next, err
		}
	}
	return available, nil
}

func (p *BatchEventProcessor[T]) notifyTimeout(sequence int64) error {
	if p.timeoutHandler == nil {
		return nil
	}
	if err := p.timeoutHandler.OnTimeout(sequence); err != nil {
		return p.exceptionHandler.HandleEventException(err, sequence, nil)
	}
	return nil
}

func (p *BatchEventProcessor[T]) notifyStart() error {
	return notifyLifecycle(p.handler, LifecycleAware.OnStart, p.exceptionHandler.HandleOnStartException)
}

func (p *BatchEventProcessor[T]) notifyShutdown() error {
	return notifyLifecycle(p.handler, LifecycleAware.OnShutdown, p.exceptionHandler.HandleOnShutdownException)
}

// notifyLifecycle calls hook when handler is LifecycleAware and passes its
// failure to escalate.
func notifyLifecycle(handler any, hook func(LifecycleAware) error, escalate func(error) error) error {
	aware, ok := handler.(LifecycleAware)
	if !ok {
		return nil
	}
	if err := safely(func() error { return hook(aware) }); err != nil {
		return escalate(err)
	}
	return nil
}

// safely runs a lifecycle hook, turning a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return fn()
}

var _ EventProcessor = (*BatchEventProcessor[int])(nil)
