// Package disruptor implements the LMAX Disruptor: a bounded ring of
// pre-allocated entries through which producers hand events to a graph of
// consumers without locks.
//
// Producers claim sequences from a Sequencer, fill the entry at
// sequence & (size-1) and publish it. Consumers wait on a SequenceBarrier for
// the minimum progress of the producer and of the consumers they depend on,
// and report their own progress through a Sequence. The sequences of the last
// consumers in the graph gate the producers, so an entry is never overwritten
// before every consumer has seen it.
//
// The Disruptor type wires such a graph:
//
//	d := disruptor.New(newEvent, 1024, disruptor.NewGroupExecutor(-1))
//	a, _ := d.HandleEventsWith(journal, replicate)
//	_, _ = a.Then(apply)
//	ring, _ := d.Start()
package disruptor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// EventProcessorFactory creates a custom processor that must wait for
// barrierSequences.
type EventProcessorFactory[T any] func(ring *RingBuffer[T], barrierSequences []*Sequence) EventProcessor

// Disruptor builds the dependency graph of consumers around a ring buffer
// and controls their lifecycle. The graph may only change before Start.
type Disruptor[T any] struct {
	ring             *RingBuffer[T]
	executor         Executor
	consumers        *consumerRepository[T]
	started          atomic.Bool
	exceptionHandler ExceptionHandler[T]
	logger           *slog.Logger
}

// New creates a Disruptor with a ring of bufferSize entries pre-allocated by
// factory. Consumer loops are run by executor. It panics if bufferSize is not
// a power of two.
func New[T any](factory EventFactory[T], bufferSize int, executor Executor, opts ...Option) *Disruptor[T] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	return &Disruptor[T]{
		ring:      NewRingBuffer(cfg.producerType, factory, bufferSize, cfg.waitStrategy),
		executor:  executor,
		consumers: newConsumerRepository[T](),
		exceptionHandler: &exceptionHandlerWrapper[T]{
			delegate: NewLoggingExceptionHandler[T](cfg.logger),
		},
		logger: cfg.logger,
	}
}

// HandleEventsWith adds handlers that consume every event straight from the
// ring, in parallel with each other.
func (d *Disruptor[T]) HandleEventsWith(handlers ...EventHandler[T]) (*EventHandlerGroup[T], error) {
	return d.createEventProcessors(nil, handlers)
}

// HandleEventsWithProcessors adds already built processors. They must have
// been created with a barrier of this ring.
func (d *Disruptor[T]) HandleEventsWithProcessors(processors ...EventProcessor) (*EventHandlerGroup[T], error) {
	return d.addProcessors(nil, processors)
}

// HandleEventsWithFactories adds processors built by factories.
func (d *Disruptor[T]) HandleEventsWithFactories(factories ...EventProcessorFactory[T]) (*EventHandlerGroup[T], error) {
	return d.createEventProcessorsFromFactories(nil, factories)
}

// HandleEventsWithWorkerPool adds a pool in which every event is processed by
// exactly one of handlers.
func (d *Disruptor[T]) HandleEventsWithWorkerPool(handlers ...WorkHandler[T]) (*EventHandlerGroup[T], error) {
	return d.createWorkerPool(nil, handlers)
}

// After starts a group from handlers that are already registered, to make
// new consumers depend on them.
func (d *Disruptor[T]) After(handlers ...EventHandler[T]) (*EventHandlerGroup[T], error) {
	seqs := make([]*Sequence, len(handlers))
	for i, h := range handlers {
		s, err := d.consumers.sequenceFor(h)
		if err != nil {
			return nil, fmt.Errorf("after %T: %w", h, err)
		}
		seqs[i] = s
	}
	return d.newGroup(seqs), nil
}

// AfterProcessors is After for processors; unknown processors are registered.
func (d *Disruptor[T]) AfterProcessors(processors ...EventProcessor) (*EventHandlerGroup[T], error) {
	seqs := make([]*Sequence, len(processors))
	for i, p := range processors {
		if !d.consumers.hasProcessor(p) {
			if err := d.checkNotStarted(); err != nil {
				return nil, err
			}
			d.consumers.addProcessor(p)
		}
		seqs[i] = p.Sequence()
	}
	return d.newGroup(seqs), nil
}

// HandleExceptionsWith sets the exception handler of processors created from
// now on, replacing the default one.
func (d *Disruptor[T]) HandleExceptionsWith(exceptionHandler ExceptionHandler[T]) error {
	if err := d.checkNotStarted(); err != nil {
		return err
	}
	d.exceptionHandler = exceptionHandler
	return nil
}

// SetDefaultExceptionHandler replaces the default exception handler of every
// processor that does not have a specific one, including those already added.
func (d *Disruptor[T]) SetDefaultExceptionHandler(exceptionHandler ExceptionHandler[T]) error {
	if err := d.checkNotStarted(); err != nil {
		return err
	}
	wrapper, ok := d.exceptionHandler.(*exceptionHandlerWrapper[T])
	if !ok {
		return ErrExceptionHandlerReplaced
	}
	wrapper.switchTo(exceptionHandler)
	return nil
}

// HandleExceptionsFor selects the processor of handler for a specific
// exception handler, see ExceptionHandlerSetting.With.
func (d *Disruptor[T]) HandleExceptionsFor(handler EventHandler[T]) *ExceptionHandlerSetting[T] {
	return &ExceptionHandlerSetting[T]{disruptor: d, handler: handler}
}

// PublishEvent publishes one entry through translator. To publish from an
// argument use the package functions PublishEventWith and PublishEventsWith,
// which accept a Disruptor as well as a RingBuffer.
func (d *Disruptor[T]) PublishEvent(translator EventTranslator[T]) {
	d.ring.PublishEvent(translator)
}

func (d *Disruptor[T]) PublishEvents(translators ...EventTranslator[T]) {
	d.ring.PublishEvents(translators...)
}

// Start launches every registered consumer on the executor. It may only be
// called once, and returns the ring to publish to.
func (d *Disruptor[T]) Start() (*RingBuffer[T], error) {
	if !d.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	for _, c := range d.consumers.consumers {
		if err := c.start(d.executor); err != nil {
			return nil, fmt.Errorf("start consumer: %w", err)
		}
	}
	d.logger.Debug("Disruptor started",
		"bufferSize", d.ring.BufferSize(),
		"consumers", len(d.consumers.consumers))
	return d.ring, nil
}

// Halt asks every consumer to stop at its next wait, without draining.
func (d *Disruptor[T]) Halt() {
	for _, c := range d.consumers.consumers {
		c.halt()
	}
}

// Shutdown waits until the last consumers of the graph have processed every
// published event and then halts them. A negative timeout waits forever.
//
// Producers must have stopped publishing first, or Shutdown may wait
// indefinitely. On timeout it returns ErrTimeout and leaves the consumers
// running, so the call can be retried.
func (d *Disruptor[T]) Shutdown(timeout time.Duration) error {
	ctx := context.Background()
	if timeout >= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return d.ShutdownContext(ctx)
}

// ShutdownContext is Shutdown bounded by ctx instead of a timeout.
func (d *Disruptor[T]) ShutdownContext(ctx context.Context) error {
	var spins uint32
	for d.hasBacklog() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: consumers have not caught up with cursor %d: %w", ErrTimeout, d.ring.Cursor(), ctx.Err())
		default:
		}
		spin(&spins)
	}
	d.Halt()
	d.logger.Debug("Disruptor shut down", "cursor", d.ring.Cursor())
	return nil
}

func (d *Disruptor[T]) hasBacklog() bool {
	cursor := d.ring.Cursor()
	for _, s := range d.consumers.lastSequenceInChain(false) {
		if cursor > s.Get() {
			return true
		}
	}
	return false
}

// Get returns the entry of sequence.
func (d *Disruptor[T]) Get(sequence int64) *T {
	return d.ring.Get(sequence)
}

// BarrierFor returns the barrier handler waits on, or nil if it is unknown.
func (d *Disruptor[T]) BarrierFor(handler EventHandler[T]) SequenceBarrier {
	return d.consumers.barrierFor(handler)
}

// SequenceValueFor returns how far handler has processed.
func (d *Disruptor[T]) SequenceValueFor(handler EventHandler[T]) (int64, error) {
	s, err := d.consumers.sequenceFor(handler)
	if err != nil {
		return 0, err
	}
	return s.Get(), nil
}

func (d *Disruptor[T]) BufferSize() int64 {
	return d.ring.BufferSize()
}

func (d *Disruptor[T]) Cursor() int64 {
	return d.ring.Cursor()
}

func (d *Disruptor[T]) RingBuffer() *RingBuffer[T] {
	return d.ring
}

func (d *Disruptor[T]) ringBuffer() *RingBuffer[T] {
	return d.ring
}

func (d *Disruptor[T]) String() string {
	return fmt.Sprintf("Disruptor{bufferSize=%d, cursor=%d, started=%t, consumers=%d}",
		d.ring.BufferSize(), d.ring.Cursor(), d.started.Load(), len(d.consumers.consumers))
}

func (d *Disruptor[T]) checkNotStarted() error {
	if d.started.Load() {
		return ErrAlreadyStarted
	}
	return nil
}

func (d *Disruptor[T]) newGroup(seqs []*Sequence) *EventHandlerGroup[T] {
	return &EventHandlerGroup[T]{disruptor: d, sequences: seqs}
}

func (d *Disruptor[T]) createEventProcessors(barrierSequences []*Sequence, handlers []EventHandler[T]) (*EventHandlerGroup[T], error) {
	if err := d.checkNotStarted(); err != nil {
		return nil, err
	}

	processorSequences := make([]*Sequence, len(handlers))
	barrier := d.ring.NewBarrier(barrierSequences...)
	for i, h := range handlers {
		p := NewBatchEventProcessor[T](d.ring, barrier, h)
		if d.exceptionHandler != nil {
			p.SetExceptionHandler(d.exceptionHandler)
		}
		d.consumers.addHandler(p, h, barrier)
		processorSequences[i] = p.Sequence()
	}

	d.updateGatingSequencesForNextInChain(barrierSequences, processorSequences)
	return d.newGroup(processorSequences), nil
}

func (d *Disruptor[T]) createEventProcessorsFromFactories(barrierSequences []*Sequence, factories []EventProcessorFactory[T]) (*EventHandlerGroup[T], error) {
	if err := d.checkNotStarted(); err != nil {
		return nil, err
	}
	processors := make([]EventProcessor, len(factories))
	for i, factory := range factories {
		processors[i] = factory(d.ring, barrierSequences)
	}
	return d.addProcessors(barrierSequences, processors)
}

func (d *Disruptor[T]) addProcessors(barrierSequences []*Sequence, processors []EventProcessor) (*EventHandlerGroup[T], error) {
	if err := d.checkNotStarted(); err != nil {
		return nil, err
	}

	processorSequences := make([]*Sequence, len(processors))
	for i, p := range processors {
		d.consumers.addProcessor(p)
		processorSequences[i] = p.Sequence()
	}

	d.updateGatingSequencesForNextInChain(barrierSequences, processorSequences)
	return d.newGroup(processorSequences), nil
}

func (d *Disruptor[T]) createWorkerPool(barrierSequences []*Sequence, handlers []WorkHandler[T]) (*EventHandlerGroup[T], error) {
	if err := d.checkNotStarted(); err != nil {
		return nil, err
	}

	barrier := d.ring.NewBarrier(barrierSequences...)
	pool := NewWorkerPool(d.ring, barrier, d.exceptionHandler, handlers...)
	d.consumers.addWorkerPool(pool, barrier)

	workerSequences := pool.WorkerSequences()
	d.updateGatingSequencesForNextInChain(barrierSequences, workerSequences)
	return d.newGroup(workerSequences), nil
}

// updateGatingSequencesForNextInChain makes the new stage gate the producers
// in place of the stage it consumes from: the upstream stage can no longer
// fall behind without holding the new one back.
func (d *Disruptor[T]) updateGatingSequencesForNextInChain(barrierSequences, processorSequences []*Sequence) {
	if len(processorSequences) == 0 {
		return
	}
	d.ring.AddGatingSequences(processorSequences...)
	for _, s := range barrierSequences {
		d.ring.RemoveGatingSequence(s)
	}
	d.consumers.unmarkEndOfChain(barrierSequences)
}

// ExceptionHandlerSetting installs an exception handler for one handler.
type ExceptionHandlerSetting[T any] struct {
	disruptor *Disruptor[T]
	handler   EventHandler[T]
}

// With sets exceptionHandler on the processor of the selected handler.
func (s *ExceptionHandlerSetting[T]) With(exceptionHandler ExceptionHandler[T]) error {
	if err := s.disruptor.checkNotStarted(); err != nil {
		return err
	}
	p, err := s.disruptor.consumers.processorFor(s.handler)
	if err != nil {
		return err
	}
	bp, ok := p.(*BatchEventProcessor[T])
	if !ok {
		return fmt.Errorf("processor %T does not accept an exception handler", p)
	}
	bp.SetExceptionHandler(exceptionHandler)
	return nil
}
