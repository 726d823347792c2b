package disruptor

import "sync/atomic"

type consumerKind int

const (
	batchConsumer consumerKind = iota
	workerPoolConsumer
)

// consumerInfo is one node of the dependency graph: either a single event
// processor or a worker pool, with the barrier it waits on.
type consumerInfo[T any] struct {
	kind    consumerKind
	barrier SequenceBarrier

	processor EventProcessor  // batchConsumer
	handler   EventHandler[T] // batchConsumer, nil for user supplied processors
	pool      *WorkerPool[T]  // workerPoolConsumer

	// endOfChain is true while nothing downstream depends on this consumer;
	// only end-of-chain sequences gate the producers.
	endOfChain bool

	// launched and exited bracket the processor goroutine, so that a consumer
	// whose goroutine has not been scheduled yet still counts as running.
	launched atomic.Bool
	exited   atomic.Bool
}

func (c *consumerInfo[T]) sequences() []*Sequence {
	switch c.kind {
	case workerPoolConsumer:
		return c.pool.WorkerSequences()
	default:
		return []*Sequence{c.processor.Sequence()}
	}
}

func (c *consumerInfo[T]) start(executor Executor) error {
	switch c.kind {
	case workerPoolConsumer:
		_, err := c.pool.Start(executor)
		return err
	default:
		c.launched.Store(true)
		err := executor.Execute(func() error {
			defer c.exited.Store(true)
			return c.processor.Run()
		})
		if err != nil {
			c.exited.Store(true)
		}
		return err
	}
}

func (c *consumerInfo[T]) halt() {
	switch c.kind {
	case workerPoolConsumer:
		c.pool.Halt()
	default:
		c.processor.Halt()
	}
}

func (c *consumerInfo[T]) isRunning() bool {
	switch c.kind {
	case workerPoolConsumer:
		return c.pool.IsRunning()
	default:
		return (c.launched.Load() && !c.exited.Load()) || c.processor.IsRunning()
	}
}

// consumerRepository indexes the consumers of a Disruptor by handler and by
// sequence, keeping registration order for start and halt.
type consumerRepository[T any] struct {
	consumers  []*consumerInfo[T]
	byHandler  map[EventHandler[T]]*consumerInfo[T]
	bySequence map[*Sequence]*consumerInfo[T]
}

func newConsumerRepository[T any]() *consumerRepository[T] {
	return &consumerRepository[T]{
		byHandler:  make(map[EventHandler[T]]*consumerInfo[T]),
		bySequence: make(map[*Sequence]*consumerInfo[T]),
	}
}

func (r *consumerRepository[T]) addHandler(processor EventProcessor, handler EventHandler[T], barrier SequenceBarrier) {
	info := &consumerInfo[T]{
		kind:       batchConsumer,
		barrier:    barrier,
		processor:  processor,
		handler:    handler,
		endOfChain: true,
	}
	r.byHandler[handler] = info
	r.register(info)
}

func (r *consumerRepository[T]) addProcessor(processor EventProcessor) {
	r.register(&consumerInfo[T]{
		kind:       batchConsumer,
		processor:  processor,
		endOfChain: true,
	})
}

func (r *consumerRepository[T]) addWorkerPool(pool *WorkerPool[T], barrier SequenceBarrier) {
	r.register(&consumerInfo[T]{
		kind:       workerPoolConsumer,
		barrier:    barrier,
		pool:       pool,
		endOfChain: true,
	})
}

func (r *consumerRepository[T]) register(info *consumerInfo[T]) {
	r.consumers = append(r.consumers, info)
	for _, s := range info.sequences() {
		r.bySequence[s] = info
	}
}

// lastSequenceInChain returns the sequences of every end-of-chain consumer,
// skipping halted ones unless includeStopped is set.
func (r *consumerRepository[T]) lastSequenceInChain(includeStopped bool) []*Sequence {
	var last []*Sequence
	for _, c := range r.consumers {
		if (includeStopped || c.isRunning()) && c.endOfChain {
			last = append(last, c.sequences()...)
		}
	}
	return last
}

func (r *consumerRepository[T]) processorFor(handler EventHandler[T]) (EventProcessor, error) {
	info, ok := r.byHandler[handler]
	if !ok {
		return nil, ErrHandlerNotRegistered
	}
	return info.processor, nil
}

func (r *consumerRepository[T]) sequenceFor(handler EventHandler[T]) (*Sequence, error) {
	p, err := r.processorFor(handler)
	if err != nil {
		return nil, err
	}
	return p.Sequence(), nil
}

func (r *consumerRepository[T]) barrierFor(handler EventHandler[T]) SequenceBarrier {
	if info, ok := r.byHandler[handler]; ok {
		return info.barrier
	}
	return nil
}

// unmarkEndOfChain records that something now depends on the consumers
// owning barrierSequences.
func (r *consumerRepository[T]) unmarkEndOfChain(barrierSequences []*Sequence) {
	for _, s := range barrierSequences {
		if info, ok := r.bySequence[s]; ok {
			info.endOfChain = false
		}
	}
}

func (r *consumerRepository[T]) hasProcessor(processor EventProcessor) bool {
	for _, c := range r.consumers {
		if c.kind == batchConsumer && c.processor == processor {
			return true
		}
	}
	return false
}
