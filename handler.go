package disruptor

// EventHandler consumes every published event in sequence order.
//
// Handlers are used as registry keys by the Disruptor, so implementations
// must be comparable; pointer types are the usual choice. Wrap a plain
// function with HandlerFunc.
type EventHandler[T any] interface {
	OnEvent(event *T, sequence int64, endOfBatch bool) error
}

// WorkHandler consumes the events a WorkerPool assigns to it. Each event is
// handed to exactly one WorkHandler of the pool.
type WorkHandler[T any] interface {
	OnEvent(event *T) error
}

// LifecycleAware handlers are notified once when their processor starts and
// once when it stops.
type LifecycleAware interface {
	OnStart() error
	OnShutdown() error
}

// BatchStartAware handlers are told the size of each batch before its first event.
type BatchStartAware interface {
	OnBatchStart(batchSize int64)
}

// TimeoutHandler handlers are called when the wait strategy times out,
// see TimeoutBlockingWaitStrategy.
type TimeoutHandler interface {
	OnTimeout(sequence int64) error
}

// SequenceReportingEventHandler handlers receive the sequence of their
// processor so they can report progress before the end of a batch.
type SequenceReportingEventHandler interface {
	SetSequenceCallback(sequence *Sequence)
}

type funcHandler[T any] struct {
	fn func(event *T, sequence int64, endOfBatch bool) error
}

// HandlerFunc adapts fn to an EventHandler. Every call returns a distinct
// handler, usable with After.
func HandlerFunc[T any](fn func(event *T, sequence int64, endOfBatch bool) error) EventHandler[T] {
	return &funcHandler[T]{fn: fn}
}

func (h *funcHandler[T]) OnEvent(event *T, sequence int64, endOfBatch bool) error {
	return h.fn(event, sequence, endOfBatch)
}

type funcWorkHandler[T any] struct {
	fn func(event *T) error
}

// WorkHandlerFunc adapts fn to a WorkHandler.
func WorkHandlerFunc[T any](fn func(event *T) error) WorkHandler[T] {
	return &funcWorkHandler[T]{fn: fn}
}

func (h *funcWorkHandler[T]) OnEvent(event *T) error {
	return h.fn(event)
}
