package disruptor

import "fmt"

var (
	// ErrInsufficientCapacity is returned by the non-blocking claim operations
	// when the ring has no room for the requested number of slots.
	ErrInsufficientCapacity = fmt.Errorf("insufficient capacity")

	// ErrAlert is returned from a wait when the barrier has been alerted.
	// Processors treat it as a request to re-check their running state.
	ErrAlert = fmt.Errorf("alert signaled")

	// ErrTimeout is returned when a timed wait or a bounded shutdown expires.
	ErrTimeout = fmt.Errorf("timeout")

	// ErrAlreadyStarted is returned when the graph is changed or started
	// after Start.
	ErrAlreadyStarted = fmt.Errorf("disruptor already started")
	// ErrAlreadyRunning is returned by Run while the processor's loop is alive.
	ErrAlreadyRunning = fmt.Errorf("processor already running")

	// ErrHandlerNotRegistered is returned for a handler the Disruptor does not know.
	ErrHandlerNotRegistered = fmt.Errorf("event handler is not processing events")
	// ErrExceptionHandlerReplaced is returned by SetDefaultExceptionHandler
	// once HandleExceptionsWith has replaced the default handler.
	ErrExceptionHandlerReplaced = fmt.Errorf("default exception handler can not be set after HandleExceptionsWith")
	// ErrExecutorSaturated is returned by an Executor that has no free slot.
	ErrExecutorSaturated = fmt.Errorf("executor can not accept more tasks")
	// ErrHandlerPanic wraps a panic recovered from a user callback.
	ErrHandlerPanic = fmt.Errorf("handler panic")
)

// EventError carries a failure raised by a user callback together with the
// sequence it was processing.
type EventError struct {
	Sequence int64
	Err      error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("event %d: %v", e.Sequence, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// recovered turns a recovered panic value into an error.
func recovered(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrHandlerPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrHandlerPanic, r)
}
