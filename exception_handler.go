package disruptor

import (
	"fmt"
	"log/slog"
)

// ExceptionHandler decides what happens when a callback fails.
type ExceptionHandler[T any] interface {
	// HandleEventException is called when handling event at sequence failed.
	// Returning nil skips the event and continues with the next one; a
	// non-nil error halts the processor, which returns it from Run.
	HandleEventException(err error, sequence int64, event *T) error
	// HandleOnStartException is called when the OnStart hook failed. A non-nil
	// return stops the processor before it handles any event.
	HandleOnStartException(err error) error
	// HandleOnShutdownException is called when the OnShutdown hook failed. A
	// non-nil return is returned from Run.
	HandleOnShutdownException(err error) error
}

// LoggingExceptionHandler logs failures and lets processing continue past a
// failed event. Failed OnStart and OnShutdown hooks are escalated. It is the
// default exception handler.
type LoggingExceptionHandler[T any] struct {
	logger *slog.Logger
}

// NewLoggingExceptionHandler logs to logger, or slog.Default() when nil.
func NewLoggingExceptionHandler[T any](logger *slog.Logger) *LoggingExceptionHandler[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingExceptionHandler[T]{logger: logger}
}

func (h *LoggingExceptionHandler[T]) HandleEventException(err error, sequence int64, _ *T) error {
	h.logger.Error("Exception processing event", "sequence", sequence, "error", err)
	return nil
}

func (h *LoggingExceptionHandler[T]) HandleOnStartException(err error) error {
	h.logger.Error("Exception during OnStart", "error", err)
	return fmt.Errorf("on start: %w", err)
}

func (h *LoggingExceptionHandler[T]) HandleOnShutdownException(err error) error {
	h.logger.Error("Exception during OnShutdown", "error", err)
	return fmt.Errorf("on shutdown: %w", err)
}

// FatalExceptionHandler logs failures and halts the processor on the first
// failed event.
type FatalExceptionHandler[T any] struct {
	logger *slog.Logger
}

func NewFatalExceptionHandler[T any](logger *slog.Logger) *FatalExceptionHandler[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &FatalExceptionHandler[T]{logger: logger}
}

func (h *FatalExceptionHandler[T]) HandleEventException(err error, sequence int64, _ *T) error {
	h.logger.Error("Fatal exception processing event", "sequence", sequence, "error", err)
	return &EventError{Sequence: sequence, Err: err}
}

func (h *FatalExceptionHandler[T]) HandleOnStartException(err error) error {
	h.logger.Error("Exception during OnStart", "error", err)
	return fmt.Errorf("on start: %w", err)
}

func (h *FatalExceptionHandler[T]) HandleOnShutdownException(err error) error {
	h.logger.Error("Exception during OnShutdown", "error", err)
	return fmt.Errorf("on shutdown: %w", err)
}

// exceptionHandlerWrapper is handed to every processor the Disruptor creates,
// so that the default handler can still be switched before Start.
type exceptionHandlerWrapper[T any] struct {
	delegate ExceptionHandler[T]
}

func (w *exceptionHandlerWrapper[T]) switchTo(delegate ExceptionHandler[T]) {
	w.delegate = delegate
}

func (w *exceptionHandlerWrapper[T]) HandleEventException(err error, sequence int64, event *T) error {
	return w.delegate.HandleEventException(err, sequence, event)
}

func (w *exceptionHandlerWrapper[T]) HandleOnStartException(err error) error {
	return w.delegate.HandleOnStartException(err)
}

func (w *exceptionHandlerWrapper[T]) HandleOnShutdownException(err error) error {
	return w.delegate.HandleOnShutdownException(err)
}
