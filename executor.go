package disruptor

import (
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Executor runs consumer loops. Every task is expected to run on its own
// goroutine for as long as the consumer is alive, so an Executor that cannot
// dedicate a goroutine must fail instead of queueing the task.
type Executor interface {
	Execute(task func() error) error
}

// GroupExecutor runs each task on a new goroutine of an errgroup.Group.
type GroupExecutor struct {
	group  errgroup.Group
	logger *slog.Logger
}

// NewGroupExecutor creates an executor for at most limit concurrent tasks;
// a negative limit means no limit.
func NewGroupExecutor(limit int) *GroupExecutor {
	e := &GroupExecutor{logger: slog.Default()}
	e.group.SetLimit(limit)
	return e
}

// Execute starts task or returns ErrExecutorSaturated when the limit is reached.
func (e *GroupExecutor) Execute(task func() error) error {
	if !e.group.TryGo(e.wrap(task)) {
		return ErrExecutorSaturated
	}
	return nil
}

func (e *GroupExecutor) wrap(task func() error) func() error {
	return func() error {
		err := task()
		if err != nil {
			e.logger.Error("Consumer stopped with error", "error", err)
		}
		return err
	}
}

// Wait blocks until every task has returned and reports the first error.
func (e *GroupExecutor) Wait() error {
	return e.group.Wait()
}

// PinnedExecutor locks every task to its own OS thread and, where the
// platform allows it, binds that thread to one of cpus in round-robin order.
type PinnedExecutor struct {
	next     Executor
	cpus     []int
	assigned atomic.Uint32
	logger   *slog.Logger
}

// NewPinnedExecutor wraps next. With no cpus the threads are locked but not bound.
func NewPinnedExecutor(next Executor, cpus ...int) *PinnedExecutor {
	return &PinnedExecutor{next: next, cpus: cpus, logger: slog.Default()}
}

func (e *PinnedExecutor) Execute(task func() error) error {
	cpu := -1
	if len(e.cpus) > 0 {
		cpu = e.cpus[int(e.assigned.Add(1)-1)%len(e.cpus)]
	}
	return e.next.Execute(func() error {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if cpu >= 0 {
			if err := pinCurrentThread(cpu); err != nil {
				e.logger.Warn("pin: failed to set thread affinity", "cpu", cpu, "error", err)
			}
		}
		return task()
	})
}
