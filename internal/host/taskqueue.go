package host

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"matter-light-bridge/internal/datamodel"
)

var (
	ErrQueueClosed = errors.New("task queue closed")
	ErrQueueFull   = errors.New("task queue full")
)

// Task is a unit of deferred work. It owns everything it needs; nothing has to
// be released when it is dropped.
type Task struct {
	Name string
	Path datamodel.AttributePath
	Run  func(ctx context.Context)
}

// TaskQueue is the single dispatch context: tasks run one at a time on the
// goroutine executing Run.
type TaskQueue struct {
	tasks    chan Task
	done     chan struct{}
	stopOnce sync.Once
	dropped  atomic.Uint64
	executed atomic.Uint64
	logger   *slog.Logger
}

// NewTaskQueue creates a queue holding up to size pending tasks.
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if size <= 0 {
		size = 64
	}
	return &TaskQueue{
		tasks:  make(chan Task, size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Schedule enqueues a task without blocking.
func (q *TaskQueue) Schedule(t Task) error {
	select {
	case <-q.done:
		q.dropped.Add(1)
		return ErrQueueClosed
	default:
	}
	select {
	case q.tasks <- t:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Call runs fn on the dispatch context and waits for it to finish.
// ctx only bounds the wait for a free queue slot: once the task is queued it
// is waited for until it completes or the queue stops, since its effects
// cannot be taken back. It must not be called from inside a task.
func (q *TaskQueue) Call(ctx context.Context, name string, fn func(ctx context.Context)) error {
	finished := make(chan struct{})
	t := Task{Name: name, Run: func(ctx context.Context) {
		defer close(finished)
		fn(ctx)
	}}

	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.tasks <- t:
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-q.done:
		// Run may have picked the task up right before stopping.
		select {
		case <-finished:
			return nil
		default:
			return ErrQueueClosed
		}
	}
}

// Run executes tasks until ctx is cancelled or Stop is called. Tasks still
// pending at that point are discarded and counted as dropped.
func (q *TaskQueue) Run(ctx context.Context) error {
	defer q.drain()
	for {
		// Stop wins over queued work.
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		default:
		}
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case t := <-q.tasks:
			q.run(ctx, t)
		}
	}
}

// Stop signals Run to return. Safe to call multiple times.
func (q *TaskQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.done)
	})
}

// Dropped returns the number of tasks that never ran.
func (q *TaskQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Executed returns the number of tasks that ran.
func (q *TaskQueue) Executed() uint64 {
	return q.executed.Load()
}

// Pending returns the number of queued tasks.
func (q *TaskQueue) Pending() int {
	return len(q.tasks)
}

func (q *TaskQueue) run(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panic", "task", t.Name, "path", t.Path.String(), "panic", r)
		}
	}()
	q.executed.Add(1)
	if t.Run != nil {
		t.Run(ctx)
	}
}

func (q *TaskQueue) drain() {
	q.Stop()
	for {
		select {
		case t := <-q.tasks:
			q.dropped.Add(1)
			q.logger.Debug("task discarded at shutdown", "task", t.Name, "path", t.Path.String())
		default:
			return
		}
	}
}
