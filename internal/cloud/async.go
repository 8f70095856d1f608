package cloud

import (
	"context"
	"log/slog"
	"sync"
)

// Mirrorer is anything that can mirror a field to the cloud.
type Mirrorer interface {
	Mirror(ctx context.Context, field Field, value any) Result
}

type mirrorJob struct {
	field Field
	value any
}

// AsyncMirror hands mirror calls to a single worker so callers never block on
// the network. Jobs are sent in submission order. A full queue drops the job.
type AsyncMirror struct {
	next   Mirrorer
	jobs   chan mirrorJob
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncMirror wraps next with a queue of size jobs.
func NewAsyncMirror(next Mirrorer, size int, logger *slog.Logger) *AsyncMirror {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &AsyncMirror{
		next:   next,
		jobs:   make(chan mirrorJob, size),
		logger: logger.With("component", "cloud-async"),
	}
}

// Start launches the worker. It exits when ctx is cancelled or Close is called.
func (a *AsyncMirror) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-a.jobs:
				if !ok {
					return
				}
				a.next.Mirror(ctx, job.field, job.value)
			}
		}
	}()
}

// Mirror enqueues the update and returns immediately.
func (a *AsyncMirror) Mirror(_ context.Context, field Field, value any) Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return Result{Field: field, Value: value, Outcome: OutcomeDropped, Err: ErrMirrorClosed}
	}
	select {
	case a.jobs <- mirrorJob{field: field, value: value}:
		return Result{Field: field, Value: value, Outcome: OutcomeQueued}
	default:
		a.logger.Warn("cloud mirror queue full, dropping update", "field", field, "value", value)
		return Result{Field: field, Value: value, Outcome: OutcomeDropped, Err: ErrQueueFull}
	}
}

// Close stops accepting jobs and waits for the worker to finish the queue.
func (a *AsyncMirror) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.jobs)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
