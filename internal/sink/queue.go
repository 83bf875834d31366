// Package sink delivers trade-history rows and volume increments to
// external persistence without blocking the event loop. Delivery is
// fire-and-forget: failures are logged, never retried, and a full queue
// drops the task.
package sink

import (
	"context"
	"log"
	"sync"
)

// Task is one unit of outbound work.
type Task func(ctx context.Context) error

type queuedTask struct {
	name string
	fn   Task
}

// Queue is a bounded task queue drained by a fixed worker pool. Enqueue
// never blocks the caller.
type Queue struct {
	tasks   chan queuedTask
	logger  *log.Logger
	wg      sync.WaitGroup
	dropped func() // optional drop hook, e.g. a metrics counter
	failed  func() // optional failure hook

	closeOnce sync.Once
}

// NewQueue creates a queue with the given capacity. The drop hook may be
// nil.
func NewQueue(size int, logger *log.Logger, dropped func()) *Queue {
	if logger == nil {
		logger = log.Default()
	}
	return &Queue{
		tasks:   make(chan queuedTask, size),
		logger:  logger,
		dropped: dropped,
	}
}

// OnFailure installs a hook invoked whenever a task returns an error.
// Must be set before Start.
func (q *Queue) OnFailure(fn func()) {
	q.failed = fn
}

// Start launches the worker pool. Workers exit when the queue is closed
// and drained, or when ctx is cancelled. Callers relying on Close to
// drain pending tasks must pass a context that outlives shutdown.
func (q *Queue) Start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Enqueue submits a task. Returns false when the queue is full; the task
// is dropped and logged.
func (q *Queue) Enqueue(name string, fn Task) bool {
	select {
	case q.tasks <- queuedTask{name: name, fn: fn}:
		return true
	default:
		q.logger.Printf("[sink] queue full, dropping task %s", name)
		if q.dropped != nil {
			q.dropped()
		}
		return false
	}
}

// Close stops accepting tasks and waits for in-flight work to finish.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.tasks)
	})
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-q.tasks:
			if !ok {
				return
			}
			if err := t.fn(ctx); err != nil {
				q.logger.Printf("[sink] task %s failed: %v", t.name, err)
				if q.failed != nil {
					q.failed()
				}
			}
		}
	}
}
