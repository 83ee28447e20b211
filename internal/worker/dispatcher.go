package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

const DefaultQueueSize = 16

var (
	ErrDispatcherBusy   = errors.New("server is busy, please retry")
	ErrDispatcherClosed = errors.New("dispatcher stopped")
	ErrJobPanicked      = errors.New("job panicked")
)

// Dispatcher feeds a single worker so submitted jobs never overlap. It is
// used for catalog appends, where the backing store gives no ordering of its
// own.
type Dispatcher struct {
	JobQueue chan Job
	worker   *Worker

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	jobQueue := make(chan Job, queueSize)
	d := &Dispatcher{
		JobQueue: jobQueue,
		worker:   NewWorker(jobQueue),
	}
	d.worker.Start()
	return d
}

// Submit enqueues fn and waits for it to finish. A full queue fails fast with
// ErrDispatcherBusy instead of blocking the request.
func (d *Dispatcher) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	job := Job{ctx: ctx, run: fn, result: make(chan error, 1)}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrDispatcherClosed
	}
	select {
	case d.JobQueue <- job:
	default:
		d.mu.RUnlock()
		slog.Warn("[dispatcher] queue full", "capacity", cap(d.JobQueue))
		return ErrDispatcherBusy
	}
	d.mu.RUnlock()

	// once queued the job either runs to completion or is skipped, so the
	// caller always learns the real outcome
	return <-job.result
}

// Pending reports how many jobs are waiting for the worker.
func (d *Dispatcher) Pending() int {
	return len(d.JobQueue)
}

// Close stops accepting jobs, lets queued ones finish and waits for the
// worker to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.JobQueue)
	d.mu.Unlock()
	d.worker.Wait()
}
