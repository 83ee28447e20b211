package worker

import (
	"context"
	"log/slog"
)

// Job is one unit of serialized work. run is skipped when ctx is already
// done by the time the worker picks the job up.
type Job struct {
	ctx    context.Context
	run    func(ctx context.Context) error
	result chan error
}

type Worker struct {
	jobChannel chan Job
	done       chan struct{}
}

func NewWorker(jobs chan Job) *Worker {
	return &Worker{
		jobChannel: jobs,
		done:       make(chan struct{}),
	}
}

// Start runs jobs one at a time until the channel is closed.
func (w *Worker) Start() {
	go func() {
		defer close(w.done)
		for job := range w.jobChannel {
			job.result <- w.handle(job)
		}
	}()
}

func (w *Worker) handle(job Job) (err error) {
	if err := job.ctx.Err(); err != nil {
		slog.Debug("[worker] skip cancelled job", "error", err)
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[worker] job panicked", "panic", r)
			err = ErrJobPanicked
		}
	}()
	return job.run(job.ctx)
}

// Wait blocks until the worker goroutine has exited.
func (w *Worker) Wait() {
	<-w.done
}
