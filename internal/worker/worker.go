package worker

import (
	"context"

	"pocusai/internal/service/ai"
)

type jobType int

const (
	generate jobType = iota
	stop
)

// Job is one model call queued on behalf of a user.
type Job struct {
	Type   jobType
	UserID string
	ctx    context.Context
	req    ai.Request
	result chan jobResult
}

type jobResult struct {
	text string
	err  error
}

// Worker runs jobs handed to it by the pool until it is told to stop.
type Worker struct {
	pool       *jobChannelPool
	generator  ai.Generator
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool, generator ai.Generator) *Worker {
	return &Worker{
		pool:       pool,
		generator:  generator,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		defer w.pool.retire(w.jobChannel)
		for job := range w.jobChannel {
			if job.Type == stop {
				return
			}
			text, err := w.generator.Generate(job.ctx, job.req)
			job.result <- jobResult{text: text, err: err}
			if !w.pool.Release(w.jobChannel) {
				return
			}
		}
	}()
}
