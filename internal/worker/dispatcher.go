package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"pocusai/internal/service/ai"
)

var (
	ErrQueueFull = errors.New("too many pending requests, please retry shortly")
	ErrCanceled  = errors.New("request canceled")
	ErrStopped   = errors.New("dispatcher stopped")
)

// DispatcherConfig bounds the model calls in flight across all users.
type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher runs model calls on a bounded worker pool, taking jobs from
// users in round-robin order so one busy user can not starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job
	stopCh   chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	queues    map[string]*userQueue
	ready     *list.List // user ids with pending jobs, served front to back
	positions map[string]*list.Element
}

func NewDispatcher(cfg DispatcherConfig, generator ai.Generator) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	d := &Dispatcher{
		pool:      newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout, generator),
		jobQueue:  make(chan Job, cfg.QueueSize),
		stopCh:    make(chan struct{}),
		queues:    make(map[string]*userQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
	}
	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}
	go d.run()
	return d
}

// ForUser returns a Generator whose calls are queued under userID.
func (d *Dispatcher) ForUser(userID string) ai.Generator {
	return ai.GeneratorFunc(func(ctx context.Context, req ai.Request) (string, error) {
		return d.Submit(ctx, userID, req)
	})
}

// Submit queues a model call and waits for its result.
func (d *Dispatcher) Submit(ctx context.Context, userID string, req ai.Request) (string, error) {
	job := Job{Type: generate, UserID: userID, ctx: ctx, req: req, result: make(chan jobResult, 1)}
	select {
	case <-d.stopCh:
		return "", ErrStopped
	default:
	}
	select {
	case d.jobQueue <- job:
	default:
		return "", ErrQueueFull
	}
	select {
	case res := <-job.result:
		return res.text, res.err
	case <-d.stopCh:
		// run may have drained before the job landed
		select {
		case res := <-job.result:
			return res.text, res.err
		default:
			return "", ErrStopped
		}
	}
}

// CancelUser drops the queued jobs of userID. Jobs already running complete.
func (d *Dispatcher) CancelUser(userID string) {
	d.mu.Lock()
	q := d.queues[userID]
	delete(d.queues, userID)
	if elem, ok := d.positions[userID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, userID)
	}
	d.mu.Unlock()

	if q == nil {
		return
	}
	for _, job := range q.jobs {
		job.result <- jobResult{err: ErrCanceled}
	}
}

// Stop ends dispatching. Jobs still queued fail with ErrStopped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.pool.close()
	})
}

func (d *Dispatcher) run() {
	for {
		if !d.dispatchOne() {
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			case <-d.stopCh:
				d.drain()
				return
			}
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		case <-d.stopCh:
			d.drain()
			return
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	d.enqueueLocked(job)
	d.mu.Unlock()
}

func (d *Dispatcher) enqueueLocked(job Job) {
	q := d.queues[job.UserID]
	if q == nil {
		q = &userQueue{}
		d.queues[job.UserID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.UserID] = d.ready.PushBack(job.UserID)
}

// dispatchOne hands the next job of the front user to a worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	userID := elem.Value.(string)
	q := d.queues[userID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, userID)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	if workerChan == nil {
		job.result <- jobResult{err: ErrStopped}
		return true
	}
	log.WithField("user_id", userID).Debug("worker: dispatching model call")
	workerChan <- job
	return true
}

func (d *Dispatcher) drain() {
	d.mu.Lock()
	var pending []Job
	for _, q := range d.queues {
		pending = append(pending, q.jobs...)
	}
	d.queues = make(map[string]*userQueue)
	d.ready.Init()
	d.positions = make(map[string]*list.Element)
	d.mu.Unlock()

	for {
		select {
		case job := <-d.jobQueue:
			pending = append(pending, job)
		default:
			for _, job := range pending {
				job.result <- jobResult{err: ErrStopped}
			}
			return
		}
	}
}
