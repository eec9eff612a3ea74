package notification

import (
	"context"
	"log/slog"
	"sync"
)

// Job asks for one notification type about one call.
type Job struct {
	EventID string
	Type    Type
	Call    CallSummary
	ActorID int64
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, process func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing notification job", "worker_id", w.ID, "call_number", job.Call.CallNumber, "type", job.Type)
				process(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type QueueConfig struct {
	Workers int
	Size    int
}

// Queue is a bounded worker pool. Enqueue never blocks: a full queue drops
// the job.
type Queue struct {
	jobs       chan Job
	workerPool chan chan Job
	maxWorkers int
	process    func(context.Context, Job)
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewQueue(config QueueConfig, process func(context.Context, Job), logger *slog.Logger) *Queue {
	maxWorkers := config.Workers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	size := config.Size
	if size <= 0 {
		size = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:       make(chan Job, size),
		workerPool: make(chan chan Job, maxWorkers),
		maxWorkers: maxWorkers,
		process:    process,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	q.start()
	return q
}

func (q *Queue) start() {
	for i := 0; i < q.maxWorkers; i++ {
		worker := NewWorker(i, q.workerPool, q.logger)
		worker.Start(q.ctx, &q.wg, q.run)
	}

	q.wg.Add(1)
	go q.dispatch()

	q.logger.Info("notification worker pool started",
		"max_workers", q.maxWorkers,
		"queue_size", cap(q.jobs))
}

// dispatch hands queued jobs to idle workers until the queue is closed and
// drained, then stops the workers.
func (q *Queue) dispatch() {
	defer q.wg.Done()
	defer q.cancel()

	for job := range q.jobs {
		select {
		case jobChannel := <-q.workerPool:
			select {
			case jobChannel <- job:
			case <-q.ctx.Done():
				return
			}
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("notification job panicked", "panic", r, "call_number", job.Call.CallNumber)
		}
	}()
	q.process(context.Background(), job)
}

// Enqueue reports whether the job was accepted.
func (q *Queue) Enqueue(job Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	select {
	case q.jobs <- job:
		return true
	default:
		return false
	}
}

func (q *Queue) Len() int {
	return len(q.jobs)
}

// Shutdown stops accepting jobs and waits for queued ones to finish or for
// ctx to end.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("notification worker pool stopped")
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}
