package queue

import (
	"context"
	"sync"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/metrics"
)

type WorkerPool struct {
	queue       Queue
	handlers    map[string]Handler
	workerCount int
	maxAttempts int
	// Backoff is how long a failed task waits before it is re-enqueued.
	Backoff func(attempt int) time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorkerPool(q Queue, handlers map[string]Handler, workerCount, maxAttempts int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 2
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &WorkerPool{
		queue:       q,
		handlers:    handlers,
		workerCount: workerCount,
		maxAttempts: maxAttempts,
		Backoff:     BackoffDuration,
	}
}

// Start launches the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for them
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Run blocks until ctx is done, then stops the workers.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
	return nil
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			logger.Debug.Printf("Worker %d stopping", id)
			return
		}

		task, err := p.queue.Dequeue(ctx)
		if err != nil {
			logger.Error.Printf("Worker %d failed to fetch task: %v", id, err)
			p.sleep(ctx, time.Second)
			continue
		}
		if task == nil {
			continue
		}

		p.process(ctx, task)
	}
}

func (p *WorkerPool) process(ctx context.Context, task *Task) {
	h, ok := p.handlers[task.Type]
	if !ok {
		logger.Error.Printf("No handler for task type %q, dropping %s", task.Type, task.SubmissionID)
		metrics.TasksTotal.WithLabelValues(task.Type, "dropped").Inc()
		return
	}

	err := h(ctx, task)
	if err == nil {
		metrics.TasksTotal.WithLabelValues(task.Type, "done").Inc()
		return
	}

	task.Attempts++
	if task.Attempts >= p.maxAttempts {
		logger.Error.Printf("Task %s/%s failed permanently after %d attempts: %v", task.Type, task.SubmissionID, task.Attempts, err)
		metrics.TasksTotal.WithLabelValues(task.Type, "failed").Inc()
		return
	}

	logger.Info.Printf("Task %s/%s failed (attempt %d), retrying: %v", task.Type, task.SubmissionID, task.Attempts, err)
	metrics.TasksTotal.WithLabelValues(task.Type, "retry").Inc()
	if !p.sleep(ctx, p.Backoff(task.Attempts)) {
		return
	}
	if err := p.queue.Enqueue(ctx, task); err != nil {
		logger.Error.Printf("Failed to re-enqueue task %s/%s: %v", task.Type, task.SubmissionID, err)
	}
}

// sleep waits for d unless ctx ends first; it reports whether d elapsed.
func (p *WorkerPool) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
