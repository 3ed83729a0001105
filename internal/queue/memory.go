package queue

import (
	"context"
	"fmt"
	"time"
)

// MemoryQueue keeps tasks in a buffered channel. Pending tasks are lost on
// restart; cmd/backfill can re-enqueue scoring for recorded submissions.
type MemoryQueue struct {
	tasks        chan *Task
	pollInterval time.Duration
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{
		tasks:        make(chan *Task, capacity),
		pollInterval: 500 * time.Millisecond,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, t *Task) error {
	select {
	case q.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queue is full (%d tasks)", cap(q.tasks))
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	timer := time.NewTimer(q.pollInterval)
	defer timer.Stop()

	select {
	case t := <-q.tasks:
		return t, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, nil
	}
}

func (q *MemoryQueue) Close() error {
	return nil
}
