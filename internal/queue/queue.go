// Package queue runs deferred work (similarity scoring) out of band from the
// request that scheduled it.
package queue

import (
	"context"
	"time"
)

const TaskSimilarity = "similarity"

type Task struct {
	Type         string `json:"type"`
	SubmissionID string `json:"submission_id"`
	Attempts     int    `json:"attempts"`
}

// Handler processes one task. A returned error schedules a retry.
type Handler func(ctx context.Context, t *Task) error

type Enqueuer interface {
	Enqueue(ctx context.Context, t *Task) error
}

// Queue is a FIFO task source. Dequeue returns nil, nil when nothing became
// available within its poll interval.
type Queue interface {
	Enqueuer
	Dequeue(ctx context.Context) (*Task, error)
	Close() error
}

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	max := 5 * time.Minute
	// 2^9s already exceeds max; larger shifts would overflow
	if attempt > 8 {
		return max
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > max {
		return max
	}
	return d
}
