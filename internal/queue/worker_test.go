package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestBackoffDuration(t *testing.T) {
	assert.Equal(t, time.Second, BackoffDuration(0))
	assert.Equal(t, 2*time.Second, BackoffDuration(1))
	assert.Equal(t, 8*time.Second, BackoffDuration(3))
	assert.Equal(t, 5*time.Minute, BackoffDuration(20))
	assert.Equal(t, 5*time.Minute, BackoffDuration(63))
	assert.Equal(t, 5*time.Minute, BackoffDuration(64))
	assert.Equal(t, 5*time.Minute, BackoffDuration(1000))
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Task{Type: TaskSimilarity, SubmissionID: "a"}))
	assert.Error(t, q.Enqueue(ctx, &Task{Type: TaskSimilarity, SubmissionID: "b"}))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", got.SubmissionID)
}

func TestWorkerPoolProcessesTasks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := NewMemoryQueue(8)
	handled := make(chan string, 2)
	pool := NewWorkerPool(q, map[string]Handler{
		TaskSimilarity: func(ctx context.Context, task *Task) error {
			handled <- task.SubmissionID
			return nil
		},
	}, 2, 3)

	pool.Start(context.Background())
	defer pool.Stop()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &Task{Type: TaskSimilarity, SubmissionID: "s1"}))
	require.NoError(t, q.Enqueue(ctx, &Task{Type: TaskSimilarity, SubmissionID: "s2"}))

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case id := <-handled:
			seen[id] = true
		case <-time.After(3 * time.Second):
			t.Fatalf("handler was not called, saw %v", seen)
		}
	}
}

func TestWorkerPoolRetriesThenGivesUp(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := NewMemoryQueue(8)
	var calls atomic.Int32
	done := make(chan struct{})
	pool := NewWorkerPool(q, map[string]Handler{
		TaskSimilarity: func(ctx context.Context, task *Task) error {
			if calls.Add(1) == 3 {
				close(done)
			}
			return errors.New("store unavailable")
		},
	}, 1, 3)
	pool.Backoff = func(int) time.Duration { return 10 * time.Millisecond }

	pool.Start(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), &Task{Type: TaskSimilarity, SubmissionID: "s1"}))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}

	// give the worker a moment to prove it does not retry a fourth time
	time.Sleep(100 * time.Millisecond)
	pool.Stop()
	assert.Equal(t, int32(3), calls.Load())
}

func TestWorkerPoolDropsUnknownTypes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := NewMemoryQueue(8)
	handled := make(chan struct{}, 1)
	pool := NewWorkerPool(q, map[string]Handler{
		TaskSimilarity: func(ctx context.Context, task *Task) error {
			handled <- struct{}{}
			return nil
		},
	}, 1, 3)
	pool.Start(context.Background())
	defer pool.Stop()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &Task{Type: "unknown", SubmissionID: "x"}))
	require.NoError(t, q.Enqueue(ctx, &Task{Type: TaskSimilarity, SubmissionID: "y"}))

	select {
	case <-handled:
	case <-time.After(3 * time.Second):
		t.Fatal("known task was not handled after an unknown one")
	}
}
