package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"studentauth/internal/auth"
)

// Job is a queued notification.
type Job struct {
	ID           string            `json:"id"`
	Notification auth.Notification `json:"notification"`
	EnqueuedAt   time.Time         `json:"enqueuedAt"`

	// raw is the encoded payload a RedisQueue popped, used to acknowledge it.
	raw string
}

// NewJob wraps n in a Job with a fresh ULID stamped at now.
func NewJob(n auth.Notification, now time.Time) Job {
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	return Job{ID: id.String(), Notification: n, EnqueuedAt: now}
}

// Queue holds jobs awaiting delivery.
type Queue interface {
	// Push enqueues a job.
	Push(ctx context.Context, job Job) error
	// Pop waits for the next job. It returns (nil, nil) if nothing arrived
	// within the queue's poll interval, ctx.Err() once ctx is done, and
	// ErrQueueClosed once a closed queue has been drained.
	Pop(ctx context.Context) (*Job, error)
	// Ack marks a popped job as finished, delivered or given up on. A job
	// that is never acknowledged may be handed out again.
	Ack(ctx context.Context, job *Job) error
	// Len reports the number of waiting jobs.
	Len(ctx context.Context) (int, error)
}

var (
	// ErrQueueFull is returned by MemoryQueue.Push when the buffer is full.
	ErrQueueFull = errors.New("notification queue is full")

	// ErrQueueClosed is returned by Push after Close, and by Pop once the
	// closed queue holds no more jobs.
	ErrQueueClosed = errors.New("notification queue is closed")
)

// MemoryQueue is a bounded in-process Queue. Jobs are lost on restart.
type MemoryQueue struct {
	jobs chan Job
	poll time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// NewMemoryQueue creates a MemoryQueue holding up to size jobs.
func NewMemoryQueue(size int, poll time.Duration) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &MemoryQueue{
		jobs:   make(chan Job, size),
		poll:   poll,
		closed: make(chan struct{}),
	}
}

// Push enqueues job without blocking.
func (q *MemoryQueue) Push(ctx context.Context, job Job) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Pop waits for the next job.
func (q *MemoryQueue) Pop(ctx context.Context) (*Job, error) {
	timer := time.NewTimer(q.poll)
	defer timer.Stop()

	select {
	case job := <-q.jobs:
		return &job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closed:
		select {
		case job := <-q.jobs:
			return &job, nil
		default:
			return nil, ErrQueueClosed
		}
	case <-timer.C:
		return nil, nil
	}
}

// Ack is a no-op; a popped job has already left the buffer.
func (q *MemoryQueue) Ack(context.Context, *Job) error {
	return nil
}

// Len reports the number of buffered jobs.
func (q *MemoryQueue) Len(context.Context) (int, error) {
	return len(q.jobs), nil
}

// Close rejects further pushes. Buffered jobs can still be popped.
func (q *MemoryQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
