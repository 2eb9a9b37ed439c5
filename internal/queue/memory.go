package queue

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultMaxRetries = 3

// envelope wraps a job with retry info
type envelope struct {
	Job        BatchJob
	RetryCount int
	MaxRetries int
}

// InMemoryQueue is a buffered channel queue with retry for single-process deployments
type InMemoryQueue struct {
	jobs      chan envelope
	closed    chan struct{}
	closeOnce sync.Once
	backoff   time.Duration
	log       logrus.FieldLogger
}

// NewInMemoryQueue creates a new queue holding up to size pending jobs
func NewInMemoryQueue(size int, backoff time.Duration, log logrus.FieldLogger) *InMemoryQueue {
	if size < 1 {
		size = 1
	}
	return &InMemoryQueue{
		jobs:    make(chan envelope, size),
		closed:  make(chan struct{}),
		backoff: backoff,
		log:     log,
	}
}

// Publish enqueues a job without blocking
func (q *InMemoryQueue) Publish(ctx context.Context, job BatchJob) error {
	return q.push(envelope{Job: job, MaxRetries: defaultMaxRetries})
}

func (q *InMemoryQueue) push(env envelope) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.jobs <- env:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume runs handler for each job until ctx is done or the queue is closed
func (q *InMemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.closed:
			return ErrClosed
		case env := <-q.jobs:
			q.process(ctx, handler, env)
		}
	}
}

// process handles retries and errors. Failed jobs are re-enqueued after a growing delay.
func (q *InMemoryQueue) process(ctx context.Context, handler Handler, env envelope) {
	err := handler(ctx, env.Job)
	if err == nil {
		return
	}

	env.RetryCount++
	fields := logrus.Fields{"batchId": env.Job.BatchID, "attempt": env.RetryCount, "maxRetries": env.MaxRetries}
	if env.RetryCount > env.MaxRetries {
		q.log.WithFields(fields).WithError(err).Error("batch job permanently failed")
		return
	}
	q.log.WithFields(fields).WithError(err).Warn("batch job failed, will retry")

	time.AfterFunc(time.Duration(env.RetryCount)*q.backoff, func() {
		if err := q.push(env); err != nil {
			q.log.WithFields(fields).WithError(err).Error("could not requeue batch job")
		}
	})
}

// Close stops consumers. Pending jobs are dropped.
func (q *InMemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}

// Len reports the number of waiting jobs
func (q *InMemoryQueue) Len() int {
	return len(q.jobs)
}
