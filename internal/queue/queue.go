// Package queue runs background jobs on asynq and defines the touch job that
// keeps conversation activity timestamps current.
package queue

import (
	"context"
	"errors"
	"time"
)

// Job is one unit of background work. Type routes it to a Handler and Payload
// is whatever that handler decodes.
type Job struct {
	Type     string
	Payload  []byte
	Queue    string
	MaxRetry int
	// Dedup collapses identical jobs enqueued within the window into one.
	Dedup   time.Duration
	Timeout time.Duration
}

// Handler runs the payload of one job. A non-nil error retries the job.
type Handler func(ctx context.Context, payload []byte) error

// ErrDuplicate is returned by Enqueue when Dedup swallowed the job.
var ErrDuplicate = errors.New("queue: duplicate job")

// Enqueuer hands jobs to the background workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}
