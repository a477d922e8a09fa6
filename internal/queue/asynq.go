package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// QueueChat is the asynq queue chat jobs run on.
const QueueChat = "chat"

// AsynqEnqueuer enqueues jobs into Redis for an AsynqWorker.
type AsynqEnqueuer struct {
	client *asynq.Client
}

// NewAsynqEnqueuer connects to the Redis server at redisURL.
func NewAsynqEnqueuer(redisURL string) (*AsynqEnqueuer, error) {
	opt, err := redisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	return &AsynqEnqueuer{client: asynq.NewClient(opt)}, nil
}

var _ Enqueuer = (*AsynqEnqueuer)(nil)

func (e *AsynqEnqueuer) Enqueue(ctx context.Context, job Job) error {
	if job.Type == "" {
		return errors.New("asynq: job type is required")
	}
	_, err := e.client.EnqueueContext(ctx, asynq.NewTask(job.Type, job.Payload), jobOptions(job)...)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return ErrDuplicate
	}
	return err
}

func (e *AsynqEnqueuer) Close() error {
	return e.client.Close()
}

func jobOptions(job Job) []asynq.Option {
	var out []asynq.Option
	if job.Queue != "" {
		out = append(out, asynq.Queue(job.Queue))
	}
	if job.MaxRetry > 0 {
		out = append(out, asynq.MaxRetry(job.MaxRetry))
	}
	if job.Dedup > 0 {
		out = append(out, asynq.Unique(job.Dedup))
	}
	if job.Timeout > 0 {
		out = append(out, asynq.Timeout(job.Timeout))
	}
	return out
}

// AsynqWorker processes jobs from the default and chat queues.
type AsynqWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewAsynqWorker creates a worker with the given concurrency.
func NewAsynqWorker(redisURL string, concurrency int, logger *slog.Logger) (*AsynqWorker, error) {
	opt, err := redisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1, QueueChat: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			logger.Warn("background job failed", "type", task.Type(), "retry", retried, "error", err)
		}),
	})
	return &AsynqWorker{server: srv, mux: asynq.NewServeMux(), logger: logger}, nil
}

// Handle routes jobs of jobType to h. Call it before Run.
func (w *AsynqWorker) Handle(jobType string, h Handler) {
	w.mux.HandleFunc(jobType, func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, t.Payload())
	})
}

// Run processes jobs until ctx is canceled, then waits for running jobs.
func (w *AsynqWorker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("asynq: start worker: %w", err)
	}
	w.logger.Info("background worker started")
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}

func redisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	if redisURL == "" {
		return nil, errors.New("asynq: redis url is required")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return opt, nil
}
