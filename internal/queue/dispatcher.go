// Package queue runs movie jobs out of process through Redis-backed asynq
// queues. The API enqueues with Dispatcher; cmd/worker consumes with Server.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"moviemaker/internal/domain"
	"moviemaker/internal/infra"
	"moviemaker/internal/moviemaker"
)

const (
	TypeScript  = "movie:script"
	TypeProduce = "movie:produce"

	defaultQueue     = "movies"
	defaultTimeout   = 2 * time.Hour
	scriptJobTimeout = 5 * time.Minute
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type inspector interface {
	DeleteTask(queue, id string) error
	CancelProcessing(id string) error
	Close() error
}

// Options configures a Dispatcher.
type Options struct {
	Queue string
	// Timeout bounds a production job on the worker.
	Timeout time.Duration
	Logger  *infra.Logger
}

// Dispatcher enqueues jobs for cmd/worker. It implements moviemaker.Launcher.
type Dispatcher struct {
	client    enqueuer
	inspector inspector
	queue     string
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewDispatcher connects a client and an inspector to the same Redis.
func NewDispatcher(redis asynq.RedisClientOpt, opts Options) *Dispatcher {
	return newDispatcher(asynq.NewClient(redis), asynq.NewInspector(redis), opts)
}

func newDispatcher(client enqueuer, insp inspector, opts Options) *Dispatcher {
	d := &Dispatcher{
		client:    client,
		inspector: insp,
		queue:     opts.Queue,
		timeout:   opts.Timeout,
		logger:    zerolog.Nop(),
	}
	if d.queue == "" {
		d.queue = defaultQueue
	}
	if d.timeout <= 0 {
		d.timeout = defaultTimeout
	}
	if opts.Logger != nil {
		d.logger = opts.Logger.With().Str("component", "queue").Logger()
	}
	return d
}

// TaskType maps a job kind to its asynq task type.
func TaskType(kind moviemaker.JobKind) (string, error) {
	switch kind {
	case moviemaker.JobScript:
		return TypeScript, nil
	case moviemaker.JobProduction:
		return TypeProduce, nil
	}
	return "", fmt.Errorf("%w: unknown job kind %q", domain.ErrInvalidInput, kind)
}

// taskID is stable per project and kind so Cancel can find the task without
// remembering what was enqueued.
func taskID(taskType, projectID string) string {
	return taskType + ":" + projectID
}

// Launch enqueues job. Jobs are never retried: a failed run already
// recorded its failure on the project.
func (d *Dispatcher) Launch(ctx context.Context, job moviemaker.Job) error {
	typ, err := TaskType(job.Kind)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	timeout := d.timeout
	if job.Kind == moviemaker.JobScript {
		timeout = scriptJobTimeout
	}
	id := taskID(typ, job.ProjectID)
	task := asynq.NewTask(typ, payload,
		asynq.TaskID(id),
		asynq.Queue(d.queue),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
	)
	info, err := d.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// An archived or completed task still holds the id; active ones
		// cannot be deleted and keep the conflict.
		if delErr := d.inspector.DeleteTask(d.queue, id); delErr != nil {
			return fmt.Errorf("%w: a %s job for project %s is still queued", domain.ErrInvalidState, job.Kind, job.ProjectID)
		}
		info, err = d.client.EnqueueContext(ctx, task)
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", typ, err)
	}
	d.logger.Info().
		Str("project_id", job.ProjectID).
		Str("task_id", info.ID).
		Str("queue", info.Queue).
		Msg("job enqueued")
	return nil
}

// Cancel removes queued jobs for the project and signals workers to stop
// the active one. It does not wait: the worker notices the deleted project
// at its next store write and cleans up.
func (d *Dispatcher) Cancel(ctx context.Context, projectID string) {
	for _, typ := range []string{TypeScript, TypeProduce} {
		id := taskID(typ, projectID)
		if err := d.inspector.DeleteTask(d.queue, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			d.logger.Debug().Err(err).Str("task_id", id).Msg("delete queued task")
		}
		if err := d.inspector.CancelProcessing(id); err != nil {
			d.logger.Warn().Err(err).Str("task_id", id).Msg("cancel active task")
		}
	}
}

// Shutdown releases the Redis connections. Jobs keep running on workers.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	return errors.Join(d.client.Close(), d.inspector.Close())
}

var _ moviemaker.Launcher = (*Dispatcher)(nil)
