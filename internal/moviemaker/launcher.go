package moviemaker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"moviemaker/internal/infra"
)

// JobKind names a background job.
type JobKind string

const (
	JobScript     JobKind = "script"
	JobProduction JobKind = "production"
)

// Job is one unit of background work for a project.
type Job struct {
	Kind      JobKind `json:"kind"`
	ProjectID string  `json:"project_id"`
}

// RunFunc executes a job.
type RunFunc func(ctx context.Context, job Job) error

// Launcher schedules jobs keyed by project id so they can be cancelled.
type Launcher interface {
	// Launch schedules job; ctx only bounds the scheduling itself.
	Launch(ctx context.Context, job Job) error
	// Cancel stops the job running for projectID, if any.
	Cancel(ctx context.Context, projectID string)
	Shutdown(ctx context.Context) error
}

type localTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// LocalLauncher runs each job on its own goroutine inside the process.
type LocalLauncher struct {
	run     RunFunc
	abandon RunFunc
	logger  zerolog.Logger

	base context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	tasks  map[string]*localTask
	closed bool
	wg     sync.WaitGroup
}

var errLauncherClosed = errors.New("launcher is shut down")

func NewLocalLauncher(run RunFunc, logger *infra.Logger) *LocalLauncher {
	base, stop := context.WithCancel(context.Background())
	l := &LocalLauncher{
		run:    run,
		logger: zerolog.Nop(),
		base:   base,
		stop:   stop,
		tasks:  map[string]*localTask{},
	}
	if logger != nil {
		l.logger = logger.With().Str("component", "launcher").Logger()
	}
	return l
}

// OnAbandon registers fn for jobs cancelled while still waiting for an
// earlier job on the same project. fn gets a context that is not cancelled.
func (l *LocalLauncher) OnAbandon(fn RunFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.abandon = fn
}

// Launch starts job in the background. The job context is detached from ctx
// so it outlives the request that started it.
func (l *LocalLauncher) Launch(ctx context.Context, job Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errLauncherClosed
	}
	// A previous job for the project may still be unwinding after its final
	// state write; the new job starts once it has exited.
	prev := l.tasks[job.ProjectID]
	abandon := l.abandon

	taskCtx, cancel := context.WithCancel(l.base)
	task := &localTask{cancel: cancel, done: make(chan struct{})}
	l.tasks[job.ProjectID] = task
	l.wg.Add(1)

	go func() {
		defer l.wg.Done()
		defer close(task.done)
		defer cancel()
		defer l.forget(job.ProjectID, task)

		if prev != nil {
			select {
			case <-prev.done:
			case <-taskCtx.Done():
				l.logger.Warn().Str("project_id", job.ProjectID).Str("job", string(job.Kind)).Msg("job canceled before it started")
				if abandon != nil {
					if err := abandon(context.WithoutCancel(taskCtx), job); err != nil {
						l.logger.Error().Err(err).Str("project_id", job.ProjectID).Msg("record abandoned job")
					}
				}
				return
			}
		}
		if err := l.run(taskCtx, job); err != nil {
			l.logger.Warn().Err(err).Str("project_id", job.ProjectID).Str("job", string(job.Kind)).Msg("job ended with error")
			return
		}
		l.logger.Debug().Str("project_id", job.ProjectID).Str("job", string(job.Kind)).Msg("job finished")
	}()
	return nil
}

func (l *LocalLauncher) forget(projectID string, task *localTask) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tasks[projectID] == task {
		delete(l.tasks, projectID)
	}
}

// Cancel cancels the project's job and waits until it exits or ctx is done.
func (l *LocalLauncher) Cancel(ctx context.Context, projectID string) {
	l.mu.Lock()
	task, ok := l.tasks[projectID]
	l.mu.Unlock()
	if !ok {
		return
	}
	task.cancel()
	select {
	case <-task.done:
	case <-ctx.Done():
	}
}

// Running reports whether a job for projectID is in flight.
func (l *LocalLauncher) Running(projectID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	task, ok := l.tasks[projectID]
	if !ok {
		return false
	}
	select {
	case <-task.done:
		return false
	default:
		return true
	}
}

// Shutdown cancels every job and waits for them to return.
func (l *LocalLauncher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.stop()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Launcher = (*LocalLauncher)(nil)
