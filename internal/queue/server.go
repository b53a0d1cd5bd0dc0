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

// ServerOptions configures the worker side.
type ServerOptions struct {
	Queue           string
	Concurrency     int
	ShutdownTimeout time.Duration
	Logger          *infra.Logger
}

// Server consumes movie jobs and runs them with the orchestrator.
type Server struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger zerolog.Logger
}

func NewServer(redis asynq.RedisClientOpt, run moviemaker.RunFunc, opts ServerOptions) *Server {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "worker").Logger()
	}
	queue := opts.Queue
	if queue == "" {
		queue = defaultQueue
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	shutdown := opts.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 30 * time.Second
	}
	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{queue: 1},
		ShutdownTimeout: shutdown,
		Logger:          asynqLogger{logger},
	})
	return &Server{srv: srv, mux: NewServeMux(run, logger), logger: logger}
}

// NewServeMux routes both job types to run.
func NewServeMux(run moviemaker.RunFunc, logger zerolog.Logger) *asynq.ServeMux {
	h := &handler{run: run, logger: logger}
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeScript, h.handle)
	mux.HandleFunc(TypeProduce, h.handle)
	return mux
}

// Run processes tasks until ctx is done, then stops accepting work and waits
// for active jobs up to the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.srv.Start(s.mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	s.logger.Info().Msg("worker started")
	<-ctx.Done()
	s.srv.Shutdown()
	s.logger.Info().Msg("worker stopped")
	return nil
}

type handler struct {
	run    moviemaker.RunFunc
	logger zerolog.Logger
}

func (h *handler) handle(ctx context.Context, t *asynq.Task) error {
	var job moviemaker.Job
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("decode job: %v: %w", err, asynq.SkipRetry)
	}
	want, err := TaskType(job.Kind)
	if err != nil || want != t.Type() || job.ProjectID == "" {
		return fmt.Errorf("job %+v does not match task type %s: %w", job, t.Type(), asynq.SkipRetry)
	}

	log := h.logger.With().Str("project_id", job.ProjectID).Str("job", string(job.Kind)).Logger()
	log.Info().Msg("job started")
	err = h.run(ctx, job)
	switch {
	case err == nil:
		log.Info().Msg("job finished")
		return nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidState), ctx.Err() != nil:
		// Deleted, superseded or canceled; the project already reflects it.
		log.Info().Err(err).Msg("job stopped")
		return nil
	default:
		log.Error().Err(err).Msg("job failed")
		return err
	}
}

// asynqLogger routes asynq's internal logs through zerolog.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }

var _ asynq.Logger = asynqLogger{}
