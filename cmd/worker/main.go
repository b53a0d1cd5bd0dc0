package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"moviemaker/internal/bootstrap"
	"moviemaker/internal/infra"
	"moviemaker/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	if !cfg.QueueEnabled() {
		logger.Fatal().Msg("worker: REDIS_ADDR is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg, &logger, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build movie service")
	}
	defer deps.Close()

	srv := queue.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
		deps.Service.Run,
		queue.ServerOptions{
			Queue:       cfg.QueueName,
			Concurrency: cfg.WorkerConcurrency,
			Logger:      &logger,
		},
	)

	logger.Info().Str("queue", cfg.QueueName).Int("concurrency", cfg.WorkerConcurrency).Msg("worker: started")
	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("worker: stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := deps.Service.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("worker: shutdown")
	}
	logger.Info().Msg("worker: stopped")
}
