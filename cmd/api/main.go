package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"moviemaker/internal/bootstrap"
	"moviemaker/internal/http/handlers"
	httpapi "moviemaker/internal/http/httpapi"
	"moviemaker/internal/infra"
	"moviemaker/internal/moviemaker"
	"moviemaker/internal/queue"
)

const shutdownGrace = 30 * time.Second

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// With Redis configured jobs go to cmd/worker; otherwise they run here.
	var launcher moviemaker.Launcher
	if cfg.QueueEnabled() {
		launcher = queue.NewDispatcher(
			asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
			queue.Options{Queue: cfg.QueueName, Logger: &logger},
		)
		logger.Info().Str("redis", cfg.RedisAddr).Str("queue", cfg.QueueName).Msg("dispatching jobs to worker")
	}

	deps, err := bootstrap.Build(ctx, cfg, &logger, launcher)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build movie service")
	}
	defer deps.Close()

	// In-process jobs died with the previous process; with a queue the
	// worker still owns them.
	if !cfg.QueueEnabled() {
		if _, err := deps.Service.RecoverInterrupted(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to recover interrupted projects")
		}
	}

	app := handlers.NewApp(deps.Service, deps.Media, cfg, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server")
		}
		// Running in-process jobs are cancelled and marked failed.
		if err := deps.Service.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to stop background jobs")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}
