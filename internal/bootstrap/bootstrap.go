// Package bootstrap assembles the movie service from configuration. The API
// and the worker build the same service so a job behaves identically in
// either process.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"moviemaker/internal/adapter/memstore"
	"moviemaker/internal/adapter/repo"
	"moviemaker/internal/catalog"
	"moviemaker/internal/domain"
	"moviemaker/internal/infra"
	"moviemaker/internal/media"
	"moviemaker/internal/moviemaker"
	"moviemaker/internal/planner"
	"moviemaker/internal/providers/genai"
	"moviemaker/internal/providers/video"
	"moviemaker/internal/storage"
)

// Deps holds the assembled service and the resources behind it.
type Deps struct {
	Service *moviemaker.Service
	Media   *media.Processor
	Catalog *catalog.Catalog

	closers []func()
}

// Close releases database connections. Call it after the service has been
// shut down.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// Build wires the store, generators, media processor and publisher described
// by cfg. A nil launcher makes the service run jobs in-process.
func Build(ctx context.Context, cfg *infra.Config, logger *infra.Logger, launcher moviemaker.Launcher) (*Deps, error) {
	deps := &Deps{}
	fail := func(err error) (*Deps, error) {
		deps.Close()
		return nil, err
	}

	store, err := deps.openStore(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fail(err)
	}
	deps.Catalog = cat

	tempDir, err := absDir(cfg.TempDir)
	if err != nil {
		return fail(err)
	}
	outputDir, err := absDir(cfg.OutputDir)
	if err != nil {
		return fail(err)
	}
	scratch, err := storage.NewFileStore(tempDir)
	if err != nil {
		return fail(fmt.Errorf("configure temp dir: %w", err))
	}
	outputs, err := storage.NewFileStore(outputDir)
	if err != nil {
		return fail(fmt.Errorf("configure output dir: %w", err))
	}

	deps.Media = media.NewProcessor(media.Options{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		WorkDir:     tempDir,
		Timeout:     cfg.MediaTimeout,
		Logger:      logger,
	})
	if !deps.Media.Available(ctx) {
		logger.Warn().Str("ffmpeg", cfg.FFmpegPath).Msg("ffmpeg not available, production will fail until it is installed")
	}

	var (
		textGen  planner.TextGenerator
		videoGen video.Generator
	)
	client, err := genai.NewClient(ctx, genai.Options{
		APIKey:       cfg.GeminiAPIKey,
		UseVertexAI:  cfg.UseVertexAI,
		Project:      cfg.GoogleCloudProject,
		Location:     cfg.GoogleCloudRegion,
		TextModel:    cfg.TextModel,
		VideoModel:   cfg.VideoModel,
		PollInterval: cfg.VideoPollInterval,
		HTTPClient:   &http.Client{Timeout: 2 * time.Minute},
		Logger:       logger,
	})
	switch {
	case errors.Is(err, genai.ErrNotConfigured):
		logger.Warn().Msg("gemini credentials missing, using template scripts and synthetic clips")
		videoGen = video.NewSyntheticGenerator(deps.Media, tempDir)
	case err != nil:
		return fail(err)
	default:
		textGen = client
		videoGen = video.NewGeminiGenerator(client)
		logger.Info().Str("text_model", client.TextModel()).Str("video_model", client.VideoModel()).Msg("gemini generation enabled")
	}

	var publisher moviemaker.Publisher
	if cfg.PublishingEnabled() {
		p, err := storage.NewMinIOPublisher(storage.MinIOOptions{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			Logger:    logger,
		})
		if err != nil {
			return fail(err)
		}
		publisher = p
	}

	svc, err := moviemaker.New(moviemaker.Options{
		Store: store,
		Planner: planner.New(planner.Options{
			Generator: textGen,
			Catalog:   cat,
			Timeout:   cfg.ScriptTimeout(),
			Logger:    logger,
		}),
		Video:             videoGen,
		Media:             deps.Media,
		Catalog:           cat,
		Launcher:          launcher,
		Publisher:         publisher,
		Scratch:           scratch,
		Outputs:           outputs,
		CostPerScene:      cfg.CostPerScene,
		FailurePolicy:     cfg.SceneFailurePolicy,
		GenerationTimeout: cfg.GenerationTimeout,
		Logger:            logger,
	})
	if err != nil {
		return fail(err)
	}
	deps.Service = svc
	return deps, nil
}

func (d *Deps) openStore(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (domain.ProjectStore, error) {
	if cfg.DatabaseURL == "" {
		logger.Info().Msg("DATABASE_URL not set, projects are kept in memory")
		return memstore.New(), nil
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, pool.Close)

	projects := repo.NewProjectRepository(infra.NewSQLRunner(pool, *logger))
	if err := projects.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return projects, nil
}

func absDir(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return abs, nil
}
