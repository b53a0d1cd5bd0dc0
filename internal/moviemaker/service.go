// Package moviemaker drives movie projects through script planning and
// production. It owns the project state machine; storage, generation, media
// processing and task scheduling are injected.
package moviemaker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"moviemaker/internal/catalog"
	"moviemaker/internal/domain"
	"moviemaker/internal/domain/jsoncfg"
	"moviemaker/internal/infra"
	"moviemaker/internal/planner"
	"moviemaker/internal/providers/video"
	"moviemaker/internal/storage"
)

// ScriptPlanner produces scripts for projects.
type ScriptPlanner interface {
	Plan(ctx context.Context, project *domain.Project) (*planner.Script, error)
}

// Media is the subset of the media processor used during production.
type Media interface {
	ExtractFinalFrame(ctx context.Context, clip, out string) error
	ApplyStyle(ctx context.Context, frame, filter, out string) (bool, error)
	Concatenate(ctx context.Context, clips []string, out string, withTransitions bool) error
	CreateThumbnail(ctx context.Context, video, out string) error
}

// Publisher copies final artifacts to shared storage and returns their URLs.
type Publisher interface {
	Publish(ctx context.Context, projectID, localPath string) (string, error)
	Unpublish(ctx context.Context, projectID string, localPaths ...string) error
}

// Options wires a Service.
type Options struct {
	Store     domain.ProjectStore
	Planner   ScriptPlanner
	Video     video.Generator
	Media     Media
	Catalog   *catalog.Catalog
	Launcher  Launcher
	Publisher Publisher
	// Scratch holds per-project clips and frames; Outputs holds final movies
	// and thumbnails.
	Scratch *storage.FileStore
	Outputs *storage.FileStore

	CostPerScene      float64
	FailurePolicy     string
	GenerationTimeout time.Duration
	Logger            *infra.Logger
	Now               func() time.Time
}

// Service implements the project lifecycle.
type Service struct {
	store     domain.ProjectStore
	planner   ScriptPlanner
	video     video.Generator
	media     Media
	catalog   *catalog.Catalog
	launcher  Launcher
	publisher Publisher
	scratch   *storage.FileStore
	outputs   *storage.FileStore

	costPerScene      float64
	failurePolicy     string
	generationTimeout time.Duration
	logger            zerolog.Logger
	now               func() time.Time
}

const (
	defaultCostPerScene  = 0.25
	scriptGenerationCost = 0.01
)

// New builds a Service. When opts.Launcher is nil an in-process launcher is
// created that runs jobs on goroutines.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("moviemaker: store is required")
	}
	if opts.Planner == nil {
		return nil, errors.New("moviemaker: planner is required")
	}
	if opts.Scratch == nil || opts.Outputs == nil {
		return nil, errors.New("moviemaker: scratch and output stores are required")
	}
	s := &Service{
		store:             opts.Store,
		planner:           opts.Planner,
		video:             opts.Video,
		media:             opts.Media,
		catalog:           opts.Catalog,
		launcher:          opts.Launcher,
		publisher:         opts.Publisher,
		scratch:           opts.Scratch,
		outputs:           opts.Outputs,
		costPerScene:      opts.CostPerScene,
		failurePolicy:     strings.ToLower(strings.TrimSpace(opts.FailurePolicy)),
		generationTimeout: opts.GenerationTimeout,
		logger:            zerolog.Nop(),
		now:               opts.Now,
	}
	if s.catalog == nil {
		s.catalog = catalog.Default()
	}
	if s.costPerScene <= 0 {
		s.costPerScene = defaultCostPerScene
	}
	switch s.failurePolicy {
	case infra.FailurePolicySkip, infra.FailurePolicyAbort:
	case "":
		s.failurePolicy = infra.FailurePolicySkip
	default:
		return nil, fmt.Errorf("moviemaker: unknown scene failure policy %q", opts.FailurePolicy)
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "moviemaker").Logger()
	}
	if s.launcher == nil {
		local := NewLocalLauncher(s.Run, opts.Logger)
		local.OnAbandon(s.Interrupt)
		s.launcher = local
	}
	return s, nil
}

// Catalog exposes the style and preset registry.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// Create validates req and stores a new project. When the request asks for
// it, script generation starts in the background and the returned snapshot
// is already in script_generation.
func (s *Service) Create(ctx context.Context, req jsoncfg.MovieRequest) (*domain.Project, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if _, ok := s.catalog.Style(req.Style); !ok {
		return nil, fmt.Errorf("%w: unknown style %q", domain.ErrInvalidInput, req.Style)
	}
	if _, ok := s.catalog.Preset(req.Preset); !ok {
		return nil, fmt.Errorf("%w: unknown preset %q", domain.ErrInvalidInput, req.Preset)
	}

	now := s.now()
	project := &domain.Project{
		ID:             uuid.NewString(),
		Title:          req.Title,
		Concept:        req.Concept,
		Style:          req.Style,
		Preset:         req.Preset,
		MaxClips:       req.MaxClips,
		Budget:         req.Budget,
		Status:         domain.StatusCreated,
		Scenes:         []domain.Scene{},
		GeneratedClips: []domain.GeneratedClip{},
		CurrentStep:    "Project created",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Put(ctx, project); err != nil {
		return nil, fmt.Errorf("store project: %w", err)
	}
	s.logger.Info().Str("project_id", project.ID).Str("style", project.Style).Str("preset", project.Preset).Msg("project created")

	if req.AutoGenerate() {
		return s.GenerateScriptAsync(ctx, project.ID)
	}
	return project, nil
}

// Get returns a snapshot of the project.
func (s *Service) Get(ctx context.Context, id string) (*domain.Project, error) {
	return s.store.Get(ctx, id)
}

// List returns every project ordered by creation time.
func (s *Service) List(ctx context.Context) ([]*domain.Project, error) {
	return s.store.List(ctx)
}

// Delete cancels any running job for the project, removes it from the store
// and deletes its files. Missing projects report false.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	project, err := s.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.launcher.Cancel(ctx, id)
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}
	s.removeArtifacts(ctx, project)
	s.logger.Info().Str("project_id", id).Msg("project deleted")
	return true, nil
}

// removeArtifacts is best effort: failures are logged, never returned.
func (s *Service) removeArtifacts(ctx context.Context, project *domain.Project) {
	if err := s.scratch.Remove(project.ID); err != nil {
		s.logger.Warn().Err(err).Str("project_id", project.ID).Msg("remove scratch files")
	}
	for _, path := range []string{project.FinalMoviePath, project.ThumbnailPath} {
		if path == "" {
			continue
		}
		if err := s.outputs.RemovePath(path); err != nil {
			s.logger.Warn().Err(err).Str("project_id", project.ID).Str("path", path).Msg("remove output file")
		}
	}
	if s.publisher != nil && (project.FinalMovieURL != "" || project.ThumbnailURL != "") {
		if err := s.publisher.Unpublish(ctx, project.ID, project.FinalMoviePath, project.ThumbnailPath); err != nil {
			s.logger.Warn().Err(err).Str("project_id", project.ID).Msg("unpublish artifacts")
		}
	}
}

// EstimatedCost is min(scenes x cost per scene, budget); projects without
// scenes are priced at max_clips.
func (s *Service) EstimatedCost(project *domain.Project) float64 {
	n := len(project.Scenes)
	if n == 0 {
		n = project.MaxClips
	}
	cost := float64(n) * s.costPerScene
	if project.Budget < cost {
		return project.Budget
	}
	return cost
}

// CostBreakdown itemizes the estimate.
type CostBreakdown struct {
	ProjectID            string  `json:"project_id"`
	Scenes               int     `json:"scenes"`
	CostPerScene         float64 `json:"cost_per_scene"`
	VideoGenerationCost  float64 `json:"video_generation_cost"`
	ScriptGenerationCost float64 `json:"script_generation_cost"`
	EstimatedCost        float64 `json:"estimated_cost"`
	Budget               float64 `json:"budget"`
	WithinBudget         bool    `json:"within_budget"`
}

func (s *Service) CostBreakdown(project *domain.Project) CostBreakdown {
	n := len(project.Scenes)
	if n == 0 {
		n = project.MaxClips
	}
	videoCost := float64(n) * s.costPerScene
	return CostBreakdown{
		ProjectID:            project.ID,
		Scenes:               n,
		CostPerScene:         s.costPerScene,
		VideoGenerationCost:  videoCost,
		ScriptGenerationCost: scriptGenerationCost,
		EstimatedCost:        s.EstimatedCost(project),
		Budget:               project.Budget,
		WithinBudget:         videoCost+scriptGenerationCost <= project.Budget,
	}
}

// Shutdown stops running jobs and waits for them to exit.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.launcher.Shutdown(ctx)
}

// Run executes one background job. Launchers call it; it is exported so an
// out-of-process worker can run the same code.
func (s *Service) Run(ctx context.Context, job Job) error {
	switch job.Kind {
	case JobScript:
		return s.runScript(ctx, job.ProjectID)
	case JobProduction:
		return s.RunProduction(ctx, job.ProjectID)
	}
	return fmt.Errorf("%w: unknown job kind %q", domain.ErrInvalidInput, job.Kind)
}

// Interrupt fails the project of a job that will never run, so the project
// does not stay busy. It only touches a project still in the job's state.
func (s *Service) Interrupt(ctx context.Context, job Job) error {
	cause := fmt.Errorf("%w: %s job interrupted", domain.ErrCanceled, job.Kind)
	switch job.Kind {
	case JobScript:
		s.failScript(ctx, job.ProjectID, cause)
	case JobProduction:
		s.failProduction(ctx, job.ProjectID, cause)
	default:
		return fmt.Errorf("%w: unknown job kind %q", domain.ErrInvalidInput, job.Kind)
	}
	return nil
}

// RecoverInterrupted fails every project a previous process left busy and
// returns how many it touched. Only call it at startup of the process that
// owns all jobs; a running worker may still be holding them otherwise.
func (s *Service) RecoverInterrupted(ctx context.Context) (int, error) {
	projects, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range projects {
		var kind JobKind
		switch p.Status {
		case domain.StatusScriptGeneration:
			kind = JobScript
		case domain.StatusProduction:
			kind = JobProduction
		default:
			continue
		}
		if err := s.Interrupt(ctx, Job{Kind: kind, ProjectID: p.ID}); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		s.logger.Warn().Int("projects", n).Msg("failed projects interrupted by a previous run")
	}
	return n, nil
}

// update stamps UpdatedAt on every write.
func (s *Service) update(ctx context.Context, id string, fn func(*domain.Project) error) (*domain.Project, error) {
	return s.store.Update(ctx, id, func(p *domain.Project) error {
		if err := fn(p); err != nil {
			return err
		}
		p.UpdatedAt = s.now()
		return nil
	})
}
