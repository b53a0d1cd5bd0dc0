package moviemaker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"moviemaker/internal/domain"
	"moviemaker/internal/domain/jsoncfg"
	"moviemaker/internal/planner"
)

// GenerateScript plans a script synchronously. Calling it again replaces the
// previous script and scenes.
func (s *Service) GenerateScript(ctx context.Context, id string) (*domain.Project, error) {
	if _, err := s.beginScript(ctx, id); err != nil {
		return nil, err
	}
	if err := s.runScript(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// GenerateScriptAsync moves the project into script_generation and hands
// planning to the launcher.
func (s *Service) GenerateScriptAsync(ctx context.Context, id string) (*domain.Project, error) {
	project, err := s.beginScript(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.launcher.Launch(ctx, Job{Kind: JobScript, ProjectID: id}); err != nil {
		s.failScript(context.WithoutCancel(ctx), id, fmt.Errorf("launch script job: %w", err))
		return nil, fmt.Errorf("launch script job: %w", err)
	}
	return project, nil
}

// UpdateScript replaces the script with caller-written text and re-parses
// scenes from it.
func (s *Service) UpdateScript(ctx context.Context, id string, update jsoncfg.ScriptUpdate) (*domain.Project, error) {
	if err := update.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	text := strings.TrimSpace(update.ScriptContent)
	var previous *domain.Project
	project, err := s.update(ctx, id, func(p *domain.Project) error {
		if p.IsBusy() {
			return fmt.Errorf("%w: project is %s", domain.ErrInvalidState, p.Status)
		}
		previous = p.Clone()
		script := planner.Parse(text, p)
		script.Source = planner.SourceManual
		applyScript(p, script)
		p.CurrentStep = "Script updated manually"
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.discardProduction(ctx, previous)
	s.logger.Info().Str("project_id", id).Int("scenes", len(project.Scenes)).Msg("script updated")
	return project, nil
}

func (s *Service) beginScript(ctx context.Context, id string) (*domain.Project, error) {
	return s.update(ctx, id, func(p *domain.Project) error {
		if p.IsBusy() {
			return fmt.Errorf("%w: project is %s", domain.ErrInvalidState, p.Status)
		}
		if p.IsTerminal() {
			p.Progress = 0
		}
		p.Status = domain.StatusScriptGeneration
		p.Error = ""
		p.AdvanceProgress(domain.ProgressScriptStarted)
		p.CurrentStep = "Generating script"
		return nil
	})
}

// runScript plans the script for a project already in script_generation.
func (s *Service) runScript(ctx context.Context, id string) error {
	project, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if project.Status != domain.StatusScriptGeneration {
		return fmt.Errorf("%w: project is %s, want %s", domain.ErrInvalidState, project.Status, domain.StatusScriptGeneration)
	}

	script, err := s.planner.Plan(ctx, project)
	if err != nil {
		s.failScript(context.WithoutCancel(ctx), id, err)
		return fmt.Errorf("plan script: %w", err)
	}

	var previous *domain.Project
	_, err = s.update(ctx, id, func(p *domain.Project) error {
		if p.Status != domain.StatusScriptGeneration {
			return fmt.Errorf("%w: project moved to %s while planning", domain.ErrInvalidState, p.Status)
		}
		previous = p.Clone()
		applyScript(p, script)
		if script.Source == planner.SourceFallback {
			p.CurrentStep = "Script ready (template)"
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info().Str("project_id", id).Msg("project deleted during script generation")
		}
		return err
	}
	s.discardProduction(ctx, previous)
	s.logger.Info().
		Str("project_id", id).
		Str("source", script.Source).
		Int("scenes", len(script.Scenes)).
		Msg("script ready")
	return nil
}

func (s *Service) failScript(ctx context.Context, id string, cause error) {
	_, err := s.update(ctx, id, func(p *domain.Project) error {
		if p.Status != domain.StatusScriptGeneration {
			return fmt.Errorf("%w: project is %s", domain.ErrInvalidState, p.Status)
		}
		p.Status = domain.StatusScriptFailed
		p.Error = cause.Error()
		p.CurrentStep = "Script generation failed"
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error().Err(err).Str("project_id", id).Msg("record script failure")
		}
		return
	}
	s.logger.Warn().Err(cause).Str("project_id", id).Msg("script generation failed")
}

// applyScript replaces script and scenes and clears production results
// that belonged to the previous scenes.
func applyScript(p *domain.Project, script *planner.Script) {
	text := script.Text
	p.Script = &text
	p.ScriptSource = script.Source
	p.Synopsis = script.Synopsis
	p.Scenes = append([]domain.Scene(nil), script.Scenes...)
	p.GeneratedClips = []domain.GeneratedClip{}
	p.FinalMoviePath = ""
	p.ThumbnailPath = ""
	p.FinalMovieURL = ""
	p.ThumbnailURL = ""
	p.Error = ""
	p.Status = domain.StatusScriptReady
	p.Progress = 0
	p.AdvanceProgress(domain.ProgressScriptReady)
	p.CurrentStep = "Script ready"
}
