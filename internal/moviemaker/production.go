package moviemaker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"moviemaker/internal/domain"
	"moviemaker/internal/infra"
	"moviemaker/internal/providers/video"
)

const (
	clipAspectRatio  = "16:9"
	referenceMIME    = "image/jpeg"
	stepAssembling   = "Assembling final movie"
	stepCompleted    = "Movie completed"
	stepProducing    = "Starting production"
	stepFailed       = "Production failed"
	maxFilenameTitle = 60
)

// StartProduction validates the project, moves it into production and hands
// the scene loop to the launcher. It returns as soon as the job is queued.
func (s *Service) StartProduction(ctx context.Context, id string) (*domain.Project, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(current.Scenes) == 0 {
		return nil, fmt.Errorf("%w: project has no scenes; generate a script first", domain.ErrInvalidState)
	}
	if current.IsBusy() {
		return nil, fmt.Errorf("%w: project is %s", domain.ErrInvalidState, current.Status)
	}

	var previous *domain.Project
	project, err := s.update(ctx, id, func(p *domain.Project) error {
		if len(p.Scenes) == 0 {
			return fmt.Errorf("%w: project has no scenes; generate a script first", domain.ErrInvalidState)
		}
		if p.IsBusy() {
			return fmt.Errorf("%w: project is %s", domain.ErrInvalidState, p.Status)
		}
		previous = p.Clone()
		resetProduction(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.discardProduction(ctx, previous)

	if err := s.launcher.Launch(ctx, Job{Kind: JobProduction, ProjectID: id}); err != nil {
		s.failProduction(context.WithoutCancel(ctx), id, fmt.Errorf("launch production job: %w", err))
		return nil, fmt.Errorf("launch production job: %w", err)
	}
	s.logger.Info().Str("project_id", id).Int("scenes", len(project.Scenes)).Msg("production started")
	return project, nil
}

// resetProduction clears results of any earlier attempt.
func resetProduction(p *domain.Project) {
	if p.IsTerminal() {
		p.Progress = 0
	}
	p.Status = domain.StatusProduction
	p.Error = ""
	p.GeneratedClips = []domain.GeneratedClip{}
	p.FinalMoviePath = ""
	p.ThumbnailPath = ""
	p.FinalMovieURL = ""
	p.ThumbnailURL = ""
	for i := range p.Scenes {
		p.Scenes[i].Status = domain.ScenePending
	}
	p.AdvanceProgress(domain.ProgressProductionStart)
	p.CurrentStep = stepProducing
}

// RunProduction renders every scene in order and assembles the movie. It
// expects the project to be in production already. Returning ErrNotFound
// means the project was deleted while the job ran.
func (s *Service) RunProduction(ctx context.Context, id string) error {
	project, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if project.Status != domain.StatusProduction {
		return fmt.Errorf("%w: project is %s, want %s", domain.ErrInvalidState, project.Status, domain.StatusProduction)
	}
	log := s.logger.With().Str("project_id", id).Logger()

	err = s.produce(ctx, project)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound):
		log.Info().Msg("project deleted during production; discarding work")
		s.cleanupOrphan(id)
		return err
	case ctx.Err() != nil:
		log.Warn().Err(err).Msg("production canceled")
		s.failProduction(context.WithoutCancel(ctx), id, fmt.Errorf("%w: production interrupted", domain.ErrCanceled))
		return err
	default:
		log.Error().Err(err).Msg("production failed")
		s.failProduction(context.WithoutCancel(ctx), id, err)
		return err
	}
}

func (s *Service) produce(ctx context.Context, project *domain.Project) error {
	n := len(project.Scenes)
	var reference string
	for i, scene := range project.Scenes {
		if err := ctx.Err(); err != nil {
			return err
		}
		clip, err := s.produceScene(ctx, project, i, reference)
		if err != nil {
			return err
		}
		if clip.OK() && clip.ContinuityFrame != nil {
			reference = *clip.ContinuityFrame
		}

		_, err = s.update(ctx, project.ID, func(p *domain.Project) error {
			if p.Status != domain.StatusProduction {
				return fmt.Errorf("%w: project left production", domain.ErrInvalidState)
			}
			idx := p.SceneIndex(scene.ID)
			if idx < 0 {
				return fmt.Errorf("%w: scene %d disappeared", domain.ErrInvalidState, scene.ID)
			}
			p.GeneratedClips = append(p.GeneratedClips, clip)
			if clip.OK() {
				p.Scenes[idx].Status = domain.SceneCompleted
			} else {
				p.Scenes[idx].Status = domain.SceneFailed
			}
			p.AdvanceProgress(domain.ProgressProductionStart + domain.ProgressProductionWindow*(i+1)/n)
			p.CurrentStep = fmt.Sprintf("Rendered scene %d of %d", i+1, n)
			return nil
		})
		if err != nil {
			return err
		}

		if !clip.OK() && s.failurePolicy == infra.FailurePolicyAbort {
			return fmt.Errorf("scene %d failed: %s", scene.ID, clip.Error)
		}
	}
	return s.assemble(ctx, project.ID)
}

// produceScene renders one scene. Generation failures are returned as a
// failed clip; only cancellation and store errors abort the loop.
func (s *Service) produceScene(ctx context.Context, project *domain.Project, i int, reference string) (domain.GeneratedClip, error) {
	scene := project.Scenes[i]
	log := s.logger.With().Str("project_id", project.ID).Int("scene_id", scene.ID).Logger()

	_, err := s.update(ctx, project.ID, func(p *domain.Project) error {
		idx := p.SceneIndex(scene.ID)
		if p.Status != domain.StatusProduction || idx < 0 {
			return fmt.Errorf("%w: project left production", domain.ErrInvalidState)
		}
		p.Scenes[idx].Status = domain.SceneGenerating
		p.CurrentStep = fmt.Sprintf("Generating scene %d of %d", i+1, len(p.Scenes))
		return nil
	})
	if err != nil {
		return domain.GeneratedClip{}, err
	}

	clip := domain.GeneratedClip{SceneID: scene.ID, Outcome: domain.ClipFailed}
	clipPath, err := s.renderClip(ctx, project, scene, reference)
	if err != nil {
		if ctx.Err() != nil {
			return clip, ctx.Err()
		}
		log.Warn().Err(err).Msg("scene generation failed")
		clip.Error = err.Error()
		return clip, nil
	}
	clip.Outcome = domain.ClipOK
	clip.ClipPath = clipPath

	if i < len(project.Scenes)-1 {
		frame, styled, err := s.continuityFrame(ctx, project, scene.ID, clipPath)
		if err != nil {
			if ctx.Err() != nil {
				return clip, ctx.Err()
			}
			log.Warn().Err(err).Msg("continuity frame unavailable")
		} else {
			clip.ContinuityFrame = &frame
			clip.StyleApplied = styled
		}
	}
	log.Info().Bool("reference", reference != "").Msg("scene rendered")
	return clip, nil
}

func (s *Service) renderClip(ctx context.Context, project *domain.Project, scene domain.Scene, reference string) (string, error) {
	if s.video == nil {
		return "", fmt.Errorf("%w: no video generator configured", domain.ErrProviderFailure)
	}
	req := video.Request{
		ProjectID:       project.ID,
		SceneID:         scene.ID,
		Prompt:          fmt.Sprintf("%s style: %s", project.Style, scene.VisualPrompt),
		Style:           project.Style,
		DurationSeconds: domain.SceneDuration,
		AspectRatio:     clipAspectRatio,
	}
	if reference != "" {
		data, err := os.ReadFile(reference)
		if err != nil {
			s.logger.Warn().Err(err).Str("project_id", project.ID).Int("scene_id", scene.ID).Msg("continuity reference unreadable")
		} else {
			req.ReferenceImage = data
			req.ReferenceMIME = referenceMIME
		}
	}

	callCtx := ctx
	if s.generationTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.generationTimeout)
		defer cancel()
	}
	asset, err := s.video.Generate(callCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			err = fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
		return "", fmt.Errorf("generate clip with %s: %w", s.video.Name(), err)
	}
	if asset == nil || len(asset.Data) == 0 {
		return "", fmt.Errorf("%w: %s returned an empty clip", domain.ErrProviderFailure, s.video.Name())
	}
	return s.scratch.Write(ctx, path.Join(project.ID, "clips", fmt.Sprintf("scene_%03d.mp4", scene.ID)), asset.Data)
}

// continuityFrame extracts and stylizes the final frame of clipPath.
func (s *Service) continuityFrame(ctx context.Context, project *domain.Project, sceneID int, clipPath string) (string, bool, error) {
	if s.media == nil {
		return "", false, errors.New("no media processor configured")
	}
	raw, err := s.scratch.Path(path.Join(project.ID, "frames", fmt.Sprintf("scene_%03d_last.jpg", sceneID)))
	if err != nil {
		return "", false, err
	}
	styledPath, err := s.scratch.Path(path.Join(project.ID, "frames", fmt.Sprintf("scene_%03d_styled.jpg", sceneID)))
	if err != nil {
		return "", false, err
	}
	if err := s.media.ExtractFinalFrame(ctx, clipPath, raw); err != nil {
		return "", false, err
	}
	styled, err := s.media.ApplyStyle(ctx, raw, s.catalog.FrameFilter(project.Style), styledPath)
	if err != nil {
		return "", false, err
	}
	return styledPath, styled, nil
}

// assemble joins successful clips, writes the thumbnail and completes the
// project. Any failure leaves no final artifact behind.
func (s *Service) assemble(ctx context.Context, id string) error {
	project, err := s.update(ctx, id, func(p *domain.Project) error {
		if p.Status != domain.StatusProduction {
			return fmt.Errorf("%w: project left production", domain.ErrInvalidState)
		}
		p.CurrentStep = stepAssembling
		return nil
	})
	if err != nil {
		return err
	}

	clips := project.SuccessfulClips()
	if len(clips) == 0 {
		return fmt.Errorf("no scenes were rendered successfully (%d failed)", project.ScenesFailed())
	}
	if s.media == nil {
		return errors.New("no media processor configured")
	}
	paths := make([]string, 0, len(clips))
	for _, c := range clips {
		paths = append(paths, c.ClipPath)
	}

	base := outputBaseName(project.Title, project.ID)
	moviePath, err := s.outputs.Path(base + ".mp4")
	if err != nil {
		return err
	}
	thumbPath, err := s.outputs.Path(base + "_thumb.jpg")
	if err != nil {
		return err
	}
	discard := func() {
		for _, p := range []string{moviePath, thumbPath} {
			if rmErr := s.outputs.RemovePath(p); rmErr != nil {
				s.logger.Warn().Err(rmErr).Str("project_id", id).Msg("remove partial output")
			}
		}
	}

	if err := s.media.Concatenate(ctx, paths, moviePath, true); err != nil {
		discard()
		return fmt.Errorf("assemble movie: %w", err)
	}
	if err := s.media.CreateThumbnail(ctx, moviePath, thumbPath); err != nil {
		discard()
		return fmt.Errorf("create thumbnail: %w", err)
	}

	movieURL, thumbURL := s.publish(ctx, id, moviePath, thumbPath)

	_, err = s.update(ctx, id, func(p *domain.Project) error {
		if p.Status != domain.StatusProduction {
			return fmt.Errorf("%w: project left production", domain.ErrInvalidState)
		}
		p.Status = domain.StatusCompleted
		p.FinalMoviePath = moviePath
		p.ThumbnailPath = thumbPath
		p.FinalMovieURL = movieURL
		p.ThumbnailURL = thumbURL
		p.AdvanceProgress(domain.ProgressDone)
		p.CurrentStep = stepCompleted
		return nil
	})
	if err != nil {
		discard()
		return err
	}
	s.logger.Info().
		Str("project_id", id).
		Int("clips", len(paths)).
		Int("failed_scenes", project.ScenesFailed()).
		Str("path", moviePath).
		Msg("movie completed")
	return nil
}

// publish uploads artifacts when a publisher is configured. Upload failures
// are logged; the local files stay authoritative.
func (s *Service) publish(ctx context.Context, id, moviePath, thumbPath string) (string, string) {
	if s.publisher == nil {
		return "", ""
	}
	movieURL, err := s.publisher.Publish(ctx, id, moviePath)
	if err != nil {
		s.logger.Warn().Err(err).Str("project_id", id).Msg("publish movie")
		return "", ""
	}
	thumbURL, err := s.publisher.Publish(ctx, id, thumbPath)
	if err != nil {
		s.logger.Warn().Err(err).Str("project_id", id).Msg("publish thumbnail")
	}
	return movieURL, thumbURL
}

func (s *Service) failProduction(ctx context.Context, id string, cause error) {
	project, err := s.update(ctx, id, func(p *domain.Project) error {
		if p.Status != domain.StatusProduction {
			return fmt.Errorf("%w: project is %s", domain.ErrInvalidState, p.Status)
		}
		p.Status = domain.StatusFailed
		p.Error = cause.Error()
		p.FinalMoviePath = ""
		p.ThumbnailPath = ""
		p.FinalMovieURL = ""
		p.ThumbnailURL = ""
		p.CurrentStep = stepFailed
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error().Err(err).Str("project_id", id).Msg("record production failure")
		}
		return
	}
	s.logger.Warn().Err(cause).Str("project_id", id).Int("clips", len(project.SuccessfulClips())).Msg("production failed")
}

// discardProduction removes files produced by an earlier attempt.
func (s *Service) discardProduction(ctx context.Context, previous *domain.Project) {
	if previous == nil {
		return
	}
	s.removeArtifacts(ctx, previous)
}

// cleanupOrphan removes scratch files of a project that no longer exists.
func (s *Service) cleanupOrphan(id string) {
	if err := s.scratch.Remove(id); err != nil {
		s.logger.Warn().Err(err).Str("project_id", id).Msg("remove orphaned scratch files")
	}
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// outputBaseName builds "<Title>_<id>" with the title reduced to filename-safe
// characters.
func outputBaseName(title, id string) string {
	name := strings.Trim(unsafeFilename.ReplaceAllString(strings.TrimSpace(title), "_"), "_")
	if runes := []rune(name); len(runes) > maxFilenameTitle {
		name = string(runes[:maxFilenameTitle])
	}
	if name == "" {
		name = "movie"
	}
	return name + "_" + id
}
