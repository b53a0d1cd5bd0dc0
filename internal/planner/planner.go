// Package planner turns a movie concept into a script and an ordered list of
// 8-second scenes through a single text-generation call.
package planner

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"moviemaker/internal/catalog"
	"moviemaker/internal/domain"
	"moviemaker/internal/infra"
	"moviemaker/internal/providers/genai"
)

// TextGenerator is the text-completion capability the planner consumes.
type TextGenerator interface {
	GenerateText(ctx context.Context, req genai.TextRequest) (string, error)
}

// Script sources recorded on the project.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
	SourceManual   = "manual"
)

// Fallback reasons.
const (
	reasonNotConfigured = "not_configured"
	reasonTimeout       = "timeout"
	reasonProvider      = "provider_error"
)

const (
	scriptTemperature = 0.8
	scriptMaxTokens   = 2000
)

// Script is a parsed movie script.
type Script struct {
	Text            string
	Title           string
	Synopsis        string
	StyleNotes      string
	ProductionNotes string
	Scenes          []domain.Scene
	Source          string
	// FallbackReason explains why the deterministic template was used.
	FallbackReason string
}

type Options struct {
	Generator TextGenerator
	Catalog   *catalog.Catalog
	// Timeout bounds the generation call; expiry falls back to the template.
	Timeout    time.Duration
	Logger     *infra.Logger
	OnFallback func(reason string, err error)
}

type Planner struct {
	generator  TextGenerator
	catalog    *catalog.Catalog
	timeout    time.Duration
	logger     zerolog.Logger
	onFallback func(reason string, err error)
}

func New(opts Options) *Planner {
	p := &Planner{
		generator:  opts.Generator,
		catalog:    opts.Catalog,
		timeout:    opts.Timeout,
		logger:     zerolog.Nop(),
		onFallback: opts.OnFallback,
	}
	if p.catalog == nil {
		p.catalog = catalog.Default()
	}
	if opts.Logger != nil {
		p.logger = opts.Logger.With().Str("component", "planner").Logger()
	}
	return p
}

// Plan produces a script for project. Generation failures fall back to a
// deterministic template so the result always has at least one scene; only
// cancellation of ctx itself is returned as an error.
func (p *Planner) Plan(ctx context.Context, project *domain.Project) (*Script, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.generator == nil {
		return p.fallback(project, reasonNotConfigured, nil), nil
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	text, err := p.generator.GenerateText(callCtx, genai.TextRequest{
		Prompt:      BuildPrompt(p.catalog, project),
		Temperature: scriptTemperature,
		MaxTokens:   scriptMaxTokens,
		JSON:        true,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		reason := reasonProvider
		if errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			reason = reasonTimeout
		}
		return p.fallback(project, reason, err), nil
	}

	script := Parse(text, project)
	script.Source = SourceModel
	p.logger.Info().
		Str("project_id", project.ID).
		Int("scenes", len(script.Scenes)).
		Msg("planner: script generated")
	return script, nil
}

func (p *Planner) fallback(project *domain.Project, reason string, err error) *Script {
	p.logger.Warn().
		Err(err).
		Str("project_id", project.ID).
		Str("reason", reason).
		Msg("planner: using fallback script")
	if p.onFallback != nil {
		p.onFallback(reason, err)
	}
	script := Parse(fallbackScript(p.catalog, project), project)
	script.Source = SourceFallback
	script.FallbackReason = reason
	return script
}
