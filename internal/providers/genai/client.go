package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	genaisdk "google.golang.org/genai"

	"moviemaker/internal/domain"
	"moviemaker/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey string
	// UseVertexAI switches the backend to Vertex AI with Project/Location
	// and application default credentials.
	UseVertexAI  bool
	Project      string
	Location     string
	TextModel    string
	VideoModel   string
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// Client is a thin facade over the Gemini SDK exposing the two capabilities
// the movie pipeline consumes: text completion and single-clip video
// generation. Failures are returned to the caller; the client never
// substitutes content on its own.
type Client struct {
	sdk          *genaisdk.Client
	videos       videoBackend
	textModel    string
	videoModel   string
	pollInterval time.Duration
	logger       zerolog.Logger
}

// TextRequest describes one text completion.
type TextRequest struct {
	Prompt      string
	Temperature float32
	MaxTokens   int32
	// JSON asks the model for an application/json response body.
	JSON bool
}

// VideoRequest describes one clip.
type VideoRequest struct {
	Prompt          string
	NegativePrompt  string
	AspectRatio     string
	DurationSeconds int
	// ReferenceImage, when present, seeds the first frame of the clip.
	ReferenceImage []byte
	ReferenceMIME  string
}

// VideoAsset is the normalized representation of a generated clip.
type VideoAsset struct {
	Data   []byte
	Format string
	URI    string
}

const (
	defaultTextModel    = "gemini-2.5-flash"
	defaultVideoModel   = "veo-3.1-generate-preview"
	defaultPollInterval = 10 * time.Second
	defaultAspectRatio  = "16:9"
)

// ErrNotConfigured is returned when no credentials are available.
var ErrNotConfigured = errors.New("genai: no credentials configured")

// NewClient constructs a Gemini client. It fails with ErrNotConfigured when
// neither an API key nor Vertex AI is configured.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	cfg := &genaisdk.ClientConfig{HTTPClient: opts.HTTPClient}
	switch {
	case opts.UseVertexAI:
		cfg.Backend = genaisdk.BackendVertexAI
		cfg.Project = strings.TrimSpace(opts.Project)
		cfg.Location = strings.TrimSpace(opts.Location)
	case strings.TrimSpace(opts.APIKey) != "":
		cfg.Backend = genaisdk.BackendGeminiAPI
		cfg.APIKey = strings.TrimSpace(opts.APIKey)
	default:
		return nil, ErrNotConfigured
	}

	sdk, err := genaisdk.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}

	c := &Client{
		sdk:          sdk,
		videos:       sdkVideoBackend{client: sdk},
		textModel:    strings.TrimSpace(opts.TextModel),
		videoModel:   strings.TrimSpace(opts.VideoModel),
		pollInterval: opts.PollInterval,
		logger:       zerolog.Nop(),
	}
	if c.textModel == "" {
		c.textModel = defaultTextModel
	}
	if c.videoModel == "" {
		c.videoModel = defaultVideoModel
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if opts.Logger != nil {
		c.logger = opts.Logger.With().Str("component", "genai").Logger()
	}
	return c, nil
}

// TextModel returns the configured text model identifier.
func (c *Client) TextModel() string {
	return c.textModel
}

// VideoModel returns the configured video model identifier.
func (c *Client) VideoModel() string {
	return c.videoModel
}

// GenerateText runs a single completion and returns the concatenated text.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cfg := &genaisdk.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genaisdk.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := c.sdk.Models.GenerateContent(ctx, c.textModel, genaisdk.Text(req.Prompt), cfg)
	if err != nil {
		return "", wrapProviderError(ctx, "generate text", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty text response from %s", domain.ErrProviderFailure, c.textModel)
	}
	c.logger.Debug().
		Str("model", c.textModel).
		Int("chars", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("genai: text generated")
	return text, nil
}

// GenerateVideo starts a video operation, polls it until done and returns
// the clip bytes.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (*VideoAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	aspect := strings.TrimSpace(req.AspectRatio)
	if aspect == "" {
		aspect = defaultAspectRatio
	}
	duration := req.DurationSeconds
	if duration <= 0 {
		duration = domain.SceneDuration
	}
	cfg := &genaisdk.GenerateVideosConfig{
		AspectRatio:     aspect,
		DurationSeconds: genaisdk.Ptr(int32(duration)),
		NumberOfVideos:  1,
		NegativePrompt:  req.NegativePrompt,
	}
	var image *genaisdk.Image
	if len(req.ReferenceImage) > 0 {
		mime := req.ReferenceMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		image = &genaisdk.Image{ImageBytes: req.ReferenceImage, MIMEType: mime}
	}

	start := time.Now()
	op, err := c.videos.start(ctx, c.videoModel, req.Prompt, image, cfg)
	if err != nil {
		return nil, wrapProviderError(ctx, "start video generation", err)
	}
	c.logger.Debug().Str("model", c.videoModel).Str("operation", op.Name).Bool("reference", image != nil).Msg("genai: video operation started")

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	polls := 0
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, wrapProviderError(ctx, "wait for video", ctx.Err())
		case <-ticker.C:
		}
		polls++
		op, err = c.videos.poll(ctx, op)
		if err != nil {
			return nil, wrapProviderError(ctx, fmt.Sprintf("poll video operation (attempt %d)", polls), err)
		}
	}

	video, err := generatedVideo(op)
	if err != nil {
		return nil, err
	}
	asset := &VideoAsset{Data: video.VideoBytes, Format: video.MIMEType, URI: video.URI}
	if len(asset.Data) == 0 {
		data, err := c.videos.download(ctx, video)
		if err != nil {
			return nil, wrapProviderError(ctx, "download video", err)
		}
		asset.Data = data
	}
	if len(asset.Data) == 0 {
		return nil, fmt.Errorf("%w: downloaded video is empty", domain.ErrProviderFailure)
	}
	if asset.Format == "" {
		asset.Format = "video/mp4"
	}
	c.logger.Info().
		Str("model", c.videoModel).
		Int("bytes", len(asset.Data)).
		Int("polls", polls).
		Dur("elapsed", time.Since(start)).
		Msg("genai: video generated")
	return asset, nil
}

func generatedVideo(op *genaisdk.GenerateVideosOperation) (*genaisdk.Video, error) {
	if len(op.Error) > 0 {
		detail, _ := json.Marshal(op.Error)
		return nil, fmt.Errorf("%w: video operation failed: %s", domain.ErrProviderFailure, detail)
	}
	if op.Response == nil {
		return nil, fmt.Errorf("%w: video operation %s completed without a response", domain.ErrProviderFailure, op.Name)
	}
	if op.Response.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(op.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(op.Response.RAIMediaFilteredReasons, ", ")
		}
		return nil, fmt.Errorf("%w: video blocked by safety filters: %s", domain.ErrProviderFailure, reasons)
	}
	if len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return nil, fmt.Errorf("%w: no video in response", domain.ErrProviderFailure)
	}
	return op.Response.GeneratedVideos[0].Video, nil
}

// wrapProviderError keeps context errors recognizable: a deadline becomes
// domain.ErrTimeout, cancellation is returned unchanged.
func wrapProviderError(ctx context.Context, action string, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: genai %s: %v", domain.ErrTimeout, action, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	return fmt.Errorf("%w: genai %s: %v", domain.ErrProviderFailure, action, err)
}

// videoBackend isolates the long-running operation calls so polling logic
// can be exercised without the remote service.
type videoBackend interface {
	start(ctx context.Context, model, prompt string, image *genaisdk.Image, cfg *genaisdk.GenerateVideosConfig) (*genaisdk.GenerateVideosOperation, error)
	poll(ctx context.Context, op *genaisdk.GenerateVideosOperation) (*genaisdk.GenerateVideosOperation, error)
	download(ctx context.Context, video *genaisdk.Video) ([]byte, error)
}

type sdkVideoBackend struct {
	client *genaisdk.Client
}

func (b sdkVideoBackend) start(ctx context.Context, model, prompt string, image *genaisdk.Image, cfg *genaisdk.GenerateVideosConfig) (*genaisdk.GenerateVideosOperation, error) {
	return b.client.Models.GenerateVideos(ctx, model, prompt, image, cfg)
}

func (b sdkVideoBackend) poll(ctx context.Context, op *genaisdk.GenerateVideosOperation) (*genaisdk.GenerateVideosOperation, error) {
	return b.client.Operations.GetVideosOperation(ctx, op, nil)
}

func (b sdkVideoBackend) download(ctx context.Context, video *genaisdk.Video) ([]byte, error) {
	return b.client.Files.Download(ctx, genaisdk.NewDownloadURIFromVideo(video), nil)
}
