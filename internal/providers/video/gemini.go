package video

import (
	"context"

	"moviemaker/internal/providers/genai"
)

// negativePrompt steers Veo away from artifacts that break scene continuity.
const negativePrompt = "text overlays, watermarks, abrupt style changes, distorted faces"

type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Name() string {
	return "gemini:" + g.client.VideoModel()
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (*Asset, error) {
	asset, err := g.client.GenerateVideo(ctx, genai.VideoRequest{
		Prompt:          req.Prompt,
		NegativePrompt:  negativePrompt,
		AspectRatio:     req.AspectRatio,
		DurationSeconds: req.DurationSeconds,
		ReferenceImage:  req.ReferenceImage,
		ReferenceMIME:   req.ReferenceMIME,
	})
	if err != nil {
		return nil, err
	}
	return &Asset{Data: asset.Data, Format: asset.Format}, nil
}

var _ Generator = (*GeminiGenerator)(nil)
