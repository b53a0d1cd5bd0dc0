package video

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"moviemaker/internal/domain"
	"moviemaker/internal/media"
)

// PlaceholderRenderer renders local stand-in clips.
type PlaceholderRenderer interface {
	RenderPlaceholder(ctx context.Context, out string, ph media.Placeholder) error
}

// SyntheticGenerator renders deterministic test-pattern clips with ffmpeg so
// the whole pipeline runs without generation credentials. When a reference
// frame is supplied the clip shows it, which keeps continuity observable.
type SyntheticGenerator struct {
	renderer   PlaceholderRenderer
	scratchDir string
}

func NewSyntheticGenerator(renderer PlaceholderRenderer, scratchDir string) *SyntheticGenerator {
	if strings.TrimSpace(scratchDir) == "" {
		scratchDir = os.TempDir()
	}
	return &SyntheticGenerator{renderer: renderer, scratchDir: scratchDir}
}

func (g *SyntheticGenerator) Name() string {
	return "synthetic"
}

func (g *SyntheticGenerator) Generate(ctx context.Context, req Request) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(g.scratchDir, "synthetic-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("synthetic: scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	width, height := dimensions(req.AspectRatio)
	ph := media.Placeholder{
		Seconds: req.DurationSeconds,
		Width:   width,
		Height:  height,
		Hue:     hueFor(req.ProjectID, req.SceneID, req.Prompt),
	}
	if ph.Seconds <= 0 {
		ph.Seconds = domain.SceneDuration
	}
	if len(req.ReferenceImage) > 0 {
		ref := filepath.Join(dir, "reference"+extensionFor(req.ReferenceMIME))
		if err := os.WriteFile(ref, req.ReferenceImage, 0o644); err != nil {
			return nil, fmt.Errorf("synthetic: write reference: %w", err)
		}
		ph.Reference = ref
	}

	out := filepath.Join(dir, "clip.mp4")
	if err := g.renderer.RenderPlaceholder(ctx, out, ph); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("synthetic: read clip: %w", err)
	}
	return &Asset{Data: data, Format: "video/mp4"}, nil
}

func hueFor(projectID string, sceneID int, prompt string) int {
	sum := sha256.Sum256([]byte(projectID + "|" + strconv.Itoa(sceneID) + "|" + prompt))
	return int(binary.BigEndian.Uint16(sum[:2]) % 360)
}

func dimensions(aspect string) (int, int) {
	switch strings.TrimSpace(aspect) {
	case "9:16":
		return 720, 1280
	case "1:1":
		return 720, 720
	default:
		return 1280, 720
	}
}

func extensionFor(mime string) string {
	switch strings.ToLower(mime) {
	case "image/png":
		return ".png"
	default:
		return ".jpg"
	}
}

var _ Generator = (*SyntheticGenerator)(nil)
