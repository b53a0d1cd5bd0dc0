package video

import "context"

// Request describes one scene clip to render.
type Request struct {
	ProjectID       string
	SceneID         int
	Prompt          string
	Style           string
	DurationSeconds int
	AspectRatio     string
	// ReferenceImage is the stylized final frame of the previous clip.
	ReferenceImage []byte
	ReferenceMIME  string
}

// Asset is a rendered clip.
type Asset struct {
	Data   []byte
	Format string
}

// Generator renders a single clip. Implementations must honour ctx
// cancellation and deadlines.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Asset, error)
	Name() string
}
