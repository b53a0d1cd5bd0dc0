package jsoncfg

import (
	"fmt"
	"strings"
)

// MovieRequest is the wire contract for creating a movie project.
type MovieRequest struct {
	Title              string  `json:"title"`
	Concept            string  `json:"concept"`
	Style              string  `json:"style"`
	Preset             string  `json:"preset"`
	MaxClips           int     `json:"max_clips"`
	Budget             float64 `json:"budget"`
	AutoGenerateScript *bool   `json:"auto_generate_script,omitempty"`
}

// ScriptUpdate carries a caller-written script that replaces the planned one.
type ScriptUpdate struct {
	ScriptContent string `json:"script_content"`
}

const (
	// DefaultStyle is used when the request omits the style.
	DefaultStyle = "cinematic"
	// DefaultPreset is used when the request omits the preset.
	DefaultPreset = "short-film"
	// DefaultMaxClips caps scene count when the request leaves it unset.
	DefaultMaxClips = 10
	// MaxClipsLimit is the hard ceiling on scenes per project.
	MaxClipsLimit = 50
	// DefaultBudget is the spending cap in USD applied when none is provided.
	DefaultBudget = 5.0
	// MaxBudget is the largest accepted budget in USD.
	MaxBudget = 100.0
	// MaxTitleLength bounds project titles.
	MaxTitleLength = 100
	// MaxConceptLength bounds project concepts.
	MaxConceptLength = 1000
	// MinScriptLength is the shortest script accepted on manual update.
	MinScriptLength = 50
)

// Normalize fills defaults for omitted optional fields.
func (r *MovieRequest) Normalize() {
	if r == nil {
		return
	}
	r.Title = strings.TrimSpace(r.Title)
	r.Concept = strings.TrimSpace(r.Concept)
	r.Style = strings.ToLower(strings.TrimSpace(r.Style))
	r.Preset = strings.ToLower(strings.TrimSpace(r.Preset))
	if r.Style == "" {
		r.Style = DefaultStyle
	}
	if r.Preset == "" {
		r.Preset = DefaultPreset
	}
	if r.MaxClips == 0 {
		r.MaxClips = DefaultMaxClips
	}
	if r.Budget == 0 {
		r.Budget = DefaultBudget
	}
	if r.AutoGenerateScript == nil {
		enabled := true
		r.AutoGenerateScript = &enabled
	}
}

// AutoGenerate reports whether script planning should start right after creation.
func (r MovieRequest) AutoGenerate() bool {
	return r.AutoGenerateScript == nil || *r.AutoGenerateScript
}

// Validate checks field presence and numeric bounds. Style and preset
// membership is checked against the catalog by the caller.
func (r MovieRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len([]rune(r.Title)) > MaxTitleLength {
		return fmt.Errorf("title must be at most %d characters", MaxTitleLength)
	}
	if strings.TrimSpace(r.Concept) == "" {
		return fmt.Errorf("concept is required")
	}
	if len([]rune(r.Concept)) > MaxConceptLength {
		return fmt.Errorf("concept must be at most %d characters", MaxConceptLength)
	}
	if strings.TrimSpace(r.Style) == "" {
		return fmt.Errorf("style is required")
	}
	if strings.TrimSpace(r.Preset) == "" {
		return fmt.Errorf("preset is required")
	}
	if r.MaxClips < 1 || r.MaxClips > MaxClipsLimit {
		return fmt.Errorf("max_clips must be between 1 and %d", MaxClipsLimit)
	}
	if r.Budget <= 0 || r.Budget > MaxBudget {
		return fmt.Errorf("budget must be greater than 0 and at most %.0f", MaxBudget)
	}
	return nil
}

// Validate checks that the script is long enough to be worth parsing.
func (u ScriptUpdate) Validate() error {
	if len(strings.TrimSpace(u.ScriptContent)) < MinScriptLength {
		return fmt.Errorf("script_content must be at least %d characters", MinScriptLength)
	}
	return nil
}
