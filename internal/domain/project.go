package domain

import "time"

// Status enumerates the project lifecycle states.
type Status string

const (
	StatusCreated          Status = "created"
	StatusScriptGeneration Status = "script_generation"
	StatusScriptReady      Status = "script_ready"
	StatusScriptFailed     Status = "script_failed"
	StatusProduction       Status = "production"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

// SceneStatus enumerates per-scene rendering states.
type SceneStatus string

const (
	ScenePending    SceneStatus = "pending"
	SceneGenerating SceneStatus = "generating"
	SceneCompleted  SceneStatus = "completed"
	SceneFailed     SceneStatus = "failed"
)

// ClipOutcome tags a per-scene production result.
type ClipOutcome string

const (
	ClipOK     ClipOutcome = "ok"
	ClipFailed ClipOutcome = "failed"
)

// SceneDuration is the fixed length of every rendered scene, in seconds.
const SceneDuration = 8

// Progress checkpoints reported while a project advances.
const (
	ProgressScriptStarted    = 10
	ProgressScriptReady      = 30
	ProgressProductionStart  = 40
	ProgressProductionWindow = 50
	ProgressDone             = 100
)

// Scene is one planned 8-second unit of the movie.
type Scene struct {
	ID              int         `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	VisualPrompt    string      `json:"visual_prompt"`
	ContinuityNotes string      `json:"continuity_notes"`
	Duration        int         `json:"duration"`
	Status          SceneStatus `json:"status"`
}

// GeneratedClip records the result of rendering one scene. Failed scenes are
// kept with Outcome=failed and the reason in Error so assembly and reporting
// can tell a skipped scene from a rendered one.
type GeneratedClip struct {
	SceneID         int         `json:"scene_id"`
	Outcome         ClipOutcome `json:"outcome"`
	ClipPath        string      `json:"clip_path,omitempty"`
	ContinuityFrame *string     `json:"continuity_frame"`
	StyleApplied    bool        `json:"style_applied"`
	Error           string      `json:"error,omitempty"`
}

// OK reports whether the clip rendered successfully.
func (c GeneratedClip) OK() bool {
	return c.Outcome == ClipOK
}

// Project is the aggregate driven through script planning and production.
type Project struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Concept  string  `json:"concept"`
	Style    string  `json:"style"`
	Preset   string  `json:"preset"`
	MaxClips int     `json:"max_clips"`
	Budget   float64 `json:"budget"`

	Status         Status          `json:"status"`
	Script         *string         `json:"script"`
	ScriptSource   string          `json:"script_source,omitempty"`
	Synopsis       string          `json:"synopsis,omitempty"`
	Scenes         []Scene         `json:"scenes"`
	GeneratedClips []GeneratedClip `json:"generated_clips"`
	FinalMoviePath string          `json:"final_movie_path,omitempty"`
	ThumbnailPath  string          `json:"thumbnail_path,omitempty"`
	FinalMovieURL  string          `json:"final_movie_url,omitempty"`
	ThumbnailURL   string          `json:"thumbnail_url,omitempty"`
	Progress       int             `json:"progress"`
	CurrentStep    string          `json:"current_step,omitempty"`
	Error          string          `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never share slices with a store.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Script != nil {
		s := *p.Script
		cp.Script = &s
	}
	if p.Scenes != nil {
		cp.Scenes = append([]Scene(nil), p.Scenes...)
	}
	if p.GeneratedClips != nil {
		cp.GeneratedClips = make([]GeneratedClip, len(p.GeneratedClips))
		for i, c := range p.GeneratedClips {
			if c.ContinuityFrame != nil {
				f := *c.ContinuityFrame
				c.ContinuityFrame = &f
			}
			cp.GeneratedClips[i] = c
		}
	}
	return &cp
}

// IsTerminal reports whether the current attempt has finished.
func (p *Project) IsTerminal() bool {
	switch p.Status {
	case StatusCompleted, StatusFailed, StatusScriptFailed:
		return true
	}
	return false
}

// IsBusy reports whether background work currently owns the project.
func (p *Project) IsBusy() bool {
	return p.Status == StatusScriptGeneration || p.Status == StatusProduction
}

// AdvanceProgress raises progress to value; it never lowers it.
func (p *Project) AdvanceProgress(value int) {
	if value > ProgressDone {
		value = ProgressDone
	}
	if value > p.Progress {
		p.Progress = value
	}
}

// SuccessfulClips returns the clips that rendered, in scene order.
func (p *Project) SuccessfulClips() []GeneratedClip {
	out := make([]GeneratedClip, 0, len(p.GeneratedClips))
	for _, c := range p.GeneratedClips {
		if c.OK() {
			out = append(out, c)
		}
	}
	return out
}

// ScenesCompleted counts scenes in the completed state.
func (p *Project) ScenesCompleted() int {
	return p.countScenes(SceneCompleted)
}

// ScenesFailed counts scenes in the failed state.
func (p *Project) ScenesFailed() int {
	return p.countScenes(SceneFailed)
}

func (p *Project) countScenes(status SceneStatus) int {
	n := 0
	for _, s := range p.Scenes {
		if s.Status == status {
			n++
		}
	}
	return n
}

// SceneIndex returns the position of the scene with id, or -1.
func (p *Project) SceneIndex(id int) int {
	for i, s := range p.Scenes {
		if s.ID == id {
			return i
		}
	}
	return -1
}
