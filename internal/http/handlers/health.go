package handlers

import (
	"net/http"

	"moviemaker/internal/infra"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MovieHealth reports pipeline readiness: ffmpeg availability, active jobs
// and which optional integrations are configured.
func (a *App) MovieHealth(w http.ResponseWriter, r *http.Request) {
	projects, err := a.Movies.List(r.Context())
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	active := 0
	for _, p := range projects {
		if p.IsBusy() {
			active++
		}
	}
	ffmpeg := a.Media != nil && a.Media.Available(r.Context())
	status := "healthy"
	if !ffmpeg {
		status = "degraded"
	}

	styles := a.Movies.Catalog().Styles()
	styleIDs := make([]string, 0, len(styles))
	for _, s := range styles {
		styleIDs = append(styleIDs, s.ID)
	}
	presets := a.Movies.Catalog().Presets()
	presetIDs := make([]string, 0, len(presets))
	for _, p := range presets {
		presetIDs = append(presetIDs, p.ID)
	}

	a.json(w, http.StatusOK, map[string]any{
		"status":           status,
		"service":          "movie-maker",
		"ffmpeg_available": ffmpeg,
		"total_projects":   len(projects),
		"active_projects":  active,
		"styles":           styleIDs,
		"presets":          presetIDs,
		"features": map[string]bool{
			"ai_generation":   a.Config.GenerationConfigured(),
			"queued_jobs":     a.Config.QueueEnabled(),
			"publishing":      a.Config.PublishingEnabled(),
			"postgres_store":  a.Config.DatabaseURL != "",
			"scene_skip_mode": a.Config.SceneFailurePolicy != infra.FailurePolicyAbort,
		},
	})
}
