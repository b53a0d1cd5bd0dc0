package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"moviemaker/internal/domain"
	"moviemaker/internal/domain/jsoncfg"
)

const maxScriptBody = 1 << 20

type statusResponse struct {
	ProjectID       string        `json:"project_id"`
	Title           string        `json:"title"`
	Style           string        `json:"style"`
	Preset          string        `json:"preset"`
	Status          domain.Status `json:"status"`
	Progress        int           `json:"progress"`
	CurrentStep     string        `json:"current_step,omitempty"`
	ScenesTotal     int           `json:"scenes_total"`
	ScenesCompleted int           `json:"scenes_completed"`
	ScenesFailed    int           `json:"scenes_failed"`
	EstimatedCost   float64       `json:"estimated_cost"`
	FinalMoviePath  string        `json:"final_movie_path,omitempty"`
	FinalMovieURL   string        `json:"final_movie_url,omitempty"`
	ThumbnailURL    string        `json:"thumbnail_url,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (a *App) status(p *domain.Project) statusResponse {
	return statusResponse{
		ProjectID:       p.ID,
		Title:           p.Title,
		Style:           p.Style,
		Preset:          p.Preset,
		Status:          p.Status,
		Progress:        p.Progress,
		CurrentStep:     p.CurrentStep,
		ScenesTotal:     len(p.Scenes),
		ScenesCompleted: p.ScenesCompleted(),
		ScenesFailed:    p.ScenesFailed(),
		EstimatedCost:   a.Movies.EstimatedCost(p),
		FinalMoviePath:  p.FinalMoviePath,
		FinalMovieURL:   p.FinalMovieURL,
		ThumbnailURL:    p.ThumbnailURL,
		ErrorMessage:    p.Error,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

type createResponse struct {
	statusResponse
	Message string `json:"message"`
}

func (a *App) CreateMovie(w http.ResponseWriter, r *http.Request) {
	var req jsoncfg.MovieRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	project, err := a.Movies.Create(r.Context(), req)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	message := "Movie project created"
	if project.Status == domain.StatusScriptGeneration {
		message = "Movie project created; script generation started"
	}
	a.json(w, http.StatusCreated, createResponse{statusResponse: a.status(project), Message: message})
}

type scriptResponse struct {
	ProjectID string         `json:"project_id"`
	Status    domain.Status  `json:"status"`
	Source    string         `json:"source,omitempty"`
	Synopsis  string         `json:"synopsis,omitempty"`
	Script    *string        `json:"script"`
	Scenes    []domain.Scene `json:"scenes"`
	Message   string         `json:"message"`
}

// MovieScript generates a script, or replaces it when the body carries
// script_content. Queued generation answers 202; see scriptAsync.
func (a *App) MovieScript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var update jsoncfg.ScriptUpdate
	body, err := io.ReadAll(io.LimitReader(r.Body, maxScriptBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &update); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
			return
		}
	}

	var (
		project *domain.Project
		code    = http.StatusOK
		message string
	)
	switch {
	case strings.TrimSpace(update.ScriptContent) != "":
		project, err = a.Movies.UpdateScript(r.Context(), id, update)
		message = "Script updated"
	case a.scriptAsync(r):
		project, err = a.Movies.GenerateScriptAsync(r.Context(), id)
		code = http.StatusAccepted
		message = "Script generation started"
	default:
		project, err = a.Movies.GenerateScript(r.Context(), id)
		message = "Script generated"
	}
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, code, scriptResponse{
		ProjectID: project.ID,
		Status:    project.Status,
		Source:    project.ScriptSource,
		Synopsis:  project.Synopsis,
		Script:    project.Script,
		Scenes:    project.Scenes,
		Message:   message,
	})
}

func (a *App) ProduceMovie(w http.ResponseWriter, r *http.Request) {
	project, err := a.Movies.StartProduction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, createResponse{statusResponse: a.status(project), Message: "Production started"})
}

func (a *App) MovieStatus(w http.ResponseWriter, r *http.Request) {
	project, err := a.Movies.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.status(project))
}

func (a *App) GetMovie(w http.ResponseWriter, r *http.Request) {
	project, err := a.Movies.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, project)
}

func (a *App) MovieCost(w http.ResponseWriter, r *http.Request) {
	project, err := a.Movies.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.Movies.CostBreakdown(project))
}

func (a *App) ListMovies(w http.ResponseWriter, r *http.Request) {
	projects, err := a.Movies.List(r.Context())
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := projects[:0]
		for _, p := range projects {
			if string(p.Status) == status {
				filtered = append(filtered, p)
			}
		}
		projects = filtered
	}
	items := make([]statusResponse, 0, len(projects))
	for _, p := range projects {
		items = append(items, a.status(p))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (a *App) DeleteMovie(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := a.Movies.Delete(r.Context(), id)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	if !deleted {
		a.serviceError(w, r, domain.ErrNotFound)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"project_id": id, "deleted": true})
}

func (a *App) MovieStyles(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"styles": a.Movies.Catalog().Styles()})
}

func (a *App) MoviePresets(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"presets": a.Movies.Catalog().Presets()})
}

// scriptAsync reports whether script generation should be queued. An
// explicit ?async wins; otherwise it is queued whenever a worker runs jobs.
func (a *App) scriptAsync(r *http.Request) bool {
	if v, err := strconv.ParseBool(r.URL.Query().Get("async")); err == nil {
		return v
	}
	return a.Config.QueueEnabled()
}
