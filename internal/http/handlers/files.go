package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"moviemaker/internal/domain"
	"moviemaker/pkg/zip"
)

func (a *App) DownloadMovie(w http.ResponseWriter, r *http.Request) {
	project, err := a.Movies.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	if project.Status != domain.StatusCompleted || project.FinalMoviePath == "" {
		a.error(w, http.StatusBadRequest, "not_ready", fmt.Sprintf("movie is %s, not completed", project.Status))
		return
	}
	a.serveArtifact(w, r, project.FinalMoviePath, "video/mp4", "attachment")
}

func (a *App) MovieThumbnail(w http.ResponseWriter, r *http.Request) {
	project, err := a.Movies.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	if project.ThumbnailPath == "" {
		a.error(w, http.StatusNotFound, "not_found", "thumbnail not available")
		return
	}
	a.serveArtifact(w, r, project.ThumbnailPath, "image/jpeg", "inline")
}

func (a *App) serveArtifact(w http.ResponseWriter, r *http.Request, path, mime, disposition string) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		a.error(w, http.StatusNotFound, "file_missing", "file no longer exists on disk")
		return
	}
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	name := filepath.Base(path)
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// MovieBundle zips the script, project snapshot, thumbnail and continuity
// frames of a project.
func (a *App) MovieBundle(w http.ResponseWriter, r *http.Request) {
	project, err := a.Movies.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	if project.Script == nil {
		a.error(w, http.StatusConflict, "conflict", "project has no script yet")
		return
	}

	snapshot, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	assets := []zip.Asset{
		{Filename: "script.txt", MIME: "text/plain", Data: []byte(*project.Script), Modified: project.UpdatedAt},
		{Filename: "project.json", MIME: "application/json", Data: snapshot, Modified: project.UpdatedAt},
	}
	if project.ThumbnailPath != "" {
		assets = append(assets, zip.Asset{Filename: "thumbnail.jpg", MIME: "image/jpeg", Data: readOptional(project.ThumbnailPath)})
	}
	for _, clip := range project.GeneratedClips {
		if clip.ContinuityFrame == nil {
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("frames/scene_%03d.jpg", clip.SceneID),
			MIME:     "image/jpeg",
			Data:     readOptional(*clip.ContinuityFrame),
		})
	}

	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=movie-%s.zip", project.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// readOptional returns nil for unreadable files; the bundle skips them.
func readOptional(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return data
}
