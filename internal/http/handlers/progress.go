package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"moviemaker/internal/domain"
)

const wsWriteWait = 5 * time.Second

// MovieProgress streams status snapshots over a websocket whenever the
// project changes. The first snapshot is always sent. The socket closes once
// no job is running for the project, so an idle project gets one snapshot.
// It polls the store so it also follows jobs running in another process.
func (a *App) MovieProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	project, err := a.Movies.Get(r.Context(), id)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		a.log(r).Warn().Err(err).Str("project_id", id).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Drain client frames so close and ping control messages are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	interval := a.ProgressInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		last time.Time
		sent bool
	)
	for {
		if !sent || !project.UpdatedAt.Equal(last) {
			last, sent = project.UpdatedAt, true
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(a.status(project)); err != nil {
				return
			}
		}
		if !project.IsBusy() {
			closeWebsocket(conn, websocket.CloseNormalClosure, string(project.Status))
			return
		}

		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		project, err = a.Movies.Get(r.Context(), id)
		if errors.Is(err, domain.ErrNotFound) {
			closeWebsocket(conn, websocket.CloseNormalClosure, "project deleted")
			return
		}
		if err != nil {
			a.log(r).Error().Err(err).Str("project_id", id).Msg("progress poll failed")
			closeWebsocket(conn, websocket.CloseInternalServerErr, "status unavailable")
			return
		}
	}
}

func closeWebsocket(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
