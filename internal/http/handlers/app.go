package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"moviemaker/internal/catalog"
	"moviemaker/internal/domain"
	"moviemaker/internal/domain/jsoncfg"
	"moviemaker/internal/infra"
	"moviemaker/internal/middleware"
	"moviemaker/internal/moviemaker"
)

// Movies is the project lifecycle the handlers expose.
type Movies interface {
	Create(ctx context.Context, req jsoncfg.MovieRequest) (*domain.Project, error)
	GenerateScript(ctx context.Context, id string) (*domain.Project, error)
	GenerateScriptAsync(ctx context.Context, id string) (*domain.Project, error)
	UpdateScript(ctx context.Context, id string, update jsoncfg.ScriptUpdate) (*domain.Project, error)
	StartProduction(ctx context.Context, id string) (*domain.Project, error)
	Get(ctx context.Context, id string) (*domain.Project, error)
	List(ctx context.Context) ([]*domain.Project, error)
	Delete(ctx context.Context, id string) (bool, error)
	EstimatedCost(project *domain.Project) float64
	CostBreakdown(project *domain.Project) moviemaker.CostBreakdown
	Catalog() *catalog.Catalog
}

// MediaChecker reports whether the ffmpeg toolchain is usable.
type MediaChecker interface {
	Available(ctx context.Context) bool
}

type App struct {
	Movies Movies
	Media  MediaChecker
	Config *infra.Config
	Logger infra.Logger
	// ProgressInterval is how often the websocket feed polls the store.
	ProgressInterval time.Duration

	upgrader websocket.Upgrader
}

func NewApp(movies Movies, media MediaChecker, cfg *infra.Config, logger infra.Logger) *App {
	if cfg == nil {
		cfg = &infra.Config{}
	}
	a := &App{
		Movies:           movies,
		Media:            media,
		Config:           cfg,
		Logger:           logger,
		ProgressInterval: time.Second,
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     a.allowedOrigin,
	}
	return a
}

func (a *App) allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range a.Config.CORSAllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorResponse{Error: code, Message: message, RequestID: w.Header().Get(middleware.RequestIDHeader)})
}

// serviceError maps orchestrator errors onto HTTP statuses.
func (a *App) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "project not found")
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	default:
		a.log(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) log(r *http.Request) *zerolog.Logger {
	l := a.Logger.With().Str("request_id", middleware.RequestIDFromContext(r.Context())).Logger()
	return &l
}
