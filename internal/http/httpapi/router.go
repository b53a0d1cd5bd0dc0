package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"moviemaker/internal/http/handlers"
	"moviemaker/internal/middleware"
)

type Options struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	limit := opts.RateLimitPerMin
	if limit <= 0 {
		limit = 60
	}
	// Only mutating calls are rate limited.
	limited := middleware.RateLimit(limit, time.Minute)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/movies", func(r chi.Router) {
		r.Get("/health", app.MovieHealth)
		r.Get("/styles", app.MovieStyles)
		r.Get("/presets", app.MoviePresets)
		r.Get("/projects", app.ListMovies)
		r.With(limited).Post("/", app.CreateMovie)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.GetMovie)
			r.Get("/status", app.MovieStatus)
			r.Get("/cost", app.MovieCost)
			r.Get("/download", app.DownloadMovie)
			r.Get("/thumbnail", app.MovieThumbnail)
			r.Get("/bundle", app.MovieBundle)
			r.Get("/ws", app.MovieProgress)
			r.With(limited).Post("/script", app.MovieScript)
			r.With(limited).Post("/produce", app.ProduceMovie)
			r.With(limited).Delete("/", app.DeleteMovie)
		})
	})

	return r
}
