package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/2010089698/sora2-251007-3/internal/http/handlers"
	"github.com/2010089698/sora2-251007-3/internal/middleware"
)

// Options configures the cross-cutting middleware.
type Options struct {
	AllowedOrigins  []string
	CreatePerMinute int
	Logger          zerolog.Logger
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

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/api/videos", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.CreatePerMinute, time.Minute)).Post("/", app.VideosCreate)
		r.Get("/", app.VideosList)
		r.Get("/{id}", app.VideoGet)
		r.Get("/{id}/media", app.VideoMedia)
	})

	return r
}
