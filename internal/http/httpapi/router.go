package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"visualgen/internal/http/handlers"
	"visualgen/internal/middleware"
	"visualgen/internal/providers/jimeng"
)

// Options configures the proxy router middleware.
type Options struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	// Token, when set, is required as a bearer token on /api routes.
	Token string
}

// NewRouter mounts the signing proxy routes.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale),
	)

	r.Get("/health", app.Health)
	r.Method(http.MethodGet, "/metrics", app.Metrics())
	r.Get("/openapi.json", app.OpenAPIJSON)
	r.Get("/docs", app.OpenAPIDocs)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		r.Use(middleware.BearerToken(opts.Token))

		r.Post("/volcengine", app.Volcengine)
		for _, kind := range jimeng.Kinds {
			r.Post("/"+string(kind), app.Generate(kind))
		}
		r.Post("/check-status", app.Status(jimeng.KindTextToVideo))
		r.Post("/image-edit-status", app.Status(jimeng.KindImageEdit))
	})

	return r
}
