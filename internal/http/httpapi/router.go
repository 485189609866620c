package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"genflow/internal/http/handlers"
	"genflow/internal/middleware"
)

type Options struct {
	JWTSecret       string
	CORSOrigins     []string
	RateLimitPerMin int
	Logger          zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Get("/metrics", app.PrometheusMetrics)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		// Creation and retry share one budget per user.
		limited := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

		r.Get("/v1/stream", app.Stream)
		r.Get("/v1/credits", app.Credits)

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Get("/", app.ListJobs)
			r.With(limited).Post("/", app.CreateJob)
			r.Get("/{kind}/{id}", app.GetJob)
			r.Delete("/{kind}/{id}", app.DeleteJob)
			r.With(limited).Post("/{kind}/{id}/retry", app.RetryJob)
		})
	})

	return r
}
