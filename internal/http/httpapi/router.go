package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"stager/internal/http/handlers"
	"stager/internal/infra"
	"stager/internal/middleware"
)

// Options configures the middleware chain.
type Options struct {
	Logger          infra.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/", app.Root)
	r.Get("/health", app.Health)
	r.Get("/metrics", app.Metrics)
	r.Get("/openapi.json", app.OpenAPIJSON)
	r.Get("/docs", app.OpenAPIDocs)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

		r.Post("/upload", app.Upload)
		r.Post("/process/{jobId}", app.Process)
		r.Get("/job/{jobId}", app.JobStatus)
		r.Get("/download/{jobId}", app.Download)
		r.Post("/webhook/mailgun", app.MailgunInbound)
	})

	return r
}
