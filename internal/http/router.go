package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"spriteforge/internal/http/handlers"
	"spriteforge/internal/infra"
	"spriteforge/internal/middleware"
)

// RouterOptions configures the HTTP surface.
type RouterOptions struct {
	App             *handlers.App
	Logger          infra.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	// AssetsDir, when set, is served at /generated-assets for the
	// filesystem storage backend.
	AssetsDir string
}

// NewRouter assembles the middleware chain and route table.
func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(middleware.CORS(opts.AllowedOrigins))
	r.Use(middleware.RateLimit(opts.RateLimitPerMin))

	app := opts.App
	r.Get("/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/assets", func(r chi.Router) {
			r.Post("/generate", app.Generate)
			r.Post("/batch", app.GenerateBatch)
			r.Get("/batch/{batchID}", app.BatchStatus)
			r.Get("/", app.ListAssets)
			r.Get("/{assetID}", app.GetAsset)
		})
		r.Route("/comfyui", func(r chi.Router) {
			r.Get("/capabilities", app.Capabilities)
			r.Get("/status", app.ComfyStatus)
		})
	})

	if opts.AssetsDir != "" {
		fs := http.StripPrefix("/generated-assets/", http.FileServer(http.Dir(opts.AssetsDir)))
		r.Get("/generated-assets/*", fs.ServeHTTP)
	}
	return r
}
