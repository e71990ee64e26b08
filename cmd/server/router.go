package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ping15/ShortPlayGenerator/internal/api"
	apiMiddleware "github.com/ping15/ShortPlayGenerator/internal/api/middleware"
	"github.com/ping15/ShortPlayGenerator/internal/platform/tracing"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace(app.logger))
	r.Use(tracing.Middleware(app.config.Tracing.Enabled, app.config.Tracing.ServiceName))

	videoHandler := api.NewVideoHandler(app.runner, app.merges, app.resolver, app.logger)
	healthHandler := api.NewHealthHandler(app.runner, app.merges, app.backend.Mode())
	mediaHandler := api.NewMediaHandler(app.config.Merge.AssetBaseDir)

	r.Route("/ai/video", func(r chi.Router) {
		if secret := app.config.Auth.JWTSecret; secret != "" {
			r.Use(apiMiddleware.NewAuthMiddleware(secret).Authenticate)
		}

		// Existing callers use both spellings
		r.Post("/create", videoHandler.Create)
		r.Post("/create/", videoHandler.Create)
		r.Post("/merge", videoHandler.Merge)
		r.Post("/merge/", videoHandler.Merge)
	})

	r.Get("/health", healthHandler.Health)
	r.Get("/media/test/*", mediaHandler.Serve)

	return r
}
