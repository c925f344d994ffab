// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

// Package api exposes the session control surface over HTTP. One session is
// one map view; viewers receive render diffs over the session's websocket.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mapcanvas/viewcache/internal/config"
	"github.com/mapcanvas/viewcache/internal/contents"
	"github.com/mapcanvas/viewcache/internal/render"
	"github.com/mapcanvas/viewcache/internal/session"
)

// Router builds HTTP handlers on top of the session manager.
type Router struct {
	manager  *session.Manager
	contents *contents.Loader
	cfg      config.MapConfig
}

// NewRouter assembles the chi mux with middleware and all routes. loader may
// be nil when no upstream supports contents hydration.
func NewRouter(manager *session.Manager, loader *contents.Loader, cfg *config.Config) http.Handler {
	router := &Router{manager: manager, contents: loader, cfg: cfg.Map}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	if cfg.Server.RateLimitReqs > 0 {
		window := cfg.Server.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(cfg.Server.RateLimitReqs, window))
	}

	r.Get("/healthz", router.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/api/v1/contents", router.handleContents)

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", router.handleOpenSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Delete("/", router.handleCloseSession)
			r.Post("/viewport", router.handleViewport)
			r.Post("/reload", router.handleReload)
			r.Post("/datasources", router.handleDataSourceVisibility)
			r.Post("/mapkind", router.handleMapKind)
			r.Post("/selection", router.handleSelection)
			r.Get("/items", router.handleItems)
			r.Get("/regions", router.handleRegions)
			r.Get("/ws", router.handleWebsocket)
		})
	})

	return r
}

func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	handle, err := rt.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	render.ServeWS(handle.Hub, w, r)
}
