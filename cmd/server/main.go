// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

// Package main is the entry point for the Viewcache server.
//
// Viewcache keeps per-session caches of map items so embedded map views only
// fetch viewport regions they have not already loaded. Each session tracks
// its loaded regions in a ledger, merges fetch results with last-edit
// reconciliation, and pushes incremental render diffs to attached websocket
// viewers.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (env > config.yaml > defaults)
//  2. Logging: zerolog, JSON or console format
//  3. Invalidation bus: NATS JetStream when enabled, in-process otherwise
//  4. Upstream fetcher: circuit-broken HTTP client for get-items
//  5. Session manager: one event loop and render hub per open session
//  6. HTTP server: session control API, websocket endpoint, /metrics
//
// # Configuration
//
// Environment overrides use a VIEWCACHE_ prefix with double underscores
// between nesting levels:
//
//	export VIEWCACHE_UPSTREAM__BASE_URL=http://items-api:9000
//	export VIEWCACHE_SERVER__PORT=3857
//	export VIEWCACHE_NATS__ENABLED=true
//	export VIEWCACHE_NATS__URL=nats://broker:4222
//	./viewcache
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the listener stops accepting
// connections, in-flight requests get the configured shutdown timeout, then
// sessions and the bus are closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mapcanvas/viewcache/internal/api"
	"github.com/mapcanvas/viewcache/internal/config"
	"github.com/mapcanvas/viewcache/internal/contents"
	"github.com/mapcanvas/viewcache/internal/fetch"
	"github.com/mapcanvas/viewcache/internal/logging"
	"github.com/mapcanvas/viewcache/internal/realtime"
	"github.com/mapcanvas/viewcache/internal/session"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logging.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus, err := buildBus(cfg)
	if err != nil {
		return fmt.Errorf("connect invalidation bus: %w", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Warn().Err(err).Msg("bus close failed")
		}
	}()

	fetcher := fetch.NewHTTPFetcher(cfg.Upstream)
	manager := session.NewManager(ctx, fetcher, bus, nil)
	defer manager.CloseAll()
	loader := contents.NewLoader(fetcher)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(manager, loader, cfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Str("addr", srv.Addr).
			Str("upstream", cfg.Upstream.BaseURL).
			Bool("nats", cfg.NATS.Enabled).
			Msg("viewcache server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logging.Info().Msg("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logging.Info().Msg("server stopped")
	return nil
}

// buildBus connects the broker-backed bus when NATS is enabled, otherwise an
// in-process bus so single-node deployments need no broker.
func buildBus(cfg *config.Config) (realtime.Bus, error) {
	logger := realtime.NewWatermillLogger(logging.Logger())
	if cfg.NATS.Enabled {
		return realtime.NewNATSBus(cfg.NATS, logger)
	}
	return realtime.NewGoChannelBus(logger), nil
}
