// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/mapcanvas/viewcache/internal/fetch"
	"github.com/mapcanvas/viewcache/internal/logging"
	"github.com/mapcanvas/viewcache/internal/metrics"
	"github.com/mapcanvas/viewcache/internal/realtime"
	"github.com/mapcanvas/viewcache/internal/render"
)

// ErrSessionNotFound is returned for lookups of unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Handle bundles a running session with its render hub.
type Handle struct {
	Session *MapSession
	Hub     *render.Hub

	cancel context.CancelFunc
}

// Manager creates and tracks map sessions. Each session gets its own ledger,
// store, style cache and render hub; the fetcher and bus are shared process
// resources.
type Manager struct {
	baseCtx context.Context
	fetcher fetch.Fetcher
	bus     realtime.Bus
	errs    ErrorSink

	mu       sync.RWMutex
	sessions map[string]*Handle
}

// NewManager creates a manager sharing the given fetcher and bus across
// sessions. Session lifetimes derive from baseCtx, typically the process
// signal context. They must never derive from the HTTP request that opened
// the session: net/http cancels the request context as soon as the handler
// returns, which would tear the loop down right after the response.
func NewManager(baseCtx context.Context, fetcher fetch.Fetcher, bus realtime.Bus, errs ErrorSink) *Manager {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Manager{
		baseCtx:  baseCtx,
		fetcher:  fetcher,
		bus:      bus,
		errs:     errs,
		sessions: make(map[string]*Handle),
	}
}

// Open creates a session for the given map configuration and starts its
// event loop and render hub. The session runs until Close or until the
// manager's base context is canceled.
func (m *Manager) Open(cfg Config) *Handle {
	id := uuid.NewString()
	hub := render.NewHub()

	sess := New(id, cfg, Dependencies{
		Fetcher:  m.fetcher,
		Bus:      m.bus,
		Renderer: render.NewHubRenderer(hub),
		Errors:   m.errs,
	})

	sessCtx, cancel := context.WithCancel(m.baseCtx)
	handle := &Handle{Session: sess, Hub: hub, cancel: cancel}

	go func() {
		if err := hub.Run(sessCtx); err != nil && sessCtx.Err() == nil {
			logging.Error().Err(err).Str("session_id", id).Msg("render hub stopped")
		}
	}()
	go func() {
		if err := sess.Run(sessCtx); err != nil && sessCtx.Err() == nil {
			logging.Error().Err(err).Str("session_id", id).Msg("session loop stopped")
		}
	}()

	m.mu.Lock()
	m.sessions[id] = handle
	total := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Inc()
	logging.Info().
		Str("session_id", id).
		Str("map_id", cfg.MapID).
		Int("total_sessions", total).
		Msg("session opened")
	return handle
}

// Get returns the handle for a session id.
func (m *Manager) Get(id string) (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handle, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return handle, nil
}

// Close stops a session and releases its hub.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	handle, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	total := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	handle.cancel()
	<-handle.Session.Done()

	metrics.ActiveSessions.Dec()
	logging.Info().Str("session_id", id).Int("total_sessions", total).Msg("session closed")
	return nil
}

// CloseAll stops every session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.sessions))
	for id, h := range m.sessions {
		handles = append(handles, h)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.cancel()
		<-h.Session.Done()
		metrics.ActiveSessions.Dec()
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
