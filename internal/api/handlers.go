// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/mapcanvas/viewcache/internal/contents"
	"github.com/mapcanvas/viewcache/internal/geomap"
	"github.com/mapcanvas/viewcache/internal/logging"
	"github.com/mapcanvas/viewcache/internal/session"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("failed to encode response body")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(into); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("request handled")
	})
}

func (rt *Router) session(w http.ResponseWriter, r *http.Request) (*session.Handle, bool) {
	handle, err := rt.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return handle, true
}

type openSessionRequest struct {
	MapID       string              `json:"mapId"`
	MapKind     geomap.MapKind      `json:"mapKind,omitempty"`
	DataSources []geomap.DataSource `json:"dataSources"`
}

type openSessionResponse struct {
	SessionID string `json:"sessionId"`
}

func (rt *Router) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MapID == "" {
		respondError(w, http.StatusBadRequest, "mapId is required")
		return
	}
	kind := req.MapKind
	if kind == "" {
		kind = geomap.MapKind(rt.cfg.DefaultKind)
	}
	if kind != geomap.MapKindReal && kind != geomap.MapKindVirtual {
		respondError(w, http.StatusBadRequest, "mapKind must be Real or Virtual")
		return
	}

	handle := rt.manager.Open(session.Config{
		MapID:          req.MapID,
		MapKind:        kind,
		DataSources:    req.DataSources,
		DisableLabels:  rt.cfg.DisableLabels,
		LabelWrapWidth: rt.cfg.LabelWrapWidth,
	})
	respondJSON(w, http.StatusCreated, openSessionResponse{SessionID: handle.Session.ID()})
}

func (rt *Router) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.manager.Close(chi.URLParam(r, "sessionID")); err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

type viewportRequest struct {
	Extent geomap.Extent `json:"extent"`
	Zoom   float64       `json:"zoom"`
}

func (rt *Router) handleViewport(w http.ResponseWriter, r *http.Request) {
	handle, ok := rt.session(w, r)
	if !ok {
		return
	}
	var req viewportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Extent.Valid() {
		respondError(w, http.StatusBadRequest, "extent is not a valid bounding box")
		return
	}
	handle.Session.ViewportSettled(req.Extent, req.Zoom)
	respondJSON(w, http.StatusAccepted, nil)
}

func (rt *Router) handleReload(w http.ResponseWriter, r *http.Request) {
	handle, ok := rt.session(w, r)
	if !ok {
		return
	}
	handle.Session.ReloadLatest()
	respondJSON(w, http.StatusAccepted, nil)
}

type visibilityRequest struct {
	DataSourceID string `json:"dataSourceId"`
	Visible      bool   `json:"visible"`
}

func (rt *Router) handleDataSourceVisibility(w http.ResponseWriter, r *http.Request) {
	handle, ok := rt.session(w, r)
	if !ok {
		return
	}
	var req visibilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DataSourceID == "" {
		respondError(w, http.StatusBadRequest, "dataSourceId is required")
		return
	}
	handle.Session.SetDataSourceVisibility(req.DataSourceID, req.Visible)
	respondJSON(w, http.StatusAccepted, nil)
}

type mapKindRequest struct {
	MapKind geomap.MapKind `json:"mapKind"`
}

func (rt *Router) handleMapKind(w http.ResponseWriter, r *http.Request) {
	handle, ok := rt.session(w, r)
	if !ok {
		return
	}
	var req mapKindRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MapKind != geomap.MapKindReal && req.MapKind != geomap.MapKindVirtual {
		respondError(w, http.StatusBadRequest, "mapKind must be Real or Virtual")
		return
	}
	handle.Session.SwitchMapKind(req.MapKind)
	respondJSON(w, http.StatusAccepted, nil)
}

type selectionRequest struct {
	ID *geomap.DataId `json:"id"`
}

func (rt *Router) handleSelection(w http.ResponseWriter, r *http.Request) {
	handle, ok := rt.session(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	handle.Session.SelectItem(req.ID)
	respondJSON(w, http.StatusAccepted, nil)
}

func (rt *Router) handleItems(w http.ResponseWriter, r *http.Request) {
	handle, ok := rt.session(w, r)
	if !ok {
		return
	}
	items := handle.Session.SnapshotItems()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

type contentsRequest struct {
	Queries []contents.Query `json:"queries"`
}

func (rt *Router) handleContents(w http.ResponseWriter, r *http.Request) {
	if rt.contents == nil {
		respondError(w, http.StatusServiceUnavailable, "contents hydration is not configured")
		return
	}
	var req contentsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	loaded, err := rt.contents.Load(r.Context(), req.Queries)
	if err != nil {
		if errors.Is(err, contents.ErrEmptyQuery) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "contents load failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"contents": loaded,
		"count":    len(loaded),
	})
}

func (rt *Router) handleRegions(w http.ResponseWriter, r *http.Request) {
	handle, ok := rt.session(w, r)
	if !ok {
		return
	}
	regions := handle.Session.LedgerEntries()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"regions": regions,
		"count":   len(regions),
	})
}
