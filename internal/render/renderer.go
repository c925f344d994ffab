// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

// Package render delivers feature diffs to map viewers. The session drives
// a Renderer with add/update/remove calls computed from store diffs; the
// websocket implementation broadcasts them to attached clients.
package render

import (
	"github.com/mapcanvas/viewcache/internal/geomap"
	"github.com/mapcanvas/viewcache/internal/style"
)

// Feature is one renderable map feature: the item's identity and shape plus
// its resolved style. The renderer holds no item state beyond these; the
// item store stays authoritative.
type Feature struct {
	ID       geomap.DataId      `json:"id"`
	Geometry geomap.Geometry    `json:"geometry"`
	Style    style.FeatureStyle `json:"style"`
}

// Renderer receives incremental feature changes. Calls are made from the
// session loop; implementations must not block it.
type Renderer interface {
	AddFeatures(features []Feature)
	UpdateFeatures(features []Feature)
	RemoveFeatures(ids []geomap.DataId)
	Clear()
}

// NopRenderer discards everything. Used when a session runs headless.
type NopRenderer struct{}

// AddFeatures implements Renderer.
func (NopRenderer) AddFeatures([]Feature) {}

// UpdateFeatures implements Renderer.
func (NopRenderer) UpdateFeatures([]Feature) {}

// RemoveFeatures implements Renderer.
func (NopRenderer) RemoveFeatures([]geomap.DataId) {}

// Clear implements Renderer.
func (NopRenderer) Clear() {}
