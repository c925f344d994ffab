// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package render

import "github.com/mapcanvas/viewcache/internal/geomap"

// HubRenderer broadcasts feature diffs to every viewer attached to the hub.
type HubRenderer struct {
	hub *Hub
}

// NewHubRenderer wraps a hub.
func NewHubRenderer(hub *Hub) *HubRenderer {
	return &HubRenderer{hub: hub}
}

// AddFeatures implements Renderer.
func (r *HubRenderer) AddFeatures(features []Feature) {
	if len(features) == 0 {
		return
	}
	r.hub.Broadcast(Message{Type: MessageTypeFeaturesAdded, Data: features})
}

// UpdateFeatures implements Renderer.
func (r *HubRenderer) UpdateFeatures(features []Feature) {
	if len(features) == 0 {
		return
	}
	r.hub.Broadcast(Message{Type: MessageTypeFeaturesUpdated, Data: features})
}

// RemoveFeatures implements Renderer.
func (r *HubRenderer) RemoveFeatures(ids []geomap.DataId) {
	if len(ids) == 0 {
		return
	}
	r.hub.Broadcast(Message{Type: MessageTypeFeaturesRemoved, Data: ids})
}

// Clear implements Renderer.
func (r *HubRenderer) Clear() {
	r.hub.Broadcast(Message{Type: MessageTypeRenderCleared})
}
