// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

// Package style memoizes renderer style objects and resolves which style a
// rendered (possibly clustered) feature gets.
package style

import (
	"sync"

	"github.com/mapcanvas/viewcache/internal/geomap"
	"github.com/mapcanvas/viewcache/internal/metrics"
)

// ColorOverride is a forced marker color. Forced colors take precedence over
// filter-driven dimming.
type ColorOverride string

const (
	ColorNone     ColorOverride = ""
	ColorError    ColorOverride = "error"
	ColorSelected ColorOverride = "selected"
)

// Opacity is the discrete opacity state a feature can be in.
type Opacity string

const (
	OpacityFull   Opacity = "full"
	OpacityDimmed Opacity = "dimmed"
	OpacityHidden Opacity = "hidden"
)

// alpha converts the discrete state to the renderer's alpha value.
func (o Opacity) alpha() float64 {
	switch o {
	case OpacityDimmed:
		return 0.5
	case OpacityHidden:
		return 0
	default:
		return 1
	}
}

// Key is the exact-match style cache key. Resolution is deliberately absent:
// scale is applied in place on the cached entry, because a distinct style
// object per zoom tick would reallocate styles every frame of a zoom
// gesture.
type Key struct {
	IconType geomap.IconType
	IconID   string
	Color    ColorOverride
	Opacity  Opacity
}

// Entry is the memoized renderer style object. Only Scale is mutable after
// creation; everything else would change the entry's identity and therefore
// lives in the key.
type Entry struct {
	Icon    geomap.IconKey `json:"icon"`
	Color   ColorOverride  `json:"color,omitempty"`
	Opacity float64        `json:"opacity"`
	Scale   float64        `json:"scale"`
}

// SetScale applies the resolution-driven scale in place.
func (e *Entry) SetScale(scale float64) {
	e.Scale = scale
}

// Cache memoizes style entries by exact key match. Owned by one session.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*Entry
}

// NewCache creates an empty style cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[Key]*Entry)}
}

// Get returns the cached entry for the key, if any.
func (c *Cache) Get(key Key) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Set stores an entry under the key, replacing any existing one.
func (c *Cache) Set(key Key, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
}

// GetOrCreate returns the cached entry for the key, creating it on first
// use. Repeated lookups with the same key return the same object identity.
func (c *Cache) GetOrCreate(key Key) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		metrics.StyleCacheLookups.WithLabelValues("hit").Inc()
		return e
	}
	metrics.StyleCacheLookups.WithLabelValues("miss").Inc()

	e := &Entry{
		Icon:    geomap.IconKey{Type: key.IconType, ID: key.IconID},
		Color:   key.Color,
		Opacity: key.Opacity.alpha(),
		Scale:   1,
	}
	c.entries[key] = e
	return e
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*Entry)
}

// scaleForResolution buckets the map resolution into a marker scale. The
// bucket boundaries are coarse on purpose: intermediate zoom ticks reuse the
// same entry and only the final scale write differs.
func scaleForResolution(resolution float64) float64 {
	switch {
	case resolution <= 1:
		return 1.4
	case resolution <= 5:
		return 1.2
	case resolution <= 20:
		return 1.0
	case resolution <= 80:
		return 0.8
	default:
		return 0.6
	}
}
