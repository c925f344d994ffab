// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package style

import (
	"strconv"

	"github.com/mapcanvas/viewcache/internal/geomap"
)

// UnmatchedVisibility controls how items failing the active filter appear.
type UnmatchedVisibility string

const (
	UnmatchedDimmed UnmatchedVisibility = "dimmed"
	UnmatchedHidden UnmatchedVisibility = "hidden"
)

// Filter is the active item filter, if any. Matches must be side-effect
// free; it runs once per cluster member during main-item selection.
type Filter struct {
	Active    bool
	Matches   func(geomap.Item) bool
	Unmatched UnmatchedVisibility
}

// Label is the text overlay a rendered feature carries: a count for
// clusters, wrapped name lines otherwise.
type Label struct {
	Lines []string `json:"lines,omitempty"`
	Count int      `json:"count,omitempty"`
}

// FeatureStyle is the complete per-feature rendering instruction. Entry is
// shared through the cache; ZIndex and Label are per feature.
type FeatureStyle struct {
	Entry  *Entry `json:"entry"`
	ZIndex int    `json:"zIndex"`
	Label  *Label `json:"label,omitempty"`
}

// ResolveInput carries everything style resolution needs for one rendered
// feature. ZRank is the precomputed depth ranking; it must be recomputed by
// the caller when the item set changes, never per lookup.
type ResolveInput struct {
	Cluster    []geomap.Item
	Selected   *geomap.DataId
	Filter     *Filter
	Forced     ColorOverride
	Resolution float64
	ZRank      map[string]int
}

// Resolver turns items into feature styles using the session's style cache
// and data source configuration.
type Resolver struct {
	cache          *Cache
	mapKind        geomap.MapKind
	dataSources    map[string]geomap.DataSource
	defaultIcons   map[geomap.MapKind]geomap.IconKey
	disableLabels  bool
	labelWrapWidth int
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	MapKind       geomap.MapKind
	DataSources   []geomap.DataSource
	DefaultIcons  map[geomap.MapKind]geomap.IconKey
	DisableLabels bool

	// LabelWrapWidth is the fixed character width name labels wrap at.
	// Defaults to 10.
	LabelWrapWidth int
}

// NewResolver creates a resolver bound to the given style cache.
func NewResolver(cache *Cache, cfg ResolverConfig) *Resolver {
	r := &Resolver{
		cache:          cache,
		mapKind:        cfg.MapKind,
		dataSources:    make(map[string]geomap.DataSource, len(cfg.DataSources)),
		defaultIcons:   cfg.DefaultIcons,
		disableLabels:  cfg.DisableLabels,
		labelWrapWidth: cfg.LabelWrapWidth,
	}
	if r.labelWrapWidth <= 0 {
		r.labelWrapWidth = 10
	}
	for _, ds := range cfg.DataSources {
		r.dataSources[ds.DataSourceID] = ds
	}
	return r
}

// SetMapKind switches the active map kind (affects the default icon chain).
func (r *Resolver) SetMapKind(kind geomap.MapKind) {
	r.mapKind = kind
}

// SetDataSources replaces the data source descriptors.
func (r *Resolver) SetDataSources(sources []geomap.DataSource) {
	r.dataSources = make(map[string]geomap.DataSource, len(sources))
	for _, ds := range sources {
		r.dataSources[ds.DataSourceID] = ds
	}
}

// MainItem picks the item that represents a cluster: the selected item if it
// is among the members, else the first member matching the active filter,
// else the first member in cluster order.
func MainItem(cluster []geomap.Item, selected *geomap.DataId, filter *Filter) geomap.Item {
	if len(cluster) == 0 {
		return geomap.Item{}
	}
	if selected != nil {
		for _, it := range cluster {
			if it.ID == *selected {
				return it
			}
		}
	}
	if filter != nil && filter.Active && filter.Matches != nil {
		for _, it := range cluster {
			if filter.Matches(it) {
				return it
			}
		}
	}
	return cluster[0]
}

// ResolveIcon walks the fallback chain: explicit per-item icon, the owning
// data source's default, then the map kind's global default.
func (r *Resolver) ResolveIcon(item geomap.Item) geomap.IconKey {
	if item.GeoProperties != nil {
		if icon := geomap.ExplicitIcon(item.GeoProperties); icon != nil {
			return *icon
		}
	}
	if ds, ok := r.dataSources[item.ID.DataSourceID]; ok && ds.DefaultIcon != nil {
		return *ds.DefaultIcon
	}
	if icon, ok := r.defaultIcons[r.mapKind]; ok {
		return icon
	}
	return geomap.IconKey{Type: geomap.IconTypeSystem, ID: "default"}
}

// colorState resolves the forced-color / filter precedence: a forced color
// wins outright; otherwise an active filter dims or hides unmatched items.
func colorState(item geomap.Item, forced ColorOverride, filter *Filter) (ColorOverride, Opacity) {
	if forced != ColorNone {
		return forced, OpacityFull
	}
	if filter != nil && filter.Active && filter.Matches != nil && !filter.Matches(item) {
		if filter.Unmatched == UnmatchedHidden {
			return ColorNone, OpacityHidden
		}
		return ColorNone, OpacityDimmed
	}
	return ColorNone, OpacityFull
}

// Resolve computes the feature style for one rendered feature. The style
// entry comes from the cache; the resolution-driven scale is written onto
// the (possibly shared) entry in place.
func (r *Resolver) Resolve(in ResolveInput) FeatureStyle {
	main := MainItem(in.Cluster, in.Selected, in.Filter)
	icon := r.ResolveIcon(main)
	color, opacity := colorState(main, in.Forced, in.Filter)

	entry := r.cache.GetOrCreate(Key{
		IconType: icon.Type,
		IconID:   icon.ID,
		Color:    color,
		Opacity:  opacity,
	})
	entry.SetScale(scaleForResolution(in.Resolution))

	fs := FeatureStyle{
		Entry:  entry,
		ZIndex: in.ZRank[main.ID.Key()],
	}

	switch {
	case len(in.Cluster) > 1:
		fs.Label = &Label{Count: len(in.Cluster), Lines: []string{strconv.Itoa(len(in.Cluster))}}
	case !r.disableLabels && main.Name != "":
		fs.Label = &Label{Lines: WrapLabel(main.Name, r.labelWrapWidth)}
	}
	return fs
}
