// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

// Package geomap defines the map content data model: extents, items,
// feature properties and data source descriptors shared by the ledger,
// item store, style resolver and wire formats.
package geomap

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// MapKind distinguishes the two coordinate systems a map can present.
type MapKind string

const (
	// MapKindReal is the geographic map.
	MapKindReal MapKind = "Real"
	// MapKindVirtual is the fictional map.
	MapKindVirtual MapKind = "Virtual"
)

// DataId identifies an entity within a data source. The composite of the two
// fields is the item's identity everywhere in the system.
type DataId struct {
	ID           string `json:"id"`
	DataSourceID string `json:"dataSourceId"`
}

// Key returns a stable string form used as a map key and in dedup keys.
func (d DataId) Key() string {
	return d.DataSourceID + "/" + d.ID
}

// String implements fmt.Stringer.
func (d DataId) String() string { return d.Key() }

// IconType distinguishes built-in icons from user-registered ones.
type IconType string

const (
	IconTypeSystem   IconType = "system"
	IconTypeOriginal IconType = "original"
)

// IconKey identifies an icon image.
type IconKey struct {
	Type IconType `json:"type"`
	ID   string   `json:"id"`
}

// Position is an [x, y] coordinate in map space.
type Position [2]float64

// X returns the horizontal coordinate.
func (p Position) X() float64 { return p[0] }

// Y returns the vertical coordinate.
func (p Position) Y() float64 { return p[1] }

// GeometryType enumerates the geometry shapes items can carry.
type GeometryType string

const (
	GeometryPoint      GeometryType = "Point"
	GeometryLineString GeometryType = "LineString"
	GeometryPolygon    GeometryType = "Polygon"
)

// Geometry is an item's shape. Coordinates holds the single point for Point
// geometries, the vertex list for LineString, and the exterior ring for
// Polygon (interior rings are not modeled; the renderer collaborator owns
// precise shapes, the cache only needs identity and a bounding box).
type Geometry struct {
	Type        GeometryType `json:"type"`
	Coordinates []Position   `json:"coordinates"`
}

// Anchor returns the representative position used for depth ranking and
// cluster placement: the first coordinate.
func (g Geometry) Anchor() Position {
	if len(g.Coordinates) == 0 {
		return Position{}
	}
	return g.Coordinates[0]
}

// Extent returns the bounding box of the geometry's coordinates.
func (g Geometry) Extent() Extent {
	if len(g.Coordinates) == 0 {
		return Extent{}
	}
	e := Extent{g.Coordinates[0][0], g.Coordinates[0][1], g.Coordinates[0][0], g.Coordinates[0][1]}
	for _, p := range g.Coordinates[1:] {
		if p[0] < e[0] {
			e[0] = p[0]
		}
		if p[1] < e[1] {
			e[1] = p[1]
		}
		if p[0] > e[2] {
			e[2] = p[0]
		}
		if p[1] > e[3] {
			e[3] = p[1]
		}
	}
	return e
}

// ItemContentInfo is the lightweight handle an item carries for each of its
// attached contents. Full content records are hydrated lazily on demand.
type ItemContentInfo struct {
	ID       DataId `json:"id"`
	Title    string `json:"title,omitempty"`
	HasImage bool   `json:"hasImage,omitempty"`
}

// Item is a geographically located entity. Identity is ID; records are only
// ever replaced whole, never patched, and LastEditedTime decides whether a
// re-fetched record supersedes a cached one.
type Item struct {
	ID             DataId
	Geometry       Geometry
	GeoProperties  GeoProperties
	Name           string
	LastEditedTime time.Time
	Contents       []ItemContentInfo
}

// Extent returns the bounding box of the item's geometry.
func (it Item) Extent() Extent {
	return it.Geometry.Extent()
}

// itemJSON is the wire form of Item; GeoProperties crosses the wire as a
// featureType-tagged envelope.
type itemJSON struct {
	ID             DataId            `json:"id"`
	Geometry       Geometry          `json:"geometry"`
	GeoProperties  json.RawMessage   `json:"geoProperties,omitempty"`
	Name           string            `json:"name"`
	LastEditedTime time.Time         `json:"lastEditedTime"`
	Contents       []ItemContentInfo `json:"contents,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (it Item) MarshalJSON() ([]byte, error) {
	wire := itemJSON{
		ID:             it.ID,
		Geometry:       it.Geometry,
		Name:           it.Name,
		LastEditedTime: it.LastEditedTime,
		Contents:       it.Contents,
	}
	if it.GeoProperties != nil {
		raw, err := MarshalGeoProperties(it.GeoProperties)
		if err != nil {
			return nil, fmt.Errorf("marshal geo properties of %s: %w", it.ID, err)
		}
		wire.GeoProperties = raw
	}
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler.
func (it *Item) UnmarshalJSON(data []byte) error {
	var wire itemJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	it.ID = wire.ID
	it.Geometry = wire.Geometry
	it.Name = wire.Name
	it.LastEditedTime = wire.LastEditedTime
	it.Contents = wire.Contents
	it.GeoProperties = nil
	if len(wire.GeoProperties) > 0 {
		props, err := UnmarshalGeoProperties(wire.GeoProperties)
		if err != nil {
			return fmt.Errorf("unmarshal geo properties of %s: %w", wire.ID, err)
		}
		it.GeoProperties = props
	}
	return nil
}

// DataSourceKind enumerates what a data source stores.
type DataSourceKind string

const (
	DataSourceKindItem        DataSourceKind = "Item"
	DataSourceKindContent     DataSourceKind = "Content"
	DataSourceKindItemContent DataSourceKind = "ItemContent"
	DataSourceKindTrack       DataSourceKind = "Track"
)

// DataSource is the static-per-session descriptor of an independently
// visible collection of items or contents. Read-mostly: the session treats a
// visibility change as a trigger to recompute its active data source set.
type DataSource struct {
	DataSourceID    string         `json:"dataSourceId"`
	Name            string         `json:"name,omitempty"`
	Kind            DataSourceKind `json:"kind"`
	Visible         bool           `json:"visible"`
	Editable        bool           `json:"editable"`
	Deletable       bool           `json:"deletable"`
	LinkableContent bool           `json:"linkableContent"`

	// DefaultIcon is used for items that carry no explicit icon.
	DefaultIcon *IconKey `json:"defaultIcon,omitempty"`
}
