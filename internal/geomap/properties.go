// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package geomap

import (
	"fmt"

	"github.com/goccy/go-json"
)

// FeatureType discriminates the GeoProperties union.
type FeatureType string

const (
	FeatureTypeStructure FeatureType = "STRUCTURE"
	FeatureTypeRoad      FeatureType = "ROAD"
	FeatureTypeEarth     FeatureType = "EARTH"
	FeatureTypeForest    FeatureType = "FOREST"
	FeatureTypeArea      FeatureType = "AREA"
	FeatureTypeTrack     FeatureType = "TRACK"
)

// GeoProperties is the closed union of per-feature-type properties. The set
// of implementations is sealed by the unexported method; every consumption
// site (style resolution, wire decoding) switches exhaustively over the
// concrete types so that adding a feature type is a compile-visible change.
type GeoProperties interface {
	FeatureType() FeatureType
	sealedGeoProperties()
}

// StructureProperties describes a point-of-interest marker.
type StructureProperties struct {
	// Icon overrides the data source and map-kind default icons when set.
	Icon *IconKey `json:"icon,omitempty"`
}

// RoadProperties describes a road line feature.
type RoadProperties struct {
	Width float64 `json:"width,omitempty"`
}

// EarthProperties describes a landmass polygon.
type EarthProperties struct{}

// ForestProperties describes a forest polygon.
type ForestProperties struct{}

// AreaProperties describes a free-form area polygon.
type AreaProperties struct{}

// TrackProperties describes a GPS track with a visible zoom range.
type TrackProperties struct {
	MinZoom float64 `json:"minZoom,omitempty"`
	MaxZoom float64 `json:"maxZoom,omitempty"`
}

// FeatureType implements GeoProperties.
func (StructureProperties) FeatureType() FeatureType { return FeatureTypeStructure }

// FeatureType implements GeoProperties.
func (RoadProperties) FeatureType() FeatureType { return FeatureTypeRoad }

// FeatureType implements GeoProperties.
func (EarthProperties) FeatureType() FeatureType { return FeatureTypeEarth }

// FeatureType implements GeoProperties.
func (ForestProperties) FeatureType() FeatureType { return FeatureTypeForest }

// FeatureType implements GeoProperties.
func (AreaProperties) FeatureType() FeatureType { return FeatureTypeArea }

// FeatureType implements GeoProperties.
func (TrackProperties) FeatureType() FeatureType { return FeatureTypeTrack }

func (StructureProperties) sealedGeoProperties() {}
func (RoadProperties) sealedGeoProperties()      {}
func (EarthProperties) sealedGeoProperties()     {}
func (ForestProperties) sealedGeoProperties()    {}
func (AreaProperties) sealedGeoProperties()      {}
func (TrackProperties) sealedGeoProperties()     {}

// propertiesEnvelope is the tagged wire form of GeoProperties.
type propertiesEnvelope struct {
	FeatureType FeatureType     `json:"featureType"`
	Fields      json.RawMessage `json:"fields,omitempty"`
}

// MarshalGeoProperties encodes properties as a featureType-tagged envelope.
func MarshalGeoProperties(p GeoProperties) ([]byte, error) {
	fields, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(propertiesEnvelope{
		FeatureType: p.FeatureType(),
		Fields:      fields,
	})
}

// UnmarshalGeoProperties decodes a featureType-tagged envelope into the
// matching concrete type. Unknown feature types are an error, not a silent
// fallback; the union is closed.
func UnmarshalGeoProperties(data []byte) (GeoProperties, error) {
	var env propertiesEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	fields := env.Fields
	if len(fields) == 0 {
		fields = json.RawMessage("{}")
	}

	switch env.FeatureType {
	case FeatureTypeStructure:
		var p StructureProperties
		if err := json.Unmarshal(fields, &p); err != nil {
			return nil, err
		}
		return p, nil
	case FeatureTypeRoad:
		var p RoadProperties
		if err := json.Unmarshal(fields, &p); err != nil {
			return nil, err
		}
		return p, nil
	case FeatureTypeEarth:
		var p EarthProperties
		if err := json.Unmarshal(fields, &p); err != nil {
			return nil, err
		}
		return p, nil
	case FeatureTypeForest:
		var p ForestProperties
		if err := json.Unmarshal(fields, &p); err != nil {
			return nil, err
		}
		return p, nil
	case FeatureTypeArea:
		var p AreaProperties
		if err := json.Unmarshal(fields, &p); err != nil {
			return nil, err
		}
		return p, nil
	case FeatureTypeTrack:
		var p TrackProperties
		if err := json.Unmarshal(fields, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown feature type %q", env.FeatureType)
	}
}

// ExplicitIcon returns the item-level icon override when the properties
// carry one. Only structures have per-item icons.
func ExplicitIcon(p GeoProperties) *IconKey {
	switch props := p.(type) {
	case StructureProperties:
		return props.Icon
	case RoadProperties, EarthProperties, ForestProperties, AreaProperties, TrackProperties:
		return nil
	default:
		return nil
	}
}
