// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

// Package realtime adapts the external pub/sub broker into the typed
// invalidation channel the session consumes: topic naming, message shapes
// and the Watermill subscriber bridge.
package realtime

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/mapcanvas/viewcache/internal/geomap"
)

// MessageType enumerates the invalidation message kinds on the wire.
type MessageType string

const (
	// MessageTypeItemRegionChanged announces that items changed inside a
	// region of a data source; cached coverage of that region is stale.
	MessageTypeItemRegionChanged MessageType = "item-region-changed"

	// MessageTypeItemDeleted announces that specific items were deleted.
	MessageTypeItemDeleted MessageType = "item-deleted"
)

// Topic builds the subscription topic for a map, map kind and message type.
// Subscribers match on exact string equality, so the format is part of the
// wire contract: {mapId}/{mapKind}/{messageType}.
func Topic(mapID string, kind geomap.MapKind, mt MessageType) string {
	return fmt.Sprintf("%s/%s/%s", mapID, kind, mt)
}

// TopicWithParam appends a JSON-stringified payload discriminator for
// message types that carry one: {mapId}/{mapKind}/{messageType}/{param}.
func TopicWithParam(mapID string, kind geomap.MapKind, mt MessageType, param any) (string, error) {
	serialized, err := json.Marshal(param)
	if err != nil {
		return "", fmt.Errorf("serialize topic param: %w", err)
	}
	return Topic(mapID, kind, mt) + "/" + string(serialized), nil
}
