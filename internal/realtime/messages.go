// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package realtime

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/mapcanvas/viewcache/internal/geomap"
)

// ItemRegionChange is one element of an item-region-changed message: items
// of the data source changed somewhere inside the extent.
type ItemRegionChange struct {
	DataSourceID string        `json:"datasourceId"`
	Extent       geomap.Extent `json:"extent"`
}

// ItemsDeleted is the item-deleted message body.
type ItemsDeleted struct {
	IDs []geomap.DataId `json:"ids"`
}

// MarshalRegionChanged encodes an item-region-changed message.
func MarshalRegionChanged(changes []ItemRegionChange) (*message.Message, error) {
	payload, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("marshal region changes: %w", err)
	}
	return message.NewMessage(watermill.NewUUID(), payload), nil
}

// UnmarshalRegionChanged decodes an item-region-changed payload.
func UnmarshalRegionChanged(payload []byte) ([]ItemRegionChange, error) {
	var changes []ItemRegionChange
	if err := json.Unmarshal(payload, &changes); err != nil {
		return nil, fmt.Errorf("unmarshal region changes: %w", err)
	}
	return changes, nil
}

// MarshalItemsDeleted encodes an item-deleted message.
func MarshalItemsDeleted(deleted ItemsDeleted) (*message.Message, error) {
	payload, err := json.Marshal(deleted)
	if err != nil {
		return nil, fmt.Errorf("marshal deleted ids: %w", err)
	}
	return message.NewMessage(watermill.NewUUID(), payload), nil
}

// UnmarshalItemsDeleted decodes an item-deleted payload.
func UnmarshalItemsDeleted(payload []byte) (ItemsDeleted, error) {
	var deleted ItemsDeleted
	if err := json.Unmarshal(payload, &deleted); err != nil {
		return ItemsDeleted{}, fmt.Errorf("unmarshal deleted ids: %w", err)
	}
	return deleted, nil
}

// PublishRegionChanged publishes an item-region-changed message for a map.
func PublishRegionChanged(bus Bus, mapID string, kind geomap.MapKind, changes []ItemRegionChange) error {
	msg, err := MarshalRegionChanged(changes)
	if err != nil {
		return err
	}
	return bus.Publish(Topic(mapID, kind, MessageTypeItemRegionChanged), msg)
}

// PublishItemsDeleted publishes an item-deleted message for a map.
func PublishItemsDeleted(bus Bus, mapID string, kind geomap.MapKind, ids []geomap.DataId) error {
	msg, err := MarshalItemsDeleted(ItemsDeleted{IDs: ids})
	if err != nil {
		return err
	}
	return bus.Publish(Topic(mapID, kind, MessageTypeItemDeleted), msg)
}
