// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package realtime

import (
	"testing"

	"github.com/mapcanvas/viewcache/internal/geomap"
)

func TestTopic(t *testing.T) {
	got := Topic("map-1", geomap.MapKindReal, MessageTypeItemRegionChanged)
	want := "map-1/Real/item-region-changed"
	if got != want {
		t.Errorf("Topic() = %q, want %q", got, want)
	}
}

func TestTopicWithParam(t *testing.T) {
	id := geomap.DataId{ID: "7", DataSourceID: "ds1"}
	got, err := TopicWithParam("map-1", geomap.MapKindVirtual, MessageTypeItemDeleted, id)
	if err != nil {
		t.Fatalf("TopicWithParam: %v", err)
	}
	want := `map-1/Virtual/item-deleted/{"id":"7","dataSourceId":"ds1"}`
	if got != want {
		t.Errorf("TopicWithParam() = %q, want %q", got, want)
	}
}

// Subscribers match on exact string equality; differing kinds or maps must
// never collide.
func TestTopic_Distinct(t *testing.T) {
	seen := map[string]bool{}
	for _, mapID := range []string{"m1", "m2"} {
		for _, kind := range []geomap.MapKind{geomap.MapKindReal, geomap.MapKindVirtual} {
			for _, mt := range []MessageType{MessageTypeItemRegionChanged, MessageTypeItemDeleted} {
				topic := Topic(mapID, kind, mt)
				if seen[topic] {
					t.Errorf("duplicate topic %q", topic)
				}
				seen[topic] = true
			}
		}
	}
}

func TestRegionChangedRoundTrip(t *testing.T) {
	changes := []ItemRegionChange{
		{DataSourceID: "ds1", Extent: geomap.NewExtent(0, 0, 10, 10)},
		{DataSourceID: "ds2", Extent: geomap.NewExtent(-5, -5, 5, 5)},
	}
	msg, err := MarshalRegionChanged(changes)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalRegionChanged(msg.Payload)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 || got[0] != changes[0] || got[1] != changes[1] {
		t.Errorf("round trip = %v, want %v", got, changes)
	}
}

func TestItemsDeletedRoundTrip(t *testing.T) {
	deleted := ItemsDeleted{IDs: []geomap.DataId{{ID: "x", DataSourceID: "ds1"}}}
	msg, err := MarshalItemsDeleted(deleted)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalItemsDeleted(msg.Payload)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.IDs) != 1 || got.IDs[0] != deleted.IDs[0] {
		t.Errorf("round trip = %v, want %v", got, deleted)
	}
}
