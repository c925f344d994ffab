// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package realtime

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mapcanvas/viewcache/internal/geomap"
	"github.com/mapcanvas/viewcache/internal/logging"
	"github.com/mapcanvas/viewcache/internal/metrics"
)

// Handlers receives decoded invalidation messages. Both callbacks run on the
// channel's goroutine and must be idempotent: a duplicate or stale
// subscription delivering the same message twice is an accepted
// inefficiency, not a correctness hazard.
type Handlers struct {
	OnRegionChanged func(changes []ItemRegionChange)
	OnItemsDeleted  func(ids []geomap.DataId)
}

// Channel subscribes one map session to its invalidation topics. A channel
// is scoped to (mapId, mapKind); a map-kind switch tears this one down and
// opens a new one.
type Channel struct {
	bus   Bus
	mapID string
	kind  geomap.MapKind
	log   zerolog.Logger
}

// NewChannel creates a channel for the given map and kind.
func NewChannel(bus Bus, mapID string, kind geomap.MapKind) *Channel {
	return &Channel{
		bus:   bus,
		mapID: mapID,
		kind:  kind,
		log: logging.With().
			Str("component", "realtime").
			Str("map_id", mapID).
			Str("map_kind", string(kind)).
			Logger(),
	}
}

// Run subscribes to both topics and dispatches messages to the handlers
// until the context is canceled or both subscriptions close. Messages are
// acked unconditionally: the session has no useful redelivery semantics for
// invalidations, and handlers tolerate duplicates.
func (c *Channel) Run(ctx context.Context, h Handlers) error {
	regionTopic := Topic(c.mapID, c.kind, MessageTypeItemRegionChanged)
	regionMsgs, err := c.bus.Subscribe(ctx, regionTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", regionTopic, err)
	}

	deleteTopic := Topic(c.mapID, c.kind, MessageTypeItemDeleted)
	deleteMsgs, err := c.bus.Subscribe(ctx, deleteTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", deleteTopic, err)
	}

	c.log.Debug().Msg("invalidation channel subscribed")

	for regionMsgs != nil || deleteMsgs != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-regionMsgs:
			if !ok {
				regionMsgs = nil
				continue
			}
			metrics.InvalidationMessages.WithLabelValues(string(MessageTypeItemRegionChanged)).Inc()
			changes, err := UnmarshalRegionChanged(msg.Payload)
			msg.Ack()
			if err != nil {
				c.log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping malformed region-changed message")
				continue
			}
			if h.OnRegionChanged != nil {
				h.OnRegionChanged(changes)
			}

		case msg, ok := <-deleteMsgs:
			if !ok {
				deleteMsgs = nil
				continue
			}
			metrics.InvalidationMessages.WithLabelValues(string(MessageTypeItemDeleted)).Inc()
			deleted, err := UnmarshalItemsDeleted(msg.Payload)
			msg.Ack()
			if err != nil {
				c.log.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping malformed item-deleted message")
				continue
			}
			if h.OnItemsDeleted != nil {
				h.OnItemsDeleted(deleted.IDs)
			}
		}
	}
	return nil
}
