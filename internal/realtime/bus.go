// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package realtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Bus is the pub/sub surface the invalidation channel consumes. Two
// constructions exist: an in-process Watermill gochannel (embedded use and
// tests) and a NATS JetStream bus (shared deployments).
type Bus interface {
	Publish(topic string, messages ...*message.Message) error
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

// NewGoChannelBus creates an in-process bus. Messages published before a
// subscriber attaches are dropped, mirroring broker behavior for
// non-durable consumers.
func NewGoChannelBus(logger LoggerAdapter) Bus {
	if logger == nil {
		logger = NopLogger()
	}
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, logger)
}
