// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package render

import (
	"context"
	"testing"
	"time"

	"github.com/mapcanvas/viewcache/internal/geomap"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func attachClient(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := &Client{hub: hub, send: make(chan Message, 16)}
	hub.Register <- client

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for client registration")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return client
}

func receive(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case msg := <-client.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a hub message")
		return Message{}
	}
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub := startHub(t)
	first := attachClient(t, hub)
	second := attachClient(t, hub)

	hub.Broadcast(Message{Type: MessageTypeFeaturesAdded})

	if got := receive(t, first).Type; got != MessageTypeFeaturesAdded {
		t.Errorf("first client got %q", got)
	}
	if got := receive(t, second).Type; got != MessageTypeFeaturesAdded {
		t.Errorf("second client got %q", got)
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub := startHub(t)
	client := attachClient(t, hub)

	hub.Unregister <- client

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for unregistration")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel, got a message")
		}
	case <-time.After(2 * time.Second):
		t.Error("send channel was not closed")
	}
}

func TestHubRendererMessageTypes(t *testing.T) {
	hub := startHub(t)
	client := attachClient(t, hub)
	renderer := NewHubRenderer(hub)

	id := geomap.DataId{ID: "a1", DataSourceID: "ds-a"}
	feature := Feature{ID: id}

	renderer.AddFeatures([]Feature{feature})
	if got := receive(t, client).Type; got != MessageTypeFeaturesAdded {
		t.Errorf("add broadcast type = %q", got)
	}
	renderer.UpdateFeatures([]Feature{feature})
	if got := receive(t, client).Type; got != MessageTypeFeaturesUpdated {
		t.Errorf("update broadcast type = %q", got)
	}
	renderer.RemoveFeatures([]geomap.DataId{id})
	if got := receive(t, client).Type; got != MessageTypeFeaturesRemoved {
		t.Errorf("remove broadcast type = %q", got)
	}
	renderer.Clear()
	if got := receive(t, client).Type; got != MessageTypeRenderCleared {
		t.Errorf("clear broadcast type = %q", got)
	}
}

func TestHubRendererSkipsEmptyDiffs(t *testing.T) {
	hub := startHub(t)
	client := attachClient(t, hub)
	renderer := NewHubRenderer(hub)

	renderer.AddFeatures(nil)
	renderer.UpdateFeatures([]Feature{})
	renderer.RemoveFeatures(nil)

	select {
	case msg := <-client.send:
		t.Errorf("empty diff produced a broadcast: %v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
