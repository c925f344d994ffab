// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

// Package itemstore holds the authoritative in-memory set of map items for
// one session and computes the renderer-facing diff after each load.
package itemstore

import (
	"sort"
	"sync"

	"github.com/mapcanvas/viewcache/internal/geomap"
	"github.com/mapcanvas/viewcache/internal/metrics"
)

// ReloadScope describes the region a fetch just covered: the requested
// extent and the data sources the request carried. Diff-based removal is
// strictly limited to this scope; an item missing from a partial reload is
// not evidence of deletion.
type ReloadScope struct {
	Extent        geomap.Extent
	DataSourceIDs []string
}

func (s ReloadScope) hasDataSource(id string) bool {
	for _, ds := range s.DataSourceIDs {
		if ds == id {
			return true
		}
	}
	return false
}

// Diff is the renderer-facing change set produced by a load. Removed carries
// ids only; the renderer holds no item state beyond feature ids.
type Diff struct {
	Added   []geomap.Item
	Updated []geomap.Item
	Removed []geomap.DataId
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Store is the id -> item map for one map session. Records are replaced
// whole, never patched; LastEditedTime decides whether an incoming record
// supersedes the cached one, so late responses from superseded fetches
// cannot clobber fresher data.
type Store struct {
	mu    sync.RWMutex
	items map[string]geomap.Item
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string]geomap.Item)}
}

// Merge inserts or overwrites records by id. It never removes anything: an
// extent-scoped fetch can only prove presence, not absence. Incoming records
// older than the stored one (by LastEditedTime) are discarded; that guard,
// not arrival order, reconciles overlapping in-flight fetches.
func (s *Store) Merge(items []geomap.Item) Diff {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(items)
}

func (s *Store) mergeLocked(items []geomap.Item) Diff {
	var diff Diff
	for _, incoming := range items {
		key := incoming.ID.Key()
		existing, ok := s.items[key]
		switch {
		case !ok:
			s.items[key] = incoming
			diff.Added = append(diff.Added, incoming)
			metrics.StoreMerges.WithLabelValues("inserted").Inc()
		case existing.LastEditedTime.After(incoming.LastEditedTime):
			// Stale response from a superseded fetch.
			metrics.StoreMerges.WithLabelValues("stale").Inc()
		case existing.LastEditedTime.Equal(incoming.LastEditedTime):
			s.items[key] = incoming
		default:
			s.items[key] = incoming
			diff.Updated = append(diff.Updated, incoming)
			metrics.StoreMerges.WithLabelValues("updated").Inc()
		}
	}
	metrics.StoreItems.Set(float64(len(s.items)))
	return diff
}

// ApplyFetch merges a fetch result and prunes items that the reload
// disproves: an item belonging to a reloaded data source, previously located
// fully inside the reloaded extent, and absent from the result must have
// been deleted or moved away, so it is removed and reported. Items whose
// previous location was outside the scope are left untouched; panning away
// and back must not falsely prune them.
//
// Ordering is the caller's responsibility: the prune is only sound when this
// result is the latest fetch issued for every scoped data source. The session
// loop sequences overlapping fetches and downgrades superseded responses to
// Merge.
func (s *Store) ApplyFetch(items []geomap.Item, scope ReloadScope) Diff {
	s.mu.Lock()
	defer s.mu.Unlock()

	fetched := make(map[string]bool, len(items))
	for _, it := range items {
		fetched[it.ID.Key()] = true
	}

	var stale []string
	for key, existing := range s.items {
		if fetched[key] || !scope.hasDataSource(existing.ID.DataSourceID) {
			continue
		}
		if scope.Extent.Contains(existing.Extent()) {
			stale = append(stale, key)
		}
	}

	diff := s.mergeLocked(items)
	for _, key := range stale {
		diff.Removed = append(diff.Removed, s.items[key].ID)
		delete(s.items, key)
	}
	metrics.StoreItems.Set(float64(len(s.items)))
	return diff
}

// Remove deletes the given ids and returns the ids actually removed.
// Driven by explicit delete events only.
func (s *Store) Remove(ids []geomap.DataId) []geomap.DataId {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []geomap.DataId
	for _, id := range ids {
		key := id.Key()
		if _, ok := s.items[key]; ok {
			delete(s.items, key)
			removed = append(removed, id)
		}
	}
	metrics.StoreItems.Set(float64(len(s.items)))
	return removed
}

// Get returns the item with the given id.
func (s *Store) Get(id geomap.DataId) (geomap.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id.Key()]
	return item, ok
}

// Snapshot returns all items ordered by id key.
func (s *Store) Snapshot() []geomap.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]geomap.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Key() < out[j].ID.Key()
	})
	return out
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Reset drops all items. Used on map-kind switch.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]geomap.Item)
	metrics.StoreItems.Set(0)
}
