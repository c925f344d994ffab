// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

// Package region tracks which spatial regions of which data sources have
// already been fetched into the item store.
package region

import (
	"sync"

	"github.com/mapcanvas/viewcache/internal/geomap"
	"github.com/mapcanvas/viewcache/internal/metrics"
)

// LoadedRegion records that all items of DataSourceID intersecting Extent
// are known to the item store as of the last successful fetch.
type LoadedRegion struct {
	DataSourceID string        `json:"dataSourceId"`
	Extent       geomap.Extent `json:"extent"`
}

// Ledger is the per-session set of loaded regions. Entries may overlap;
// no coalescing is performed. Redundant entries (fully contained by a newer
// entry for the same data source) are pruned when the newer entry is
// recorded.
//
// A Ledger is owned by exactly one map session. The mutex only guards
// against the session loop and HTTP snapshot reads, not concurrent mutation.
type Ledger struct {
	mu      sync.Mutex
	entries []LoadedRegion
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// RecordLoaded appends an entry after a successful fetch for that region.
// Existing entries for the same data source that the new extent fully
// contains are dropped as redundant.
func (l *Ledger) RecordLoaded(dataSourceID string, extent geomap.Extent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.DataSourceID == dataSourceID && extent.Contains(e.Extent) {
			continue
		}
		kept = append(kept, e)
	}
	l.entries = append(kept, LoadedRegion{DataSourceID: dataSourceID, Extent: extent})
	metrics.LedgerEntries.Set(float64(len(l.entries)))
}

// IsRegionLoaded reports whether some single existing entry for the data
// source fully contains the extent. Containment is all-or-nothing: a
// viewport mostly covered by several entries still reports false unless one
// prior entry covers all of it, which favors a redundant fetch over a
// partial one.
func (l *Ledger) IsRegionLoaded(dataSourceID string, extent geomap.Extent) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.DataSourceID != dataSourceID {
			continue
		}
		if geomap.Containment(e.Extent, extent) == geomap.BInsideA {
			metrics.LedgerLookups.WithLabelValues("hit").Inc()
			return true
		}
	}
	metrics.LedgerLookups.WithLabelValues("miss").Inc()
	return false
}

// Invalidate removes every entry related to some same-data-source target by
// full containment in either direction (target inside entry, entry inside
// target, or equal), and returns the affected data source ids. Targets
// referencing data sources with no entries are ignored.
//
// Containment-only invalidation is intentional and matches the upstream
// contract: a changed region that merely intersects an entry does not clear
// it. The precision gap is pinned by tests; do not widen this to
// Intersects without revisiting callers that reload whole data sources on
// change.
func (l *Ledger) Invalidate(targets []LoadedRegion) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	affected := make(map[string]bool)
	kept := l.entries[:0]
	removed := 0
	for _, e := range l.entries {
		if invalidatedBy(e, targets) {
			affected[e.DataSourceID] = true
			removed++
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept

	if removed > 0 {
		metrics.LedgerInvalidations.Add(float64(removed))
		metrics.LedgerEntries.Set(float64(len(l.entries)))
	}

	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	return ids
}

func invalidatedBy(e LoadedRegion, targets []LoadedRegion) bool {
	for _, t := range targets {
		if t.DataSourceID != e.DataSourceID {
			continue
		}
		if geomap.Containment(e.Extent, t.Extent) != geomap.ContainsNeither {
			return true
		}
	}
	return false
}

// Clear drops all entries. Used on full data source reset, e.g. a map-kind
// switch.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	metrics.LedgerEntries.Set(0)
}

// Entries returns a snapshot copy of all ledger entries.
func (l *Ledger) Entries() []LoadedRegion {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LoadedRegion, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of ledger entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
