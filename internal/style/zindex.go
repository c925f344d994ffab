// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package style

import (
	"sort"

	"github.com/mapcanvas/viewcache/internal/geomap"
)

// RankByDepth builds the item-id -> z-index map: items are ranked by
// descending anchor Y so that visually lower points draw on top,
// approximating a 2.5D depth cue. Ties break on id key to keep the ranking
// deterministic across recomputations.
//
// The map requires a global sort, so callers recompute it when the item set
// changes, not per style lookup.
func RankByDepth(items []geomap.Item) map[string]int {
	sorted := make([]geomap.Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		yi, yj := sorted[i].Geometry.Anchor().Y(), sorted[j].Geometry.Anchor().Y()
		if yi != yj {
			return yi > yj
		}
		return sorted[i].ID.Key() < sorted[j].ID.Key()
	})

	rank := make(map[string]int, len(sorted))
	for i, it := range sorted {
		rank[it.ID.Key()] = i
	}
	return rank
}
