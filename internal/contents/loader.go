// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

// Package contents hydrates item detail contents on demand. The cache's
// only responsibility here is deduplicating requests by a stable key before
// delegating to the upstream get-contents operation.
package contents

import (
	"context"
	"errors"

	"github.com/mapcanvas/viewcache/internal/geomap"
)

// Content is a hydrated content record attached to an item.
type Content struct {
	ID       geomap.DataId  `json:"id"`
	ItemID   *geomap.DataId `json:"itemId,omitempty"`
	Title    string         `json:"title,omitempty"`
	Overview string         `json:"overview,omitempty"`
	HasImage bool           `json:"hasImage,omitempty"`
}

// Query asks for contents either by owning item or by content id. Exactly
// one of the two must be set.
type Query struct {
	ItemID    *geomap.DataId `json:"itemId,omitempty"`
	ContentID *geomap.DataId `json:"contentId,omitempty"`
}

// ErrEmptyQuery is returned for a query naming neither an item nor a content.
var ErrEmptyQuery = errors.New("content query names neither item nor content")

// Key returns the stable dedup key derived from the composite id.
func (q Query) Key() (string, error) {
	switch {
	case q.ItemID != nil:
		return "item:" + q.ItemID.Key(), nil
	case q.ContentID != nil:
		return "content:" + q.ContentID.Key(), nil
	default:
		return "", ErrEmptyQuery
	}
}

// Getter is the upstream get-contents operation.
type Getter interface {
	GetContents(ctx context.Context, queries []Query) ([]Content, error)
}

// Loader deduplicates content queries before delegating upstream. Detail
// views routinely ask for the same item's contents several times in one
// interaction; the upstream sees each key once.
type Loader struct {
	getter Getter
}

// NewLoader wraps an upstream getter.
func NewLoader(getter Getter) *Loader {
	return &Loader{getter: getter}
}

// Load fetches contents for the queries, collapsing duplicates while
// preserving first-occurrence order.
func (l *Loader) Load(ctx context.Context, queries []Query) ([]Content, error) {
	seen := make(map[string]bool, len(queries))
	unique := make([]Query, 0, len(queries))
	for _, q := range queries {
		key, err := q.Key()
		if err != nil {
			return nil, err
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, q)
	}
	if len(unique) == 0 {
		return nil, nil
	}
	return l.getter.GetContents(ctx, unique)
}
