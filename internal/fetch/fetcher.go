// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

// Package fetch consumes the upstream fetch-items operation. The operation
// is idempotent and side-effect free from the cache's perspective; all
// state lives in the session that issued the request.
package fetch

import (
	"context"
	"errors"

	"github.com/mapcanvas/viewcache/internal/geomap"
)

// FetchRequest is one batched load: the current extent and zoom plus the
// ids of every data source that still needs this region. One request covers
// all of them; the orchestrator never fans out per data source.
type FetchRequest struct {
	MapID         string         `json:"mapId"`
	MapKind       geomap.MapKind `json:"mapKind"`
	Extent        geomap.Extent  `json:"extent"`
	Zoom          float64        `json:"zoom"`
	DataSourceIDs []string       `json:"dataSourceIds"`
}

// FetchResult carries the items intersecting the requested extent.
type FetchResult struct {
	Items []geomap.Item `json:"items"`
}

// Fetcher is the upstream fetch-items operation.
type Fetcher interface {
	FetchItems(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// ErrorKind classifies fetch failures for the session's error surface.
type ErrorKind string

const (
	// KindTransport covers network failures and non-2xx server responses.
	// Recoverable: state is left unchanged and the next natural trigger
	// retries.
	KindTransport ErrorKind = "transport"

	// KindSession covers expired or invalid authentication. Not retried;
	// surfaced as a blocking state requiring reconnection.
	KindSession ErrorKind = "session"

	// KindUnknownMap covers requests naming a map the upstream does not
	// know. Not retried.
	KindUnknownMap ErrorKind = "unknown-map"
)

// Error is a classified fetch failure.
type Error struct {
	Kind   ErrorKind
	Status int
	Err    error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the error kind, defaulting to transport for unclassified
// failures (context cancellation, connection resets, breaker-open).
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransport
}
