// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package session

import (
	"github.com/mapcanvas/viewcache/internal/fetch"
	"github.com/mapcanvas/viewcache/internal/logging"
)

// ErrorType enumerates the errors the session surfaces to its presentation
// collaborator.
type ErrorType string

const (
	// ErrorTypeFetchFailed is a transport failure. Non-fatal: the map stays
	// visually stale until the next viewport settle, manual reload or
	// invalidation event; there is no retry timer.
	ErrorTypeFetchFailed ErrorType = "fetch-failed"

	// ErrorTypeSessionExpired requires the user to reconnect.
	ErrorTypeSessionExpired ErrorType = "session-expired"

	// ErrorTypeUnknownMap means the upstream does not know the map.
	ErrorTypeUnknownMap ErrorType = "unknown-map"
)

// AppError is the typed error surfaced on unrecoverable fetch failure.
type AppError struct {
	Type   ErrorType `json:"type"`
	Detail string    `json:"detail,omitempty"`
	UserID string    `json:"userId,omitempty"`
}

// Error implements error.
func (e AppError) Error() string {
	if e.Detail != "" {
		return string(e.Type) + ": " + e.Detail
	}
	return string(e.Type)
}

// ErrorSink receives surfaced errors. Implementations must not block; they
// are called from the session loop.
type ErrorSink interface {
	RaiseError(err AppError)
}

// LogSink logs surfaced errors. The default sink when the embedder wires no
// presentation layer.
type LogSink struct{}

// RaiseError implements ErrorSink.
func (LogSink) RaiseError(err AppError) {
	logging.Error().
		Str("error_type", string(err.Type)).
		Str("detail", err.Detail).
		Msg("session error surfaced")
}

// classifyFetchError maps a fetch failure onto the error surface enum.
func classifyFetchError(err error) AppError {
	switch fetch.KindOf(err) {
	case fetch.KindSession:
		return AppError{Type: ErrorTypeSessionExpired, Detail: err.Error()}
	case fetch.KindUnknownMap:
		return AppError{Type: ErrorTypeUnknownMap, Detail: err.Error()}
	default:
		return AppError{Type: ErrorTypeFetchFailed, Detail: err.Error()}
	}
}
