// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

// Package metrics provides Prometheus metrics for the viewport cache.
//
// Collectors are registered with the default registry via promauto and
// exposed on /metrics through promhttp. Labels are kept low-cardinality:
// lookup results, fetch outcomes and message types only, never item or
// session identifiers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerLookups counts IsRegionLoaded calls by result (hit/miss).
	LedgerLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viewcache_ledger_lookups_total",
		Help: "Loaded-region ledger lookups partitioned by result",
	}, []string{"result"})

	// LedgerEntries tracks the current number of ledger entries.
	LedgerEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "viewcache_ledger_entries",
		Help: "Current number of loaded-region ledger entries",
	})

	// LedgerInvalidations counts ledger entries removed by invalidation messages.
	LedgerInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viewcache_ledger_invalidations_total",
		Help: "Ledger entries removed by push invalidation",
	})

	// StoreItems tracks the current item store size.
	StoreItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "viewcache_store_items",
		Help: "Current number of items held by the item store",
	})

	// StoreMerges counts merge outcomes (inserted/updated/stale).
	StoreMerges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viewcache_store_merges_total",
		Help: "Item store merge outcomes",
	}, []string{"outcome"})

	// StyleCacheLookups counts style cache lookups by result (hit/miss).
	StyleCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viewcache_style_cache_lookups_total",
		Help: "Style cache lookups partitioned by result",
	}, []string{"result"})

	// Fetches counts upstream item fetches by outcome (success/failure).
	Fetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viewcache_fetches_total",
		Help: "Upstream fetch-items requests partitioned by outcome",
	}, []string{"outcome"})

	// FetchDuration observes upstream fetch latency.
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "viewcache_fetch_duration_seconds",
		Help:    "Upstream fetch-items request latency",
		Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 10},
	})

	// InvalidationMessages counts consumed pub/sub messages by type.
	InvalidationMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viewcache_invalidation_messages_total",
		Help: "Push invalidation messages consumed, by message type",
	}, []string{"type"})

	// WebsocketClients tracks currently attached render viewers.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "viewcache_websocket_clients",
		Help: "Currently connected websocket render viewers",
	})

	// ActiveSessions tracks live map sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "viewcache_sessions_active",
		Help: "Currently active map sessions",
	})
)
