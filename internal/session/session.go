// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

// Package session owns the viewport load orchestration for one map view:
// the loaded-region ledger, the item store and the style cache, driven by
// viewport settles and push invalidations through a single event loop.
package session

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/mapcanvas/viewcache/internal/fetch"
	"github.com/mapcanvas/viewcache/internal/geomap"
	"github.com/mapcanvas/viewcache/internal/itemstore"
	"github.com/mapcanvas/viewcache/internal/logging"
	"github.com/mapcanvas/viewcache/internal/realtime"
	"github.com/mapcanvas/viewcache/internal/region"
	"github.com/mapcanvas/viewcache/internal/render"
	"github.com/mapcanvas/viewcache/internal/style"
)

// webMercatorBaseResolution is the zoom-0 resolution in meters per pixel.
const webMercatorBaseResolution = 156543.03392804097

// Viewport is the settled view: extent plus zoom level.
type Viewport struct {
	Extent geomap.Extent `json:"extent"`
	Zoom   float64       `json:"zoom"`
}

// Config describes the map a session views.
type Config struct {
	MapID          string
	MapKind        geomap.MapKind
	DataSources    []geomap.DataSource
	DefaultIcons   map[geomap.MapKind]geomap.IconKey
	DisableLabels  bool
	LabelWrapWidth int
}

// Dependencies are the session's external collaborators.
type Dependencies struct {
	Fetcher  fetch.Fetcher
	Bus      realtime.Bus
	Renderer render.Renderer
	Errors   ErrorSink
}

// MapSession exclusively owns one ledger, one item store and one style
// cache. Multiple embedded map instances each get their own session; the
// components are constructor-injected, never looked up from a process-wide
// registry.
//
// All mutation happens on the session loop goroutine. Public methods post
// events and return immediately; reads (SnapshotItems, LedgerEntries) go
// through the components' own locks.
type MapSession struct {
	id  string
	log zerolog.Logger

	ledger   *region.Ledger
	store    *itemstore.Store
	styles   *style.Cache
	resolver *style.Resolver

	fetcher  fetch.Fetcher
	bus      realtime.Bus
	renderer render.Renderer
	errs     ErrorSink

	events chan event

	// Everything below is owned by the loop goroutine.
	mapID         string
	mapKind       geomap.MapKind
	dataSources   map[string]*geomap.DataSource
	orderedIDs    []string
	visibleIDs    []string
	visibleDirty  bool
	viewport      *Viewport
	selected      *geomap.DataId
	filter        *style.Filter
	zRank         map[string]int
	zRankDirty    bool
	epoch         uint64
	fetchSeq      uint64
	dsFetchSeq    map[string]uint64
	channelCancel context.CancelFunc

	done chan struct{}
}

type event interface{ isEvent() }

type viewportSettledEvent struct{ vp Viewport }
type reloadLatestEvent struct{}
type fetchDoneEvent struct {
	epoch  uint64
	seq    uint64
	scope  itemstore.ReloadScope
	result fetch.FetchResult
	err    error
}
type regionsChangedEvent struct{ changes []realtime.ItemRegionChange }
type itemsDeletedEvent struct{ ids []geomap.DataId }
type setVisibilityEvent struct {
	dataSourceID string
	visible      bool
}
type switchMapKindEvent struct{ kind geomap.MapKind }
type selectItemEvent struct{ id *geomap.DataId }
type setFilterEvent struct{ filter *style.Filter }
type barrierEvent struct{ reply chan struct{} }

func (viewportSettledEvent) isEvent() {}
func (reloadLatestEvent) isEvent()    {}
func (fetchDoneEvent) isEvent()       {}
func (regionsChangedEvent) isEvent()  {}
func (itemsDeletedEvent) isEvent()    {}
func (setVisibilityEvent) isEvent()   {}
func (switchMapKindEvent) isEvent()   {}
func (selectItemEvent) isEvent()      {}
func (setFilterEvent) isEvent()       {}
func (barrierEvent) isEvent()         {}

// New constructs a session. Run must be called before events have effect.
func New(id string, cfg Config, deps Dependencies) *MapSession {
	if deps.Renderer == nil {
		deps.Renderer = render.NopRenderer{}
	}
	if deps.Errors == nil {
		deps.Errors = LogSink{}
	}

	styles := style.NewCache()
	s := &MapSession{
		id:       id,
		ledger:   region.NewLedger(),
		store:    itemstore.NewStore(),
		styles:   styles,
		fetcher:  deps.Fetcher,
		bus:      deps.Bus,
		renderer: deps.Renderer,
		errs:     deps.Errors,
		events:   make(chan event, 128),
		mapID:    cfg.MapID,
		mapKind:  cfg.MapKind,
		done:     make(chan struct{}),
		log: logging.With().
			Str("component", "session").
			Str("session_id", id).
			Str("map_id", cfg.MapID).
			Logger(),
	}
	s.resolver = style.NewResolver(styles, style.ResolverConfig{
		MapKind:        cfg.MapKind,
		DataSources:    cfg.DataSources,
		DefaultIcons:   cfg.DefaultIcons,
		DisableLabels:  cfg.DisableLabels,
		LabelWrapWidth: cfg.LabelWrapWidth,
	})
	s.dataSources = make(map[string]*geomap.DataSource, len(cfg.DataSources))
	for i := range cfg.DataSources {
		ds := cfg.DataSources[i]
		s.dataSources[ds.DataSourceID] = &ds
		s.orderedIDs = append(s.orderedIDs, ds.DataSourceID)
	}
	s.visibleDirty = true
	s.zRank = map[string]int{}
	s.dsFetchSeq = map[string]uint64{}
	return s
}

// ID returns the session identifier.
func (s *MapSession) ID() string { return s.id }

// Run processes events until the context is canceled. It owns the
// invalidation subscription for the active map kind and re-establishes it
// on every map-kind switch.
func (s *MapSession) Run(ctx context.Context) error {
	defer close(s.done)
	s.startChannel(ctx)
	defer s.stopChannel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

// Done is closed when the loop has exited.
func (s *MapSession) Done() <-chan struct{} { return s.done }

func (s *MapSession) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// ViewportSettled reports a pan/zoom settling on a new viewport.
func (s *MapSession) ViewportSettled(extent geomap.Extent, zoom float64) {
	s.post(viewportSettledEvent{vp: Viewport{Extent: extent, Zoom: zoom}})
}

// ReloadLatest re-runs the coverage check for the current viewport. This is
// the manual retry path after a fetch failure.
func (s *MapSession) ReloadLatest() {
	s.post(reloadLatestEvent{})
}

// SetDataSourceVisibility toggles a data source. Any change resets the
// ledger, store and render layer: a changed data source set has no
// meaningful partial-coverage relationship to the old ledger.
func (s *MapSession) SetDataSourceVisibility(dataSourceID string, visible bool) {
	s.post(setVisibilityEvent{dataSourceID: dataSourceID, visible: visible})
}

// SwitchMapKind switches between the Real and Virtual coordinate systems.
func (s *MapSession) SwitchMapKind(kind geomap.MapKind) {
	s.post(switchMapKindEvent{kind: kind})
}

// SelectItem marks an item selected (nil clears). Selection influences
// cluster main-item choice and forces the selected color.
func (s *MapSession) SelectItem(id *geomap.DataId) {
	s.post(selectItemEvent{id: id})
}

// SetFilter installs or clears the active item filter.
func (s *MapSession) SetFilter(filter *style.Filter) {
	s.post(setFilterEvent{filter: filter})
}

// SnapshotItems returns the current item set.
func (s *MapSession) SnapshotItems() []geomap.Item {
	return s.store.Snapshot()
}

// LedgerEntries returns the current loaded-region entries.
func (s *MapSession) LedgerEntries() []region.LoadedRegion {
	return s.ledger.Entries()
}

// barrier blocks until every previously posted event has been handled.
func (s *MapSession) barrier() {
	reply := make(chan struct{})
	s.post(barrierEvent{reply: reply})
	select {
	case <-reply:
	case <-s.done:
	}
}

func (s *MapSession) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case viewportSettledEvent:
		s.viewport = &ev.vp
		s.checkAndFetch(ctx, nil)

	case reloadLatestEvent:
		s.checkAndFetch(ctx, nil)

	case fetchDoneEvent:
		s.finishFetch(ev)

	case regionsChangedEvent:
		s.applyRegionChanges(ctx, ev.changes)

	case itemsDeletedEvent:
		s.applyDeletes(ev.ids)

	case setVisibilityEvent:
		ds, ok := s.dataSources[ev.dataSourceID]
		if !ok || ds.Visible == ev.visible {
			return
		}
		ds.Visible = ev.visible
		s.visibleDirty = true
		s.resetAndRecheck(ctx)

	case switchMapKindEvent:
		if ev.kind == s.mapKind {
			return
		}
		s.mapKind = ev.kind
		s.resolver.SetMapKind(ev.kind)
		s.stopChannel()
		s.startChannel(ctx)
		s.resetAndRecheck(ctx)

	case selectItemEvent:
		s.selected = ev.id
		s.restyleAll()

	case setFilterEvent:
		s.filter = ev.filter
		s.restyleAll()

	case barrierEvent:
		close(ev.reply)
	}
}

// visibleDataSourceIDs is recomputed lazily on first read after a
// visibility change, preserving the configured order.
func (s *MapSession) visibleDataSourceIDs() []string {
	if s.visibleDirty {
		s.visibleIDs = s.visibleIDs[:0]
		for _, id := range s.orderedIDs {
			if s.dataSources[id].Visible {
				s.visibleIDs = append(s.visibleIDs, id)
			}
		}
		s.visibleDirty = false
	}
	return s.visibleIDs
}

// checkAndFetch is the Checking state: partition visible data sources into
// covered and needs-fetch, then issue one batched fetch for the latter.
// restrict, when non-nil, limits the check to the named data sources.
func (s *MapSession) checkAndFetch(ctx context.Context, restrict map[string]bool) {
	if s.viewport == nil || s.fetcher == nil {
		return
	}

	var needs []string
	for _, id := range s.visibleDataSourceIDs() {
		if restrict != nil && !restrict[id] {
			continue
		}
		if !s.ledger.IsRegionLoaded(id, s.viewport.Extent) {
			needs = append(needs, id)
		}
	}
	if len(needs) == 0 {
		return
	}
	s.startFetch(ctx, *s.viewport, needs)
}

// startFetch is the Fetching state. The fetch runs off-loop; its result
// re-enters as an event. In-flight fetches are never canceled when
// superseded: a reset bumps the epoch and discards the result wholesale,
// while a later overlapping fetch bumps the per-data-source sequence so the
// older response merges its items but loses the right to prune (see
// finishFetch). The store's LastEditedTime guard reconciles the merges.
func (s *MapSession) startFetch(ctx context.Context, vp Viewport, dataSourceIDs []string) {
	epoch := s.epoch
	s.fetchSeq++
	seq := s.fetchSeq
	for _, id := range dataSourceIDs {
		s.dsFetchSeq[id] = seq
	}
	scope := itemstore.ReloadScope{Extent: vp.Extent, DataSourceIDs: dataSourceIDs}
	req := fetch.FetchRequest{
		MapID:         s.mapID,
		MapKind:       s.mapKind,
		Extent:        vp.Extent,
		Zoom:          vp.Zoom,
		DataSourceIDs: dataSourceIDs,
	}

	s.log.Debug().
		Floats64("extent", vp.Extent[:]).
		Strs("data_sources", dataSourceIDs).
		Msg("fetching uncovered region")

	go func() {
		result, err := s.fetcher.FetchItems(ctx, req)
		s.post(fetchDoneEvent{epoch: epoch, seq: seq, scope: scope, result: result, err: err})
	}()
}

func (s *MapSession) finishFetch(ev fetchDoneEvent) {
	if ev.epoch != s.epoch {
		// The data source set or map kind changed while this fetch was in
		// flight; its scope no longer describes anything current.
		s.log.Debug().Msg("discarding fetch response from a superseded epoch")
		return
	}
	if ev.err != nil {
		// Ledger deliberately untouched: the next viewport settle or manual
		// reload retries naturally.
		s.log.Warn().Err(ev.err).Msg("fetch failed")
		s.errs.RaiseError(classifyFetchError(ev.err))
		return
	}

	// A data source whose latest issued fetch is newer than this response
	// may already hold that fetch's items; letting the older response prune
	// would drop them. Prune and ledger coverage apply only where this
	// response is still the latest word; everywhere else the items merge.
	current := make([]string, 0, len(ev.scope.DataSourceIDs))
	for _, id := range ev.scope.DataSourceIDs {
		if s.dsFetchSeq[id] == ev.seq {
			current = append(current, id)
		}
	}

	var diff itemstore.Diff
	if len(current) == 0 {
		s.log.Debug().Msg("merging fetch response superseded by a later overlapping fetch")
		diff = s.store.Merge(ev.result.Items)
	} else {
		diff = s.store.ApplyFetch(ev.result.Items, itemstore.ReloadScope{
			Extent:        ev.scope.Extent,
			DataSourceIDs: current,
		})
	}
	for _, id := range current {
		s.ledger.RecordLoaded(id, ev.scope.Extent)
	}
	if !diff.Empty() {
		s.zRankDirty = true
		s.renderDiff(diff)
	}
}

func (s *MapSession) applyRegionChanges(ctx context.Context, changes []realtime.ItemRegionChange) {
	targets := make([]region.LoadedRegion, len(changes))
	for i, c := range changes {
		targets[i] = region.LoadedRegion{DataSourceID: c.DataSourceID, Extent: c.Extent}
	}

	affected := s.ledger.Invalidate(targets)
	if len(affected) == 0 {
		// Nothing we ever loaded: nothing to invalidate.
		return
	}

	restrict := make(map[string]bool, len(affected))
	for _, id := range affected {
		restrict[id] = true
	}
	s.checkAndFetch(ctx, restrict)
}

func (s *MapSession) applyDeletes(ids []geomap.DataId) {
	removed := s.store.Remove(ids)
	if len(removed) == 0 {
		return
	}
	s.zRankDirty = true
	s.renderer.RemoveFeatures(removed)
}

// resetAndRecheck implements the full reset on map-kind switch or data
// source visibility change, then re-enters Checking immediately.
func (s *MapSession) resetAndRecheck(ctx context.Context) {
	s.epoch++
	s.ledger.Clear()
	s.store.Reset()
	s.renderer.Clear()
	s.zRank = map[string]int{}
	s.zRankDirty = false
	s.dsFetchSeq = map[string]uint64{}
	s.checkAndFetch(ctx, nil)
}

func (s *MapSession) currentZRank() map[string]int {
	if s.zRankDirty {
		s.zRank = style.RankByDepth(s.store.Snapshot())
		s.zRankDirty = false
	}
	return s.zRank
}

// resolution converts the viewport zoom to a Web Mercator ground resolution
// in meters per pixel. Virtual maps use pixel coordinates rather than
// projected meters, but style thresholds only need a value that decreases
// monotonically with zoom, so the same curve serves both map kinds.
func (s *MapSession) resolution() float64 {
	if s.viewport == nil {
		return webMercatorBaseResolution
	}
	return webMercatorBaseResolution / math.Exp2(s.viewport.Zoom)
}

func (s *MapSession) styleFor(item geomap.Item, rank map[string]int) style.FeatureStyle {
	forced := style.ColorNone
	if s.selected != nil && *s.selected == item.ID {
		forced = style.ColorSelected
	}
	return s.resolver.Resolve(style.ResolveInput{
		Cluster:    []geomap.Item{item},
		Selected:   s.selected,
		Filter:     s.filter,
		Forced:     forced,
		Resolution: s.resolution(),
		ZRank:      rank,
	})
}

func (s *MapSession) featuresFor(items []geomap.Item) []render.Feature {
	rank := s.currentZRank()
	features := make([]render.Feature, len(items))
	for i, item := range items {
		features[i] = render.Feature{
			ID:       item.ID,
			Geometry: item.Geometry,
			Style:    s.styleFor(item, rank),
		}
	}
	return features
}

// renderDiff pushes the incremental change set, never the whole item set:
// recreating every feature on each load is the performance hazard the diff
// exists to avoid.
func (s *MapSession) renderDiff(diff itemstore.Diff) {
	if len(diff.Added) > 0 {
		s.renderer.AddFeatures(s.featuresFor(diff.Added))
	}
	if len(diff.Updated) > 0 {
		s.renderer.UpdateFeatures(s.featuresFor(diff.Updated))
	}
	if len(diff.Removed) > 0 {
		s.renderer.RemoveFeatures(diff.Removed)
	}
}

// restyleAll refreshes the style of every current feature. Selection and
// filter changes alter styles without changing the item set.
func (s *MapSession) restyleAll() {
	items := s.store.Snapshot()
	if len(items) == 0 {
		return
	}
	s.renderer.UpdateFeatures(s.featuresFor(items))
}

func (s *MapSession) startChannel(ctx context.Context) {
	if s.bus == nil {
		return
	}
	channelCtx, cancel := context.WithCancel(ctx)
	s.channelCancel = cancel

	ch := realtime.NewChannel(s.bus, s.mapID, s.mapKind)
	go func() {
		err := ch.Run(channelCtx, realtime.Handlers{
			OnRegionChanged: func(changes []realtime.ItemRegionChange) {
				s.post(regionsChangedEvent{changes: changes})
			},
			OnItemsDeleted: func(ids []geomap.DataId) {
				s.post(itemsDeletedEvent{ids: ids})
			},
		})
		if err != nil && ctx.Err() == nil && channelCtx.Err() == nil {
			s.log.Error().Err(err).Msg("invalidation channel closed unexpectedly")
		}
	}()
}

func (s *MapSession) stopChannel() {
	if s.channelCancel != nil {
		s.channelCancel()
		s.channelCancel = nil
	}
}
