// Viewcache - Viewport-Driven Spatial Item Cache for Map Platforms
// Copyright 2026 MapCanvas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapcanvas/viewcache

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mapcanvas/viewcache/internal/fetch"
	"github.com/mapcanvas/viewcache/internal/geomap"
	"github.com/mapcanvas/viewcache/internal/realtime"
	"github.com/mapcanvas/viewcache/internal/region"
	"github.com/mapcanvas/viewcache/internal/render"
)

type fakeFetcher struct {
	mu      sync.Mutex
	reqs    []fetch.FetchRequest
	respond func(req fetch.FetchRequest, call int) (fetch.FetchResult, error)
}

func (f *fakeFetcher) FetchItems(_ context.Context, req fetch.FetchRequest) (fetch.FetchResult, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	call := len(f.reqs)
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return fetch.FetchResult{}, nil
	}
	return respond(req, call)
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeFetcher) request(i int) fetch.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[i]
}

func (f *fakeFetcher) setRespond(fn func(req fetch.FetchRequest, call int) (fetch.FetchResult, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
}

type recordingRenderer struct {
	mu      sync.Mutex
	added   [][]render.Feature
	updated [][]render.Feature
	removed [][]geomap.DataId
	clears  int
}

func (r *recordingRenderer) AddFeatures(features []render.Feature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, features)
}

func (r *recordingRenderer) UpdateFeatures(features []render.Feature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, features)
}

func (r *recordingRenderer) RemoveFeatures(ids []geomap.DataId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, ids)
}

func (r *recordingRenderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
}

func (r *recordingRenderer) removeCalls() [][]geomap.DataId {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]geomap.DataId, len(r.removed))
	copy(out, r.removed)
	return out
}

func (r *recordingRenderer) updateCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updated)
}

type collectingSink struct {
	mu   sync.Mutex
	errs []AppError
}

func (c *collectingSink) RaiseError(err AppError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collectingSink) last() (AppError, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) == 0 {
		return AppError{}, false
	}
	return c.errs[len(c.errs)-1], true
}

func testItem(ds, id string, x, y float64, edited int64) geomap.Item {
	return geomap.Item{
		ID:             geomap.DataId{ID: id, DataSourceID: ds},
		Geometry:       geomap.Geometry{Type: geomap.GeometryPoint, Coordinates: []geomap.Position{{x, y}}},
		Name:           id,
		LastEditedTime: time.Unix(edited, 0),
	}
}

func testConfig(sources ...geomap.DataSource) Config {
	return Config{
		MapID:       "map-1",
		MapKind:     geomap.MapKindReal,
		DataSources: sources,
	}
}

func visibleSource(id string) geomap.DataSource {
	return geomap.DataSource{DataSourceID: id, Kind: geomap.DataSourceKindItem, Visible: true}
}

func startSession(t *testing.T, cfg Config, deps Dependencies) *MapSession {
	t.Helper()
	sess := New("test-session", cfg, deps)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = sess.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-sess.Done()
	})
	return sess
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// publishUntil re-publishes until cond observes the effect. The gochannel
// bus drops messages published before the subscription is live, and the
// session handlers tolerate duplicates.
func publishUntil(t *testing.T, publish func() error, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := publish(); err != nil {
			t.Fatalf("publish: %v", err)
		}
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestViewportSettledFetchesAndRecordsCoverage(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.setRespond(func(req fetch.FetchRequest, _ int) (fetch.FetchResult, error) {
		return fetch.FetchResult{Items: []geomap.Item{testItem("ds-a", "a1", 10, 10, 1)}}, nil
	})
	renderer := &recordingRenderer{}
	sess := startSession(t, testConfig(visibleSource("ds-a")), Dependencies{Fetcher: fetcher, Renderer: renderer})

	extent := geomap.Extent{0, 0, 100, 100}
	sess.ViewportSettled(extent, 10)

	waitFor(t, "item to load", func() bool { return len(sess.SnapshotItems()) == 1 })
	waitFor(t, "ledger coverage", func() bool {
		return sess.LedgerEntries() != nil && len(sess.LedgerEntries()) == 1
	})

	req := fetcher.request(0)
	if req.MapID != "map-1" || req.Extent != extent || len(req.DataSourceIDs) != 1 || req.DataSourceIDs[0] != "ds-a" {
		t.Errorf("unexpected fetch request: %+v", req)
	}
}

func TestContainedViewportDoesNotRefetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	sess := startSession(t, testConfig(visibleSource("ds-a")), Dependencies{Fetcher: fetcher})

	sess.ViewportSettled(geomap.Extent{0, 0, 100, 100}, 10)
	waitFor(t, "first load", func() bool { return len(sess.LedgerEntries()) == 1 })

	sess.ViewportSettled(geomap.Extent{10, 10, 20, 20}, 12)
	sess.barrier()
	time.Sleep(50 * time.Millisecond)

	if got := fetcher.calls(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (contained viewport is already covered)", got)
	}
}

func TestPartialOverlapRefetchesWholeViewport(t *testing.T) {
	fetcher := &fakeFetcher{}
	sess := startSession(t, testConfig(visibleSource("ds-a")), Dependencies{Fetcher: fetcher})

	sess.ViewportSettled(geomap.Extent{0, 0, 100, 100}, 10)
	waitFor(t, "first load", func() bool { return len(sess.LedgerEntries()) == 1 })

	// Overlaps the loaded region but is not contained by it.
	sess.ViewportSettled(geomap.Extent{50, 50, 150, 150}, 10)
	waitFor(t, "second fetch", func() bool { return fetcher.calls() == 2 })

	if req := fetcher.request(1); req.Extent != (geomap.Extent{50, 50, 150, 150}) {
		t.Errorf("second fetch extent = %v, want the full new viewport", req.Extent)
	}
}

func TestReloadDiffDrivesIncrementalRender(t *testing.T) {
	extent := geomap.Extent{0, 0, 100, 100}
	itemA1 := testItem("ds-a", "A", 10, 10, 1)
	itemA2 := testItem("ds-a", "A", 12, 12, 2)
	itemB := testItem("ds-a", "B", 20, 20, 1)
	itemC := testItem("ds-a", "C", 30, 30, 1)

	fetcher := &fakeFetcher{}
	fetcher.setRespond(func(_ fetch.FetchRequest, call int) (fetch.FetchResult, error) {
		if call == 1 {
			return fetch.FetchResult{Items: []geomap.Item{itemA1, itemB}}, nil
		}
		return fetch.FetchResult{Items: []geomap.Item{itemA2, itemC}}, nil
	})
	renderer := &recordingRenderer{}
	sess := startSession(t, testConfig(visibleSource("ds-a")), Dependencies{Fetcher: fetcher, Renderer: renderer})

	sess.ViewportSettled(extent, 10)
	waitFor(t, "initial load", func() bool { return len(sess.SnapshotItems()) == 2 })

	// Drop the coverage entry directly, then reload the current viewport.
	sess.ledger.Invalidate([]region.LoadedRegion{{DataSourceID: "ds-a", Extent: extent}})
	sess.ReloadLatest()
	waitFor(t, "reload diff applied", func() bool { return fetcher.calls() == 2 && len(sess.SnapshotItems()) == 2 })

	items := sess.SnapshotItems()
	byID := map[string]geomap.Item{}
	for _, it := range items {
		byID[it.ID.ID] = it
	}
	if _, ok := byID["B"]; ok {
		t.Error("item B should have been pruned: it was inside the reloaded extent and absent from the result")
	}
	if got := byID["A"].LastEditedTime; !got.Equal(itemA2.LastEditedTime) {
		t.Errorf("item A LastEditedTime = %v, want updated %v", got, itemA2.LastEditedTime)
	}
	if _, ok := byID["C"]; !ok {
		t.Error("item C should have been added")
	}

	removes := renderer.removeCalls()
	if len(removes) != 1 || len(removes[0]) != 1 || removes[0][0].ID != "B" {
		t.Errorf("renderer removals = %v, want exactly one call removing B", removes)
	}
}

func TestRegionChangedInvalidatesAndRefetches(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.setRespond(func(_ fetch.FetchRequest, _ int) (fetch.FetchResult, error) {
		return fetch.FetchResult{Items: []geomap.Item{testItem("ds-a", "a1", 10, 10, 1)}}, nil
	})
	bus := realtime.NewGoChannelBus(realtime.NopLogger())
	sess := startSession(t, testConfig(visibleSource("ds-a")), Dependencies{Fetcher: fetcher, Bus: bus})

	sess.ViewportSettled(geomap.Extent{0, 0, 100, 100}, 10)
	waitFor(t, "initial load", func() bool { return len(sess.LedgerEntries()) == 1 })

	// A change contained in the loaded region invalidates it and triggers a
	// refetch of the current viewport.
	publishUntil(t, func() error {
		return realtime.PublishRegionChanged(bus, "map-1", geomap.MapKindReal, []realtime.ItemRegionChange{
			{DataSourceID: "ds-a", Extent: geomap.Extent{10, 10, 20, 20}},
		})
	}, "invalidation refetch", func() bool { return fetcher.calls() >= 2 })
}

func TestRegionChangedForUnloadedDataSourceIsIgnored(t *testing.T) {
	fetcher := &fakeFetcher{}
	bus := realtime.NewGoChannelBus(realtime.NopLogger())
	sess := startSession(t, testConfig(visibleSource("ds-a")), Dependencies{Fetcher: fetcher, Bus: bus})

	sess.ViewportSettled(geomap.Extent{0, 0, 100, 100}, 10)
	waitFor(t, "initial load", func() bool { return len(sess.LedgerEntries()) == 1 })

	// Negative assertion: publish a handful of times and verify nothing moved.
	for i := 0; i < 5; i++ {
		err := realtime.PublishRegionChanged(bus, "map-1", geomap.MapKindReal, []realtime.ItemRegionChange{
			{DataSourceID: "ds-other", Extent: geomap.Extent{10, 10, 20, 20}},
		})
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	sess.barrier()
	if got := fetcher.calls(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (unknown data source never invalidates)", got)
	}
	if got := len(sess.LedgerEntries()); got != 1 {
		t.Errorf("ledger entries = %d, want 1", got)
	}
}

func TestItemsDeletedRemovesFromStoreAndRenderer(t *testing.T) {
	target := geomap.DataId{ID: "a1", DataSourceID: "ds-a"}
	fetcher := &fakeFetcher{}
	fetcher.setRespond(func(_ fetch.FetchRequest, _ int) (fetch.FetchResult, error) {
		return fetch.FetchResult{Items: []geomap.Item{testItem("ds-a", "a1", 10, 10, 1)}}, nil
	})
	renderer := &recordingRenderer{}
	bus := realtime.NewGoChannelBus(realtime.NopLogger())
	sess := startSession(t, testConfig(visibleSource("ds-a")), Dependencies{Fetcher: fetcher, Renderer: renderer, Bus: bus})

	sess.ViewportSettled(geomap.Extent{0, 0, 100, 100}, 10)
	waitFor(t, "initial load", func() bool { return len(sess.SnapshotItems()) == 1 })

	publishUntil(t, func() error {
		return realtime.PublishItemsDeleted(bus, "map-1", geomap.MapKindReal, []geomap.DataId{target})
	}, "delete applied", func() bool { return len(sess.SnapshotItems()) == 0 })

	sess.barrier()
	removes := renderer.removeCalls()
	if len(removes) != 1 || len(removes[0]) != 1 || removes[0][0] != target {
		t.Errorf("renderer removals = %v, want exactly one call removing %v", removes, target)
	}
	// The ledger keeps its coverage: a delete does not unload the region.
	if got := len(sess.LedgerEntries()); got != 1 {
		t.Errorf("ledger entries = %d, want 1", got)
	}
}

func TestFetchFailureLeavesLedgerAndSurfacesError(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.setRespond(func(_ fetch.FetchRequest, _ int) (fetch.FetchResult, error) {
		return fetch.FetchResult{}, &fetch.Error{Kind: fetch.KindSession, Status: 401}
	})
	sink := &collectingSink{}
	sess := startSession(t, testConfig(visibleSource("ds-a")), Dependencies{Fetcher: fetcher, Errors: sink})

	sess.ViewportSettled(geomap.Extent{0, 0, 100, 100}, 10)
	waitFor(t, "error surfaced", func() bool { _, ok := sink.last(); return ok })

	if err, _ := sink.last(); err.Type != ErrorTypeSessionExpired {
		t.Errorf("surfaced error type = %q, want %q", err.Type, ErrorTypeSessionExpired)
	}
	if got := len(sess.LedgerEntries()); got != 0 {
		t.Errorf("ledger entries after failed fetch = %d, want 0", got)
	}

	// Manual reload retries the same viewport once the upstream recovers.
	fetcher.setRespond(func(_ fetch.FetchRequest, _ int) (fetch.FetchResult, error) {
		return fetch.FetchResult{Items: []geomap.Item{testItem("ds-a", "a1", 10, 10, 1)}}, nil
	})
	sess.ReloadLatest()
	waitFor(t, "recovery load", func() bool { return len(sess.LedgerEntries()) == 1 })
}

func TestVisibilityChangeResetsAndRefetchesVisibleOnly(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.setRespond(func(req fetch.FetchRequest, _ int) (fetch.FetchResult, error) {
		var items []geomap.Item
		for _, ds := range req.DataSourceIDs {
			items = append(items, testItem(ds, ds+"-1", 10, 10, 1))
		}
		return fetch.FetchResult{Items: items}, nil
	})
	sess := startSession(t, testConfig(visibleSource("ds-a"), visibleSource("ds-b")), Dependencies{Fetcher: fetcher})

	sess.ViewportSettled(geomap.Extent{0, 0, 100, 100}, 10)
	waitFor(t, "both sources loaded", func() bool { return len(sess.SnapshotItems()) == 2 })

	if req := fetcher.request(0); len(req.DataSourceIDs) != 2 {
		t.Fatalf("first fetch data sources = %v, want both", req.DataSourceIDs)
	}

	sess.SetDataSourceVisibility("ds-b", false)
	waitFor(t, "reset refetch", func() bool { return fetcher.calls() == 2 && len(sess.SnapshotItems()) == 1 })

	req := fetcher.request(1)
	if len(req.DataSourceIDs) != 1 || req.DataSourceIDs[0] != "ds-a" {
		t.Errorf("refetch data sources = %v, want only ds-a", req.DataSourceIDs)
	}
	if got := sess.SnapshotItems()[0].ID.DataSourceID; got != "ds-a" {
		t.Errorf("surviving item data source = %q, want ds-a", got)
	}
}

func TestUnchangedVisibilityIsNoOp(t *testing.T) {
	fetcher := &fakeFetcher{}
	sess := startSession(t, testConfig(visibleSource("ds-a")), Dependencies{Fetcher: fetcher})

	sess.ViewportSettled(geomap.Extent{0, 0, 100, 100}, 10)
	waitFor(t, "load", func() bool { return len(sess.LedgerEntries()) == 1 })

	sess.SetDataSourceVisibility("ds-a", true)
	sess.barrier()
	time.Sleep(50 * time.Millisecond)

	if got := fetcher.calls(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (setting visibility to its current value must not reset)", got)
	}
}

func TestMapKindSwitchResetsAndResubscribes(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.setRespond(func(req fetch.FetchRequest, _ int) (fetch.FetchResult, error) {
		return fetch.FetchResult{Items: []geomap.Item{testItem("ds-a", string(req.MapKind), 10, 10, 1)}}, nil
	})
	bus := realtime.NewGoChannelBus(realtime.NopLogger())
	sess := startSession(t, testConfig(visibleSource("ds-a")), Dependencies{Fetcher: fetcher, Bus: bus})

	sess.ViewportSettled(geomap.Extent{0, 0, 100, 100}, 10)
	waitFor(t, "real-kind load", func() bool { return len(sess.SnapshotItems()) == 1 })

	sess.SwitchMapKind(geomap.MapKindVirtual)
	waitFor(t, "virtual-kind reload", func() bool {
		items := sess.SnapshotItems()
		return len(items) == 1 && items[0].ID.ID == string(geomap.MapKindVirtual)
	})

	if req := fetcher.request(fetcher.calls() - 1); req.MapKind != geomap.MapKindVirtual {
		t.Errorf("refetch map kind = %q, want Virtual", req.MapKind)
	}

	// Invalidations on the new kind's topic must now reach the session.
	publishUntil(t, func() error {
		return realtime.PublishRegionChanged(bus, "map-1", geomap.MapKindVirtual, []realtime.ItemRegionChange{
			{DataSourceID: "ds-a", Extent: geomap.Extent{10, 10, 20, 20}},
		})
	}, "virtual-topic invalidation", func() bool { return fetcher.calls() >= 3 })
}

func TestResetDiscardsInFlightFetch(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{}
	fetcher.setRespond(func(_ fetch.FetchRequest, call int) (fetch.FetchResult, error) {
		if call == 1 {
			<-release
			return fetch.FetchResult{Items: []geomap.Item{testItem("ds-a", "stale", 10, 10, 9)}}, nil
		}
		return fetch.FetchResult{Items: []geomap.Item{testItem("ds-a", "fresh", 10, 10, 1)}}, nil
	})
	sess := startSession(t, testConfig(visibleSource("ds-a"), visibleSource("ds-b")), Dependencies{Fetcher: fetcher})

	sess.ViewportSettled(geomap.Extent{0, 0, 100, 100}, 10)
	waitFor(t, "first fetch in flight", func() bool { return fetcher.calls() == 1 })

	// The reset bumps the epoch and issues a fresh fetch.
	sess.SetDataSourceVisibility("ds-b", false)
	waitFor(t, "post-reset load", func() bool { return len(sess.SnapshotItems()) == 1 })

	close(release)
	sess.barrier()
	time.Sleep(50 * time.Millisecond)

	items := sess.SnapshotItems()
	if len(items) != 1 || items[0].ID.ID != "fresh" {
		t.Errorf("items after stale-epoch response = %v, want only the fresh item", items)
	}
}

func TestLateOverlappingFetchMergesWithoutPruning(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{}
	fetcher.setRespond(func(_ fetch.FetchRequest, call int) (fetch.FetchResult, error) {
		if call == 1 {
			<-release
			return fetch.FetchResult{}, nil
		}
		return fetch.FetchResult{Items: []geomap.Item{testItem("ds-a", "a1", 10, 10, 1)}}, nil
	})
	renderer := &recordingRenderer{}
	sess := startSession(t, testConfig(visibleSource("ds-a")), Dependencies{Fetcher: fetcher, Renderer: renderer})

	sess.ViewportSettled(geomap.Extent{0, 0, 100, 100}, 10)
	waitFor(t, "first fetch in flight", func() bool { return fetcher.calls() == 1 })

	// Coverage is recorded on completion, so reloading while the first fetch
	// is still out issues a second fetch for the same region.
	sess.ReloadLatest()
	waitFor(t, "second fetch loads the item", func() bool { return len(sess.SnapshotItems()) == 1 })

	// The older response arrives last. Its empty result overlaps the item the
	// newer fetch loaded, but a superseded response may only merge, not prune.
	close(release)
	sess.barrier()
	time.Sleep(50 * time.Millisecond)

	items := sess.SnapshotItems()
	if len(items) != 1 || items[0].ID.ID != "a1" {
		t.Errorf("items after late empty response = %v, want the fresher item kept", items)
	}
	if removes := renderer.removeCalls(); len(removes) != 0 {
		t.Errorf("renderer removals = %v, want none", removes)
	}
	if got := len(sess.LedgerEntries()); got != 1 {
		t.Errorf("ledger entries = %d, want 1 (superseded response records no coverage)", got)
	}
}

func TestSelectItemRestylesFeatures(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.setRespond(func(_ fetch.FetchRequest, _ int) (fetch.FetchResult, error) {
		return fetch.FetchResult{Items: []geomap.Item{testItem("ds-a", "a1", 10, 10, 1)}}, nil
	})
	renderer := &recordingRenderer{}
	sess := startSession(t, testConfig(visibleSource("ds-a")), Dependencies{Fetcher: fetcher, Renderer: renderer})

	sess.ViewportSettled(geomap.Extent{0, 0, 100, 100}, 10)
	waitFor(t, "load", func() bool { return len(sess.SnapshotItems()) == 1 })

	before := renderer.updateCalls()
	sess.SelectItem(&geomap.DataId{ID: "a1", DataSourceID: "ds-a"})
	sess.barrier()

	if got := renderer.updateCalls(); got != before+1 {
		t.Errorf("update calls after selection = %d, want %d", got, before+1)
	}
}

func TestManagerLifecycle(t *testing.T) {
	fetcher := &fakeFetcher{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr := NewManager(ctx, fetcher, nil, nil)

	handle := mgr.Open(testConfig(visibleSource("ds-a")))
	if handle.Session == nil || handle.Hub == nil {
		t.Fatal("open returned incomplete handle")
	}
	if mgr.Len() != 1 {
		t.Fatalf("manager length = %d, want 1", mgr.Len())
	}

	got, err := mgr.Get(handle.Session.ID())
	if err != nil || got != handle {
		t.Errorf("Get = (%v, %v), want the opened handle", got, err)
	}

	if err := mgr.Close(handle.Session.ID()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := mgr.Get(handle.Session.ID()); err != ErrSessionNotFound {
		t.Errorf("Get after close = %v, want ErrSessionNotFound", err)
	}
	if err := mgr.Close(handle.Session.ID()); err != ErrSessionNotFound {
		t.Errorf("double close = %v, want ErrSessionNotFound", err)
	}
}

func TestManagerBaseContextStopsSessions(t *testing.T) {
	fetcher := &fakeFetcher{}
	ctx, cancel := context.WithCancel(context.Background())
	mgr := NewManager(ctx, fetcher, nil, nil)

	handle := mgr.Open(testConfig(visibleSource("ds-a")))

	select {
	case <-handle.Session.Done():
		t.Fatal("session loop exited before the base context was canceled")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case <-handle.Session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session loop did not stop with the base context")
	}
}
