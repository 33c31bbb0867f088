package fathom

import (
	"testing"

	"github.com/tanema/gween/ease"
)

func viewerFixture(t *testing.T) (*Viewer, *captureFetch, *recordingRenderer) {
	t.Helper()
	fetch := &captureFetch{}
	rec := &recordingRenderer{}
	v := New(Config{
		ContainerWidth:  800,
		ContainerHeight: 600,
		Fetch:           fetch.fetch,
		Renderer:        rec,
		PreloadMargin:   -1,
	})
	if err := v.AddImage(testImage("img")); err != nil {
		t.Fatal(err)
	}
	return v, fetch, rec
}

func TestViewerRejectsInvalidAndDuplicateImages(t *testing.T) {
	v, _, _ := viewerFixture(t)

	bad := testImage("bad")
	bad.TileSize = 0
	if err := v.AddImage(bad); err == nil {
		t.Error("invalid image accepted")
	}
	if err := v.AddImage(testImage("img")); err == nil {
		t.Error("duplicate id accepted")
	}
}

func TestViewerWorldSizeIsImageUnion(t *testing.T) {
	v, _, _ := viewerFixture(t)
	if w, h := v.Viewport().WorldSize(); w != 4096 || h != 4096 {
		t.Fatalf("world size = (%v,%v), want (4096,4096)", w, h)
	}

	second := testImage("right")
	second.WorldX = 5000
	if err := v.AddImage(second); err != nil {
		t.Fatal(err)
	}
	if w, h := v.Viewport().WorldSize(); w != 9096 || h != 4096 {
		t.Errorf("world size = (%v,%v), want (9096,4096)", w, h)
	}

	v.RemoveImage("right")
	if w, _ := v.Viewport().WorldSize(); w != 4096 {
		t.Errorf("world width = %v after removal, want 4096", w)
	}
}

func TestViewerPagesFitView(t *testing.T) {
	v, fetch, _ := viewerFixture(t)
	v.Camera().FitToContainer("img")
	drainUntilSettled(t, v.Scheduler())

	// At the fit scale the whole image is visible and level 3 (2x2 grid)
	// satisfies the detail threshold.
	if got := fetch.count(); got != 4 {
		t.Fatalf("fetched %d tiles, want 4", got)
	}
	for _, addr := range fetch.snapshot() {
		if addr.Level != 3 {
			t.Errorf("fetched %v, want level 3", addr)
		}
	}
	if got := v.Manager("img").CacheLen(); got != 4 {
		t.Errorf("cache len = %d, want 4", got)
	}
}

func TestViewerUploadsOnePerFrame(t *testing.T) {
	v, _, rec := viewerFixture(t)
	v.Camera().FitToContainer("img")
	drainUntilSettled(t, v.Scheduler())

	for frame := 1; frame <= 4; frame++ {
		v.Update(1.0 / 60)
		if got := len(rec.uploaded); got != frame {
			t.Fatalf("after frame %d: %d uploads, want %d", frame, got, frame)
		}
	}
	v.Update(1.0 / 60)
	if got := len(rec.uploaded); got != 4 {
		t.Errorf("empty queue still uploaded: %d", got)
	}
}

func TestViewerFrameTilesSorted(t *testing.T) {
	v, _, _ := viewerFixture(t)
	v.Camera().FitToContainer("img")
	drainUntilSettled(t, v.Scheduler())

	tiles := v.FrameTiles()
	if len(tiles) != 4 {
		t.Fatalf("frame has %d tiles, want 4", len(tiles))
	}
	for i := 1; i < len(tiles); i++ {
		if tiles[i].Depth < tiles[i-1].Depth {
			t.Fatalf("frame tiles not in ascending depth order at %d", i)
		}
	}
}

func TestRemoveImageReleasesEverything(t *testing.T) {
	v, _, rec := viewerFixture(t)
	v.Camera().FitToContainer("img")
	drainUntilSettled(t, v.Scheduler())

	// Remove before any Update: queued uploads must be dropped along with
	// the cached tiles and their textures.
	v.RemoveImage("img")
	if got := len(rec.released); got != 4 {
		t.Errorf("released %d textures, want 4", got)
	}
	v.Update(1.0 / 60)
	if got := len(rec.uploaded); got != 0 {
		t.Errorf("removed image still uploaded %d textures", got)
	}
	if tiles := v.FrameTiles(); len(tiles) != 0 {
		t.Errorf("frame still has %d tiles", len(tiles))
	}
	if v.Image("img") != nil || v.Manager("img") != nil {
		t.Error("image still resolvable after removal")
	}
	v.RemoveImage("img") // unknown id: no-op
}

func TestViewerResizeRepages(t *testing.T) {
	v, fetch, _ := viewerFixture(t)
	v.Camera().FitToContainer("img")
	drainUntilSettled(t, v.Scheduler())
	base := fetch.count()

	v.SetContainerSize(1600, 1200)
	drainUntilSettled(t, v.Scheduler())
	if got := fetch.count(); got <= base {
		t.Errorf("resize requested nothing: %d -> %d", base, got)
	}
}

func TestViewerUpdateDrivesCameraRequests(t *testing.T) {
	v, fetch, _ := viewerFixture(t)
	v.Camera().FitToContainer("img")
	drainUntilSettled(t, v.Scheduler())
	base := fetch.count()

	// A programmatic zoom-in must page finer tiles through the viewer's
	// own frame loop, with no manual RequestTiles call.
	v.Camera().ZoomTo("img", 1, 0.2, ease.Linear, nil)
	for i := 0; i < 30; i++ {
		v.Update(1.0 / 60)
	}
	drainUntilSettled(t, v.Scheduler())
	if got := fetch.count(); got <= base {
		t.Errorf("zoom requested nothing: %d -> %d", base, got)
	}
}

func TestViewerMultipleImages(t *testing.T) {
	v, fetch, _ := viewerFixture(t)
	second := testImage("right")
	second.WorldX = 5000
	if err := v.AddImage(second); err != nil {
		t.Fatal(err)
	}

	// Zoom far out so both images are in view, then page everything.
	v.Viewport().SetScale(600.0 / 9096.0)
	v.RequestTiles()
	drainUntilSettled(t, v.Scheduler())

	seen := map[string]int{}
	for _, addr := range fetch.snapshot() {
		seen[addr.ImageID]++
	}
	for _, id := range []string{"img", "right"} {
		if seen[id] == 0 {
			t.Errorf("no tiles fetched for %q (fetched: %v)", id, seen)
		}
	}
	tiles := v.FrameTiles()
	if len(tiles) == 0 {
		t.Fatal("no frame tiles with two images")
	}
}

func TestViewerDefaultConfig(t *testing.T) {
	v := New(Config{})
	if w, h := v.Viewport().ContainerSize(); w != 800 || h != 600 {
		t.Errorf("default container = (%v,%v), want (800,600)", w, h)
	}
	if got := v.Scheduler().budget; got != DefaultFetchBudget {
		t.Errorf("default fetch budget = %d, want %d", got, DefaultFetchBudget)
	}
	if _, ok := v.renderer.(*TileRenderer); !ok {
		t.Errorf("default renderer = %T, want *TileRenderer", v.renderer)
	}
}
