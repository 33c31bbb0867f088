package fathom

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidate(t *testing.T) {
	ok := testImage("ok")
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid image rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*TiledImage)
	}{
		{"empty id", func(im *TiledImage) { im.ID = "" }},
		{"zero width", func(im *TiledImage) { im.Width = 0 }},
		{"zero tile size", func(im *TiledImage) { im.TileSize = 0 }},
		{"no factors", func(im *TiledImage) { im.ScaleFactors = nil }},
		{"first factor not 1", func(im *TiledImage) { im.ScaleFactors = []int{2, 4} }},
		{"non-ascending factors", func(im *TiledImage) { im.ScaleFactors = []int{1, 4, 2} }},
		{"nil source", func(im *TiledImage) { im.Source = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			im := testImage("bad")
			tc.mutate(im)
			if err := im.Validate(); err == nil {
				t.Error("invalid image accepted")
			}
		})
	}
}

func TestGridSize(t *testing.T) {
	im := testImage("grid")
	cases := []struct {
		level      int
		cols, rows int
	}{
		{0, 16, 16},
		{1, 8, 8},
		{2, 4, 4},
		{3, 2, 2},
	}
	for _, tc := range cases {
		cols, rows := im.GridSize(tc.level)
		if cols != tc.cols || rows != tc.rows {
			t.Errorf("GridSize(%d) = %dx%d, want %dx%d", tc.level, cols, rows, tc.cols, tc.rows)
		}
	}

	// Non-square image with a ragged edge.
	ragged := testImage("ragged")
	ragged.Width, ragged.Height = 1000, 500
	cols, rows := ragged.GridSize(0)
	if cols != 4 || rows != 2 {
		t.Errorf("ragged GridSize(0) = %dx%d, want 4x2", cols, rows)
	}
}

func TestTileRectClipped(t *testing.T) {
	im := testImage("rect")
	im.Width, im.Height = 1000, 500

	full := im.TileRect(TileAddress{ImageID: "rect", Level: 0, X: 0, Y: 0})
	if got, want := full, image.Rect(0, 0, 256, 256); got != want {
		t.Errorf("interior tile rect = %v, want %v", got, want)
	}
	edge := im.TileRect(TileAddress{ImageID: "rect", Level: 0, X: 3, Y: 1})
	if got, want := edge, image.Rect(768, 256, 1000, 500); got != want {
		t.Errorf("edge tile rect = %v, want %v", got, want)
	}
	coarse := im.TileRect(TileAddress{ImageID: "rect", Level: 1, X: 0, Y: 0})
	if got, want := coarse, image.Rect(0, 0, 512, 500); got != want {
		t.Errorf("coarse tile rect = %v, want %v", got, want)
	}
}

func TestTileWorldRectUsesPlacement(t *testing.T) {
	im := testImage("placed")
	im.WorldX, im.WorldY = 5000, 100
	r := im.TileWorldRect(TileAddress{ImageID: "placed", Level: 0, X: 1, Y: 2})
	want := Rect{X: 5256, Y: 612, Width: 256, Height: 256}
	if r != want {
		t.Errorf("world rect = %+v, want %+v", r, want)
	}
}

func TestDepthOrderStable(t *testing.T) {
	a := TileAddress{Level: 0, X: 5, Y: 5}
	b := TileAddress{Level: 0, X: 6, Y: 5}
	c := TileAddress{Level: 0, X: 0, Y: 6}
	d := TileAddress{Level: 1, X: 0, Y: 0}

	if !(a.Depth() < b.Depth()) {
		t.Error("same row: larger X must sort later")
	}
	if !(b.Depth() < c.Depth()) {
		t.Error("larger Y must sort later than any X in the previous row")
	}
	if !(c.Depth() < d.Depth()) {
		t.Error("coarser level must sort after every tile of a finer level")
	}
}

func TestTileRangeCovering(t *testing.T) {
	im := testImage("range")

	// The visible bounds of an 800x600 view at scale 1 centered on
	// (0.5, 0.5): exactly tiles x 6..9, y 4..7 at level 0.
	got := im.tileRangeCovering(Rect{X: 1648, Y: 1236, Width: 800, Height: 600}, 0, 0)
	want := tileRange{level: 0, x0: 6, y0: 4, x1: 9, y1: 7}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(tileRange{})); diff != "" {
		t.Errorf("tile range mismatch (-want +got):\n%s", diff)
	}
	if got.count() != 16 {
		t.Errorf("count = %d, want 16", got.count())
	}
}

func TestTileRangeMarginClamped(t *testing.T) {
	im := testImage("margin")
	got := im.tileRangeCovering(Rect{X: 0, Y: 0, Width: 400, Height: 300}, 0, 1)
	// Margin grows the range but never past the grid.
	want := tileRange{level: 0, x0: 0, y0: 0, x1: 2, y1: 2}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(tileRange{})); diff != "" {
		t.Errorf("tile range mismatch (-want +got):\n%s", diff)
	}
}

func TestTileRangeBoundaryExclusive(t *testing.T) {
	im := testImage("boundary")
	// A far edge exactly on a tile boundary must not pull in the next tile.
	got := im.tileRangeCovering(Rect{X: 0, Y: 0, Width: 512, Height: 256}, 0, 0)
	want := tileRange{level: 0, x0: 0, y0: 0, x1: 1, y1: 0}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(tileRange{})); diff != "" {
		t.Errorf("tile range mismatch (-want +got):\n%s", diff)
	}
}
