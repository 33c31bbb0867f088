package fathom

import (
	"fmt"
	"image"
	"math"
)

// TileSource produces a fetchable descriptor (typically a URL) for a pixel
// region of one pyramid level. The region is given in full-resolution image
// pixels, already clipped to the image bounds. Metadata parsing that yields
// a TileSource is the host application's job; the core only invokes it.
type TileSource interface {
	TileURL(level, x, y int, region image.Rectangle) string
}

// TileSourceFunc adapts a plain function to the TileSource interface.
type TileSourceFunc func(level, x, y int, region image.Rectangle) string

// TileURL calls f.
func (f TileSourceFunc) TileURL(level, x, y int, region image.Rectangle) string {
	return f(level, x, y, region)
}

// TiledImage is the immutable description of one multi-resolution image:
// full-resolution pixel dimensions, the fixed tile edge length, the ordered
// pyramid scale factors (factor 1 = full resolution, ascending), and the
// image's placement in world pixels. Images are shared by reference between
// the viewport and the tile layer and must not be mutated after AddImage.
type TiledImage struct {
	ID     string
	Width  int
	Height int

	// TileSize is the tile edge length in level-native pixels.
	TileSize int

	// ScaleFactors lists the pyramid downsample factors, ascending, with
	// ScaleFactors[0] == 1. Level i covers TileSize*ScaleFactors[i]
	// full-resolution pixels per tile edge.
	ScaleFactors []int

	// WorldX and WorldY place the image's top-left corner in world pixels.
	// A single image is placed at the origin.
	WorldX, WorldY float64

	Source TileSource
}

// Validate checks the pyramid description. It is called once when the image
// enters a Viewer, so the rest of the core can assume a well-formed image.
func (im *TiledImage) Validate() error {
	switch {
	case im.ID == "":
		return fmt.Errorf("tiled image: empty id")
	case im.Width <= 0 || im.Height <= 0:
		return fmt.Errorf("tiled image %q: invalid dimensions %dx%d", im.ID, im.Width, im.Height)
	case im.TileSize <= 0:
		return fmt.Errorf("tiled image %q: invalid tile size %d", im.ID, im.TileSize)
	case len(im.ScaleFactors) == 0:
		return fmt.Errorf("tiled image %q: no scale factors", im.ID)
	case im.ScaleFactors[0] != 1:
		return fmt.Errorf("tiled image %q: first scale factor must be 1, got %d", im.ID, im.ScaleFactors[0])
	case im.Source == nil:
		return fmt.Errorf("tiled image %q: nil tile source", im.ID)
	}
	for i := 1; i < len(im.ScaleFactors); i++ {
		if im.ScaleFactors[i] <= im.ScaleFactors[i-1] {
			return fmt.Errorf("tiled image %q: scale factors not ascending at index %d", im.ID, i)
		}
	}
	return nil
}

// MaxLevel returns the coarsest pyramid level index.
func (im *TiledImage) MaxLevel() int {
	return len(im.ScaleFactors) - 1
}

// GridSize returns the tile grid dimensions at the given level.
func (im *TiledImage) GridSize(level int) (cols, rows int) {
	span := im.TileSize * im.ScaleFactors[level]
	cols = (im.Width + span - 1) / span
	rows = (im.Height + span - 1) / span
	return cols, rows
}

// WorldRect returns the image's extent in world pixels.
func (im *TiledImage) WorldRect() Rect {
	return Rect{X: im.WorldX, Y: im.WorldY, Width: float64(im.Width), Height: float64(im.Height)}
}

// TileAddress uniquely identifies one pyramid cell of one image.
type TileAddress struct {
	ImageID string
	Level   int
	X, Y    int
}

// String formats the address for logging.
func (a TileAddress) String() string {
	return fmt.Sprintf("%s/%d/%d,%d", a.ImageID, a.Level, a.X, a.Y)
}

// depthSortY and depthSortX are the per-row and per-column nudges applied to
// a tile's depth key. They keep same-level tiles in a stable order so
// adjacent tiles never z-fight along shared edges, while staying far too
// small to ever cross into a neighboring level.
const (
	depthSortY = 1e-4
	depthSortX = 1e-7
)

// Depth returns the deterministic render-order key for the address. Sorting
// tiles ascending by depth yields finest-level tiles first, with a stable
// row/column order inside each level.
func (a TileAddress) Depth() float64 {
	return float64(a.Level) + depthSortY*float64(a.Y) + depthSortX*float64(a.X)
}

// TileRect returns the pixel region the address covers in full-resolution
// image coordinates, clipped to the image bounds. Edge tiles are smaller
// than TileSize*factor.
func (im *TiledImage) TileRect(a TileAddress) image.Rectangle {
	span := im.TileSize * im.ScaleFactors[a.Level]
	r := image.Rect(a.X*span, a.Y*span, (a.X+1)*span, (a.Y+1)*span)
	return r.Intersect(image.Rect(0, 0, im.Width, im.Height))
}

// TileWorldRect returns the world-pixel rectangle the address covers.
func (im *TiledImage) TileWorldRect(a TileAddress) Rect {
	r := im.TileRect(a)
	return Rect{
		X:      im.WorldX + float64(r.Min.X),
		Y:      im.WorldY + float64(r.Min.Y),
		Width:  float64(r.Dx()),
		Height: float64(r.Dy()),
	}
}

// tileRange is an inclusive tile index range at one pyramid level.
type tileRange struct {
	level          int
	x0, y0, x1, y1 int
}

// empty reports whether the range contains no tiles.
func (tr tileRange) empty() bool {
	return tr.x1 < tr.x0 || tr.y1 < tr.y0
}

// count returns the number of tiles in the range.
func (tr tileRange) count() int {
	if tr.empty() {
		return 0
	}
	return (tr.x1 - tr.x0 + 1) * (tr.y1 - tr.y0 + 1)
}

// tileRangeCovering computes the inclusive tile index range covering the
// given image-pixel rectangle at the given level, grown by margin tiles on
// every side and clamped to the level's grid.
func (im *TiledImage) tileRangeCovering(bounds Rect, level, margin int) tileRange {
	cols, rows := im.GridSize(level)
	span := float64(im.TileSize * im.ScaleFactors[level])

	tr := tileRange{
		level: level,
		x0:    int(math.Floor(bounds.X/span)) - margin,
		y0:    int(math.Floor(bounds.Y/span)) - margin,
		// The far edge is exclusive: a bounds edge exactly on a tile
		// boundary must not pull in the next tile.
		x1: int(math.Ceil((bounds.X+bounds.Width)/span)) - 1 + margin,
		y1: int(math.Ceil((bounds.Y+bounds.Height)/span)) - 1 + margin,
	}
	tr.x0 = max(tr.x0, 0)
	tr.y0 = max(tr.y0, 0)
	tr.x1 = min(tr.x1, cols-1)
	tr.y1 = min(tr.y1, rows-1)
	return tr
}
