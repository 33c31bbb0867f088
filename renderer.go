package fathom

import (
	"image"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
)

// Renderer is the GPU-side collaborator of the tile layer. The core calls
// UploadTexture as decoded tiles are queued for upload and ReleaseTexture
// as tiles are evicted; it never issues draw calls itself.
type Renderer interface {
	UploadTexture(addr TileAddress, bitmap image.Image)
	ReleaseTexture(addr TileAddress)
}

// maxTilesPerDraw caps the tile list a single draw pass accepts. A deeper
// list means the tile layer is paging far more than one screen of content;
// drawing is degraded (list truncated, warning logged) rather than treated
// as a core error.
const maxTilesPerDraw = 4096

// TileRenderer is the ebiten implementation of Renderer plus the draw
// pass. It keeps one GPU image per resident tile, keyed by address.
type TileRenderer struct {
	textures map[TileAddress]*ebiten.Image
	warned   bool
}

// NewTileRenderer creates an empty texture store.
func NewTileRenderer() *TileRenderer {
	return &TileRenderer{textures: make(map[TileAddress]*ebiten.Image)}
}

// UploadTexture creates the GPU image for a decoded tile bitmap.
func (r *TileRenderer) UploadTexture(addr TileAddress, bitmap image.Image) {
	if old, ok := r.textures[addr]; ok {
		old.Deallocate()
	}
	r.textures[addr] = ebiten.NewImageFromImage(bitmap)
}

// ReleaseTexture frees the GPU image of an evicted tile.
func (r *TileRenderer) ReleaseTexture(addr TileAddress) {
	if tex, ok := r.textures[addr]; ok {
		tex.Deallocate()
		delete(r.textures, addr)
	}
}

// TextureCount returns the number of resident GPU tiles.
func (r *TileRenderer) TextureCount() int {
	return len(r.textures)
}

// Draw paints the resolved tiles under the given world-to-canvas view
// transform. tiles must be sorted ascending by depth; the pass paints from
// the far end of the list first so coarse fallback tiles sit behind fine
// ones. Tiles whose texture has not been uploaded yet are skipped; their
// bitmap will land within a frame or two.
func (r *TileRenderer) Draw(screen *ebiten.Image, view [6]float64, tiles []RenderTile) {
	if len(tiles) > maxTilesPerDraw {
		if !r.warned {
			log.Printf("fathom: draw list truncated to %d tiles (got %d)", maxTilesPerDraw, len(tiles))
			r.warned = true
		}
		tiles = tiles[:maxTilesPerDraw]
	}
	for i := len(tiles) - 1; i >= 0; i-- {
		t := tiles[i]
		tex, ok := r.textures[t.Address]
		if !ok {
			continue
		}
		b := tex.Bounds()
		if b.Dx() == 0 || b.Dy() == 0 {
			continue
		}
		var opts ebiten.DrawImageOptions
		opts.Filter = ebiten.FilterLinear
		// Texture pixels -> world rect -> canvas.
		opts.GeoM.Scale(t.WorldRect.Width/float64(b.Dx()), t.WorldRect.Height/float64(b.Dy()))
		opts.GeoM.Translate(t.WorldRect.X, t.WorldRect.Y)
		applyAffine(&opts.GeoM, view)
		screen.DrawImage(tex, &opts)
	}
}

// applyAffine concatenates an [a b c d tx ty] matrix onto g.
func applyAffine(g *ebiten.GeoM, m [6]float64) {
	var v ebiten.GeoM
	v.SetElement(0, 0, m[0])
	v.SetElement(1, 0, m[1])
	v.SetElement(0, 1, m[2])
	v.SetElement(1, 1, m[3])
	v.SetElement(0, 2, m[4])
	v.SetElement(1, 2, m[5])
	g.Concat(v)
}
