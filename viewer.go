package fathom

import (
	"fmt"
	"image"

	"github.com/hajimehoshi/ebiten/v2"
)

// Config configures a Viewer. Zero values pick the documented defaults.
type Config struct {
	// ContainerWidth and ContainerHeight are the drawing surface
	// dimensions in pixels. Default 800x600.
	ContainerWidth  int
	ContainerHeight int

	// MaxCacheSize bounds the number of loaded tiles kept per image.
	// Default DefaultMaxCacheSize.
	MaxCacheSize int

	// FetchBudget is the number of simultaneous tile fetches across all
	// images. Default DefaultFetchBudget.
	FetchBudget int

	// DetailFactor tunes pyramid level selection; see
	// TileManager.OptimalLevel. Default DefaultDetailFactor.
	DetailFactor float64

	// PreloadMargin is the number of tiles beyond the visible edge to
	// request. Zero picks DefaultPreloadMargin; negative disables the
	// margin entirely.
	PreloadMargin int

	// Fetch loads and decodes tiles. Default: NewHTTPTileLoader().Fetch.
	Fetch FetchFunc

	// Renderer receives texture uploads and releases. Default: a
	// TileRenderer, which also provides the ebiten draw pass.
	Renderer Renderer
}

type pendingUpload struct {
	addr   TileAddress
	bitmap image.Image
}

// Viewer wires the core together: one Viewport, one Camera, one shared
// TileScheduler, and a TileManager per image, all placed in a single world
// coordinate space. The host calls Update once per frame tick and Draw once
// per frame; input handling and manifest parsing stay outside.
type Viewer struct {
	vp       *Viewport
	cam      *Camera
	sched    *TileScheduler
	renderer Renderer

	maxCacheSize  int
	detailFactor  float64
	preloadMargin int

	images   map[string]*TiledImage
	order    []string
	managers map[string]*TileManager

	// uploads is the GPU upload queue, drained one bitmap per frame so a
	// burst of tile arrivals never stalls a single frame on uploads.
	uploads []pendingUpload
}

// New creates a Viewer from the config.
func New(cfg Config) *Viewer {
	if cfg.ContainerWidth <= 0 {
		cfg.ContainerWidth = 800
	}
	if cfg.ContainerHeight <= 0 {
		cfg.ContainerHeight = 600
	}
	if cfg.Fetch == nil {
		cfg.Fetch = NewHTTPTileLoader().Fetch
	}
	if cfg.Renderer == nil {
		cfg.Renderer = NewTileRenderer()
	}
	margin := cfg.PreloadMargin
	switch {
	case margin == 0:
		margin = DefaultPreloadMargin
	case margin < 0:
		margin = 0
	}

	v := &Viewer{
		vp:            NewViewport(float64(cfg.ContainerWidth), float64(cfg.ContainerHeight)),
		sched:         NewTileScheduler(cfg.FetchBudget, cfg.Fetch),
		renderer:      cfg.Renderer,
		maxCacheSize:  cfg.MaxCacheSize,
		detailFactor:  cfg.DetailFactor,
		preloadMargin: margin,
		images:        make(map[string]*TiledImage),
		managers:      make(map[string]*TileManager),
	}
	v.cam = newCamera(v.vp, v.Image, v.RequestTiles)
	return v
}

// Viewport returns the shared coordinate system.
func (v *Viewer) Viewport() *Viewport { return v.vp }

// Camera returns the camera controller.
func (v *Viewer) Camera() *Camera { return v.cam }

// Scheduler returns the shared tile scheduler.
func (v *Viewer) Scheduler() *TileScheduler { return v.sched }

// Image returns the image with the given id, or nil.
func (v *Viewer) Image(id string) *TiledImage {
	return v.images[id]
}

// Manager returns the tile manager for the given image id, or nil.
func (v *Viewer) Manager(id string) *TileManager {
	return v.managers[id]
}

// AddImage validates im, places it in the world, and starts managing its
// tiles. The image must not be mutated afterwards.
func (v *Viewer) AddImage(im *TiledImage) error {
	if err := im.Validate(); err != nil {
		return err
	}
	if _, ok := v.images[im.ID]; ok {
		return fmt.Errorf("fathom: image %q already added", im.ID)
	}
	m := newTileManager(im, v.vp, v.sched, tileManagerConfig{
		maxCacheSize:  v.maxCacheSize,
		detailFactor:  v.detailFactor,
		preloadMargin: v.preloadMargin,
		onUpload:      v.queueUpload,
		onRelease:     v.releaseTile,
	})
	v.images[im.ID] = im
	v.managers[im.ID] = m
	v.order = append(v.order, im.ID)
	v.recomputeWorldSize()
	return nil
}

// RemoveImage drops the image, its queued tile requests, its cached tiles,
// and their GPU textures. An animation targeting the image stops on the
// next tick without completing. Unknown ids are a no-op.
func (v *Viewer) RemoveImage(id string) {
	m, ok := v.managers[id]
	if !ok {
		return
	}
	v.sched.forgetOwner(m)
	m.detach()
	delete(v.managers, id)
	delete(v.images, id)
	for i, oid := range v.order {
		if oid == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
	v.vp.dropImageBounds(id)
	v.dropUploads(id)
	v.recomputeWorldSize()
}

// recomputeWorldSize sets the world extent to the union of all placed
// images.
func (v *Viewer) recomputeWorldSize() {
	var w, h float64
	for _, im := range v.images {
		r := im.WorldRect()
		if edge := r.X + r.Width; edge > w {
			w = edge
		}
		if edge := r.Y + r.Height; edge > h {
			h = edge
		}
	}
	v.vp.SetWorldSize(w, h)
}

// RequestTiles asks every manager to page tiles for the current viewport.
// Normally driven by the camera's request policy; safe to call directly
// after out-of-band viewport changes.
func (v *Viewer) RequestTiles() {
	for _, id := range v.order {
		v.managers[id].RequestTiles()
	}
}

func (v *Viewer) queueUpload(addr TileAddress, bitmap image.Image) {
	v.uploads = append(v.uploads, pendingUpload{addr: addr, bitmap: bitmap})
}

func (v *Viewer) releaseTile(addr TileAddress) {
	v.renderer.ReleaseTexture(addr)
	// A tile can be evicted while its upload is still queued; uploading it
	// anyway would leak the texture.
	kept := v.uploads[:0]
	for _, u := range v.uploads {
		if u.addr != addr {
			kept = append(kept, u)
		}
	}
	v.uploads = kept
}

func (v *Viewer) dropUploads(imageID string) {
	kept := v.uploads[:0]
	for _, u := range v.uploads {
		if u.addr.ImageID != imageID {
			kept = append(kept, u)
		}
	}
	v.uploads = kept
}

// SetContainerSize resizes the drawing surface and pages tiles for the new
// view.
func (v *Viewer) SetContainerSize(w, h int) {
	v.vp.SetContainerSize(float64(w), float64(h))
	v.RequestTiles()
}

// Update advances the viewer by dt seconds: camera motion first, then
// completed tile loads, then at most one GPU upload. dt is wall time since
// the previous tick (1/TPS under ebiten).
func (v *Viewer) Update(dt float64) {
	v.cam.Update(dt)
	v.sched.Drain()
	if len(v.uploads) > 0 {
		u := v.uploads[0]
		v.uploads = v.uploads[1:]
		v.renderer.UploadTexture(u.addr, u.bitmap)
	}
}

// FrameTiles assembles the resolved tiles of every image for this frame,
// each image's run sorted ascending by depth, images in add order.
func (v *Viewer) FrameTiles() []RenderTile {
	var tiles []RenderTile
	for _, id := range v.order {
		tiles = append(tiles, v.managers[id].TilesForRender()...)
	}
	return tiles
}

// Draw renders the frame with the built-in TileRenderer. Hosts using a
// custom Renderer implementation drive their own draw path from
// FrameTiles and Viewport.ViewMatrix instead.
func (v *Viewer) Draw(screen *ebiten.Image) {
	if tr, ok := v.renderer.(*TileRenderer); ok {
		tr.Draw(screen, v.vp.ViewMatrix(), v.FrameTiles())
	}
}
