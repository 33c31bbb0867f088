package fathom

import (
	"image"
	"math"
	"sort"
)

// Tuning defaults for the tile layer.
const (
	// DefaultMaxCacheSize bounds the number of loaded tiles kept per image.
	DefaultMaxCacheSize = 256

	// DefaultDetailFactor is the detail threshold used to pick a pyramid
	// level: a level is acceptable when its native resolution at the
	// current scale is at least this share of screen resolution.
	DefaultDetailFactor = 1.0

	// DefaultPreloadMargin is the number of extra tiles beyond the visible
	// edge to request. One buffered ring prevents pop-in during pans.
	DefaultPreloadMargin = 1
)

// Change-detection thresholds for viewport signatures. Movement below
// these would re-request the same tile set every frame for no benefit.
const (
	scaleChangeThreshold  = 1e-3 // relative
	centerChangeThreshold = 1e-4 // normalized center units
)

// viewportSig captures the viewport state the tile layer reacts to.
type viewportSig struct {
	scale      float64
	centerX    float64
	centerY    float64
	containerW float64
	containerH float64
	level      int
}

// withinThreshold reports whether b is close enough to a that the tile set
// cannot have meaningfully changed. A level boundary crossing is always
// significant even when the numeric scale delta is tiny: it swaps the
// entire tile set.
func (a viewportSig) withinThreshold(b viewportSig) bool {
	if a.level != b.level {
		return false
	}
	if a.containerW != b.containerW || a.containerH != b.containerH {
		return false
	}
	if math.Abs(a.scale-b.scale) > scaleChangeThreshold*math.Abs(a.scale) {
		return false
	}
	return math.Abs(a.centerX-b.centerX) <= centerChangeThreshold &&
		math.Abs(a.centerY-b.centerY) <= centerChangeThreshold
}

// RenderTile is one resolved tile handed to the renderer: the address, the
// decoded bitmap, the world rectangle it covers, and its depth sort key.
type RenderTile struct {
	Address   TileAddress
	Bitmap    image.Image
	WorldRect Rect
	Depth     float64
}

// TileManager pages tiles for one image: it watches the viewport, requests
// missing tiles through the shared scheduler, owns the image's LRU cache,
// and assembles the per-frame tile list with stale-tile fallback. One
// instance per image, created by the Viewer.
type TileManager struct {
	img   *TiledImage
	vp    *Viewport
	sched *TileScheduler
	cache *tileCache

	detailFactor  float64
	preloadMargin int

	// onUpload queues a freshly loaded bitmap for the renderer; onRelease
	// tells the renderer to drop the GPU resource of an evicted tile.
	onUpload  func(TileAddress, image.Image)
	onRelease func(TileAddress)

	// detached is set when the image leaves the viewer; late fetch results
	// for it are discarded at drain time.
	detached bool

	hasReqSig bool
	reqSig    viewportSig

	// Render-side memoization: the needed-tile set for the last viewport
	// signature, the last fully-resolved set for gap filling, and the
	// sorted assembly cached while it stays complete.
	hasRenderSig bool
	renderSig    viewportSig
	needed       []TileAddress
	lastFull     []TileAddress
	sorted       []RenderTile
	sortedOK     bool
}

type tileManagerConfig struct {
	maxCacheSize  int
	detailFactor  float64
	preloadMargin int
	onUpload      func(TileAddress, image.Image)
	onRelease     func(TileAddress)
}

func newTileManager(img *TiledImage, vp *Viewport, sched *TileScheduler, cfg tileManagerConfig) *TileManager {
	if cfg.maxCacheSize <= 0 {
		cfg.maxCacheSize = DefaultMaxCacheSize
	}
	if cfg.detailFactor <= 0 {
		cfg.detailFactor = DefaultDetailFactor
	}
	if cfg.preloadMargin < 0 {
		cfg.preloadMargin = DefaultPreloadMargin
	}
	return &TileManager{
		img:           img,
		vp:            vp,
		sched:         sched,
		cache:         newTileCache(cfg.maxCacheSize),
		detailFactor:  cfg.detailFactor,
		preloadMargin: cfg.preloadMargin,
		onUpload:      cfg.onUpload,
		onRelease:     cfg.onRelease,
	}
}

// Image returns the managed image.
func (m *TileManager) Image() *TiledImage {
	return m.img
}

// CacheLen returns the number of loaded tiles currently cached.
func (m *TileManager) CacheLen() int {
	return m.cache.len()
}

// OptimalLevel picks the coarsest pyramid level whose native resolution
// still satisfies the detail threshold at the given scale: the first level
// whose downsample factor is at least detailFactor/scale. Zooming in never
// yields a coarser level.
func (m *TileManager) OptimalLevel(scale float64) int {
	if scale <= 0 {
		return m.img.MaxLevel()
	}
	required := m.detailFactor / scale
	for i, f := range m.img.ScaleFactors {
		if float64(f) >= required {
			return i
		}
	}
	return m.img.MaxLevel()
}

func (m *TileManager) signature(level int) viewportSig {
	cw, ch := m.vp.ContainerSize()
	cx, cy := m.vp.Center()
	return viewportSig{
		scale:      m.vp.Scale(),
		centerX:    cx,
		centerY:    cy,
		containerW: cw,
		containerH: ch,
		level:      level,
	}
}

// viewportCenterInTiles returns the viewport center in tile units at the
// given level, used as the priority origin.
func (m *TileManager) viewportCenterInTiles(level int) (x, y float64) {
	wcx, wcy := m.vp.worldCenter()
	span := float64(m.img.TileSize * m.img.ScaleFactors[level])
	return (wcx - m.img.WorldX) / span, (wcy - m.img.WorldY) / span
}

// RequestTiles requests every tile covering the visible bounds (plus the
// preload margin) that is neither cached nor pending, prioritized by
// distance from the viewport center. Non-blocking; skipped entirely while
// the viewport has not moved beyond the change thresholds since the last
// call. Fetches start immediately as budget allows.
func (m *TileManager) RequestTiles() {
	if m.detached {
		return
	}
	level := m.OptimalLevel(m.vp.Scale())
	sig := m.signature(level)
	if m.hasReqSig && sig.withinThreshold(m.reqSig) {
		return
	}
	m.reqSig = sig
	m.hasReqSig = true

	bounds := m.vp.ImageBounds(m.img)
	if bounds.Empty() {
		return
	}
	tr := m.img.tileRangeCovering(bounds, level, m.preloadMargin)
	if tr.empty() {
		return
	}

	pcx, pcy := m.viewportCenterInTiles(level)
	for y := tr.y0; y <= tr.y1; y++ {
		for x := tr.x0; x <= tr.x1; x++ {
			addr := TileAddress{ImageID: m.img.ID, Level: level, X: x, Y: y}
			if m.cache.contains(addr) || m.sched.Pending(addr) {
				continue
			}
			priority := math.Hypot(float64(x)+0.5-pcx, float64(y)+0.5-pcy)
			url := m.img.Source.TileURL(level, x, y, m.img.TileRect(addr))
			m.sched.Enqueue(m, addr, url, priority)
		}
	}
	m.sched.Kick()
}

// completeLoad is called by the scheduler on the frame goroutine when a
// fetch for this image finishes. It inserts the tile, runs eviction if the
// cache went over capacity, and queues the bitmap for renderer upload.
// Upload is queued rather than immediate so a slow GPU path never blocks
// the fetch scheduler.
func (m *TileManager) completeLoad(addr TileAddress, bitmap image.Image) {
	if m.detached {
		return
	}
	m.cache.put(addr, bitmap)
	m.sortedOK = false
	if m.cache.overCapacity() {
		for _, old := range m.cache.evictBatch() {
			if m.onRelease != nil {
				m.onRelease(old)
			}
		}
	}
	if m.onUpload != nil {
		m.onUpload(addr, bitmap)
	}
}

// TilesForRender assembles the tiles to draw this frame, sorted ascending
// by depth. Read-only: it never enqueues fetches. While the needed set is
// incomplete, still-cached tiles from the last fully-resolved set fill the
// gaps so coarser content sits behind newly arriving detail during
// transitions. Complete assemblies are cached until the viewport moves or
// the cache changes.
func (m *TileManager) TilesForRender() []RenderTile {
	if m.detached {
		return nil
	}
	level := m.OptimalLevel(m.vp.Scale())
	sig := m.signature(level)
	if !m.hasRenderSig || !sig.withinThreshold(m.renderSig) {
		m.renderSig = sig
		m.hasRenderSig = true
		m.recomputeNeeded(level)
	}
	if m.sortedOK {
		return m.sorted
	}

	tiles := make([]RenderTile, 0, len(m.needed))
	included := make(map[TileAddress]bool, len(m.needed))
	complete := true
	for _, addr := range m.needed {
		bitmap, ok := m.cache.get(addr)
		if !ok {
			complete = false
			continue
		}
		included[addr] = true
		tiles = append(tiles, m.renderTile(addr, bitmap))
	}
	if !complete {
		// Backfill from the last fully-rendered set, keeping only ids the
		// cache still holds.
		for _, addr := range m.lastFull {
			if included[addr] {
				continue
			}
			if bitmap, ok := m.cache.get(addr); ok {
				tiles = append(tiles, m.renderTile(addr, bitmap))
			}
		}
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].Depth < tiles[j].Depth })

	if complete {
		m.lastFull = append(m.lastFull[:0], m.needed...)
		m.sorted = tiles
		m.sortedOK = true
	}
	return tiles
}

func (m *TileManager) renderTile(addr TileAddress, bitmap image.Image) RenderTile {
	return RenderTile{
		Address:   addr,
		Bitmap:    bitmap,
		WorldRect: m.img.TileWorldRect(addr),
		Depth:     addr.Depth(),
	}
}

// recomputeNeeded rebuilds the needed-tile set for the current viewport.
// No preload margin here: rendering wants exactly the visible tiles.
func (m *TileManager) recomputeNeeded(level int) {
	m.needed = m.needed[:0]
	m.sortedOK = false
	bounds := m.vp.ImageBounds(m.img)
	if bounds.Empty() {
		return
	}
	tr := m.img.tileRangeCovering(bounds, level, 0)
	for y := tr.y0; y <= tr.y1; y++ {
		for x := tr.x0; x <= tr.x1; x++ {
			m.needed = append(m.needed, TileAddress{ImageID: m.img.ID, Level: level, X: x, Y: y})
		}
	}
}

// detach releases every cached tile's renderer resource and marks the
// manager dead. Called when the image is removed from the viewer.
func (m *TileManager) detach() {
	m.detached = true
	for addr := range m.cache.entries {
		if m.onRelease != nil {
			m.onRelease(addr)
		}
	}
	m.cache = newTileCache(m.cache.max)
	m.needed = nil
	m.lastFull = nil
	m.sorted = nil
	m.sortedOK = false
}
