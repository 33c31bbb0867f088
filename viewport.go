package fathom

import "math"

// defaultFOV is the vertical field of view used to derive scale from the
// camera distance. The exact value is arbitrary (it cancels out of every
// round trip); it only fixes the distance values min/max clamps live in.
const defaultFOV = math.Pi / 4

// fit-derived distance clamps: the camera may pull back to 5x the fit
// distance and push in to 0.1x.
const (
	fitMaxDistanceFactor = 5.0
	fitMinDistanceFactor = 0.1
)

// Viewport is the coordinate system of the viewer: container pixel
// dimensions, the camera distance from the image plane, and the view center.
// It converts between canvas pixels, world pixels, and per-image pixels, and
// computes visible bounds. Pure math, no I/O, no timers.
//
// The normalized center maps x in [0, 1] across the world width; the y unit
// is the world width scaled by the container aspect ratio, so (0.5, 0.5) is
// exactly the view center after a fit-to-width. All mutation goes through
// the Camera.
type Viewport struct {
	containerW float64
	containerH float64
	fov        float64

	// dist is the camera distance from the image plane. Scale is always
	// derived from it, never stored independently, so the min/max clamps
	// stay consistent.
	dist    float64
	minDist float64
	maxDist float64

	// centerX and centerY are the normalized view center.
	centerX float64
	centerY float64

	// worldW and worldH are the extent of all placed images in world pixels.
	worldW float64
	worldH float64

	// Cached projection state. rev bumps on every mutation; the matrices
	// and per-image bounds are memoized against it because they are
	// recomputed every frame by the tile layer and the renderer.
	rev     uint64
	dirty   bool
	view    [6]float64
	invView [6]float64
	bounds  map[string]cachedBounds
}

type cachedBounds struct {
	rev  uint64
	rect Rect
}

// NewViewport creates a viewport for the given container size in pixels.
func NewViewport(containerW, containerH float64) *Viewport {
	v := &Viewport{
		containerW: containerW,
		containerH: containerH,
		fov:        defaultFOV,
		dist:       1,
		maxDist:    math.Inf(1),
		centerX:    0.5,
		centerY:    0.5,
		worldW:     1,
		worldH:     1,
		dirty:      true,
		bounds:     make(map[string]cachedBounds),
	}
	return v
}

func (v *Viewport) invalidate() {
	v.rev++
	v.dirty = true
}

// ContainerSize returns the container dimensions in pixels.
func (v *Viewport) ContainerSize() (w, h float64) {
	return v.containerW, v.containerH
}

// SetContainerSize updates the container dimensions, invalidating all
// cached projection state.
func (v *Viewport) SetContainerSize(w, h float64) {
	if w == v.containerW && h == v.containerH {
		return
	}
	v.containerW = w
	v.containerH = h
	v.invalidate()
}

// WorldSize returns the world extent in pixels.
func (v *Viewport) WorldSize() (w, h float64) {
	return v.worldW, v.worldH
}

// SetWorldSize updates the world extent. The Viewer calls this as images
// are added and removed.
func (v *Viewport) SetWorldSize(w, h float64) {
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	if w == v.worldW && h == v.worldH {
		return
	}
	v.worldW = w
	v.worldH = h
	v.invalidate()
}

// Scale returns the current world-pixel to canvas-pixel scale, derived from
// the camera distance and field of view.
func (v *Viewport) Scale() float64 {
	return v.scaleForDistance(v.dist)
}

func (v *Viewport) scaleForDistance(d float64) float64 {
	return v.containerH / (2 * d * math.Tan(v.fov/2))
}

func (v *Viewport) distanceForScale(s float64) float64 {
	return v.containerH / (2 * s * math.Tan(v.fov/2))
}

// Distance returns the camera distance from the image plane.
func (v *Viewport) Distance() float64 {
	return v.dist
}

// MinDistance and MaxDistance bound the camera distance. Both are derived
// from the most recent fit operation.
func (v *Viewport) MinDistance() float64 { return v.minDist }

// MaxDistance returns the far camera distance clamp.
func (v *Viewport) MaxDistance() float64 { return v.maxDist }

// SetDistance moves the camera to the given distance, clamped to the
// [MinDistance, MaxDistance] range.
func (v *Viewport) SetDistance(d float64) {
	d = math.Max(v.minDist, math.Min(d, v.maxDist))
	if d == v.dist {
		return
	}
	v.dist = d
	v.invalidate()
}

// SetScale sets the scale by deriving the equivalent camera distance and
// clamping it. The scale actually applied can be read back with Scale.
func (v *Viewport) SetScale(s float64) {
	if s <= 0 {
		return
	}
	v.SetDistance(v.distanceForScale(s))
}

// ClampScale returns the scale that would survive the distance clamps.
func (v *Viewport) ClampScale(s float64) float64 {
	if s <= 0 {
		return v.Scale()
	}
	d := math.Max(v.minDist, math.Min(v.distanceForScale(s), v.maxDist))
	return v.scaleForDistance(d)
}

// MinScale returns the smallest reachable scale (camera at MaxDistance).
func (v *Viewport) MinScale() float64 { return v.scaleForDistance(v.maxDist) }

// MaxScale returns the largest reachable scale (camera at MinDistance).
func (v *Viewport) MaxScale() float64 { return v.scaleForDistance(v.minDist) }

// Center returns the normalized view center.
func (v *Viewport) Center() (x, y float64) {
	return v.centerX, v.centerY
}

// SetCenter sets the normalized view center.
func (v *Viewport) SetCenter(x, y float64) {
	if x == v.centerX && y == v.centerY {
		return
	}
	v.centerX = x
	v.centerY = y
	v.invalidate()
}

// worldCenter returns the view center in world pixels.
func (v *Viewport) worldCenter() (wx, wy float64) {
	return v.centerX * v.worldW, v.centerY * v.worldW * (v.containerH / v.containerW)
}

// setWorldCenter sets the view center from world pixels.
func (v *Viewport) setWorldCenter(wx, wy float64) {
	v.SetCenter(wx/v.worldW, wy/(v.worldW*(v.containerH/v.containerW)))
}

// viewMatrix recomputes the cached world-to-canvas matrix if dirty.
func (v *Viewport) viewMatrix() [6]float64 {
	if !v.dirty {
		return v.view
	}
	v.dirty = false

	s := v.Scale()
	wcx, wcy := v.worldCenter()
	v.view = [6]float64{s, 0, 0, s, v.containerW/2 - s*wcx, v.containerH/2 - s*wcy}
	v.invView = invertAffine(v.view)
	return v.view
}

// ViewMatrix returns the world-to-canvas affine transform for the current
// camera state. Handed to the renderer each frame.
func (v *Viewport) ViewMatrix() [6]float64 {
	return v.viewMatrix()
}

// WorldToCanvas converts world pixels to canvas pixels.
func (v *Viewport) WorldToCanvas(wx, wy float64) (cx, cy float64) {
	v.viewMatrix()
	return transformPoint(v.view, wx, wy)
}

// CanvasToWorld converts canvas pixels to world pixels.
func (v *Viewport) CanvasToWorld(cx, cy float64) (wx, wy float64) {
	v.viewMatrix()
	return transformPoint(v.invView, cx, cy)
}

// ImageToCanvasPoint converts an image-pixel point of im to canvas pixels.
func (v *Viewport) ImageToCanvasPoint(ix, iy float64, im *TiledImage) (cx, cy float64) {
	return v.WorldToCanvas(im.WorldX+ix, im.WorldY+iy)
}

// CanvasToImagePoint converts a canvas-pixel point to image pixels of im.
// Exact inverse of ImageToCanvasPoint up to floating-point epsilon.
func (v *Viewport) CanvasToImagePoint(cx, cy float64, im *TiledImage) (ix, iy float64) {
	wx, wy := v.CanvasToWorld(cx, cy)
	return wx - im.WorldX, wy - im.WorldY
}

// SetCenterFromImagePoint solves for the view center such that image point
// (ix, iy) of im projects exactly to canvas point (cx, cy). This is the
// primitive underlying all anchor-point zoom and pan behavior.
func (v *Viewport) SetCenterFromImagePoint(ix, iy, cx, cy float64, im *TiledImage) {
	s := v.Scale()
	wcx := im.WorldX + ix - (cx-v.containerW/2)/s
	wcy := im.WorldY + iy - (cy-v.containerH/2)/s
	v.setWorldCenter(wcx, wcy)
}

// VisibleWorldRect returns the world-pixel rectangle currently in view.
func (v *Viewport) VisibleWorldRect() Rect {
	s := v.Scale()
	wcx, wcy := v.worldCenter()
	w := v.containerW / s
	h := v.containerH / s
	return Rect{X: wcx - w/2, Y: wcy - h/2, Width: w, Height: h}
}

// ImageBounds returns the visible rectangle in image pixels of im, clamped
// to [0, Width] x [0, Height]. The result is memoized against the viewport
// revision: the tile layer asks for it every frame and recomputation is not
// free at 60 Hz.
func (v *Viewport) ImageBounds(im *TiledImage) Rect {
	if c, ok := v.bounds[im.ID]; ok && c.rev == v.rev {
		return c.rect
	}
	vis := v.VisibleWorldRect()
	local := Rect{X: vis.X - im.WorldX, Y: vis.Y - im.WorldY, Width: vis.Width, Height: vis.Height}
	rect := local.Intersect(Rect{Width: float64(im.Width), Height: float64(im.Height)})
	v.bounds[im.ID] = cachedBounds{rev: v.rev, rect: rect}
	return rect
}

// dropImageBounds removes the memoized bounds for an image that left the
// viewer.
func (v *Viewport) dropImageBounds(id string) {
	delete(v.bounds, id)
}

// FitToWidth sets the scale so im fills the container width, derives the
// distance clamps from the fit, and recenters to (0.5, 0.5).
func (v *Viewport) FitToWidth(im *TiledImage) {
	v.applyFit(v.containerW / float64(im.Width))
}

// FitToHeight sets the scale so im fills the container height, derives the
// distance clamps from the fit, and recenters to (0.5, 0.5).
func (v *Viewport) FitToHeight(im *TiledImage) {
	v.applyFit(v.containerH / float64(im.Height))
}

// FitToContainer sets the scale so im is fully visible in the container,
// derives the distance clamps from the fit, and recenters to (0.5, 0.5).
func (v *Viewport) FitToContainer(im *TiledImage) {
	v.applyFit(math.Min(
		v.containerW/float64(im.Width),
		v.containerH/float64(im.Height),
	))
}

func (v *Viewport) applyFit(scale float64) {
	fitDist := v.distanceForScale(scale)
	v.minDist = fitDist * fitMinDistanceFactor
	v.maxDist = fitDist * fitMaxDistanceFactor
	v.dist = fitDist
	v.centerX = 0.5
	v.centerY = 0.5
	v.invalidate()
}

// ConstrainCenter clamps the center so the view cannot pan past the edges
// of im. An axis is left unconstrained when the visible span on that axis
// already exceeds the image extent, so an anchored zoom-out may temporarily
// overshoot before its animation completes. Idempotent.
func (v *Viewport) ConstrainCenter(im *TiledImage) {
	s := v.Scale()
	visW := v.containerW / s
	visH := v.containerH / s
	wcx, wcy := v.worldCenter()

	if visW < float64(im.Width) {
		lo := im.WorldX + visW/2
		hi := im.WorldX + float64(im.Width) - visW/2
		wcx = math.Max(lo, math.Min(wcx, hi))
	}
	if visH < float64(im.Height) {
		lo := im.WorldY + visH/2
		hi := im.WorldY + float64(im.Height) - visH/2
		wcy = math.Max(lo, math.Min(wcy, hi))
	}
	v.setWorldCenter(wcx, wcy)
}
