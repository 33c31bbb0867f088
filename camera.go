package fathom

import (
	"log"
	"math"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// Interaction tuning.
const (
	// defaultTrailingFactor is the exponential follow factor applied per
	// frame while interactive motion trails its target.
	defaultTrailingFactor = 0.12

	// panSnapPixels is the canvas-pixel delta under which trailing pan
	// snaps to its target and stops, preventing perpetual micro-motion.
	panSnapPixels = 0.05

	// zoomSnapRelative is the relative distance delta under which trailing
	// zoom snaps to its target.
	zoomSnapRelative = 1e-4

	// wheelZoomRate converts wheel delta units into an exponential factor
	// on the target camera distance.
	wheelZoomRate = 0.002

	// requestThrottleInterval limits immediate tile requests during
	// interaction so continuous motion does not spam the scheduler, while
	// the first movement still pages promptly.
	requestThrottleInterval = 0.2

	// requestSettleDelay schedules one debounced tile request after the
	// most recent movement, guaranteeing the settled end state is fully
	// paged even though throttling skipped intermediate positions.
	requestSettleDelay = 0.05
)

type animKind uint8

const (
	animPan animKind = iota
	animZoom
	animTo
)

// animation is one programmatic camera transition. The pan/zoom/compound
// behavioral split is a tagged kind with one interpolation arm per variant;
// at most one animation exists at a time, owned by the Camera.
type animation struct {
	kind    animKind
	imageID string

	centerX *gween.Tween
	centerY *gween.Tween
	scale   *gween.Tween

	targetCX    float64
	targetCY    float64
	targetScale float64

	// Anchored zoom keeps anchorImage projected onto anchorCanvas on every
	// tick. The image point is captured once when the animation starts;
	// recomputing it per tick would drift if the user pans concurrently.
	hasAnchor    bool
	anchorImage  Vec2
	anchorCanvas Vec2

	onComplete func(aborted bool)
}

// Camera owns all viewport mutation: programmatic eased transitions and
// interactive trailing pan/zoom. Nothing else writes the Viewport.
//
// At most one of the two drivers moves the viewport per frame: interactive
// trailing is suppressed while a programmatic animation is active. Every
// animation's completion callback fires exactly once, with aborted=true
// when the animation was cancelled, superseded, or its backing image was
// removed before it finished.
type Camera struct {
	vp           *Viewport
	lookup       func(id string) *TiledImage
	requestTiles func()

	trailingFactor float64

	anim  *animation
	clock float64

	// Interactive pan trailing state. panActive means the pointer is down;
	// panSettling means motion is still easing toward the target. Both can
	// outlive each other: trailing continues after pointer-up until the
	// delta snaps.
	panActive   bool
	panSettling bool
	panImageID  string
	panAnchor   Vec2
	panTarget   Vec2
	panCurrent  Vec2

	// Interactive wheel zoom trailing state.
	zoomSettling     bool
	zoomImageID      string
	zoomAnchorImage  Vec2
	zoomAnchorCanvas Vec2
	zoomTargetDist   float64
	zoomCurrentDist  float64

	// idle short-circuits all per-frame interactive work once pan and zoom
	// deltas are under threshold; re-armed by the next interaction. Update
	// runs on every display refresh indefinitely, so this matters.
	idle bool

	moved         bool
	settlePending bool
	lastImmediate float64
	lastMove      float64
}

// newCamera creates a camera over the viewport. lookup resolves image ids;
// requestTiles is invoked by the hybrid throttle/debounce policy whenever
// the viewport has moved enough to need new tiles.
func newCamera(vp *Viewport, lookup func(id string) *TiledImage, requestTiles func()) *Camera {
	return &Camera{
		vp:             vp,
		lookup:         lookup,
		requestTiles:   requestTiles,
		trailingFactor: defaultTrailingFactor,
		idle:           true,
		lastImmediate:  math.Inf(-1),
	}
}

// Viewport returns the viewport this camera drives.
func (c *Camera) Viewport() *Viewport {
	return c.vp
}

// Animating reports whether a programmatic animation is active.
func (c *Camera) Animating() bool {
	return c.anim != nil
}

// Idle reports whether the camera has no animation and no trailing motion.
func (c *Camera) Idle() bool {
	return c.anim == nil && c.idle
}

func (c *Camera) image(id, op string) *TiledImage {
	im := c.lookup(id)
	if im == nil {
		log.Printf("fathom: %s: unknown image %q", op, id)
	}
	return im
}

// noteMovement records that the viewport moved this frame, arming both
// halves of the tile-request policy.
func (c *Camera) noteMovement() {
	c.moved = true
	c.lastMove = c.clock
	c.settlePending = true
}

// --- Fit operations ---

// FitToWidth fits the image to the container width, recenters, and pages
// tiles for the new view. No-op with a warning for an unknown id.
func (c *Camera) FitToWidth(imageID string) {
	if im := c.image(imageID, "FitToWidth"); im != nil {
		c.vp.FitToWidth(im)
		c.afterJump()
	}
}

// FitToHeight fits the image to the container height and recenters.
func (c *Camera) FitToHeight(imageID string) {
	if im := c.image(imageID, "FitToHeight"); im != nil {
		c.vp.FitToHeight(im)
		c.afterJump()
	}
}

// FitToContainer fits the whole image inside the container and recenters.
func (c *Camera) FitToContainer(imageID string) {
	if im := c.image(imageID, "FitToContainer"); im != nil {
		c.vp.FitToContainer(im)
		c.afterJump()
	}
}

// afterJump pages tiles immediately after a discontinuous viewport change.
func (c *Camera) afterJump() {
	c.noteMovement()
	if c.requestTiles != nil {
		c.requestTiles()
		c.lastImmediate = c.clock
		c.moved = false
	}
}

// --- Programmatic animations ---

// PanTo eases the normalized view center to (centerX, centerY) over
// duration seconds. onComplete may be nil; it fires exactly once.
func (c *Camera) PanTo(imageID string, centerX, centerY, duration float64, fn ease.TweenFunc, onComplete func(aborted bool)) {
	if c.image(imageID, "PanTo") == nil {
		return
	}
	cx, cy := c.vp.Center()
	c.start(&animation{
		kind:       animPan,
		imageID:    imageID,
		centerX:    gween.New(float32(cx), float32(centerX), float32(duration), fn),
		centerY:    gween.New(float32(cy), float32(centerY), float32(duration), fn),
		targetCX:   centerX,
		targetCY:   centerY,
		onComplete: onComplete,
	})
}

// ZoomTo eases the scale to the given value over duration seconds. The
// target is clamped to the reachable scale range up front so the animation
// ends exactly on the value it applies.
func (c *Camera) ZoomTo(imageID string, scale, duration float64, fn ease.TweenFunc, onComplete func(aborted bool)) {
	if c.image(imageID, "ZoomTo") == nil {
		return
	}
	c.start(c.zoomAnimation(imageID, scale, duration, fn, onComplete))
}

// ZoomToPoint is ZoomTo with an anchor: the image point currently under the
// given canvas point stays under it throughout the animation, not just at
// the endpoints.
func (c *Camera) ZoomToPoint(imageID string, scale float64, anchor Vec2, duration float64, fn ease.TweenFunc, onComplete func(aborted bool)) {
	im := c.image(imageID, "ZoomToPoint")
	if im == nil {
		return
	}
	a := c.zoomAnimation(imageID, scale, duration, fn, onComplete)
	ix, iy := c.vp.CanvasToImagePoint(anchor.X, anchor.Y, im)
	a.hasAnchor = true
	a.anchorImage = Vec2{X: ix, Y: iy}
	a.anchorCanvas = anchor
	c.start(a)
}

// ZoomBy scales the current zoom by factor, eased over duration seconds.
func (c *Camera) ZoomBy(imageID string, factor, duration float64, fn ease.TweenFunc, onComplete func(aborted bool)) {
	if c.image(imageID, "ZoomBy") == nil {
		return
	}
	c.start(c.zoomAnimation(imageID, c.vp.Scale()*factor, duration, fn, onComplete))
}

// MoveTo eases center and scale together over duration seconds.
func (c *Camera) MoveTo(imageID string, centerX, centerY, scale, duration float64, fn ease.TweenFunc, onComplete func(aborted bool)) {
	if c.image(imageID, "MoveTo") == nil {
		return
	}
	cx, cy := c.vp.Center()
	target := c.vp.ClampScale(scale)
	c.start(&animation{
		kind:        animTo,
		imageID:     imageID,
		centerX:     gween.New(float32(cx), float32(centerX), float32(duration), fn),
		centerY:     gween.New(float32(cy), float32(centerY), float32(duration), fn),
		scale:       gween.New(float32(c.vp.Scale()), float32(target), float32(duration), fn),
		targetCX:    centerX,
		targetCY:    centerY,
		targetScale: target,
		onComplete:  onComplete,
	})
}

func (c *Camera) zoomAnimation(imageID string, scale, duration float64, fn ease.TweenFunc, onComplete func(aborted bool)) *animation {
	target := c.vp.ClampScale(scale)
	return &animation{
		kind:        animZoom,
		imageID:     imageID,
		scale:       gween.New(float32(c.vp.Scale()), float32(target), float32(duration), fn),
		targetScale: target,
		onComplete:  onComplete,
	}
}

// start replaces any active animation with a. The old animation's callback
// fires exactly once, after its state is cleared, so a callback that starts
// a new animation is not clobbered by the cancellation it runs inside.
func (c *Camera) start(a *animation) {
	c.cancelAnimation()
	c.anim = a
}

// Stop cancels the active animation, if any, firing its completion
// callback with aborted=true. The viewport stays wherever the animation
// left it.
func (c *Camera) Stop() {
	c.cancelAnimation()
}

func (c *Camera) cancelAnimation() {
	if c.anim == nil {
		return
	}
	old := c.anim
	c.anim = nil
	if old.onComplete != nil {
		old.onComplete(true)
	}
}

// --- Interactive trailing ---

// StartInteractivePan begins a drag pan: the image point under the canvas
// position is anchored and will trail the pointer with inertial easing.
func (c *Camera) StartInteractivePan(canvasX, canvasY float64, imageID string) {
	im := c.image(imageID, "StartInteractivePan")
	if im == nil {
		return
	}
	ix, iy := c.vp.CanvasToImagePoint(canvasX, canvasY, im)
	c.panImageID = imageID
	c.panAnchor = Vec2{X: ix, Y: iy}
	c.panTarget = Vec2{X: canvasX, Y: canvasY}
	c.panCurrent = c.panTarget
	c.panActive = true
	c.panSettling = false
	c.idle = false
}

// UpdateInteractivePan moves the drag target. The viewport itself is only
// written by the per-frame trailing update.
func (c *Camera) UpdateInteractivePan(canvasX, canvasY float64) {
	if !c.panActive {
		return
	}
	c.panTarget = Vec2{X: canvasX, Y: canvasY}
	c.panSettling = true
	c.idle = false
}

// EndInteractivePan releases the pointer. Trailing motion continues until
// the remaining delta snaps under threshold.
func (c *Camera) EndInteractivePan() {
	c.panActive = false
}

// HandleWheel adjusts the target camera distance exponentially by the wheel
// delta, anchored so the image point under the cursor stays put while the
// distance eases in. Positive delta zooms out.
func (c *Camera) HandleWheel(deltaY, canvasX, canvasY float64, imageID string) {
	im := c.image(imageID, "HandleWheel")
	if im == nil {
		return
	}
	reanchor := !c.zoomSettling || c.zoomImageID != imageID ||
		math.Abs(c.zoomAnchorCanvas.X-canvasX) > 1 ||
		math.Abs(c.zoomAnchorCanvas.Y-canvasY) > 1
	if reanchor {
		ix, iy := c.vp.CanvasToImagePoint(canvasX, canvasY, im)
		c.zoomAnchorImage = Vec2{X: ix, Y: iy}
		c.zoomAnchorCanvas = Vec2{X: canvasX, Y: canvasY}
		c.zoomCurrentDist = c.vp.Distance()
		if !c.zoomSettling {
			c.zoomTargetDist = c.vp.Distance()
		}
	}
	c.zoomImageID = imageID
	target := c.zoomTargetDist * math.Exp(deltaY*wheelZoomRate)
	c.zoomTargetDist = math.Max(c.vp.MinDistance(), math.Min(target, c.vp.MaxDistance()))
	c.zoomSettling = true
	c.idle = false
}

// --- Per-frame update ---

// Update advances the camera by dt seconds: ticks the active animation or
// the interactive trailing state, then runs the hybrid tile-request policy.
// Called once per display refresh; all viewport mutation happens here.
func (c *Camera) Update(dt float64) {
	c.clock += dt
	if c.anim != nil {
		c.tickAnimation(dt)
	} else if !c.idle {
		c.tickInteractive()
	}
	c.tickRequests()
}

func (c *Camera) tickAnimation(dt float64) {
	a := c.anim
	im := c.lookup(a.imageID)
	if im == nil {
		// Backing image disappeared mid-flight: stop without completing
		// the interpolation, but still fire the callback (aborted).
		log.Printf("fathom: animation target image %q removed, stopping", a.imageID)
		c.cancelAnimation()
		return
	}

	done := true
	if a.centerX != nil {
		x, dx := a.centerX.Update(float32(dt))
		y, dy := a.centerY.Update(float32(dt))
		c.vp.SetCenter(float64(x), float64(y))
		done = done && dx && dy
	}
	if a.scale != nil {
		s, ds := a.scale.Update(float32(dt))
		c.vp.SetScale(float64(s))
		if a.hasAnchor {
			c.vp.SetCenterFromImagePoint(a.anchorImage.X, a.anchorImage.Y, a.anchorCanvas.X, a.anchorCanvas.Y, im)
		}
		done = done && ds
	}
	c.noteMovement()

	if !done {
		return
	}
	// Snap exactly to the targets; float32 tween arithmetic must not leave
	// residue on the final state.
	if a.scale != nil {
		c.vp.SetScale(a.targetScale)
		if a.hasAnchor {
			c.vp.SetCenterFromImagePoint(a.anchorImage.X, a.anchorImage.Y, a.anchorCanvas.X, a.anchorCanvas.Y, im)
		}
	}
	if a.centerX != nil {
		c.vp.SetCenter(a.targetCX, a.targetCY)
	}
	if !a.hasAnchor {
		c.vp.ConstrainCenter(im)
	}
	c.anim = nil
	if a.onComplete != nil {
		a.onComplete(false)
	}
}

func (c *Camera) tickInteractive() {
	moved := false

	if c.panSettling {
		im := c.lookup(c.panImageID)
		if im == nil {
			c.panSettling = false
			c.panActive = false
		} else {
			dx := c.panTarget.X - c.panCurrent.X
			dy := c.panTarget.Y - c.panCurrent.Y
			c.panCurrent.X += dx * c.trailingFactor
			c.panCurrent.Y += dy * c.trailingFactor
			if math.Abs(dx) < panSnapPixels && math.Abs(dy) < panSnapPixels {
				c.panCurrent = c.panTarget
				c.panSettling = false
			}
			c.vp.SetCenterFromImagePoint(c.panAnchor.X, c.panAnchor.Y, c.panCurrent.X, c.panCurrent.Y, im)
			c.vp.ConstrainCenter(im)
			moved = true
		}
	}

	if c.zoomSettling {
		im := c.lookup(c.zoomImageID)
		if im == nil {
			c.zoomSettling = false
		} else {
			dd := c.zoomTargetDist - c.zoomCurrentDist
			c.zoomCurrentDist += dd * c.trailingFactor
			if math.Abs(dd) < zoomSnapRelative*c.zoomTargetDist {
				c.zoomCurrentDist = c.zoomTargetDist
				c.zoomSettling = false
			}
			c.vp.SetDistance(c.zoomCurrentDist)
			c.vp.SetCenterFromImagePoint(c.zoomAnchorImage.X, c.zoomAnchorImage.Y, c.zoomAnchorCanvas.X, c.zoomAnchorCanvas.Y, im)
			moved = true
		}
	}

	if moved {
		c.noteMovement()
	}
	if !c.panActive && !c.panSettling && !c.zoomSettling {
		c.idle = true
	}
}

// tickRequests runs the hybrid tile-request policy: an immediate request
// throttled to one per requestThrottleInterval while motion is ongoing,
// and always one debounced request requestSettleDelay after the most
// recent movement.
func (c *Camera) tickRequests() {
	if c.requestTiles == nil {
		return
	}
	if c.moved && c.clock-c.lastImmediate >= requestThrottleInterval {
		c.lastImmediate = c.clock
		c.moved = false
		c.requestTiles()
	}
	if c.settlePending && c.clock-c.lastMove >= requestSettleDelay {
		c.settlePending = false
		c.moved = false
		c.requestTiles()
	}
}
