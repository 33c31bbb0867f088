// Package fathom is a deep-zoom tiled-image viewer core for [Ebitengine].
//
// Fathom maps a virtual camera over multi-resolution image pyramids, pages
// pyramid tiles in from the network on demand, caches them with bounded
// memory, and drives smooth pan/zoom interaction and eased programmatic
// camera animations.
//
// # Quick start
//
// Create a [Viewer], add one or more [TiledImage] descriptions, and call
// [Viewer.Update] and [Viewer.Draw] from your [ebiten.Game]:
//
//	viewer := fathom.New(fathom.Config{
//		ContainerWidth:  800,
//		ContainerHeight: 600,
//	})
//	viewer.AddImage(&fathom.TiledImage{
//		ID: "plate", Width: 4096, Height: 4096,
//		TileSize: 256, ScaleFactors: []int{1, 2, 4, 8},
//		Source: mySource,
//	})
//	viewer.Camera().FitToContainer("plate")
//
//	type Game struct{ viewer *fathom.Viewer }
//
//	func (g *Game) Update() error        { g.viewer.Update(1.0 / float64(ebiten.TPS())); return nil }
//	func (g *Game) Draw(s *ebiten.Image) { g.viewer.Draw(s) }
//
// # Coordinate spaces
//
// Three coordinate spaces are in play. Canvas pixels are positions on the
// drawing surface. Image pixels address a single image at full resolution.
// World pixels form a shared space in which multiple images are placed, so
// one camera can view several images at once; a single image is simply one
// placed at the world origin. [Viewport] converts between all three.
//
// The camera is parameterized as a distance from the image plane; the scale
// (world pixels to canvas pixels) is derived from that distance and the
// vertical field of view. This is a parameterization of 2D zoom, not a 3D
// camera: there is no rotation or perspective distortion.
//
// # Tile paging
//
// Each image gets a [TileManager] that watches the viewport, computes which
// pyramid tiles cover the visible region at the right detail level, and
// requests missing ones through a shared [TileScheduler]. The scheduler
// enforces one global fetch budget across all images and always starts the
// tile closest to the viewport center next. Loaded tiles live in a bounded
// LRU cache; stale coarser tiles fill gaps while finer ones arrive.
//
// [Ebitengine]: https://ebitengine.org
package fathom
