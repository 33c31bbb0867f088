package fathom

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"testing"
	"time"
)

const epsilon = 1e-9

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

// testImage returns the standard pyramid used across the tests: 4096x4096,
// 256px tiles, four levels.
func testImage(id string) *TiledImage {
	return &TiledImage{
		ID:           id,
		Width:        4096,
		Height:       4096,
		TileSize:     256,
		ScaleFactors: []int{1, 2, 4, 8},
		Source: TileSourceFunc(func(level, x, y int, region image.Rectangle) string {
			return fmt.Sprintf("test://%s/%d/%d/%d", id, level, x, y)
		}),
	}
}

// testViewport returns an 800x600 viewport over a single testImage world at
// scale 1 centered on (0.5, 0.5).
func testViewport() *Viewport {
	vp := NewViewport(800, 600)
	vp.SetWorldSize(4096, 4096)
	vp.SetScale(1)
	return vp
}

// captureFetch is a FetchFunc that records every started fetch and can
// optionally block until released, for pinning down scheduler behavior.
type captureFetch struct {
	mu      sync.Mutex
	addrs   []TileAddress
	started chan TileAddress // optional, receives each start
	block   chan struct{}    // optional, fetches wait on it
}

func (f *captureFetch) fetch(_ context.Context, addr TileAddress, _ string) (image.Image, error) {
	f.mu.Lock()
	f.addrs = append(f.addrs, addr)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- addr
	}
	if f.block != nil {
		<-f.block
	}
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func (f *captureFetch) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.addrs)
}

func (f *captureFetch) snapshot() []TileAddress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TileAddress(nil), f.addrs...)
}

// drainUntilSettled pumps the scheduler until nothing is queued or in
// flight, failing the test on timeout.
func drainUntilSettled(t *testing.T, s *TileScheduler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.InFlightCount() > 0 || s.QueuedCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("scheduler did not settle: inflight=%d queued=%d", s.InFlightCount(), s.QueuedCount())
		}
		time.Sleep(time.Millisecond)
		s.Drain()
	}
}

// recordingRenderer records texture traffic without touching the GPU.
type recordingRenderer struct {
	uploaded []TileAddress
	released []TileAddress
}

func (r *recordingRenderer) UploadTexture(addr TileAddress, _ image.Image) {
	r.uploaded = append(r.uploaded, addr)
}

func (r *recordingRenderer) ReleaseTexture(addr TileAddress) {
	r.released = append(r.released, addr)
}
