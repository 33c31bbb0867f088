package fathom

import (
	"container/list"
	"image"
)

// evictionFraction is the share of capacity removed in one eviction batch.
// Evicting a batch instead of single entries keeps the cache from churning
// at the capacity boundary while the viewport is in motion.
const evictionFraction = 0.2

// cachedTile is a loaded tile resident in the cache.
type cachedTile struct {
	addr   TileAddress
	bitmap image.Image
}

// tileCache is a bounded map of loaded tiles with LRU access ordering.
// Only loaded tiles live here; requested and in-flight state is tracked by
// the scheduler.
type tileCache struct {
	max     int
	entries map[TileAddress]*list.Element
	order   *list.List // front = most recently accessed
}

func newTileCache(max int) *tileCache {
	return &tileCache{
		max:     max,
		entries: make(map[TileAddress]*list.Element),
		order:   list.New(),
	}
}

func (c *tileCache) len() int {
	return len(c.entries)
}

func (c *tileCache) contains(addr TileAddress) bool {
	_, ok := c.entries[addr]
	return ok
}

// get returns the tile's bitmap and marks it most recently accessed.
func (c *tileCache) get(addr TileAddress) (image.Image, bool) {
	el, ok := c.entries[addr]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cachedTile).bitmap, true
}

// put inserts or replaces a tile and marks it most recently accessed.
func (c *tileCache) put(addr TileAddress, bitmap image.Image) {
	if el, ok := c.entries[addr]; ok {
		el.Value.(*cachedTile).bitmap = bitmap
		c.order.MoveToFront(el)
		return
	}
	c.entries[addr] = c.order.PushFront(&cachedTile{addr: addr, bitmap: bitmap})
}

// remove deletes a single tile, reporting whether it was present.
func (c *tileCache) remove(addr TileAddress) bool {
	el, ok := c.entries[addr]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.entries, addr)
	return true
}

// overCapacity reports whether an eviction batch is due.
func (c *tileCache) overCapacity() bool {
	return len(c.entries) > c.max
}

// evictBatch removes the least-recently-accessed floor(max * 0.2) tiles in
// one atomic pass and returns their addresses, oldest first, so the caller
// can release the matching GPU resources.
func (c *tileCache) evictBatch() []TileAddress {
	n := int(float64(c.max) * evictionFraction)
	if n <= 0 {
		n = 1
	}
	evicted := make([]TileAddress, 0, n)
	for len(evicted) < n {
		back := c.order.Back()
		if back == nil {
			break
		}
		t := back.Value.(*cachedTile)
		c.order.Remove(back)
		delete(c.entries, t.addr)
		evicted = append(evicted, t.addr)
	}
	return evicted
}
