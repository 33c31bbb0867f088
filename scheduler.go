package fathom

import (
	"container/heap"
	"context"
	"image"
	"log"
)

// DefaultFetchBudget is the number of simultaneous tile fetches allowed
// across all images. Browsers and most HTTP servers throttle a single
// origin to about this many connections, so a larger budget only builds
// head-of-line queues in the transport.
const DefaultFetchBudget = 6

// FetchFunc fetches and decodes one tile. It runs off the frame goroutine
// and must be safe for concurrent use; the returned bitmap is handed back
// to the frame goroutine by the scheduler.
type FetchFunc func(ctx context.Context, addr TileAddress, url string) (image.Image, error)

// tileRequest is one queued tile load.
type tileRequest struct {
	addr     TileAddress
	url      string
	priority float64 // lower loads first
	owner    *TileManager
	index    int // heap bookkeeping
}

// requestQueue is a min-heap of tile requests ordered by priority.
type requestQueue []*tileRequest

func (q requestQueue) Len() int            { return len(q) }
func (q requestQueue) Less(i, j int) bool  { return q[i].priority < q[j].priority }
func (q requestQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *requestQueue) Push(x any) { r := x.(*tileRequest); r.index = len(*q); *q = append(*q, r) }
func (q *requestQueue) Pop() any {
	old := *q
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return r
}

type loadResult struct {
	req    *tileRequest
	bitmap image.Image
	err    error
}

// TileScheduler drains tile requests from all images through one shared
// fetch budget, always starting the highest-priority (lowest-distance)
// request next. Construct one per Viewer and inject it into every
// TileManager; the shared-budget semantics live here, not in package state.
//
// All scheduler state is owned by the frame goroutine. Fetches run on their
// own goroutines and report back over a channel that Drain empties once per
// frame, so completion handlers never race camera or viewport state.
// Request priority orders which tile starts next, not which finishes next;
// render assembly sorts by depth precisely because arrival order is up to
// the network. In-flight fetches are never cancelled: a completed but
// no-longer-wanted tile simply populates the cache.
type TileScheduler struct {
	budget   int
	fetch    FetchFunc
	ctx      context.Context
	queue    requestQueue
	queued   map[TileAddress]*tileRequest
	inflight map[TileAddress]*tileRequest
	results  chan loadResult
}

// NewTileScheduler creates a scheduler with the given concurrency budget.
// A budget <= 0 falls back to DefaultFetchBudget.
func NewTileScheduler(budget int, fetch FetchFunc) *TileScheduler {
	if budget <= 0 {
		budget = DefaultFetchBudget
	}
	return &TileScheduler{
		budget:   budget,
		fetch:    fetch,
		ctx:      context.Background(),
		queued:   make(map[TileAddress]*tileRequest),
		inflight: make(map[TileAddress]*tileRequest),
		results:  make(chan loadResult, budget),
	}
}

// State returns the lifecycle state of the address as the scheduler sees
// it. Loaded tiles are the cache's business, so the best the scheduler can
// answer for an unknown address is TileFailed.
func (s *TileScheduler) State(addr TileAddress) TileState {
	if _, ok := s.inflight[addr]; ok {
		return TileLoading
	}
	if _, ok := s.queued[addr]; ok {
		return TileRequested
	}
	return TileFailed
}

// Pending reports whether the address is queued or in flight. TileManagers
// consult this before enqueueing so at most one load ever exists per
// address.
func (s *TileScheduler) Pending(addr TileAddress) bool {
	_, inflight := s.inflight[addr]
	_, queued := s.queued[addr]
	return inflight || queued
}

// InFlightCount returns the number of fetches currently running.
func (s *TileScheduler) InFlightCount() int {
	return len(s.inflight)
}

// QueuedCount returns the number of requests waiting for a slot.
func (s *TileScheduler) QueuedCount() int {
	return len(s.queue)
}

// Enqueue queues a tile load. A tile already queued has its priority
// updated in place; a tile already in flight is left alone. Call Kick
// after a batch of Enqueues to start fetches.
func (s *TileScheduler) Enqueue(owner *TileManager, addr TileAddress, url string, priority float64) {
	if _, ok := s.inflight[addr]; ok {
		return
	}
	if req, ok := s.queued[addr]; ok {
		if req.priority != priority {
			req.priority = priority
			heap.Fix(&s.queue, req.index)
		}
		return
	}
	req := &tileRequest{addr: addr, url: url, priority: priority, owner: owner}
	s.queued[addr] = req
	heap.Push(&s.queue, req)
}

// Kick starts queued fetches until the budget is exhausted or the queue is
// empty.
func (s *TileScheduler) Kick() {
	for len(s.inflight) < s.budget && s.queue.Len() > 0 {
		req := heap.Pop(&s.queue).(*tileRequest)
		delete(s.queued, req.addr)
		s.inflight[req.addr] = req
		go func(req *tileRequest) {
			bitmap, err := s.fetch(s.ctx, req.addr, req.url)
			s.results <- loadResult{req: req, bitmap: bitmap, err: err}
		}(req)
	}
}

// Drain delivers completed loads to their owning managers and refills the
// freed slots in priority order. Called once per frame; never blocks.
// A failed load is logged and dropped: the tile stays uncached and the next
// viewport request covering it retries naturally.
func (s *TileScheduler) Drain() {
	for {
		select {
		case res := <-s.results:
			delete(s.inflight, res.req.addr)
			if res.err != nil {
				log.Printf("fathom: tile %s load failed: %v", res.req.addr, res.err)
			} else {
				res.req.owner.completeLoad(res.req.addr, res.bitmap)
			}
		default:
			s.Kick()
			return
		}
	}
}

// forgetOwner drops queued requests belonging to a manager whose image was
// removed. In-flight fetches are left to finish; their results are
// discarded at drain time because the owner marks itself detached.
func (s *TileScheduler) forgetOwner(m *TileManager) {
	kept := s.queue[:0]
	for _, req := range s.queue {
		if req.owner == m {
			delete(s.queued, req.addr)
			continue
		}
		kept = append(kept, req)
	}
	s.queue = kept
	heap.Init(&s.queue)
}
