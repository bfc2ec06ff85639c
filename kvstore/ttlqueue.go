package kvstore

import (
	"container/heap"
	"time"

	"github.com/Darren9354/openr/state"
)

// ttlEntry is one pending expiration, queued by absolute deadline.
// Grounded on KvStore.h's TtlCountdownQueue / TtlCountdownQueueEntry
// (SPEC_FULL.md §4.3).
type ttlEntry struct {
	deadline   time.Time
	key        state.Key
	version    uint64
	ttlVersion uint32
}

// ttlHeap is the container/heap.Interface implementation backing
// TtlQueue. No priority-queue library appears anywhere in the
// retrieved example pack (checked across every repo's go.mod) so this
// uses stdlib container/heap, the idiomatic Go answer (see DESIGN.md).
type ttlHeap []*ttlEntry

func (h ttlHeap) Len() int            { return len(h) }
func (h ttlHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h ttlHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *ttlHeap) Push(x any)         { *h = append(*h, x.(*ttlEntry)) }
func (h *ttlHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// TtlQueue tracks the next expiration deadline for every key currently
// held with a finite TTL, so KvStoreDb can expire keys locally without
// scanning the whole map on every tick.
type TtlQueue struct {
	h ttlHeap
}

// NewTtlQueue constructs an empty queue.
func NewTtlQueue() *TtlQueue {
	q := &TtlQueue{}
	heap.Init(&q.h)
	return q
}

// Push schedules key for expiration at deadline. A key may be pushed
// more than once (e.g. on every TTL refresh); stale entries are
// returned by PopExpired like any other and discarded by
// KvStoreDb.checkKeyTtl against its current (version, ttlVersion) for
// that key.
func (q *TtlQueue) Push(key state.Key, version uint64, ttlVersion uint32, deadline time.Time) {
	heap.Push(&q.h, &ttlEntry{deadline: deadline, key: key, version: version, ttlVersion: ttlVersion})
}

// Len returns the number of pending entries, including stale ones not
// yet lazily discarded.
func (q *TtlQueue) Len() int { return q.h.Len() }

// PeekDeadline returns the earliest pending deadline, or the zero Time
// if the queue is empty.
func (q *TtlQueue) PeekDeadline() time.Time {
	if q.h.Len() == 0 {
		return time.Time{}
	}
	return q.h[0].deadline
}

// PopExpired pops and returns every entry whose deadline is at or
// before now, in deadline order.
func (q *TtlQueue) PopExpired(now time.Time) []ttlEntry {
	var out []ttlEntry
	for q.h.Len() > 0 && !q.h[0].deadline.After(now) {
		e := heap.Pop(&q.h).(*ttlEntry)
		out = append(out, *e)
	}
	return out
}
