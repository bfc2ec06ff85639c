package kvstore

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/Darren9354/openr/state"
)

// FloodLimiter rate-limits flood publications sent to one peer. Backed
// by golang.org/x/time/rate (already an indirect dependency of the
// teacher's module graph, promoted to direct), the idiomatic Go token
// bucket and the closest analogue of the original's
// folly::BasicTokenBucket<> (SPEC_FULL.md §4).
type FloodLimiter struct {
	limiter *rate.Limiter
}

// NewFloodLimiter constructs a limiter allowing ratePps publications
// per second with the given burst. A non-positive ratePps disables
// rate limiting entirely.
func NewFloodLimiter(ratePps float64, burst int) *FloodLimiter {
	if ratePps <= 0 {
		return &FloodLimiter{limiter: nil}
	}
	return &FloodLimiter{limiter: rate.NewLimiter(rate.Limit(ratePps), burst)}
}

// Allow reports whether a publication may be sent now, consuming one
// token if so.
func (f *FloodLimiter) Allow() bool {
	if f.limiter == nil {
		return true
	}
	return f.limiter.Allow()
}

// FloodBuffer coalesces per-peer flood publications that arrive faster
// than FloodLimiter allows them out, merging successive updates for
// the same key into one pending value rather than queuing duplicates.
// Grounded on KvStoreParams.floodRate and the publicationBuffer_
// pattern in KvStore.h.
type FloodBuffer struct {
	pending     map[state.Key]state.Value
	expired     map[state.Key]struct{}
	nodeIds     []state.NodeId
}

// NewFloodBuffer constructs an empty buffer.
func NewFloodBuffer() *FloodBuffer {
	return &FloodBuffer{
		pending: make(map[state.Key]state.Value),
		expired: make(map[state.Key]struct{}),
	}
}

// Add buffers one publication's worth of updates, coalescing by key.
// Only the flood path (nodeIds) of the most recent call is kept, since
// all buffered updates are about to be re-flooded from this node's
// perspective anyway.
func (b *FloodBuffer) Add(pub state.Publication) {
	for k, v := range pub.KeyVals {
		delete(b.expired, k)
		b.pending[k] = v
	}
	for _, k := range pub.ExpiredKeys {
		delete(b.pending, k)
		b.expired[k] = struct{}{}
	}
	b.nodeIds = pub.NodeIds
}

// Empty reports whether the buffer has nothing pending.
func (b *FloodBuffer) Empty() bool {
	return len(b.pending) == 0 && len(b.expired) == 0
}

// Drain returns everything buffered as one Publication and clears the
// buffer.
func (b *FloodBuffer) Drain(area state.Area) state.Publication {
	pub := state.Publication{
		Area:    area,
		KeyVals: b.pending,
		NodeIds: b.nodeIds,
	}
	for k := range b.expired {
		pub.ExpiredKeys = append(pub.ExpiredKeys, k)
	}
	b.pending = make(map[state.Key]state.Value)
	b.expired = make(map[state.Key]struct{})
	return pub
}

// floodBufferDrainInterval is how often a non-empty FloodBuffer is
// drained when the limiter is refusing sends.
const floodBufferDrainInterval = 50 * time.Millisecond
