package state

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"
)

// TtlInfinity is the sentinel TTL meaning "never expires".
const TtlInfinity = int64(-1)

// Value is a single versioned KvStore datum. Version 0 is reserved as
// "uninitialized" and must never be merged in from the wire.
type Value struct {
	Version      uint64
	OriginatorId NodeId
	Value        []byte // opaque payload, nil if absent
	Ttl          int64  // milliseconds, or TtlInfinity
	TtlVersion   uint32
	Hash         uint64
}

// IsInfiniteTtl reports whether v never expires.
func (v Value) IsInfiniteTtl() bool {
	return v.Ttl == TtlInfinity
}

// ComputeHash recomputes Hash as a pure function of
// (version, originatorId, value). It must never be trusted from the
// wire for merge decisions -- callers recompute on ingest.
func (v Value) ComputeHash() uint64 {
	h := xxhash.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v.Version)
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(v.OriginatorId))
	_, _ = h.Write(v.Value)
	return h.Sum64()
}

// WithRecomputedHash returns a copy of v with Hash set from
// ComputeHash.
func (v Value) WithRecomputedHash() Value {
	v.Hash = v.ComputeHash()
	return v
}

// contentCompare orders two values by the lexicographic tuple
// (version, originatorId, value), all "higher wins". It ignores
// Ttl/TtlVersion entirely -- a change restricted to those fields is a
// TTL update, not a content change.
func contentCompare(a, b Value) int {
	if a.Version != b.Version {
		if a.Version < b.Version {
			return -1
		}
		return 1
	}
	if a.OriginatorId != b.OriginatorId {
		if a.OriginatorId < b.OriginatorId {
			return -1
		}
		return 1
	}
	return bytes.Compare(a.Value, b.Value)
}

// SameContent reports whether a and b carry the same
// (version, originatorId, value) tuple, i.e. differ at most in
// Ttl/TtlVersion/Hash.
func SameContent(a, b Value) bool {
	return contentCompare(a, b) == 0
}

// Compare implements the Value total order used for merges: higher
// (version, originatorId, value) always wins.
func Compare(a, b Value) int {
	return contentCompare(a, b)
}

// ExpiresAt returns the absolute deadline for v given the current
// time, or the zero Time if v never expires.
func (v Value) ExpiresAt(now time.Time) time.Time {
	if v.IsInfiniteTtl() {
		return time.Time{}
	}
	return now.Add(time.Duration(v.Ttl) * time.Millisecond)
}
