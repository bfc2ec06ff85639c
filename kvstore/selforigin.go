package kvstore

import (
	"time"

	"github.com/Darren9354/openr/state"
)

// SelfOriginated manages the lifecycle of keys this node originates:
// persist/set/unset/erase, batching of the resulting advertisements
// (KvStoreDb drains the batch within the same dispatched call, with no
// debounce timer in between), and rebasing onto a peer's reported "previous
// incarnation" after a full sync discovers we restarted with stale
// local state. Grounded on KvStore.h's self-originated-key section
// (persistSelfOriginatedKey/setSelfOriginatedKey/
// unsetSelfOriginatedKey/eraseSelfOriginatedKey, SPEC_FULL.md §4.4).
type SelfOriginated struct {
	nodeId state.NodeId
	keys   map[state.Key]*state.SelfOriginatedValue

	backoffMin, backoffMax time.Duration

	// dirty holds keys changed since the last AdvertiseBatch, pending
	// the next AdvertiseBatch call.
	dirty map[state.Key]struct{}
}

// NewSelfOriginated constructs an empty manager for nodeId.
func NewSelfOriginated(nodeId state.NodeId, backoffMin, backoffMax time.Duration) *SelfOriginated {
	return &SelfOriginated{
		nodeId:     nodeId,
		keys:       make(map[state.Key]*state.SelfOriginatedValue),
		backoffMin: backoffMin,
		backoffMax: backoffMax,
		dirty:      make(map[state.Key]struct{}),
	}
}

// Persist sets key with persisted semantics: on future full syncs, if
// a peer reports a version for this key that is not strictly behind
// ours, it is re-advertised rather than silently accepted.
func (s *SelfOriginated) Persist(key state.Key, value []byte, ttl int64) {
	s.upsert(key, value, ttl, true)
}

// Set sets key with one-shot semantics: advertised now, but never
// reasserted against a conflicting peer report.
func (s *SelfOriginated) Set(key state.Key, value []byte, ttl int64) {
	s.upsert(key, value, ttl, false)
}

func (s *SelfOriginated) upsert(key state.Key, value []byte, ttl int64, persisted bool) {
	existing, ok := s.keys[key]
	var version uint64 = 1
	if ok {
		version = existing.Value.Version + 1
	}
	sv := &state.SelfOriginatedValue{
		Value: state.Value{
			Version:      version,
			OriginatorId: s.nodeId,
			Value:        value,
			Ttl:          ttl,
			TtlVersion:   0,
		}.WithRecomputedHash(),
		Persisted:  persisted,
		KeyBackoff: state.NewExponentialBackoff(s.backoffMin, s.backoffMax),
		TtlBackoff: state.NewExponentialBackoff(s.backoffMin, s.backoffMax),
	}
	s.keys[key] = sv
	s.dirty[key] = struct{}{}
}

// Unset withdraws key: the value payload is cleared but the key stays
// tracked with an incremented version, so a Set/Persist afterwards
// still produces a strictly higher version than any peer may have
// observed.
func (s *SelfOriginated) Unset(key state.Key) {
	existing, ok := s.keys[key]
	if !ok {
		return
	}
	existing.Value.Version++
	existing.Value.Value = nil
	existing.Value = existing.Value.WithRecomputedHash()
	existing.Persisted = false
	s.dirty[key] = struct{}{}
}

// Erase permanently stops tracking key: it is no longer re-advertised
// or rebased, and a future Set/Persist starts a fresh version 1.
func (s *SelfOriginated) Erase(key state.Key) {
	delete(s.keys, key)
	delete(s.dirty, key)
}

// AdvertiseBatch drains the dirty set into a Publication ready to
// flood, honoring each key's KeyBackoff.
func (s *SelfOriginated) AdvertiseBatch(now time.Time) state.Publication {
	pub := state.Publication{KeyVals: make(map[state.Key]state.Value)}
	for key := range s.dirty {
		sv, ok := s.keys[key]
		if !ok {
			continue
		}
		if !sv.KeyBackoff.CanTryNow(now) {
			continue
		}
		pub.KeyVals[key] = sv.Value
		sv.KeyBackoff.ReportSuccess(now)
		delete(s.dirty, key)
	}
	return pub
}

// RebaseOnFullSync reconciles local self-originated keys against a
// peer's reported value for the same key, discovered during a full
// sync. If the peer's version is at or above ours for a persisted
// key, we bump past it and re-advertise -- the "previous incarnation"
// rebase described in KvStore.h.
func (s *SelfOriginated) RebaseOnFullSync(key state.Key, peerValue state.Value) {
	sv, ok := s.keys[key]
	if !ok || !sv.Persisted {
		return
	}
	if peerValue.Version >= sv.Value.Version {
		sv.Value.Version = peerValue.Version + 1
		sv.Value = sv.Value.WithRecomputedHash()
		s.dirty[key] = struct{}{}
	}
}

// Get returns the current tracked value for key, if any.
func (s *SelfOriginated) Get(key state.Key) (state.Value, bool) {
	sv, ok := s.keys[key]
	if !ok {
		return state.Value{}, false
	}
	return sv.Value, true
}
