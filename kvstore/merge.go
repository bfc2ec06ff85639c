package kvstore

import "github.com/Darren9354/openr/state"

// NoMergeReason explains why an incoming (key, value) pair did not
// update the local store, for logging and counters. Grounded on
// KvStore.h's mergePublication (SPEC_FULL.md §4.1).
type NoMergeReason int

const (
	// Merged means the incoming value updated the local store.
	Merged NoMergeReason = iota
	// NoMergeOldVersion means the incoming (version, originatorId,
	// value) tuple lost the total-order comparison.
	NoMergeOldVersion
	// NoMergeTtlUpdate means the incoming value carries an identical
	// content tuple but only refreshes Ttl/TtlVersion.
	NoMergeTtlUpdate
	// NoMergeStaleTtlVersion means the incoming value matches content
	// but its TtlVersion is not newer than what's locally held.
	NoMergeStaleTtlVersion
	// NoMergeFilteredOut means the key does not pass the area's
	// configured key-prefix filters.
	NoMergeFilteredOut
	// NoMergeInvalidTtl means the incoming value's Ttl is neither
	// positive nor TtlInfinity.
	NoMergeInvalidTtl
)

// MergeOutcome is the per-key result of merging one incoming value
// against the local store.
type MergeOutcome struct {
	Key    state.Key
	Reason NoMergeReason
	// Value is the value that ended up in the local store after this
	// merge decision -- for Merged and NoMergeTtlUpdate this is the
	// updated local value; for the No* reasons it is the unchanged
	// prior local value.
	Value state.Value
}

// MergeResult is the aggregate outcome of merging an entire
// Publication against a local store snapshot.
type MergeResult struct {
	Outcomes map[state.Key]MergeOutcome
	// Updated holds the subset of KeyVals whose merge produced an
	// actual content change, i.e. what must be re-flooded to peers.
	Updated map[state.Key]state.Value
	// TtlUpdated holds keys whose merge only refreshed TTL bookkeeping.
	TtlUpdated map[state.Key]state.Value
	// Inconsistent holds keys where the loser of the total-order
	// comparison was one of myNodeId's own self-originated values and
	// the incoming value shared its originatorId -- the peer that sent
	// it is holding a stale view of a key we own (spec.md §4.1 step 3,
	// §7).
	Inconsistent []state.Key
}

// keyFilter reports whether key passes the configured prefix filters.
// No filters configured means everything passes.
func keyFilter(key state.Key, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if len(key) >= len(p) && string(key[:len(p)]) == p {
			return true
		}
	}
	return false
}

// Merge merges incoming against local (the current per-key snapshot
// of a KvStoreDb's store), applying the key-prefix filters and the
// Value total order. myNodeId identifies the caller, used only to
// detect when a peer's stale publication collides with one of our own
// self-originated keys. local is read-only; the caller is responsible
// for writing back Updated/TtlUpdated into its store.
func Merge(local map[state.Key]state.Value, incoming map[state.Key]state.Value, keyPrefixFilters []string, myNodeId state.NodeId) MergeResult {
	res := MergeResult{
		Outcomes:   make(map[state.Key]MergeOutcome, len(incoming)),
		Updated:    make(map[state.Key]state.Value),
		TtlUpdated: make(map[state.Key]state.Value),
	}
	for key, incomingVal := range incoming {
		if !keyFilter(key, keyPrefixFilters) {
			res.Outcomes[key] = MergeOutcome{Key: key, Reason: NoMergeFilteredOut, Value: local[key]}
			continue
		}
		if incomingVal.Ttl <= 0 && !incomingVal.IsInfiniteTtl() {
			res.Outcomes[key] = MergeOutcome{Key: key, Reason: NoMergeInvalidTtl, Value: local[key]}
			continue
		}
		incomingVal = incomingVal.WithRecomputedHash()
		localVal, exists := local[key]
		if !exists {
			res.Outcomes[key] = MergeOutcome{Key: key, Reason: Merged, Value: incomingVal}
			res.Updated[key] = incomingVal
			continue
		}

		cmp := state.Compare(incomingVal, localVal)
		switch {
		case cmp > 0:
			res.Outcomes[key] = MergeOutcome{Key: key, Reason: Merged, Value: incomingVal}
			res.Updated[key] = incomingVal
		case cmp < 0:
			res.Outcomes[key] = MergeOutcome{Key: key, Reason: NoMergeOldVersion, Value: localVal}
			if localVal.OriginatorId == myNodeId && incomingVal.OriginatorId == localVal.OriginatorId {
				res.Inconsistent = append(res.Inconsistent, key)
			}
		default:
			// Same content: only a TTL refresh can still matter.
			if incomingVal.TtlVersion <= localVal.TtlVersion {
				res.Outcomes[key] = MergeOutcome{Key: key, Reason: NoMergeStaleTtlVersion, Value: localVal}
				continue
			}
			merged := localVal
			merged.Ttl = incomingVal.Ttl
			merged.TtlVersion = incomingVal.TtlVersion
			res.Outcomes[key] = MergeOutcome{Key: key, Reason: NoMergeTtlUpdate, Value: merged}
			res.TtlUpdated[key] = merged
		}
	}
	return res
}
