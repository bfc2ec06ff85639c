package state

// Publication is a batch of key/value updates exchanged between peers,
// either as a flood, a full-sync response, or a self-originated update.
type Publication struct {
	Area Area
	// KeyVals carries the actual (key -> value) updates.
	KeyVals map[Key]Value
	// ExpiredKeys lists keys whose TTL reached zero on the sender --
	// recipients must expire them locally rather than merge a value.
	ExpiredKeys []Key
	// NodeIds is the flood path so far, used for loop suppression: a
	// publication is never re-flooded to a node already in this list.
	NodeIds []NodeId
	// TtlUpdate, when true, means KeyVals carries TTL-only refreshes
	// (version/originator/value unchanged) rather than content changes.
	TtlUpdate bool
}

// KeyDumpParams selects a subset of a KvStoreDb's local map for a
// full-sync request or response.
type KeyDumpParams struct {
	// Prefix restricts the dump to keys with this string prefix. Empty
	// means all keys.
	Prefix string
	// KeyValHashes, when non-nil, filters the dump to only keys whose
	// local hash differs from the hash given here -- the requester
	// already holds these (key, hash) pairs and does not need the
	// value repeated, only used as a don't-send filter on the sender.
	KeyValHashes map[Key]uint64
	// DoNotPublishValue, when true, strips Value.Value from the
	// response after hash filtering, returning metadata only (used by
	// peers that already have every value but want TTL bookkeeping).
	DoNotPublishValue bool
}

// KeySetParams is a local (non-flooded, non-wire) request to set one
// or more self-originated keys.
type KeySetParams struct {
	KeyVals map[Key][]byte
	// Ttl, when zero, means TtlInfinity.
	Ttl int64
}

// PeersMap is the wire shape of an area's configured peer set, returned
// by the peer-discovery RPC surface.
type PeersMap map[NodeId]PeerSpec

// PeerSpec describes how to reach a configured peer.
type PeerSpec struct {
	NodeId  NodeId
	Address string
}

// AreaSummary reports enough about one area's KvStoreDb to build a
// status view without dumping the full key/value map.
type AreaSummary struct {
	Area          Area
	KeyValsCount  int
	PeersCount    int
	Peers         map[NodeId]PeerState
	InitialSynced bool
}
