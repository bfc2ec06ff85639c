package decision

import "github.com/Darren9354/openr/state"

// PrefixState tracks every node's advertised PrefixEntry for every
// prefix it originates within one area -- the key-space spec.md §4.6
// step 1 reads SpfSolver.CreateRouteForPrefix's candidate set from.
// Grounded on PrefixState's usage in SpfSolver.cpp.
type PrefixState struct {
	// entries maps prefix -> originating node -> that node's entry.
	entries map[state.Prefix]map[state.NodeId]state.PrefixEntry
}

// NewPrefixState constructs an empty PrefixState.
func NewPrefixState() *PrefixState {
	return &PrefixState{entries: make(map[state.Prefix]map[state.NodeId]state.PrefixEntry)}
}

// UpdatePrefixEntry records node's advertisement of entry, replacing
// any prior advertisement of the same prefix from the same node.
func (ps *PrefixState) UpdatePrefixEntry(node state.NodeId, entry state.PrefixEntry) {
	m, ok := ps.entries[entry.Prefix]
	if !ok {
		m = make(map[state.NodeId]state.PrefixEntry)
		ps.entries[entry.Prefix] = m
	}
	m[node] = entry
}

// DeletePrefixEntry withdraws node's advertisement of prefix, e.g. on
// its KvStore key's TTL expiry.
func (ps *PrefixState) DeletePrefixEntry(node state.NodeId, prefix state.Prefix) {
	m, ok := ps.entries[prefix]
	if !ok {
		return
	}
	delete(m, node)
	if len(m) == 0 {
		delete(ps.entries, prefix)
	}
}

// DeleteNode withdraws every advertisement node made, across all
// prefixes, e.g. when the node's adjacency database is removed.
func (ps *PrefixState) DeleteNode(node state.NodeId) {
	for prefix, m := range ps.entries {
		delete(m, node)
		if len(m) == 0 {
			delete(ps.entries, prefix)
		}
	}
}

// AdvertisingNodes returns every node currently advertising prefix,
// along with each one's PrefixEntry.
func (ps *PrefixState) AdvertisingNodes(prefix state.Prefix) map[state.NodeId]state.PrefixEntry {
	return ps.entries[prefix]
}

// Prefixes returns every prefix with at least one advertisement on
// record.
func (ps *PrefixState) Prefixes() []state.Prefix {
	out := make([]state.Prefix, 0, len(ps.entries))
	for p := range ps.entries {
		out = append(out, p)
	}
	return out
}
