package kvstore

import (
	"time"

	"github.com/Darren9354/openr/state"
)

// PeerEvent drives the PeerFSM transitions (SPEC_FULL.md §4.2).
type PeerEvent int

const (
	PeerEventSyncStart PeerEvent = iota
	PeerEventSyncSuccess
	PeerEventSyncFailure
	// PeerEventInconsistencyDetected fires when a peer's publication
	// reveals it holds a stale view of one of our self-originated keys
	// (spec.md §4.1 step 3, §4.2 INITIALIZED->IDLE, §7).
	PeerEventInconsistencyDetected
)

// peerBackoffBase and peerBackoffMax bound the exponential backoff
// applied after a sync failure.
const (
	peerBackoffBase = 1 * time.Second
	peerBackoffMax  = 5 * time.Minute
)

// PeerFSM drives one peer's state.Peer through
// IDLE -> SYNCING -> INITIALIZED, with exponential backoff on
// failure. Grounded on spec.md §4.2 and KvStorePeerEvent in KvStore.h.
type PeerFSM struct {
	peer *state.Peer
}

// NewPeerFSM wraps peer.
func NewPeerFSM(peer *state.Peer) *PeerFSM {
	return &PeerFSM{peer: peer}
}

// Apply transitions the wrapped peer in response to ev, returning
// false if ev is not valid from the peer's current state.
func (f *PeerFSM) Apply(ev PeerEvent, now time.Time) bool {
	switch ev {
	case PeerEventSyncStart:
		if f.peer.State == state.PeerSyncing {
			return false
		}
		f.peer.State = state.PeerSyncing
		f.peer.LastSyncAttempt = now
		return true
	case PeerEventSyncSuccess:
		if f.peer.State != state.PeerSyncing {
			return false
		}
		f.peer.State = state.PeerInitialized
		f.peer.ConsecutiveFailures = 0
		f.peer.BackoffUntil = now
		return true
	case PeerEventSyncFailure:
		// Valid from SYNCING (a full sync attempt failed) and from
		// INITIALIZED (a transport error against a steady-state peer,
		// e.g. a failed flood send) -- both back off and retry.
		if f.peer.State != state.PeerSyncing && f.peer.State != state.PeerInitialized {
			return false
		}
		f.peer.State = state.PeerIdle
		f.peer.ConsecutiveFailures++
		f.peer.BackoffUntil = now.Add(backoffDuration(f.peer.ConsecutiveFailures))
		return true
	case PeerEventInconsistencyDetected:
		// Only meaningful once steady-state: the client is kept, the peer
		// goes back to IDLE and re-syncs immediately, no backoff -- this isn't a transport
		// failure, the peer is just behind.
		if f.peer.State != state.PeerInitialized {
			return false
		}
		f.peer.State = state.PeerIdle
		f.peer.ConsecutiveFailures = 0
		f.peer.BackoffUntil = now
		return true
	default:
		return false
	}
}

// backoffDuration returns exponential backoff doubling from
// peerBackoffBase, capped at peerBackoffMax.
func backoffDuration(failures int) time.Duration {
	d := peerBackoffBase
	for i := 1; i < failures && d < peerBackoffMax; i++ {
		d *= 2
	}
	if d > peerBackoffMax {
		d = peerBackoffMax
	}
	return d
}
