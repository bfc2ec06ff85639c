package kvstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Darren9354/openr/state"
)

func TestPeerFSMHappyPath(t *testing.T) {
	p := &state.Peer{NodeId: "n1"}
	f := NewPeerFSM(p)
	now := time.Now()

	assert.True(t, f.Apply(PeerEventSyncStart, now))
	assert.Equal(t, state.PeerSyncing, p.State)

	assert.True(t, f.Apply(PeerEventSyncSuccess, now))
	assert.Equal(t, state.PeerInitialized, p.State)
	assert.Equal(t, 0, p.ConsecutiveFailures)
}

func TestPeerFSMFailureBacksOff(t *testing.T) {
	p := &state.Peer{NodeId: "n1"}
	f := NewPeerFSM(p)
	now := time.Now()

	f.Apply(PeerEventSyncStart, now)
	assert.True(t, f.Apply(PeerEventSyncFailure, now))
	assert.Equal(t, state.PeerIdle, p.State)
	assert.Equal(t, 1, p.ConsecutiveFailures)
	assert.False(t, p.Ready(now))
	assert.True(t, p.Ready(now.Add(peerBackoffBase*2)))
}

func TestPeerFSMRejectsInvalidTransition(t *testing.T) {
	p := &state.Peer{NodeId: "n1"}
	f := NewPeerFSM(p)
	now := time.Now()

	assert.False(t, f.Apply(PeerEventSyncSuccess, now))
	assert.Equal(t, state.PeerIdle, p.State)
}

func TestBackoffDurationCapsAtMax(t *testing.T) {
	d := backoffDuration(100)
	assert.Equal(t, peerBackoffMax, d)
}

func TestPeerFSMSyncFailureAgainstInitializedBacksOff(t *testing.T) {
	p := &state.Peer{NodeId: "n1"}
	f := NewPeerFSM(p)
	now := time.Now()

	f.Apply(PeerEventSyncStart, now)
	f.Apply(PeerEventSyncSuccess, now)
	require := assert.New(t)
	require.Equal(state.PeerInitialized, p.State)

	require.True(f.Apply(PeerEventSyncFailure, now))
	require.Equal(state.PeerIdle, p.State)
	require.Equal(1, p.ConsecutiveFailures)
	require.False(p.Ready(now))
}

func TestPeerFSMInconsistencyDetectedForcesImmediateResync(t *testing.T) {
	p := &state.Peer{NodeId: "n1"}
	f := NewPeerFSM(p)
	now := time.Now()

	f.Apply(PeerEventSyncStart, now)
	f.Apply(PeerEventSyncSuccess, now)

	assert.True(t, f.Apply(PeerEventInconsistencyDetected, now))
	assert.Equal(t, state.PeerIdle, p.State)
	assert.True(t, p.Ready(now), "inconsistency should not incur backoff")
}

func TestPeerFSMInconsistencyDetectedInvalidOutsideInitialized(t *testing.T) {
	p := &state.Peer{NodeId: "n1"}
	f := NewPeerFSM(p)
	now := time.Now()

	assert.False(t, f.Apply(PeerEventInconsistencyDetected, now))
	assert.Equal(t, state.PeerIdle, p.State)
}
