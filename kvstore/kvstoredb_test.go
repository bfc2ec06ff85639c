package kvstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Darren9354/openr/state"
)

func newTestPair(t *testing.T) (*KvStoreDb, *KvStoreDb) {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := state.DefaultKvStoreConfig()
	cfg.SyncInterval = 20 * time.Millisecond

	peersForA := map[state.NodeId]state.PeerSpec{"b": {NodeId: "b"}}
	peersForB := map[state.NodeId]state.PeerSpec{"a": {NodeId: "a"}}

	envA := state.NewEnv(ctx, "area1", log)
	envB := state.NewEnv(ctx, "area1", log)
	go envA.RunLoop()
	go envB.RunLoop()
	t.Cleanup(func() {
		envA.Cancel(nil)
		envB.Cancel(nil)
	})

	dbA := NewKvStoreDb(envA, "area1", state.KvStoreParams{NodeId: "a", Metrics: state.NoopMetricSink{}}, cfg, peersForA)
	dbB := NewKvStoreDb(envB, "area1", state.KvStoreParams{NodeId: "b", Metrics: state.NoopMetricSink{}}, cfg, peersForB)

	clientAtoB, err := NewLocalPeerClient(dbB, false)
	require.NoError(t, err)
	clientBtoA, err := NewLocalPeerClient(dbA, false)
	require.NoError(t, err)
	dbA.RegisterPeerClient("b", clientAtoB)
	dbB.RegisterPeerClient("a", clientBtoA)

	return dbA, dbB
}

func TestKvStoreDbFloodsToPeer(t *testing.T) {
	dbA, dbB := newTestPair(t)
	ctx := context.Background()

	require.NoError(t, dbA.SetKeyVals(ctx, map[state.Key]state.Value{
		"adj:a": {Version: 1, OriginatorId: "a", Value: []byte("hello")},
	}))

	require.Eventually(t, func() bool {
		v, err := dbB.GetValue(ctx, "adj:a")
		return err == nil && string(v.Value) == "hello"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestKvStoreDbFullSyncCatchesUpNewPeer(t *testing.T) {
	dbA, dbB := newTestPair(t)
	ctx := context.Background()

	require.NoError(t, dbA.SetKeyVals(ctx, map[state.Key]state.Value{
		"adj:a": {Version: 1, OriginatorId: "a", Value: []byte("preexisting")},
	}))

	require.Eventually(t, func() bool {
		v, err := dbB.GetValue(ctx, "adj:a")
		return err == nil && string(v.Value) == "preexisting"
	}, 2*time.Second, 10*time.Millisecond)

	summary, err := dbA.AreaSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PeersCount)
}

func TestKvStoreDbSelfOriginatedLifecycle(t *testing.T) {
	dbA, dbB := newTestPair(t)
	ctx := context.Background()

	require.NoError(t, dbA.PersistSelfOriginatedKey(ctx, "name:a", []byte("router-a"), state.TtlInfinity))

	require.Eventually(t, func() bool {
		v, err := dbB.GetValue(ctx, "name:a")
		return err == nil && string(v.Value) == "router-a"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, dbA.UnsetSelfOriginatedKey(ctx, "name:a"))

	require.Eventually(t, func() bool {
		v, err := dbB.GetValue(ctx, "name:a")
		return err == nil && len(v.Value) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestKvStoreDbDumpKeysStripsValueWhenRequested(t *testing.T) {
	dbA, _ := newTestPair(t)
	ctx := context.Background()

	require.NoError(t, dbA.SetKeyVals(ctx, map[state.Key]state.Value{
		"adj:a": {Version: 1, OriginatorId: "a", Value: []byte("hello")},
	}))

	dump, err := dbA.DumpKeys(ctx, "area1", state.KeyDumpParams{DoNotPublishValue: true})
	require.NoError(t, err)
	v, ok := dump["adj:a"]
	require.True(t, ok)
	assert.Nil(t, v.Value)
}

func TestKvStoreDbUnknownAreaErrors(t *testing.T) {
	dbA, _ := newTestPair(t)
	ctx := context.Background()

	_, err := dbA.DumpKeys(ctx, "no-such-area", state.KeyDumpParams{})
	assert.Error(t, err)
}

func TestKvStoreDbFiresSyncedEventImmediatelyWithNoPeers(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := state.NewEnv(ctx, "area1", log)
	go env.RunLoop()
	t.Cleanup(func() { env.Cancel(nil) })

	db := NewKvStoreDb(env, "area1", state.KvStoreParams{NodeId: "solo", Metrics: state.NoopMetricSink{}}, state.DefaultKvStoreConfig(), nil)

	summary, err := db.AreaSummary(ctx)
	require.NoError(t, err)
	assert.True(t, summary.InitialSynced, "a peerless area must be synced at construction")
}
