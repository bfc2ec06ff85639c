package decision

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

func newTestDecision(t *testing.T, myNodeId state.NodeId) *Decision {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := state.NewEnv(context.Background(), "area1", log)
	go env.RunLoop()
	t.Cleanup(func() { env.Cancel(nil) })
	return NewDecision(env, "area1", myNodeId, state.DecisionConfig{}, state.NoopMetricSink{})
}

type routeRecorder struct {
	deltas chan state.RouteDbDelta
}

func newRouteRecorder() *routeRecorder {
	return &routeRecorder{deltas: make(chan state.RouteDbDelta, 16)}
}

func (r *routeRecorder) OnRouteUpdate(d state.RouteDbDelta) {
	r.deltas <- d
}

func adjValue(version uint64, db state.AdjacencyDatabase) state.Value {
	payload, err := state.EncodeAdjacencyDatabase(db)
	if err != nil {
		panic(err)
	}
	return state.Value{Version: version, OriginatorId: db.ThisNodeId, Value: payload}
}

func prefixValue(version uint64, originator state.NodeId, entry state.PrefixEntry) state.Value {
	payload, err := state.EncodePrefixEntry(entry)
	if err != nil {
		panic(err)
	}
	return state.Value{Version: version, OriginatorId: originator, Value: payload}
}

func TestOnKvStoreUpdateBuildsTopologyAndRoutes(t *testing.T) {
	d := newTestDecision(t, "n1")
	rec := newRouteRecorder()
	d.RegisterRouteUpdateSink(rec)

	updates := map[state.Key]state.Value{
		"adj:n1": adjValue(1, adjDb("n1", adj("n2", "eth0", "eth0", 10))),
		"adj:n2": adjValue(1, adjDb("n2", adj("n1", "eth0", "eth0", 10))),
		"prefix:n2:area1": prefixValue(1, "n2", state.PrefixEntry{
			Prefix: "10.0.0.0/24",
		}),
	}

	require.NoError(t, d.OnKvStoreUpdate(context.Background(), updates))

	select {
	case delta := <-rec.deltas:
		require.Len(t, delta.UnicastRoutesToUpdate, 1)
		assert.Equal(t, state.Prefix("10.0.0.0/24"), delta.UnicastRoutesToUpdate[0].Prefix)
		assert.Equal(t, state.NodeId("n2"), delta.UnicastRoutesToUpdate[0].BestNode)
	case <-time.After(time.Second):
		t.Fatal("expected a route update")
	}

	snap, err := d.RouteDbSnapshot(context.Background())
	require.NoError(t, err)
	require.Contains(t, snap.UnicastRoutes, state.Prefix("10.0.0.0/24"))
}

func TestOnKvStoreExpireWithdrawsAdjacencyAndPrefixes(t *testing.T) {
	d := newTestDecision(t, "n1")
	rec := newRouteRecorder()
	d.RegisterRouteUpdateSink(rec)

	require.NoError(t, d.OnKvStoreUpdate(context.Background(), map[state.Key]state.Value{
		"adj:n1":          adjValue(1, adjDb("n1", adj("n2", "eth0", "eth0", 10))),
		"adj:n2":          adjValue(1, adjDb("n2", adj("n1", "eth0", "eth0", 10))),
		"prefix:n2:area1": prefixValue(1, "n2", state.PrefixEntry{Prefix: "10.0.0.0/24"}),
	}))
	<-rec.deltas

	require.NoError(t, d.OnKvStoreExpire(context.Background(), []state.Key{"adj:n2", "prefix:n2:area1"}))

	select {
	case delta := <-rec.deltas:
		assert.Contains(t, delta.UnicastRoutesToDelete, state.Prefix("10.0.0.0/24"))
	case <-time.After(time.Second):
		t.Fatal("expected a withdrawal delta")
	}

	snap, err := d.RouteDbSnapshot(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, snap.UnicastRoutes, state.Prefix("10.0.0.0/24"))
}

func TestAsKvStoreUpdateSinkFeedsUpdatesWithoutBlocking(t *testing.T) {
	d := newTestDecision(t, "n1")
	rec := newRouteRecorder()
	d.RegisterRouteUpdateSink(rec)

	sink := d.AsKvStoreUpdateSink()
	sink.OnKvStoreUpdate(state.KvStoreUpdate{
		Area: "area1",
		Updated: map[state.Key]state.Value{
			"adj:n1":          adjValue(1, adjDb("n1", adj("n2", "eth0", "eth0", 10))),
			"adj:n2":          adjValue(1, adjDb("n2", adj("n1", "eth0", "eth0", 10))),
			"prefix:n2:area1": prefixValue(1, "n2", state.PrefixEntry{Prefix: "10.0.0.0/24"}),
		},
	})

	require.Eventually(t, func() bool {
		snap, err := d.RouteDbSnapshot(context.Background())
		return err == nil && len(snap.UnicastRoutes) == 1
	}, time.Second, 10*time.Millisecond)

	sink.OnKvStoreUpdate(state.KvStoreUpdate{
		Area:    "area1",
		Expired: []state.Key{"adj:n2", "prefix:n2:area1"},
	})

	require.Eventually(t, func() bool {
		snap, err := d.RouteDbSnapshot(context.Background())
		return err == nil && len(snap.UnicastRoutes) == 0
	}, time.Second, 10*time.Millisecond)
}
