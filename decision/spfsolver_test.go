package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Darren9354/openr/state"
)

func TestCreateRouteForPrefixSpfHappyPath(t *testing.T) {
	ls := buildTriangle(t)
	solver := NewSpfSolver("n1", state.DecisionConfig{}, state.NoopMetricSink{})

	entries := map[state.NodeId]state.PrefixEntry{
		"n3": {Prefix: "10.0.0.0/24"},
	}
	route, ok := solver.CreateRouteForPrefix("area1", "10.0.0.0/24", entries, ls)
	require.True(t, ok)
	assert.Equal(t, state.NodeId("n3"), route.BestNode)
	require.Len(t, route.NextHops, 1)
	assert.Equal(t, state.NodeId("n3"), route.NextHops[0].NodeId)
}

func TestCreateRouteForPrefixSelfOriginatedNeedsNoRoute(t *testing.T) {
	ls := buildTriangle(t)
	solver := NewSpfSolver("n1", state.DecisionConfig{}, state.NoopMetricSink{})

	entries := map[state.NodeId]state.PrefixEntry{
		"n1": {Prefix: "192.168.0.0/24"},
	}
	_, ok := solver.CreateRouteForPrefix("area1", "192.168.0.0/24", entries, ls)
	assert.False(t, ok)
}

func TestCreateRouteForPrefixFallsBackToStaticRoute(t *testing.T) {
	ls := NewLinkState("area1") // no topology at all
	solver := NewSpfSolver("n1", state.DecisionConfig{}, state.NoopMetricSink{})
	solver.SetStaticRoutes([]state.RibUnicastEntry{
		{Prefix: "0.0.0.0/0", NextHops: []state.NextHop{{NodeId: "gw", IfName: "eth0", Weight: 1}}},
	})

	route, ok := solver.CreateRouteForPrefix("area1", "0.0.0.0/0", nil, ls)
	require.True(t, ok)
	assert.Equal(t, state.NodeId("gw"), route.NextHops[0].NodeId)
}

func TestCreateRouteForPrefixHardDrainExcludesOverloadedAdvertiser(t *testing.T) {
	ls := buildTriangle(t)
	solver := NewSpfSolver("n1", state.DecisionConfig{}, state.NoopMetricSink{})

	overloaded := adjDb("n3",
		adj("n1", "eth2", "eth0", 5),
		adj("n2", "eth3", "eth1", 10),
	)
	overloaded.Overload = true
	ls.UpdateAdjacencyDatabase(overloaded)

	entries := map[state.NodeId]state.PrefixEntry{
		"n2": {Prefix: "10.0.0.0/24"},
		"n3": {Prefix: "10.0.0.0/24"},
	}
	route, ok := solver.CreateRouteForPrefix("area1", "10.0.0.0/24", entries, ls)
	require.True(t, ok)
	assert.Equal(t, state.NodeId("n2"), route.BestNode, "overloaded n3 must not be selected while n2 is available")
}

func TestCreateRouteForPrefixAdministrativeDrainExcludesAdvertiser(t *testing.T) {
	ls := buildTriangle(t)
	solver := NewSpfSolver("n1", state.DecisionConfig{}, state.NoopMetricSink{})

	entries := map[state.NodeId]state.PrefixEntry{
		"n2": {Prefix: "10.0.0.0/24"},
		"n3": {Prefix: "10.0.0.0/24", Drained: true},
	}
	route, ok := solver.CreateRouteForPrefix("area1", "10.0.0.0/24", entries, ls)
	require.True(t, ok)
	assert.Equal(t, state.NodeId("n2"), route.BestNode)
}

func TestCreateRouteForPrefixKsp2RequiresSrMpls(t *testing.T) {
	ls := buildTriangle(t)
	counting := &countingMetricSink{}
	solver := NewSpfSolver("n1", state.DecisionConfig{}, counting)

	entries := map[state.NodeId]state.PrefixEntry{
		"n3": {
			Prefix:              "10.0.0.0/24",
			Type:                state.ForwardingTypeIp,
			ForwardingAlgorithm: state.ForwardingAlgorithmKsp2EdDisjoint,
		},
	}
	_, ok := solver.CreateRouteForPrefix("area1", "10.0.0.0/24", entries, ls)
	assert.False(t, ok, "KSP2 is incompatible with plain IP forwarding")
	assert.Equal(t, float64(1), counting.counters["incompatible_forwarding_type"])
}

func TestCreateRouteForPrefixKsp2WithSrMpls(t *testing.T) {
	ls := NewLinkState("area1")
	ls.UpdateAdjacencyDatabase(adjDb("n1",
		adj("n2", "eth0", "eth1", 5),
		adj("n3", "eth0", "eth2", 5),
	))
	ls.UpdateAdjacencyDatabase(adjDb("n2",
		adj("n1", "eth1", "eth0", 5),
		adj("n4", "eth1", "eth3", 5),
	))
	ls.UpdateAdjacencyDatabase(adjDb("n3",
		adj("n1", "eth2", "eth0", 5),
		adj("n4", "eth2", "eth4", 5),
	))
	ls.UpdateAdjacencyDatabase(adjDb("n4",
		adj("n2", "eth3", "eth1", 5),
		adj("n3", "eth4", "eth2", 5),
	))
	solver := NewSpfSolver("n1", state.DecisionConfig{}, state.NoopMetricSink{})

	entries := map[state.NodeId]state.PrefixEntry{
		"n4": {
			Prefix:              "10.0.0.0/24",
			Type:                state.ForwardingTypeSrMpls,
			ForwardingAlgorithm: state.ForwardingAlgorithmKsp2EdDisjoint,
		},
	}
	route, ok := solver.CreateRouteForPrefix("area1", "10.0.0.0/24", entries, ls)
	require.True(t, ok)
	assert.Len(t, route.NextHops, 2, "KSP2 over two edge-disjoint paths should produce two nexthops")
}

// buildUcmpFanoutTopology reproduces spec.md §8 Scenario 6: node 1 is
// the root, reaching leaves 4 (w=2), 5 (w=1) and 6 (w=1) through node
// 2, with 6 also reachable through node 3. Every link carries equal
// SPF metric so 2 and 3 tie for shortest path to their respective
// leaves.
func buildUcmpFanoutTopology(t *testing.T) *LinkState {
	t.Helper()
	ls := NewLinkState("area1")

	// Each node's database is re-advertised with all of its adjacencies
	// so far, since UpdateAdjacencyDatabase replaces the whole database.
	adjs := map[state.NodeId][]state.Adjacency{}
	add := func(n state.NodeId, a state.Adjacency) {
		adjs[n] = append(adjs[n], a)
		ls.UpdateAdjacencyDatabase(adjDb(n, adjs[n]...))
	}
	mk := func(n1 state.NodeId, if1 string, w1 int64, n2 state.NodeId, if2 string, w2 int64, metric int64) {
		add(n1, state.Adjacency{OtherNodeId: n2, IfName: if1, OtherIfName: if2, Metric: metric, Weight: w1})
		add(n2, state.Adjacency{OtherNodeId: n1, IfName: if2, OtherIfName: if1, Metric: metric, Weight: w2})
	}

	mk("1", "eth2", 0, "2", "eth1", 0, 5)
	mk("1", "eth3", 0, "3", "eth1", 0, 5)
	mk("2", "eth4", 0, "4", "eth2", 2, 5)
	mk("2", "eth5", 0, "5", "eth2", 1, 5)
	mk("2", "eth6", 0, "6", "eth2", 1, 5)
	mk("3", "eth6", 0, "6", "eth3", 1, 5)
	return ls
}

func TestResolveUcmpWeightsPropagatesLeafWeightsToRoot(t *testing.T) {
	ls := buildUcmpFanoutTopology(t)
	leaves := map[state.NodeId]bool{"4": true, "5": true, "6": true}

	weights := ResolveUcmpWeights("1", leaves, ls, false)
	require.NotNil(t, weights)
	assert.Equal(t, int64(4), weights["2"], "node 2's advertised weight is the sum of leaves 4, 5 and 6 reachable through it")
	assert.Equal(t, int64(1), weights["3"], "node 3 only reaches leaf 6")
}

func TestResolveUcmpWeightsNormalizesByGcd(t *testing.T) {
	ls := NewLinkState("area1")
	ls.UpdateAdjacencyDatabase(adjDb("me",
		state.Adjacency{OtherNodeId: "a", IfName: "eth0", OtherIfName: "eth0", Metric: 5, Weight: 20},
		state.Adjacency{OtherNodeId: "b", IfName: "eth1", OtherIfName: "eth0", Metric: 5, Weight: 10}))
	ls.UpdateAdjacencyDatabase(adjDb("a", state.Adjacency{OtherNodeId: "me", IfName: "eth0", OtherIfName: "eth0", Metric: 5, Weight: 20}))
	ls.UpdateAdjacencyDatabase(adjDb("b", state.Adjacency{OtherNodeId: "me", IfName: "eth0", OtherIfName: "eth1", Metric: 5, Weight: 10}))

	weights := ResolveUcmpWeights("me", map[state.NodeId]bool{"a": true, "b": true}, ls, false)
	require.NotNil(t, weights)
	assert.Equal(t, int64(2), weights["a"])
	assert.Equal(t, int64(1), weights["b"])
}

func TestResolveUcmpWeightsAwpUsesRttInverse(t *testing.T) {
	ls := NewLinkState("area1")
	ls.UpdateAdjacencyDatabase(adjDb("me",
		state.Adjacency{OtherNodeId: "a", IfName: "eth0", OtherIfName: "eth0", Metric: 5, Rtt: 100},
		state.Adjacency{OtherNodeId: "b", IfName: "eth1", OtherIfName: "eth0", Metric: 5, Rtt: 1000}))
	ls.UpdateAdjacencyDatabase(adjDb("a", state.Adjacency{OtherNodeId: "me", IfName: "eth0", OtherIfName: "eth0", Metric: 5, Rtt: 100}))
	ls.UpdateAdjacencyDatabase(adjDb("b", state.Adjacency{OtherNodeId: "me", IfName: "eth0", OtherIfName: "eth1", Metric: 5, Rtt: 1000}))

	weights := ResolveUcmpWeights("me", map[state.NodeId]bool{"a": true, "b": true}, ls, true)
	require.NotNil(t, weights)
	assert.Greater(t, weights["a"], weights["b"], "the lower-RTT leaf should receive the larger UCMP weight")
}

func TestResolveUcmpWeightsAbortsWhenLeavesAreNotEquidistant(t *testing.T) {
	ls := NewLinkState("area1")
	ls.UpdateAdjacencyDatabase(adjDb("me",
		state.Adjacency{OtherNodeId: "a", IfName: "eth0", OtherIfName: "eth0", Metric: 5},
		state.Adjacency{OtherNodeId: "b", IfName: "eth1", OtherIfName: "eth0", Metric: 10}))
	ls.UpdateAdjacencyDatabase(adjDb("a", state.Adjacency{OtherNodeId: "me", IfName: "eth0", OtherIfName: "eth0", Metric: 5}))
	ls.UpdateAdjacencyDatabase(adjDb("b", state.Adjacency{OtherNodeId: "me", IfName: "eth0", OtherIfName: "eth1", Metric: 10}))

	weights := ResolveUcmpWeights("me", map[state.NodeId]bool{"a": true, "b": true}, ls, false)
	assert.Nil(t, weights, "leaves at different distances from root must abort resolution")
}

func TestCreateRouteForPrefixAppliesUcmpWeightsWhenEnabled(t *testing.T) {
	ls := buildUcmpFanoutTopology(t)
	solver := NewSpfSolver("1", state.DecisionConfig{EnableUcmp: true}, state.NoopMetricSink{})

	entries := map[state.NodeId]state.PrefixEntry{
		"4": {Prefix: "10.0.0.0/24"},
		"5": {Prefix: "10.0.0.0/24"},
		"6": {Prefix: "10.0.0.0/24"},
	}
	route, ok := solver.CreateRouteForPrefix("area1", "10.0.0.0/24", entries, ls)
	require.True(t, ok)

	byNode := make(map[state.NodeId]int64)
	for _, nh := range route.NextHops {
		byNode[nh.NodeId] = nh.Weight
	}
	assert.Equal(t, int64(4), byNode["2"])
	assert.Equal(t, int64(1), byNode["3"])
}

func TestCreateMplsRouteForNodeChoosesPhpForDirectNeighbor(t *testing.T) {
	ls := buildTriangle(t)
	solver := NewSpfSolver("n1", state.DecisionConfig{}, state.NoopMetricSink{})

	route, ok := solver.CreateMplsRouteForNode("n2", 100, ls)
	require.True(t, ok)
	assert.Equal(t, state.MplsActionPhp, route.Action)
}

func TestCreateMplsRouteForNodeChoosesSwapForRemoteNode(t *testing.T) {
	ls := NewLinkState("area1")
	ls.UpdateAdjacencyDatabase(adjDb("n1", adj("n2", "eth0", "eth1", 5)))
	ls.UpdateAdjacencyDatabase(adjDb("n2",
		adj("n1", "eth1", "eth0", 5),
		adj("n3", "eth1", "eth2", 5),
	))
	ls.UpdateAdjacencyDatabase(adjDb("n3", adj("n2", "eth2", "eth1", 5)))
	solver := NewSpfSolver("n1", state.DecisionConfig{}, state.NoopMetricSink{})

	route, ok := solver.CreateMplsRouteForNode("n3", 200, ls)
	require.True(t, ok)
	assert.Equal(t, state.MplsActionSwap, route.Action)
}

func TestCreateMplsRouteForNodeSkipsUnallocatedLabel(t *testing.T) {
	ls := buildTriangle(t)
	solver := NewSpfSolver("n1", state.DecisionConfig{}, state.NoopMetricSink{})

	_, ok := solver.CreateMplsRouteForNode("n2", 0, ls)
	assert.False(t, ok)
}

type countingMetricSink struct {
	counters map[string]float64
}

func (c *countingMetricSink) Counter(name string) state.Adder {
	if c.counters == nil {
		c.counters = make(map[string]float64)
	}
	return &countingAdder{sink: c, name: name}
}

func (c *countingMetricSink) Histogram(name string) state.Adder {
	return c.Counter(name)
}

type countingAdder struct {
	sink *countingMetricSink
	name string
}

func (a *countingAdder) Add(v float64) {
	a.sink.counters[a.name] += v
}
