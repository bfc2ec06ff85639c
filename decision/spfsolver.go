package decision

import (
	"sort"

	"github.com/Darren9354/openr/state"
)

// RouteSelectionResult is the outcome of selectBestRoutes: every
// (node, area) tied for best administrative preference for a prefix,
// plus which one SPF treats as canonical for metric/drain reporting.
// Grounded on SpfSolver.cpp's RouteSelectionResult.
type RouteSelectionResult struct {
	AllNodes       map[state.NodeId]state.PrefixEntry
	BestNode       state.NodeId
	BestNodeDrained bool
}

// SpfSolver computes RouteDb entries for a single area's LinkState +
// PrefixState, including the static-route overlay recovered from
// SpfSolver.cpp's updateStaticUnicastRoutes (SPEC_FULL.md §4).
type SpfSolver struct {
	myNodeId state.NodeId
	cfg      state.DecisionConfig
	metrics  state.MetricSink

	staticUnicastRoutes map[state.Prefix]state.RibUnicastEntry
	staticMplsRoutes    map[int32]state.MplsRoute
}

// NewSpfSolver constructs a solver for myNodeId.
func NewSpfSolver(myNodeId state.NodeId, cfg state.DecisionConfig, metrics state.MetricSink) *SpfSolver {
	if metrics == nil {
		metrics = state.NoopMetricSink{}
	}
	return &SpfSolver{
		myNodeId:            myNodeId,
		cfg:                 cfg,
		metrics:             metrics,
		staticUnicastRoutes: make(map[state.Prefix]state.RibUnicastEntry),
		staticMplsRoutes:    make(map[int32]state.MplsRoute),
	}
}

// SetStaticRoutes installs entry as a statically configured route,
// consulted only when SPF produces no computed route for the prefix.
// Recovered from SpfSolver.cpp's updateStaticUnicastRoutes -- the
// distilled spec says static routes are overlaid with lower priority
// but never says who populates the map; this rounds that out.
func (s *SpfSolver) SetStaticRoutes(entries []state.RibUnicastEntry) {
	for _, e := range entries {
		s.staticUnicastRoutes[e.Prefix] = e
	}
}

// ClearStaticRoutes removes every statically configured route for the
// given prefixes.
func (s *SpfSolver) ClearStaticRoutes(prefixes []state.Prefix) {
	for _, p := range prefixes {
		delete(s.staticUnicastRoutes, p)
	}
}

// filterDrainedNodes removes hard-drained (overloaded) advertisers
// unless every advertiser is drained, then narrows further to the
// advertisers with the lowest soft-drain (node metric increment)
// value. Grounded on SpfSolver.cpp's filterHardDrainedNodes +
// filterSoftDrainedNodes.
func filterDrainedNodes(entries map[state.NodeId]state.PrefixEntry, ls *LinkState) map[state.NodeId]state.PrefixEntry {
	hardFiltered := make(map[state.NodeId]state.PrefixEntry)
	for node, e := range entries {
		if !ls.IsNodeOverloaded(node) && !e.Drained {
			hardFiltered[node] = e
		}
	}
	if len(hardFiltered) == 0 {
		hardFiltered = entries
	}

	minSoft := int64(1) << 62
	for node := range hardFiltered {
		if v := ls.GetNodeMetricIncrement(node); v < minSoft {
			minSoft = v
		}
	}
	softFiltered := make(map[state.NodeId]state.PrefixEntry)
	for node, e := range hardFiltered {
		if ls.GetNodeMetricIncrement(node) == minSoft {
			softFiltered[node] = e
		}
	}
	return softFiltered
}

// selectBestNodeArea picks a single canonical advertiser among tied
// candidates: myNodeId if present (self-origination always wins a
// tie), else the lexicographically smallest NodeId for determinism.
func selectBestNodeArea(candidates map[state.NodeId]state.PrefixEntry, myNodeId state.NodeId) state.NodeId {
	if _, ok := candidates[myNodeId]; ok {
		return myNodeId
	}
	var best state.NodeId
	first := true
	for node := range candidates {
		if first || node < best {
			best = node
			first = false
		}
	}
	return best
}

// selectBestRoutes narrows prefixEntries (every node currently
// advertising this prefix) down to the administratively preferred
// candidate set, then picks a canonical best node for metric/drain
// reporting. Grounded on SpfSolver.cpp's selectBestRoutes.
func (s *SpfSolver) selectBestRoutes(prefixEntries map[state.NodeId]state.PrefixEntry, ls *LinkState) RouteSelectionResult {
	filtered := filterDrainedNodes(prefixEntries, ls)
	best := selectBestNodeArea(filtered, s.myNodeId)
	return RouteSelectionResult{
		AllNodes:        filtered,
		BestNode:        best,
		BestNodeDrained: ls.IsNodeOverloaded(best) || ls.GetNodeMetricIncrement(best) != 0,
	}
}

// getNextHopsWithMetric resolves the shortest-path nexthop set toward
// the nearest of candidates, returning that shared metric and one
// NextHop per first-hop link on any equal-cost shortest path.
// Grounded on SpfSolver.cpp's getNextHopsWithMetric.
func getNextHopsWithMetric(myNodeId state.NodeId, candidates map[state.NodeId]state.PrefixEntry, ls *LinkState) (LinkStateMetric, []state.NextHop) {
	spf := ls.RunSpf(myNodeId, nil)

	bestMetric := LinkStateMetric(-1)
	for node := range candidates {
		if node == myNodeId {
			return 0, nil // directly originated: no nexthop needed
		}
		res, ok := spf[node]
		if !ok {
			continue
		}
		if bestMetric == -1 || res.Metric < bestMetric {
			bestMetric = res.Metric
		}
	}
	if bestMetric == -1 {
		return 0, nil
	}

	seen := make(map[string]bool)
	var nextHops []state.NextHop
	for node := range candidates {
		res, ok := spf[node]
		if !ok || res.Metric != bestMetric {
			continue
		}
		for _, pl := range firstHopLinks(ls, myNodeId, node, spf) {
			other := pl.GetOtherNodeName(myNodeId)
			key := string(other) + "/" + pl.GetIfaceFromNode(myNodeId)
			if seen[key] {
				continue
			}
			seen[key] = true
			nextHops = append(nextHops, state.NextHop{
				NodeId: other,
				IfName: pl.GetIfaceFromNode(myNodeId),
				Weight: 1,
			})
		}
	}
	return bestMetric, nextHops
}

// firstHopLinks walks result's equal-cost path tree backward from
// dest to every link whose prevNode is myNodeId -- i.e. every
// first-hop link on a shortest path from myNodeId to dest.
func firstHopLinks(ls *LinkState, myNodeId, dest state.NodeId, result SpfResult) []*Link {
	var out []*Link
	var walk func(node state.NodeId, visiting map[state.NodeId]bool)
	walk = func(node state.NodeId, visiting map[state.NodeId]bool) {
		if node == myNodeId || visiting[node] {
			return
		}
		visiting[node] = true
		nodeResult, ok := result[node]
		if !ok {
			return
		}
		for _, pl := range nodeResult.PathLinks {
			if pl.prevNode == myNodeId {
				out = append(out, pl.link)
			} else {
				walk(pl.prevNode, visiting)
			}
		}
	}
	walk(dest, make(map[state.NodeId]bool))
	return out
}

// CreateRouteForPrefix computes the RibUnicastEntry for one prefix,
// falling back to a statically configured route if SPF resolves no
// nexthops, per spec.md §4.6's static-route overlay. Grounded
// line-for-line on SpfSolver.cpp's createRouteForPrefix.
func (s *SpfSolver) CreateRouteForPrefix(area state.Area, prefix state.Prefix, prefixEntries map[state.NodeId]state.PrefixEntry, ls *LinkState) (state.RibUnicastEntry, bool) {
	s.metrics.Counter("spf_runs").Add(1)

	if len(prefixEntries) == 0 {
		if static, ok := s.staticUnicastRoutes[prefix]; ok {
			return static, true
		}
		return state.RibUnicastEntry{}, false
	}

	selection := s.selectBestRoutes(prefixEntries, ls)
	if selection.BestNode == s.myNodeId {
		// Self-originated: no route needed, we ARE the destination.
		return state.RibUnicastEntry{}, false
	}

	bestEntry := prefixEntries[selection.BestNode]
	var nextHops []state.NextHop

	switch {
	case bestEntry.ForwardingAlgorithm == state.ForwardingAlgorithmKsp2EdDisjoint && bestEntry.Type != state.ForwardingTypeSrMpls:
		s.metrics.Counter("incompatible_forwarding_type").Add(1)
	case bestEntry.ForwardingAlgorithm == state.ForwardingAlgorithmKsp2EdDisjoint:
		nextHops = s.selectBestPathsKsp2(prefix, selection, ls)
	default:
		_, nextHops = getNextHopsWithMetric(s.myNodeId, selection.AllNodes, ls)
		if s.cfg.EnableUcmp {
			nextHops = applyUcmpWeights(nextHops, s.myNodeId, selection.AllNodes, ls, s.cfg.UcmpUseRttWeights)
		}
	}

	if len(nextHops) == 0 {
		s.metrics.Counter("no_route_to_prefix").Add(1)
		if static, ok := s.staticUnicastRoutes[prefix]; ok {
			return static, true
		}
		return state.RibUnicastEntry{}, false
	}

	if bestEntry.MinNexthopForDecisionKsp2 > 0 && len(nextHops) < bestEntry.MinNexthopForDecisionKsp2 {
		s.metrics.Counter("skipped_unicast_route").Add(1)
		return state.RibUnicastEntry{}, false
	}

	return state.RibUnicastEntry{
		Prefix:   prefix,
		NextHops: nextHops,
		BestNode: selection.BestNode,
		Area:     area,
	}, true
}

// selectBestPathsKsp2 resolves the union of the two shortest
// edge-disjoint paths toward every candidate best node into a single
// nexthop set, matching SpfSolver.cpp's selectBestPathsKsp2 -- only
// valid for SR_MPLS forwarding, which is enforced by the caller
// checking ForwardingAlgorithm against the entry's Type.
func (s *SpfSolver) selectBestPathsKsp2(prefix state.Prefix, selection RouteSelectionResult, ls *LinkState) []state.NextHop {
	seen := make(map[string]bool)
	var nextHops []state.NextHop
	for node := range selection.AllNodes {
		if node == s.myNodeId {
			continue
		}
		for _, path := range ls.GetKthPaths(s.myNodeId, node) {
			if len(path) == 0 {
				continue
			}
			first := path[0]
			other := first.GetOtherNodeName(s.myNodeId)
			key := string(other) + "/" + first.GetIfaceFromNode(s.myNodeId)
			if seen[key] {
				continue
			}
			seen[key] = true
			nextHops = append(nextHops, state.NextHop{
				NodeId:    other,
				IfName:    first.GetIfaceFromNode(s.myNodeId),
				Weight:    1,
				MplsLabel: destinationNodeLabel(ls, node),
			})
		}
	}
	return nextHops
}

func destinationNodeLabel(ls *LinkState, node state.NodeId) int32 {
	db, ok := ls.adjacencyDatabases[node]
	if !ok {
		return 0
	}
	return db.NodeLabel
}

// gcd returns the greatest common divisor of a and b. No rational or
// GCD library appears anywhere in the retrieved example pack, so this
// uses the stdlib-free Euclidean algorithm directly (see DESIGN.md).
func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// applyUcmpWeights resolves per-first-hop UCMP weights for leaves (the
// destination nodes a prefix's best route is reachable through) and
// stamps them onto nextHops, leaving nextHops untouched if resolution
// aborts (unequal leaf distances, or no weights resolved at all).
func applyUcmpWeights(nextHops []state.NextHop, myNodeId state.NodeId, leaves map[state.NodeId]state.PrefixEntry, ls *LinkState, useRtt bool) []state.NextHop {
	leafSet := make(map[state.NodeId]bool, len(leaves))
	for node := range leaves {
		leafSet[node] = true
	}
	weights := ResolveUcmpWeights(myNodeId, leafSet, ls, useRtt)
	if weights == nil {
		return nextHops
	}
	out := make([]state.NextHop, len(nextHops))
	for i, nh := range nextHops {
		if w, ok := weights[nh.NodeId]; ok {
			nh.Weight = w
		}
		out[i] = nh
	}
	return out
}

// ResolveUcmpWeights computes each of myNodeId's first-hop neighbors'
// UCMP weight by propagating leaf weights up the SPF tree: every leaf
// in leaves contributes a base weight (its own last-hop link's
// administratively configured Weight under PWP, or its RTT's inverse
// under AWP), and each ancestor on the path from myNodeId to that leaf
// sums the weights of every child reachable through it -- so a
// non-leaf node's advertised weight is the sum of its next-hop
// weights, same as a leaf that is itself an intermediate hop toward
// another leaf contributes its own weight to every parent it has an
// equal-cost edge from. All of leaves must sit at the same SPF metric
// from myNodeId, or resolution aborts and returns nil (spec.md §4.5).
// Grounded on LinkState.cpp's resolveUcmpWeights.
func ResolveUcmpWeights(myNodeId state.NodeId, leaves map[state.NodeId]bool, ls *LinkState, useRtt bool) map[state.NodeId]int64 {
	if len(leaves) == 0 {
		return nil
	}
	spf := ls.RunSpf(myNodeId, nil)

	var commonMetric LinkStateMetric
	first := true
	for leaf := range leaves {
		res, ok := spf[leaf]
		if !ok {
			return nil
		}
		if first {
			commonMetric = res.Metric
			first = false
		} else if res.Metric != commonMetric {
			return nil
		}
	}

	// relevant holds every node on some equal-cost path from myNodeId
	// to a leaf, discovered by walking each leaf's PathLinks back
	// toward the root.
	relevant := make(map[state.NodeId]bool)
	var markAncestors func(node state.NodeId)
	markAncestors = func(node state.NodeId) {
		if node == myNodeId || relevant[node] {
			return
		}
		relevant[node] = true
		for _, pl := range spf[node].PathLinks {
			markAncestors(pl.prevNode)
		}
	}
	for leaf := range leaves {
		markAncestors(leaf)
	}

	// children[n] is every relevant node whose shortest path's last
	// hop from myNodeId passes through n.
	children := make(map[state.NodeId][]state.NodeId)
	order := make([]state.NodeId, 0, len(relevant))
	for node := range relevant {
		order = append(order, node)
		seenParent := make(map[state.NodeId]bool)
		for _, pl := range spf[node].PathLinks {
			if pl.prevNode != myNodeId && !relevant[pl.prevNode] {
				continue
			}
			if seenParent[pl.prevNode] {
				continue
			}
			seenParent[pl.prevNode] = true
			children[pl.prevNode] = append(children[pl.prevNode], node)
		}
	}
	// Process farthest-from-root first so every child's weight is
	// resolved before its parent sums over it.
	sort.Slice(order, func(i, j int) bool { return spf[order[i]].Metric > spf[order[j]].Metric })

	weight := make(map[state.NodeId]int64, len(order))
	for _, node := range order {
		var sum int64
		for _, c := range children[node] {
			sum += weight[c]
		}
		if leaves[node] {
			sum += leafBaseWeight(ls, spf[node], node, useRtt)
		}
		if sum <= 0 {
			sum = 1
		}
		weight[node] = sum
	}

	out := make(map[state.NodeId]int64)
	for _, firstHop := range children[myNodeId] {
		out[firstHop] = weight[firstHop]
	}
	return normalizeByGcd(out)
}

// leafBaseWeight returns leaf's own intrinsic UCMP weight: its last
// equal-cost hop's administratively configured Weight under PWP, or
// that hop's RTT inverse under AWP.
func leafBaseWeight(ls *LinkState, res NodeSpfResult, leaf state.NodeId, useRtt bool) int64 {
	if len(res.PathLinks) == 0 {
		return 1
	}
	link := res.PathLinks[0].link
	if useRtt {
		rtt := link.GetRttFromNode(leaf)
		if rtt <= 0 {
			rtt = 1
		}
		w := 1_000_000 / rtt
		if w <= 0 {
			w = 1
		}
		return w
	}
	w := link.GetWeightFromNode(leaf)
	if w <= 0 {
		w = 1
	}
	return w
}

// normalizeByGcd divides every value in weights by their GCD, so the
// weights share no common factor (e.g. {4, 6} becomes {2, 3}).
func normalizeByGcd(weights map[state.NodeId]int64) map[state.NodeId]int64 {
	if len(weights) == 0 {
		return nil
	}
	var g int64
	for _, w := range weights {
		g = gcd(g, w)
	}
	if g == 0 {
		g = 1
	}
	out := make(map[state.NodeId]int64, len(weights))
	for node, w := range weights {
		out[node] = w / g
	}
	return out
}

// CreateMplsRouteForNode computes the SR-MPLS node-segment route for
// one destination node's label, choosing the PHP action for a direct
// neighbor and SWAP otherwise, matching SpfSolver.cpp's MPLS route
// installation.
func (s *SpfSolver) CreateMplsRouteForNode(node state.NodeId, label int32, ls *LinkState) (state.MplsRoute, bool) {
	if label <= 0 {
		s.metrics.Counter("skipped_mpls_route").Add(1)
		return state.MplsRoute{}, false
	}
	_, nextHops := getNextHopsWithMetric(s.myNodeId, map[state.NodeId]state.PrefixEntry{node: {}}, ls)
	if len(nextHops) == 0 {
		return state.MplsRoute{}, false
	}

	action := state.MplsActionSwap
	for i := range nextHops {
		if nextHops[i].NodeId == node {
			action = state.MplsActionPhp
		}
		nextHops[i].MplsLabel = label
	}

	return state.MplsRoute{Label: label, Action: action, NextHops: nextHops}, true
}
