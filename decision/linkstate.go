package decision

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/Darren9354/openr/state"
)

// LinkStateChange summarizes what changed as a result of an
// updateAdjacencyDatabase call, matching LinkState.cpp's
// LinkStateChange return type.
type LinkStateChange struct {
	TopologyChanged bool
	NodeLabelChanged bool
	LinksUp   []*Link
	LinksDown []*Link
}

// LinkState is one area's adjacency topology: every node's advertised
// AdjacencyDatabase plus the bidirectional Links materialized from
// them, and the cached SPF results derived from that topology.
// Grounded line-for-line on LinkState.cpp (SPEC_FULL.md §4.5).
type LinkState struct {
	area state.Area

	adjacencyDatabases map[state.NodeId]state.AdjacencyDatabase
	linksByNode        map[state.NodeId]map[string]*Link
	allLinks           map[string]*Link

	nodeOverloads          map[state.NodeId]holdableValue[bool]
	nodeMetricIncrementVals map[state.NodeId]int64

	spfResults  map[state.NodeId]SpfResult
	kthResults  map[state.NodeId]map[state.Prefix][]Path
}

// NewLinkState constructs an empty LinkState for area.
func NewLinkState(area state.Area) *LinkState {
	return &LinkState{
		area:                    area,
		adjacencyDatabases:      make(map[state.NodeId]state.AdjacencyDatabase),
		linksByNode:             make(map[state.NodeId]map[string]*Link),
		allLinks:                make(map[string]*Link),
		nodeOverloads:           make(map[state.NodeId]holdableValue[bool]),
		nodeMetricIncrementVals: make(map[state.NodeId]int64),
		spfResults:              make(map[state.NodeId]SpfResult),
		kthResults:              make(map[state.NodeId]map[state.Prefix][]Path),
	}
}

// linkKey identifies a Link independent of which endpoint originated
// it, matching LinkState.cpp's use of ordered (node, iface) pairs as
// the link identity for diffing.
func linkKey(n1 state.NodeId, if1 string, n2 state.NodeId, if2 string) string {
	a := fmt.Sprintf("%s/%s", n1, if1)
	b := fmt.Sprintf("%s/%s", n2, if2)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (ls *LinkState) invalidateSpfCache() {
	ls.spfResults = make(map[state.NodeId]SpfResult)
	ls.kthResults = make(map[state.NodeId]map[state.Prefix][]Path)
}

// maybeMakeLink returns a Link for nodeName's adjacency adj only if
// the other node has a matching reverse adjacency on record --
// LinkState never materializes a unidirectional link.
func (ls *LinkState) maybeMakeLink(nodeName state.NodeId, adj state.Adjacency) *Link {
	otherDb, ok := ls.adjacencyDatabases[adj.OtherNodeId]
	if !ok {
		return nil
	}
	for _, otherAdj := range otherDb.Adjacencies {
		if otherAdj.OtherNodeId == nodeName && otherAdj.IfName == adj.OtherIfName && otherAdj.OtherIfName == adj.IfName {
			return NewLink(ls.area, nodeName, adj, adj.OtherNodeId, otherAdj)
		}
	}
	return nil
}

// UpdateAdjacencyDatabase replaces nodeName's adjacency advertisement
// and recomputes which bidirectional links exist as a result,
// returning what changed. Grounded on LinkState.cpp's
// updateAdjacencyDatabase.
func (ls *LinkState) UpdateAdjacencyDatabase(newDb state.AdjacencyDatabase) LinkStateChange {
	nodeName := newDb.ThisNodeId
	change := LinkStateChange{}

	priorDb, hadPrior := ls.adjacencyDatabases[nodeName]
	ls.adjacencyDatabases[nodeName] = newDb

	oldLinks := ls.linksByNode[nodeName]
	newLinks := make(map[string]*Link)
	for _, adj := range newDb.Adjacencies {
		link := ls.maybeMakeLink(nodeName, adj)
		if link != nil {
			newLinks[linkKey(link.n1, link.if1, link.n2, link.if2)] = link
		}
	}

	for key, link := range newLinks {
		if oldLinks == nil || oldLinks[key] == nil {
			change.LinksUp = append(change.LinksUp, link)
			change.TopologyChanged = true
		}
	}
	for key, link := range oldLinks {
		if newLinks[key] == nil {
			change.LinksDown = append(change.LinksDown, link)
			change.TopologyChanged = true
		}
	}

	ls.removeNodeLinks(nodeName)
	for key, link := range newLinks {
		ls.addLink(nodeName, key, link)
		other := link.GetOtherNodeName(nodeName)
		// Index the same Link instance under the other endpoint too,
		// so either node's OrderedLinksFromNode sees it.
		ls.addLink(other, key, link)
	}

	overloadChanged := ls.updateNodeOverloaded(nodeName, newDb.Overload, !hadPrior)
	change.TopologyChanged = change.TopologyChanged || overloadChanged

	if hadPrior && priorDb.NodeMetricIncrementVal != newDb.NodeMetricIncrementVal {
		change.TopologyChanged = true
	}
	ls.nodeMetricIncrementVals[nodeName] = newDb.NodeMetricIncrementVal

	if hadPrior && priorDb.NodeLabel != newDb.NodeLabel {
		change.NodeLabelChanged = true
	}

	if change.TopologyChanged {
		ls.invalidateSpfCache()
	}
	return change
}

func (ls *LinkState) removeNodeLinks(nodeName state.NodeId) {
	for key := range ls.linksByNode[nodeName] {
		delete(ls.allLinks, key)
		link := ls.linksByNode[nodeName][key]
		if link == nil {
			continue
		}
		other := link.GetOtherNodeName(nodeName)
		if m, ok := ls.linksByNode[other]; ok {
			delete(m, key)
		}
	}
	delete(ls.linksByNode, nodeName)
}

func (ls *LinkState) addLink(nodeName state.NodeId, key string, link *Link) {
	if ls.linksByNode[nodeName] == nil {
		ls.linksByNode[nodeName] = make(map[string]*Link)
	}
	ls.linksByNode[nodeName][key] = link
	ls.allLinks[key] = link
}

// DeleteAdjacencyDatabase removes nodeName's topology entirely
// (e.g. on its KvStore key TTL expiry).
func (ls *LinkState) DeleteAdjacencyDatabase(nodeName state.NodeId) LinkStateChange {
	change := LinkStateChange{}
	if _, ok := ls.adjacencyDatabases[nodeName]; !ok {
		return change
	}
	if links := ls.linksByNode[nodeName]; len(links) > 0 {
		change.TopologyChanged = true
		for _, l := range links {
			change.LinksDown = append(change.LinksDown, l)
		}
	}
	ls.removeNodeLinks(nodeName)
	delete(ls.adjacencyDatabases, nodeName)
	delete(ls.nodeOverloads, nodeName)
	delete(ls.nodeMetricIncrementVals, nodeName)
	if change.TopologyChanged {
		ls.invalidateSpfCache()
	}
	return change
}

func (ls *LinkState) updateNodeOverloaded(nodeName state.NodeId, overload bool, isNew bool) bool {
	hv, ok := ls.nodeOverloads[nodeName]
	if !ok {
		ls.nodeOverloads[nodeName] = newHoldableValue(overload, func(cur, newVal bool) bool { return cur && !newVal })
		return false // new node: never report a change
	}
	if isNew {
		return false
	}
	changed := hv.updateValue(overload, 0, 0)
	ls.nodeOverloads[nodeName] = hv
	return changed
}

// IsNodeOverloaded reports whether nodeName is currently advertising
// overload (all transit traffic through it should be avoided by SPF).
func (ls *LinkState) IsNodeOverloaded(nodeName state.NodeId) bool {
	hv, ok := ls.nodeOverloads[nodeName]
	return ok && hv.value()
}

// GetNodeMetricIncrement returns the administrative metric bias
// configured for nodeName, or zero if none.
func (ls *LinkState) GetNodeMetricIncrement(nodeName state.NodeId) int64 {
	return ls.nodeMetricIncrementVals[nodeName]
}

// OrderedLinksFromNode returns every link touching nodeName, sorted
// deterministically by endpoint identity for reproducible SPF runs.
func (ls *LinkState) OrderedLinksFromNode(nodeName state.NodeId) []*Link {
	links := make([]*Link, 0, len(ls.linksByNode[nodeName]))
	for _, l := range ls.linksByNode[nodeName] {
		links = append(links, l)
	}
	sort.Slice(links, func(i, j int) bool {
		ki := linkKey(links[i].n1, links[i].if1, links[i].n2, links[i].if2)
		kj := linkKey(links[j].n1, links[j].if1, links[j].n2, links[j].if2)
		return ki < kj
	})
	return links
}

// AllNodes returns every node with an adjacency advertisement on
// record, regardless of whether it has any links.
func (ls *LinkState) AllNodes() []state.NodeId {
	out := make([]state.NodeId, 0, len(ls.adjacencyDatabases))
	for n := range ls.adjacencyDatabases {
		out = append(out, n)
	}
	return out
}

// pathLink is one hop of an SPF result's best-path-tree edge,
// matching LinkState.h's PathLink.
type pathLink struct {
	link     *Link
	prevNode state.NodeId
}

// NodeSpfResult is one destination's SPF outcome from a single
// source: its shortest distance and every equal-cost last-hop edge
// toward it.
type NodeSpfResult struct {
	Metric    LinkStateMetric
	PathLinks []pathLink
}

// SpfResult maps every reachable node to its NodeSpfResult from one
// source node.
type SpfResult map[state.NodeId]NodeSpfResult

// spfHeapEntry is one entry in the Dijkstra priority queue.
type spfHeapEntry struct {
	node   state.NodeId
	metric LinkStateMetric
}

type spfHeap []spfHeapEntry

func (h spfHeap) Len() int            { return len(h) }
func (h spfHeap) Less(i, j int) bool  { return h[i].metric < h[j].metric }
func (h spfHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *spfHeap) Push(x any)         { *h = append(*h, x.(spfHeapEntry)) }
func (h *spfHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// RunSpf computes shortest-path-tree results from source across every
// link currently IsUp(), excluding any link present in linksToIgnore
// (used by GetKthPaths' iterative KSP2 re-runs) and treating an
// overloaded transit node as unreachable for anyone but itself.
// Grounded line-for-line on SpfSolver.cpp's runSpf (SPEC_FULL.md §4.6).
func (ls *LinkState) RunSpf(source state.NodeId, linksToIgnore map[*Link]bool) SpfResult {
	if linksToIgnore == nil {
		if cached, ok := ls.spfResults[source]; ok {
			return cached
		}
	}

	result := make(SpfResult)
	result[source] = NodeSpfResult{Metric: 0}

	h := &spfHeap{}
	heap.Init(h)
	heap.Push(h, spfHeapEntry{node: source, metric: 0})

	for h.Len() > 0 {
		cur := heap.Pop(h).(spfHeapEntry)
		curResult, ok := result[cur.node]
		if !ok || cur.metric > curResult.Metric {
			continue
		}
		if cur.node != source && ls.IsNodeOverloaded(cur.node) {
			continue // overloaded nodes act as a dead end for transit traffic
		}
		for _, link := range ls.OrderedLinksFromNode(cur.node) {
			if linksToIgnore != nil && linksToIgnore[link] {
				continue
			}
			if !link.IsUp() {
				continue
			}
			other := link.GetOtherNodeName(cur.node)
			linkMetric := link.GetMetricFromNode(cur.node) + ls.GetNodeMetricIncrement(other)
			newMetric := cur.metric + linkMetric

			existing, known := result[other]
			switch {
			case !known || newMetric < existing.Metric:
				result[other] = NodeSpfResult{
					Metric:    newMetric,
					PathLinks: []pathLink{{link: link, prevNode: cur.node}},
				}
				heap.Push(h, spfHeapEntry{node: other, metric: newMetric})
			case newMetric == existing.Metric:
				existing.PathLinks = append(existing.PathLinks, pathLink{link: link, prevNode: cur.node})
				result[other] = existing
			}
		}
	}

	if linksToIgnore == nil {
		ls.spfResults[source] = result
	}
	return result
}

// Path is one concrete sequence of links from a source to a
// destination, in source-to-destination order.
type Path []*Link

// TraceOnePath recursively walks result's equal-cost path tree from
// src to dest, returning the first concrete path found that uses no
// link already present in linksToIgnore, and marking every link it
// traverses as ignored for subsequent calls -- this is how
// GetKthPaths produces edge-disjoint paths across repeated calls.
// Grounded on LinkState.cpp's traceOnePath.
func (ls *LinkState) TraceOnePath(src, dest state.NodeId, result SpfResult, linksToIgnore map[*Link]bool) (Path, bool) {
	if src == dest {
		return Path{}, true
	}
	nodeResult, ok := result[dest]
	if !ok {
		return nil, false
	}
	for _, pl := range nodeResult.PathLinks {
		if linksToIgnore[pl.link] {
			continue
		}
		linksToIgnore[pl.link] = true
		path, found := ls.TraceOnePath(src, pl.prevNode, result, linksToIgnore)
		if found {
			path = append(path, pl.link)
			return path, true
		}
	}
	return nil, false
}

// GetKthPaths computes the two shortest edge-disjoint paths from src
// to dest: the first from the cached SPF tree, the second from a
// fresh SPF run that excludes every link the first path used.
// Grounded on SpfSolver.cpp's getKthPaths (SPEC_FULL.md §4.6 KSP2).
func (ls *LinkState) GetKthPaths(src, dest state.NodeId) []Path {
	var paths []Path

	firstResult := ls.RunSpf(src, nil)
	ignore := make(map[*Link]bool)
	first, ok := ls.TraceOnePath(src, dest, firstResult, ignore)
	if !ok {
		return nil
	}
	paths = append(paths, first)

	secondResult := ls.RunSpf(src, ignore)
	secondIgnore := make(map[*Link]bool)
	if second, ok := ls.TraceOnePath(src, dest, secondResult, secondIgnore); ok {
		paths = append(paths, second)
	}
	return paths
}
