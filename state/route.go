package state

// NextHop is one resolved forwarding hop: the neighbor to send through
// and the UCMP weight assigned to it.
type NextHop struct {
	NodeId NodeId
	IfName string
	// Weight is the UCMP weight (post-GCD-normalization) to apply to
	// this nexthop. A value of 1 for every nexthop means equal-cost.
	Weight int64
	// MplsLabel is the label to push/swap for SR-MPLS forwarding, or
	// zero for plain IP forwarding.
	MplsLabel int32
}

// RibUnicastEntry is one computed best-route for a prefix.
type RibUnicastEntry struct {
	Prefix   Prefix
	NextHops []NextHop
	// BestNode is the node whose advertisement won best-route
	// selection for this prefix (used for logging/debugging, not
	// forwarding).
	BestNode NodeId
	Area     Area
}

// MplsAction selects the label operation for a node-segment route.
type MplsAction int

const (
	MplsActionSwap MplsAction = iota
	MplsActionPhp
	MplsActionPopAndLookup
)

// MplsRoute is one computed SR-MPLS node-segment route, keyed by the
// destination node's label.
type MplsRoute struct {
	Label    int32
	Action   MplsAction
	NextHops []NextHop
}

// RouteDb is the full computed RIB for one area at a point in time.
type RouteDb struct {
	Area         Area
	UnicastRoutes map[Prefix]RibUnicastEntry
	MplsRoutes    map[int32]MplsRoute
}

// RouteDbDelta is the symmetric diff between two RouteDb snapshots,
// produced by RouteDb.CalculateUpdate in the decision package.
type RouteDbDelta struct {
	Area Area

	UnicastRoutesToUpdate []RibUnicastEntry
	UnicastRoutesToDelete []Prefix

	MplsRoutesToUpdate []MplsRoute
	MplsRoutesToDelete []int32
}
