package state

// Adjacency describes one directed edge of a node's adjacency database,
// as advertised into KvStore for consumption by the Decision module.
type Adjacency struct {
	OtherNodeId   NodeId
	OtherIfName   string
	IfName        string
	Metric        int64
	AdjLabel      int32
	Overload      bool
	// Rtt is the measured round-trip time in microseconds, used for
	// UCMP AWP weighting.
	Rtt int64
	// Weight is the administratively configured UCMP weight for PWP
	// (preconfigured-weighted) resolution.
	Weight int64
	Timestamp int64
}

// AdjacencyDatabase is one node's full adjacency advertisement -- the
// KvStore value for key "adj:<nodeId>".
type AdjacencyDatabase struct {
	ThisNodeId  NodeId
	Overload    bool
	// NodeMetricIncrementVal is added to the metric of every link into
	// this node during SPF, whichever node runs it, modeling
	// administrative cost bias.
	NodeMetricIncrementVal int64
	Adjacencies []Adjacency
	// NodeLabel is this node's globally unique MPLS segment-routing
	// label, or zero if unallocated.
	NodeLabel int32
}
