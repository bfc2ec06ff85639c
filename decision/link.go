package decision

import (
	"fmt"

	"github.com/Darren9354/openr/state"
)

// LinkStateMetric is the integer metric type used throughout SPF and
// UCMP computation, matching LinkState.h's LinkStateMetric alias.
type LinkStateMetric = int64

// holdableValue dampens a value's transition to a "worse" state
// (going down, or a metric increasing) for holdTtl decrement-on-tick
// periods, while letting a transition to a "better" state apply
// immediately. Grounded line-for-line on LinkState.cpp's
// HoldableValue<T>; kept per SPEC_FULL.md §9 but always constructed
// with holdUp/holdDown of zero by default config, so it is present
// and tested but dormant unless an area opts into hold time.
type holdableValue[T comparable] struct {
	val     T
	heldVal *T
	holdTtl int
	// isBetter reports whether newVal is "better" than current --
	// e.g. for bool, transitioning true->false (overload clearing);
	// for a metric, a decrease. updateValue arms holdUpTtl for a
	// "better" transition and holdDownTtl for any other change.
	isBetter func(current, newVal T) bool
}

func newHoldableValue[T comparable](val T, isBetter func(current, newVal T) bool) holdableValue[T] {
	return holdableValue[T]{val: val, isBetter: isBetter}
}

// value returns the held value if a hold is active, else the current
// value.
func (h *holdableValue[T]) value() T {
	if h.heldVal != nil {
		return *h.heldVal
	}
	return h.val
}

// hasHold reports whether a hold is currently active.
func (h *holdableValue[T]) hasHold() bool {
	return h.heldVal != nil
}

// decrementTtl ticks down an active hold by one, releasing it (and
// reporting true) once it reaches zero.
func (h *holdableValue[T]) decrementTtl() bool {
	if h.heldVal != nil {
		h.holdTtl--
		if h.holdTtl == 0 {
			h.heldVal = nil
			return true
		}
	}
	return false
}

// updateValue sets a new value, arming a hold of holdUpTtl for a
// "better" transition or holdDownTtl otherwise, when that TTL is
// non-zero and no hold is already active. Returns true if the
// externally visible value() changed as a result of this call.
func (h *holdableValue[T]) updateValue(val T, holdUpTtl, holdDownTtl int) bool {
	if val == h.val {
		return false
	}
	if h.hasHold() {
		h.heldVal = nil
		h.holdTtl = 0
	} else {
		ttl := holdDownTtl
		if h.isBetter(h.val, val) {
			ttl = holdUpTtl
		}
		if ttl != 0 {
			prev := h.val
			h.heldVal = &prev
			h.holdTtl = ttl
		}
	}
	h.val = val
	return !h.hasHold()
}

// Link is one bidirectional edge materialized from two nodes'
// adjacency advertisements for each other. Grounded line-for-line on
// LinkState.cpp's Link class.
type Link struct {
	Area state.Area

	n1, n2 state.NodeId
	if1, if2 string

	metric1, metric2     holdableValue[LinkStateMetric]
	overload1, overload2 holdableValue[bool]

	adjLabel1, adjLabel2 int32
	weight1, weight2     int64
	rtt1, rtt2           int64
}

// NewLink constructs a Link between the two endpoints described by a1
// (n1's adjacency toward n2) and a2 (n2's adjacency toward n1).
func NewLink(area state.Area, n1 state.NodeId, a1 state.Adjacency, n2 state.NodeId, a2 state.Adjacency) *Link {
	return &Link{
		Area:      area,
		n1:        n1,
		n2:        n2,
		if1:       a1.IfName,
		if2:       a2.IfName,
		metric1:   newHoldableValue(a1.Metric, func(cur, newVal LinkStateMetric) bool { return newVal < cur }),
		metric2:   newHoldableValue(a2.Metric, func(cur, newVal LinkStateMetric) bool { return newVal < cur }),
		overload1: newHoldableValue(a1.Overload, func(cur, newVal bool) bool { return cur && !newVal }),
		overload2: newHoldableValue(a2.Overload, func(cur, newVal bool) bool { return cur && !newVal }),
		adjLabel1: a1.AdjLabel,
		adjLabel2: a2.AdjLabel,
		weight1:   a1.Weight,
		weight2:   a2.Weight,
		rtt1:      a1.Rtt,
		rtt2:      a2.Rtt,
	}
}

// orderedNames returns (firstNodeName, secondNodeName): the pair is
// ordered so a Link's identity is independent of which endpoint
// originated it, matching LinkState.cpp's orderedNames_.
func (l *Link) orderedNames() (state.NodeId, state.NodeId) {
	if l.n1 <= l.n2 {
		return l.n1, l.n2
	}
	return l.n2, l.n1
}

func (l *Link) FirstNodeName() state.NodeId  { n1, _ := l.orderedNames(); return n1 }
func (l *Link) SecondNodeName() state.NodeId { _, n2 := l.orderedNames(); return n2 }

// GetOtherNodeName panics if nodeName is not one of this link's two
// endpoints, matching the original's throw-on-invalid-argument.
func (l *Link) GetOtherNodeName(nodeName state.NodeId) state.NodeId {
	switch nodeName {
	case l.n1:
		return l.n2
	case l.n2:
		return l.n1
	default:
		panic(fmt.Sprintf("decision: node %q is not an endpoint of this link", nodeName))
	}
}

func (l *Link) GetIfaceFromNode(nodeName state.NodeId) string {
	switch nodeName {
	case l.n1:
		return l.if1
	case l.n2:
		return l.if2
	default:
		panic(fmt.Sprintf("decision: node %q is not an endpoint of this link", nodeName))
	}
}

func (l *Link) GetMetricFromNode(nodeName state.NodeId) LinkStateMetric {
	switch nodeName {
	case l.n1:
		return l.metric1.value()
	case l.n2:
		return l.metric2.value()
	default:
		panic(fmt.Sprintf("decision: node %q is not an endpoint of this link", nodeName))
	}
}

func (l *Link) GetOverloadFromNode(nodeName state.NodeId) bool {
	switch nodeName {
	case l.n1:
		return l.overload1.value()
	case l.n2:
		return l.overload2.value()
	default:
		panic(fmt.Sprintf("decision: node %q is not an endpoint of this link", nodeName))
	}
}

func (l *Link) GetAdjLabelFromNode(nodeName state.NodeId) int32 {
	switch nodeName {
	case l.n1:
		return l.adjLabel1
	case l.n2:
		return l.adjLabel2
	default:
		panic(fmt.Sprintf("decision: node %q is not an endpoint of this link", nodeName))
	}
}

func (l *Link) GetWeightFromNode(nodeName state.NodeId) int64 {
	switch nodeName {
	case l.n1:
		return l.weight1
	case l.n2:
		return l.weight2
	default:
		panic(fmt.Sprintf("decision: node %q is not an endpoint of this link", nodeName))
	}
}

func (l *Link) GetRttFromNode(nodeName state.NodeId) int64 {
	switch nodeName {
	case l.n1:
		return l.rtt1
	case l.n2:
		return l.rtt2
	default:
		panic(fmt.Sprintf("decision: node %q is not an endpoint of this link", nodeName))
	}
}

// SetMetricFromNode updates the metric this node advertises for the
// link, returning true if the visible metric actually changed (after
// hold suppression).
func (l *Link) SetMetricFromNode(nodeName state.NodeId, metric LinkStateMetric, holdUpTtl, holdDownTtl int) bool {
	switch nodeName {
	case l.n1:
		return l.metric1.updateValue(metric, holdUpTtl, holdDownTtl)
	case l.n2:
		return l.metric2.updateValue(metric, holdUpTtl, holdDownTtl)
	default:
		panic(fmt.Sprintf("decision: node %q is not an endpoint of this link", nodeName))
	}
}

// SetOverloadFromNode updates the overload bit this node advertises
// for the link.
func (l *Link) SetOverloadFromNode(nodeName state.NodeId, overload bool, holdUpTtl, holdDownTtl int) bool {
	switch nodeName {
	case l.n1:
		return l.overload1.updateValue(overload, holdUpTtl, holdDownTtl)
	case l.n2:
		return l.overload2.updateValue(overload, holdUpTtl, holdDownTtl)
	default:
		panic(fmt.Sprintf("decision: node %q is not an endpoint of this link", nodeName))
	}
}

// IsUp reports whether neither endpoint has withdrawn the link (both
// directions carry a non-negative metric and neither side is the
// special "unreachable" marker).
func (l *Link) IsUp() bool {
	return l.metric1.value() >= 0 && l.metric2.value() >= 0
}

// DecrementHolds ticks every holdable field on this link by one,
// returning true if any field's visible value changed as a result.
func (l *Link) DecrementHolds() bool {
	changed := false
	if l.metric1.decrementTtl() {
		changed = true
	}
	if l.metric2.decrementTtl() {
		changed = true
	}
	if l.overload1.decrementTtl() {
		changed = true
	}
	if l.overload2.decrementTtl() {
		changed = true
	}
	return changed
}

func (l *Link) HasHolds() bool {
	return l.metric1.hasHold() || l.metric2.hasHold() || l.overload1.hasHold() || l.overload2.hasHold()
}

// String renders the link for logging.
func (l *Link) String() string {
	return fmt.Sprintf("%s<->%s", l.n1, l.n2)
}
