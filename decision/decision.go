package decision

import (
	"context"
	"strings"

	"github.com/Darren9354/openr/state"
)

// adjacencyKeyPrefix and prefixKeyPrefix are the KvStore key prefixes
// carrying adjacency and prefix advertisements into Decision, per
// spec.md §4.6 step 1.
const (
	adjacencyKeyPrefix = "adj:"
	prefixKeyPrefix    = "prefix:"
)

// Decision is the per-area link-state routing engine: it owns a
// LinkState, a PrefixState, an SpfSolver, and the resulting RouteDb,
// all serialized through one dispatch loop. Grounded on spec.md §4.5-
// §4.7 and on the teacher's single-goroutine-per-scope ownership model
// (state.Env).
type Decision struct {
	env *state.Env

	area     state.Area
	myNodeId state.NodeId

	ls       *LinkState
	prefixes *PrefixState
	solver   *SpfSolver
	routes   *RouteDb

	cfg state.DecisionConfig

	routeSinks []RouteUpdateSink
}

// RouteUpdateSink receives every RouteDbDelta Decision computes, the
// hand-off point to the FIB programmer (out of scope per spec.md §1).
type RouteUpdateSink interface {
	OnRouteUpdate(state.RouteDbDelta)
}

// RouteUpdateFunc adapts a plain function to RouteUpdateSink.
type RouteUpdateFunc func(state.RouteDbDelta)

func (f RouteUpdateFunc) OnRouteUpdate(d state.RouteDbDelta) { f(d) }

// NewDecision constructs a Decision engine for one area. The caller
// is responsible for starting env.RunLoop on its own goroutine.
func NewDecision(env *state.Env, area state.Area, myNodeId state.NodeId, cfg state.DecisionConfig, metrics state.MetricSink) *Decision {
	return &Decision{
		env:      env,
		area:     area,
		myNodeId: myNodeId,
		ls:       NewLinkState(area),
		prefixes: NewPrefixState(),
		solver:   NewSpfSolver(myNodeId, cfg, metrics),
		routes:   NewRouteDb(area),
		cfg:      cfg,
	}
}

// RegisterRouteUpdateSink subscribes sink to every future RouteDbDelta.
func (d *Decision) RegisterRouteUpdateSink(sink RouteUpdateSink) {
	d.env.Dispatch(func() error {
		d.routeSinks = append(d.routeSinks, sink)
		return nil
	})
}

// OnKvStoreUpdate feeds one KvStoreDb merge's accepted updates into
// Decision's topology: adj:<node> keys update LinkState, prefix:<node>
// keys update PrefixState. Anything else is ignored -- Decision only
// consumes the subset of the KvStore namespace spec.md §4.6 step 1
// describes.
func (d *Decision) OnKvStoreUpdate(ctx context.Context, updated map[state.Key]state.Value) error {
	_, err := d.env.DispatchWait(func() (any, error) {
		d.applyKvStoreUpdate(updated)
		return nil, nil
	})
	return err
}

// applyKvStoreUpdate runs the body of OnKvStoreUpdate; callers must
// already be on d.env's loop goroutine.
func (d *Decision) applyKvStoreUpdate(updated map[state.Key]state.Value) {
	topologyChanged := false
	for key, val := range updated {
		switch {
		case strings.HasPrefix(string(key), adjacencyKeyPrefix):
			adjDb, ok := decodeAdjacencyDatabase(val)
			if !ok {
				continue
			}
			change := d.ls.UpdateAdjacencyDatabase(adjDb)
			topologyChanged = topologyChanged || change.TopologyChanged
		case strings.HasPrefix(string(key), prefixKeyPrefix):
			node, entry, ok := decodePrefixEntry(key, val)
			if !ok {
				continue
			}
			d.prefixes.UpdatePrefixEntry(node, entry)
			topologyChanged = true
		}
	}
	if topologyChanged {
		d.recompute()
	}
}

// OnKvStoreExpire removes topology/prefix state for keys that expired
// out of the owning KvStoreDb's local store (spec.md §4.3), so a
// silently-crashed node's routes eventually time out rather than
// lingering forever.
func (d *Decision) OnKvStoreExpire(ctx context.Context, expired []state.Key) error {
	_, err := d.env.DispatchWait(func() (any, error) {
		d.applyKvStoreExpire(expired)
		return nil, nil
	})
	return err
}

// applyKvStoreExpire runs the body of OnKvStoreExpire; callers must
// already be on d.env's loop goroutine.
func (d *Decision) applyKvStoreExpire(expired []state.Key) {
	changed := false
	for _, key := range expired {
		switch {
		case strings.HasPrefix(string(key), adjacencyKeyPrefix):
			node := state.NodeId(strings.TrimPrefix(string(key), adjacencyKeyPrefix))
			change := d.ls.DeleteAdjacencyDatabase(node)
			d.prefixes.DeleteNode(node)
			changed = changed || change.TopologyChanged
		case strings.HasPrefix(string(key), prefixKeyPrefix):
			parts := strings.SplitN(strings.TrimPrefix(string(key), prefixKeyPrefix), ":", 2)
			if len(parts) > 0 && parts[0] != "" {
				for _, p := range d.prefixes.Prefixes() {
					d.prefixes.DeletePrefixEntry(state.NodeId(parts[0]), p)
				}
				changed = true
			}
		}
	}
	if changed {
		d.recompute()
	}
}

// recompute rebuilds the full RouteDb from the current LinkState +
// PrefixState and publishes the resulting delta to every registered
// sink, matching Decision::buildRouteDb in SpfSolver.cpp.
func (d *Decision) recompute() {
	newDb := NewRouteDb(d.area)

	for _, prefix := range d.prefixes.Prefixes() {
		entries := d.prefixes.AdvertisingNodes(prefix)
		if len(entries) == 0 {
			continue
		}
		entry, ok := d.solver.CreateRouteForPrefix(d.area, prefix, entries, d.ls)
		if !ok {
			continue
		}
		newDb.UnicastRoutes[prefix] = entry
	}

	for _, node := range d.ls.AllNodes() {
		if node == d.myNodeId {
			continue
		}
		db, ok := d.ls.adjacencyDatabases[node]
		if !ok || db.NodeLabel == 0 {
			continue
		}
		if route, ok := d.solver.CreateMplsRouteForNode(node, db.NodeLabel, d.ls); ok {
			newDb.MplsRoutes[db.NodeLabel] = route
		}
	}

	delta := d.routes.CalculateUpdate(newDb)
	d.routes.Apply(delta)
	for _, sink := range d.routeSinks {
		sink.OnRouteUpdate(delta)
	}
}

// decodeAdjacencyDatabase decodes an "adj:<nodeId>" key's value.
func decodeAdjacencyDatabase(val state.Value) (state.AdjacencyDatabase, bool) {
	db, err := state.DecodeAdjacencyDatabase(val.Value)
	if err != nil {
		return state.AdjacencyDatabase{}, false
	}
	return db, true
}

// decodePrefixEntry decodes a "prefix:<nodeId>:<area>" key's value,
// taking the originating node from the key itself rather than trusting
// a field inside the payload.
func decodePrefixEntry(key state.Key, val state.Value) (state.NodeId, state.PrefixEntry, bool) {
	parts := strings.SplitN(strings.TrimPrefix(string(key), prefixKeyPrefix), ":", 2)
	if len(parts) == 0 || parts[0] == "" {
		return "", state.PrefixEntry{}, false
	}
	entry, err := state.DecodePrefixEntry(val.Value)
	if err != nil {
		return "", state.PrefixEntry{}, false
	}
	return state.NodeId(parts[0]), entry, true
}

// AsKvStoreUpdateSink adapts d to state.KvStoreUpdateSink, the
// interface kvstore.KvStoreDb.RegisterUpdateSink expects, so wiring a
// Decision engine to its area's KvStoreDb is a single call at startup.
func (d *Decision) AsKvStoreUpdateSink() state.KvStoreUpdateSink {
	return kvStoreUpdateSink{d}
}

type kvStoreUpdateSink struct{ d *Decision }

// OnKvStoreUpdate runs on the publishing KvStoreDb's own dispatch-loop
// goroutine, so it must only enqueue work via Dispatch rather than
// block on DispatchWait -- a busy Decision loop would otherwise stall
// that KvStoreDb's flood/TTL processing.
func (s kvStoreUpdateSink) OnKvStoreUpdate(u state.KvStoreUpdate) {
	s.d.env.Dispatch(func() error {
		if len(u.Updated) > 0 {
			s.d.applyKvStoreUpdate(u.Updated)
		}
		if len(u.Expired) > 0 {
			s.d.applyKvStoreExpire(u.Expired)
		}
		return nil
	})
}

// RouteDbSnapshot returns the currently installed RIB for this area.
func (d *Decision) RouteDbSnapshot(ctx context.Context) (state.RouteDb, error) {
	res, err := d.env.DispatchWait(func() (any, error) {
		return d.routes.Snapshot(), nil
	})
	if err != nil {
		return state.RouteDb{}, err
	}
	return res.(state.RouteDb), nil
}
