package decision

import (
	"reflect"

	"github.com/Darren9354/openr/state"
)

// RouteDb is the solver's in-memory view of the currently installed
// RIB for one area, wrapping state.RouteDb with the diffing operation
// the FIB programmer (an external collaborator, out of scope) would
// consume. Grounded line-for-line on SpfSolver.cpp's DecisionRouteDb.
type RouteDb struct {
	Area          state.Area
	UnicastRoutes map[state.Prefix]state.RibUnicastEntry
	MplsRoutes    map[int32]state.MplsRoute
}

// NewRouteDb constructs an empty RouteDb for area.
func NewRouteDb(area state.Area) *RouteDb {
	return &RouteDb{
		Area:          area,
		UnicastRoutes: make(map[state.Prefix]state.RibUnicastEntry),
		MplsRoutes:    make(map[int32]state.MplsRoute),
	}
}

// CalculateUpdate computes the symmetric diff between the current
// RouteDb and newDb: every entry that is new or changed in newDb, and
// every entry present here but absent from newDb. Grounded
// line-for-line on SpfSolver.cpp's DecisionRouteDb::calculateUpdate.
func (r *RouteDb) CalculateUpdate(newDb *RouteDb) state.RouteDbDelta {
	delta := state.RouteDbDelta{Area: r.Area}

	for prefix, entry := range newDb.UnicastRoutes {
		if existing, ok := r.UnicastRoutes[prefix]; !ok || !reflect.DeepEqual(existing, entry) {
			delta.UnicastRoutesToUpdate = append(delta.UnicastRoutesToUpdate, entry)
		}
	}
	for prefix := range r.UnicastRoutes {
		if _, ok := newDb.UnicastRoutes[prefix]; !ok {
			delta.UnicastRoutesToDelete = append(delta.UnicastRoutesToDelete, prefix)
		}
	}

	for label, entry := range newDb.MplsRoutes {
		if existing, ok := r.MplsRoutes[label]; !ok || !reflect.DeepEqual(existing, entry) {
			delta.MplsRoutesToUpdate = append(delta.MplsRoutesToUpdate, entry)
		}
	}
	for label := range r.MplsRoutes {
		if _, ok := newDb.MplsRoutes[label]; !ok {
			delta.MplsRoutesToDelete = append(delta.MplsRoutesToDelete, label)
		}
	}

	return delta
}

// Apply mutates r in place to reflect delta, matching SpfSolver.cpp's
// DecisionRouteDb::update.
func (r *RouteDb) Apply(delta state.RouteDbDelta) {
	for _, prefix := range delta.UnicastRoutesToDelete {
		delete(r.UnicastRoutes, prefix)
	}
	for _, entry := range delta.UnicastRoutesToUpdate {
		r.UnicastRoutes[entry.Prefix] = entry
	}
	for _, label := range delta.MplsRoutesToDelete {
		delete(r.MplsRoutes, label)
	}
	for _, entry := range delta.MplsRoutesToUpdate {
		r.MplsRoutes[entry.Label] = entry
	}
}

// Snapshot returns an immutable-ish copy of the current RIB as a
// state.RouteDb, for publishing to the FIB programmer or the CLI's
// status view.
func (r *RouteDb) Snapshot() state.RouteDb {
	out := state.RouteDb{
		Area:          r.Area,
		UnicastRoutes: make(map[state.Prefix]state.RibUnicastEntry, len(r.UnicastRoutes)),
		MplsRoutes:    make(map[int32]state.MplsRoute, len(r.MplsRoutes)),
	}
	for k, v := range r.UnicastRoutes {
		out.UnicastRoutes[k] = v
	}
	for k, v := range r.MplsRoutes {
		out.MplsRoutes[k] = v
	}
	return out
}
