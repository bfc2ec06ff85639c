package kvstore

import (
	"context"
	"log/slog"

	"github.com/Darren9354/openr/state"
)

// KvStore owns one KvStoreDb per configured area and dispatches
// area-scoped calls to the right one, matching the outer KvStore
// class in KvStore.h that owns a KvStoreDb per area internally
// (SPEC_FULL.md §4).
type KvStore struct {
	nodeId state.NodeId
	dbs    map[state.Area]*KvStoreDb
}

// NewKvStore constructs a KvStore with one KvStoreDb started per area
// in cfg. Each area's dispatch loop is started on its own goroutine.
func NewKvStore(ctx context.Context, cfg *state.Config, log *slog.Logger, metrics state.MetricSink) *KvStore {
	ks := &KvStore{
		nodeId: cfg.NodeId,
		dbs:    make(map[state.Area]*KvStoreDb),
	}
	params := state.KvStoreParams{NodeId: cfg.NodeId, Metrics: metrics}
	for area, ac := range cfg.Areas {
		env := state.NewEnv(ctx, area, log)
		db := NewKvStoreDb(env, area, params, ac.KvStore, ac.Peers)
		ks.dbs[area] = db
		go env.RunLoop()
	}
	return ks
}

// Area returns the KvStoreDb for area, or an error if unconfigured.
func (k *KvStore) Area(area state.Area) (*KvStoreDb, error) {
	db, ok := k.dbs[area]
	if !ok {
		return nil, state.ErrUnknownArea("Area", area)
	}
	return db, nil
}

// Areas returns every configured area, for fan-out operations like a
// full status dump.
func (k *KvStore) Areas() []state.Area {
	out := make([]state.Area, 0, len(k.dbs))
	for a := range k.dbs {
		out = append(out, a)
	}
	return out
}

// Summary returns an AreaSummary for every configured area.
func (k *KvStore) Summary(ctx context.Context) (map[state.Area]state.AreaSummary, error) {
	out := make(map[state.Area]state.AreaSummary, len(k.dbs))
	for area, db := range k.dbs {
		s, err := db.AreaSummary(ctx)
		if err != nil {
			return nil, err
		}
		out[area] = s
	}
	return out, nil
}
