package kvstore

import (
	"context"
	"time"

	"github.com/Darren9354/openr/state"
)

// KvStoreDb is the per-area gossip store: the local key/value map,
// TTL bookkeeping, peer FSMs, flood buffering/rate limiting, and
// self-originated key lifecycle. Grounded line-for-line on the
// KvStoreDb class in KvStore.h (SPEC_FULL.md §4).
type KvStoreDb struct {
	env *state.Env

	area   state.Area
	nodeId state.NodeId
	cfg    state.KvStoreConfig
	params state.KvStoreParams

	store map[state.Key]state.Value
	ttl   *TtlQueue

	peers    map[state.NodeId]*state.Peer
	fsms     map[state.NodeId]*PeerFSM
	clients  *peerClientRegistry
	floodBufs map[state.NodeId]*FloodBuffer
	limiters  map[state.NodeId]*FloodLimiter

	self *SelfOriginated

	initEventSinks   []state.InitEventSink
	updateSinks      []state.KvStoreUpdateSink
	initialSynced    bool
}

// NewKvStoreDb constructs a KvStoreDb for one area. The caller is
// responsible for starting env.RunLoop on its own goroutine.
func NewKvStoreDb(env *state.Env, area state.Area, params state.KvStoreParams, cfg state.KvStoreConfig, peers map[state.NodeId]state.PeerSpec) *KvStoreDb {
	db := &KvStoreDb{
		env:       env,
		area:      area,
		nodeId:    params.NodeId,
		cfg:       cfg,
		params:    params,
		store:     make(map[state.Key]state.Value),
		ttl:       NewTtlQueue(),
		peers:     make(map[state.NodeId]*state.Peer),
		fsms:      make(map[state.NodeId]*PeerFSM),
		clients:   newPeerClientRegistry(),
		floodBufs: make(map[state.NodeId]*FloodBuffer),
		limiters:  make(map[state.NodeId]*FloodLimiter),
		self:      NewSelfOriginated(params.NodeId, cfg.SelfOriginatedKeyBackoffMin, cfg.SelfOriginatedKeyBackoffMax),
	}
	for id, spec := range peers {
		p := &state.Peer{NodeId: id, Address: spec.Address}
		db.peers[id] = p
		db.fsms[id] = NewPeerFSM(p)
		db.floodBufs[id] = NewFloodBuffer()
		db.limiters[id] = NewFloodLimiter(cfg.FloodRatePps, cfg.FloodRateBurst)
	}
	db.publishInitEvent(state.InitializingEvent, nil)
	if len(peers) > 0 {
		db.publishInitEvent(state.PeersDiscoveredEvent, nil)
	} else {
		// No peers configured for this area: nothing to sync against,
		// so the initial-sync timeline completes immediately (spec.md
		// §4.2, "no peers in area").
		db.initialSynced = true
		db.publishInitEvent(state.KvStoreSyncedEvent, nil)
	}
	env.RepeatTask(db.checkKeyTtl, 1*time.Second)
	env.RepeatTask(db.requestPeerSync, cfg.SyncInterval)
	return db
}

// RegisterPeerClient wires the PeerClient used to reach peer id.
// Exercised by the CLI's single-process demo mode and by tests.
func (db *KvStoreDb) RegisterPeerClient(peer state.NodeId, client PeerClient) {
	db.clients.register(peer, client)
}

// RegisterInitEventSink subscribes sink to this area's initialization
// timeline. Events published before sink is registered are not
// replayed, including those NewKvStoreDb publishes while constructing
// the KvStoreDb.
func (db *KvStoreDb) RegisterInitEventSink(sink state.InitEventSink) {
	db.env.Dispatch(func() error {
		db.initEventSinks = append(db.initEventSinks, sink)
		return nil
	})
}

func (db *KvStoreDb) publishInitEvent(typ state.InitEventType, err error) {
	ev := state.InitEvent{Area: db.area, Type: typ, Err: err}
	for _, sink := range db.initEventSinks {
		sink.OnInitEvent(ev)
	}
}

// RegisterUpdateSink subscribes sink to every future KvStoreUpdate --
// the integration point decision.Decision uses to learn about adj:/
// prefix: key changes without KvStoreDb importing the decision
// package.
func (db *KvStoreDb) RegisterUpdateSink(sink state.KvStoreUpdateSink) {
	db.env.Dispatch(func() error {
		db.updateSinks = append(db.updateSinks, sink)
		return nil
	})
}

func (db *KvStoreDb) publishUpdate(updated map[state.Key]state.Value, expired []state.Key) {
	if len(updated) == 0 && len(expired) == 0 {
		return
	}
	u := state.KvStoreUpdate{Area: db.area, Updated: updated, Expired: expired}
	for _, sink := range db.updateSinks {
		sink.OnKvStoreUpdate(u)
	}
}

// SetKeyVals injects local (non-flooded-yet) updates into the store
// and floods whatever the merge accepts, per KvStore.h's
// setKeyVals/mergePublication pair.
func (db *KvStoreDb) SetKeyVals(ctx context.Context, keyVals map[state.Key]state.Value) error {
	_, err := db.env.DispatchWait(func() (any, error) {
		withTtl := make(map[state.Key]state.Value, len(keyVals))
		for k, v := range keyVals {
			if v.Ttl == 0 {
				v.Ttl = db.cfg.DefaultTtlMs
			}
			withTtl[k] = v
		}
		db.mergeAndFlood(state.Publication{Area: db.area, KeyVals: withTtl})
		return nil, nil
	})
	return err
}

// DumpKeys answers a full-sync request, applying prefix and hash
// filters and optionally stripping values per params.
func (db *KvStoreDb) DumpKeys(ctx context.Context, area state.Area, params state.KeyDumpParams) (map[state.Key]state.Value, error) {
	if area != db.area {
		return nil, state.ErrUnknownArea("DumpKeys", area)
	}
	res, err := db.env.DispatchWait(func() (any, error) {
		out := make(map[state.Key]state.Value)
		for k, v := range db.store {
			if !keyFilter(k, []string{params.Prefix}) && params.Prefix != "" {
				continue
			}
			if params.KeyValHashes != nil {
				if h, ok := params.KeyValHashes[k]; ok && h == v.Hash {
					continue
				}
			}
			if params.DoNotPublishValue {
				v.Value = nil
			}
			out[k] = v
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(map[state.Key]state.Value), nil
}

// FinalizeFullSync is called by a requester once it has processed our
// DumpKeys response. It only checks the area: it keeps no per-key
// bookkeeping and sends no values back to the requester.
func (db *KvStoreDb) FinalizeFullSync(ctx context.Context, area state.Area, keys []state.Key) error {
	if area != db.area {
		return state.ErrUnknownArea("FinalizeFullSync", area)
	}
	return nil
}

// requestPeerSync kicks off a full sync against every peer not
// currently INITIALIZED and past its backoff window.
func (db *KvStoreDb) requestPeerSync() error {
	now := time.Now()
	for id, peer := range db.peers {
		if peer.State == state.PeerInitialized {
			continue
		}
		if !peer.Ready(now) {
			continue
		}
		fsm := db.fsms[id]
		if !fsm.Apply(PeerEventSyncStart, now) {
			continue
		}
		go db.runFullSync(id)
	}
	return nil
}

func (db *KvStoreDb) runFullSync(peer state.NodeId) {
	client, ok := db.clients.get(peer)
	if !ok {
		db.env.Dispatch(func() error {
			db.fsms[peer].Apply(PeerEventSyncFailure, time.Now())
			return nil
		})
		return
	}
	ctx, cancel := context.WithTimeout(db.env.Context, 10*time.Second)
	defer cancel()

	hashes, err := db.env.DispatchWait(func() (any, error) {
		h := make(map[state.Key]uint64, len(db.store))
		for k, v := range db.store {
			h[k] = v.Hash
		}
		return h, nil
	})
	if err != nil {
		return
	}
	resp, err := client.FullSyncRequest(ctx, db.area, state.KeyDumpParams{KeyValHashes: hashes.(map[state.Key]uint64)})
	db.env.Dispatch(func() error {
		now := time.Now()
		if err != nil {
			db.fsms[peer].Apply(PeerEventSyncFailure, now)
			db.publishInitEvent(state.KvStoreSyncErrorEvent, err)
			return nil
		}
		for k, v := range resp {
			db.self.RebaseOnFullSync(k, v)
		}
		db.mergeAndFlood(state.Publication{Area: db.area, KeyVals: resp, NodeIds: []state.NodeId{peer}})
		if selfPub := db.self.AdvertiseBatch(now); len(selfPub.KeyVals) > 0 {
			db.mergeAndFlood(selfPub)
		}
		db.fsms[peer].Apply(PeerEventSyncSuccess, now)
		if err := client.FinalizeFullSync(ctx, db.area, keysOf(resp)); err != nil {
			db.params.Metrics.Counter("finalize_sync_errors").Add(1)
		}
		if !db.initialSynced && db.allPeersInitialized() {
			db.initialSynced = true
			db.publishInitEvent(state.KvStoreSyncedEvent, nil)
		}
		return nil
	})
}

func (db *KvStoreDb) allPeersInitialized() bool {
	for _, p := range db.peers {
		if p.State != state.PeerInitialized {
			return false
		}
	}
	return true
}

func keysOf(m map[state.Key]state.Value) []state.Key {
	out := make([]state.Key, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// mergeAndFlood merges pub into the local store and buffers whatever
// it accepted for re-flooding to every peer (other than the ones
// already on pub.NodeIds, honoring loop suppression). Every value
// re-flooded this hop has its TTL decremented first, guaranteeing TTL
// strictly decreases as a value propagates (spec.md §4.1 step 4).
func (db *KvStoreDb) mergeAndFlood(pub state.Publication) MergeResult {
	res := Merge(db.store, pub.KeyVals, db.cfg.KeyPrefixFilters, db.nodeId)
	now := time.Now()
	for k, v := range res.Updated {
		v = decrementTtl(v, db.cfg.TtlDecrementMs)
		res.Updated[k] = v
		db.store[k] = v
		if !v.IsInfiniteTtl() {
			db.ttl.Push(k, v.Version, v.TtlVersion, v.ExpiresAt(now))
		}
	}
	for k, v := range res.TtlUpdated {
		db.store[k] = v
		if !v.IsInfiniteTtl() {
			db.ttl.Push(k, v.Version, v.TtlVersion, v.ExpiresAt(now))
		}
	}
	if len(res.Updated) > 0 {
		db.floodPublication(state.Publication{
			Area:    db.area,
			KeyVals: res.Updated,
			NodeIds: append(append([]state.NodeId{}, pub.NodeIds...), db.nodeId),
		})
	}
	db.handleInconsistencies(pub, res.Inconsistent)
	db.publishUpdate(res.Updated, nil)
	return res
}

// decrementTtl subtracts decrementMs from v's TTL, leaving values with
// an infinite TTL untouched.
func decrementTtl(v state.Value, decrementMs int64) state.Value {
	if v.IsInfiniteTtl() || decrementMs <= 0 {
		return v
	}
	v.Ttl -= decrementMs
	return v
}

// handleInconsistencies reacts to keys where Merge found a peer
// holding a stale view of one of our self-originated values: the
// correct local value is reflooded, and if the sender is identifiable
// from pub.NodeIds, its PeerFSM is pushed INITIALIZED->IDLE to force
// an immediate re-sync (spec.md §4.1 step 3, §4.2, §7).
func (db *KvStoreDb) handleInconsistencies(pub state.Publication, inconsistent []state.Key) {
	if len(inconsistent) == 0 {
		return
	}
	db.params.Metrics.Counter("inconsistencies_detected").Add(float64(len(inconsistent)))

	reflood := make(map[state.Key]state.Value, len(inconsistent))
	for _, k := range inconsistent {
		if v, ok := db.store[k]; ok {
			reflood[k] = v
		}
	}
	if len(reflood) > 0 {
		db.floodPublication(state.Publication{Area: db.area, KeyVals: reflood, NodeIds: []state.NodeId{db.nodeId}})
	}

	if len(pub.NodeIds) == 0 {
		return
	}
	sender := pub.NodeIds[len(pub.NodeIds)-1]
	fsm, ok := db.fsms[sender]
	if !ok {
		return
	}
	fsm.Apply(PeerEventInconsistencyDetected, time.Now())
}

func (db *KvStoreDb) floodPublication(pub state.Publication) {
	for id := range db.peers {
		if containsNode(pub.NodeIds, id) {
			continue
		}
		buf := db.floodBufs[id]
		buf.Add(pub)
		db.trySend(id)
	}
}

func (db *KvStoreDb) trySend(peer state.NodeId) {
	buf := db.floodBufs[peer]
	if buf.Empty() {
		return
	}
	if !db.limiters[peer].Allow() {
		db.env.ScheduleTask(func() error {
			db.trySend(peer)
			return nil
		}, floodBufferDrainInterval)
		return
	}
	client, ok := db.clients.get(peer)
	if !ok {
		return
	}
	pub := buf.Drain(db.area)
	go func() {
		if err := client.Flood(db.env.Context, pub); err != nil {
			db.env.Dispatch(func() error {
				db.fsms[peer].Apply(PeerEventSyncFailure, time.Now())
				return nil
			})
		}
	}()
}

// receiveFlood is invoked by a peer's PeerClient when it pushes a
// publication to us outside of the full-sync cycle.
func (db *KvStoreDb) receiveFlood(pub state.Publication) {
	db.env.Dispatch(func() error {
		db.mergeAndFlood(pub)
		return nil
	})
}

func containsNode(ids []state.NodeId, id state.NodeId) bool {
	for _, n := range ids {
		if n == id {
			return true
		}
	}
	return false
}

// checkKeyTtl expires locally-held keys whose TTL has elapsed,
// matching KvStore.h's checkKeyTtl/checkKeyTtlTask pair.
func (db *KvStoreDb) checkKeyTtl() error {
	now := time.Now()
	var expired []state.Key
	for _, e := range db.ttl.PopExpired(now) {
		v, ok := db.store[e.key]
		if !ok || v.Version != e.version || v.TtlVersion != e.ttlVersion {
			continue // stale entry superseded by a later push
		}
		delete(db.store, e.key)
		expired = append(expired, e.key)
		db.params.Metrics.Counter("ttl_expirations").Add(1)
	}
	db.publishUpdate(nil, expired)
	return nil
}

// AreaSummary reports area-level status for the CLI's status command.
func (db *KvStoreDb) AreaSummary(ctx context.Context) (state.AreaSummary, error) {
	res, err := db.env.DispatchWait(func() (any, error) {
		peers := make(map[state.NodeId]state.PeerState, len(db.peers))
		for id, p := range db.peers {
			peers[id] = p.State
		}
		return state.AreaSummary{
			Area:          db.area,
			KeyValsCount:  len(db.store),
			PeersCount:    len(db.peers),
			Peers:         peers,
			InitialSynced: db.initialSynced,
		}, nil
	})
	if err != nil {
		return state.AreaSummary{}, err
	}
	return res.(state.AreaSummary), nil
}

// SetSelfOriginatedKey sets a self-originated key-value with set
// (one-shot) semantics and floods the result, per KvStore.h's
// setSelfOriginatedKey.
func (db *KvStoreDb) SetSelfOriginatedKey(ctx context.Context, key state.Key, value []byte, ttl int64) error {
	return db.selfOriginate(func() { db.self.Set(key, value, ttl) })
}

// PersistSelfOriginatedKey sets a self-originated key-value with
// persist semantics, per KvStore.h's persistSelfOriginatedKey.
func (db *KvStoreDb) PersistSelfOriginatedKey(ctx context.Context, key state.Key, value []byte, ttl int64) error {
	return db.selfOriginate(func() { db.self.Persist(key, value, ttl) })
}

// UnsetSelfOriginatedKey withdraws a self-originated key, per
// KvStore.h's unsetSelfOriginatedKey.
func (db *KvStoreDb) UnsetSelfOriginatedKey(ctx context.Context, key state.Key) error {
	return db.selfOriginate(func() { db.self.Unset(key) })
}

// EraseSelfOriginatedKey permanently stops tracking a self-originated
// key, per KvStore.h's eraseSelfOriginatedKey.
func (db *KvStoreDb) EraseSelfOriginatedKey(ctx context.Context, key state.Key) error {
	return db.selfOriginate(func() { db.self.Erase(key) })
}

func (db *KvStoreDb) selfOriginate(mutate func()) error {
	_, err := db.env.DispatchWait(func() (any, error) {
		mutate()
		pub := db.self.AdvertiseBatch(time.Now())
		if len(pub.KeyVals) > 0 {
			db.mergeAndFlood(pub)
		}
		return nil, nil
	})
	return err
}

// GetValue returns the current locally held value for key.
func (db *KvStoreDb) GetValue(ctx context.Context, key state.Key) (state.Value, error) {
	res, err := db.env.DispatchWait(func() (any, error) {
		v, ok := db.store[key]
		if !ok {
			return state.Value{}, state.ErrUnknownKey("GetValue", db.area, key)
		}
		return v, nil
	})
	if err != nil {
		return state.Value{}, err
	}
	return res.(state.Value), nil
}
