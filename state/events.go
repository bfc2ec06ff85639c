package state

// InitEventType enumerates the initialization timeline an area's
// KvStoreDb walks through on startup, mirroring KvStore.h's
// initialKvStoreSyncedCallback_ (SPEC_FULL.md §4, "Initialization
// event timeline").
type InitEventType int

const (
	InitializingEvent InitEventType = iota
	PeersDiscoveredEvent
	KvStoreSyncedEvent
	KvStoreSyncErrorEvent
)

func (t InitEventType) String() string {
	switch t {
	case InitializingEvent:
		return "INITIALIZING"
	case PeersDiscoveredEvent:
		return "PEERS_DISCOVERED"
	case KvStoreSyncedEvent:
		return "KVSTORE_SYNCED"
	case KvStoreSyncErrorEvent:
		return "KVSTORE_SYNC_ERROR"
	default:
		return "UNKNOWN"
	}
}

// InitEvent is one transition on an area's initialization timeline.
type InitEvent struct {
	Area Area
	Type InitEventType
	// Err is set only for KvStoreSyncErrorEvent.
	Err error
}

// InitEventSink is the subscription surface for InitEvent consumers.
// A KvStoreDb calls every registered sink directly on its dispatch
// loop goroutine, so a sink that blocks also blocks that loop.
type InitEventSink interface {
	OnInitEvent(InitEvent)
}

// InitEventFunc adapts a plain function to InitEventSink.
type InitEventFunc func(InitEvent)

func (f InitEventFunc) OnInitEvent(e InitEvent) { f(e) }

// KvStoreUpdate is one batch of accepted merges or expirations an area's
// KvStoreDb hands to every registered KvStoreUpdateSink -- the hand-off
// point decision.Decision subscribes to in order to feed LinkState and
// PrefixState without KvStoreDb knowing anything about routing.
type KvStoreUpdate struct {
	Area    Area
	Updated map[Key]Value
	Expired []Key
}

// KvStoreUpdateSink receives every KvStoreUpdate an area's KvStoreDb
// produces. KvStoreDb calls the sink directly on its dispatch loop
// goroutine; decision.Decision's sink hands each update to its own
// loop via Dispatch.
type KvStoreUpdateSink interface {
	OnKvStoreUpdate(KvStoreUpdate)
}

// KvStoreUpdateFunc adapts a plain function to KvStoreUpdateSink.
type KvStoreUpdateFunc func(KvStoreUpdate)

func (f KvStoreUpdateFunc) OnKvStoreUpdate(u KvStoreUpdate) { f(u) }
