package state

// KvStoreParams bundles the knobs and shared capabilities every
// KvStoreDb in a node needs, independent of any one area. Recovered
// from KvStore.h's KvStoreParams ("commonly shared data structures
// like queues and config knobs shared across KvStoreDbs",
// SPEC_FULL.md §3).
type KvStoreParams struct {
	NodeId  NodeId
	Metrics MetricSink
}
