package state

// NodeId uniquely identifies a node within the routing domain.
type NodeId string

// Key is an opaque KvStore key. KvStore never parses it, only matches
// prefixes via configured filters.
type Key string

// Area is a routing scope. Each KvStoreDb and LinkState instance is
// scoped to exactly one Area.
type Area string

// Prefix is a string-rendered IP prefix (e.g. "10.0.0.0/24"), kept as
// a string at the KvStore/decision boundary the way adjacency and
// prefix databases are carried as opaque KvStore values.
type Prefix string
