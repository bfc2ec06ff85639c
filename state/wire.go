package state

import "encoding/json"

// EncodeAdjacencyDatabase renders db as the opaque byte payload stored
// under a KvStore "adj:<nodeId>" key. KvStore itself never interprets
// this payload (see ids.go); only Decision decodes it. The real
// transport would carry this as a Thrift-serialized struct, which is
// out of scope -- this uses encoding/json since no pack library ships
// generated Thrift/protobuf message types for this shape (see
// DESIGN.md).
func EncodeAdjacencyDatabase(db AdjacencyDatabase) ([]byte, error) {
	return json.Marshal(db)
}

// DecodeAdjacencyDatabase is the inverse of EncodeAdjacencyDatabase.
func DecodeAdjacencyDatabase(payload []byte) (AdjacencyDatabase, error) {
	var db AdjacencyDatabase
	err := json.Unmarshal(payload, &db)
	return db, err
}

// EncodePrefixEntry renders entry as the opaque byte payload stored
// under a KvStore "prefix:<nodeId>:<area>" key.
func EncodePrefixEntry(entry PrefixEntry) ([]byte, error) {
	return json.Marshal(entry)
}

// DecodePrefixEntry is the inverse of EncodePrefixEntry.
func DecodePrefixEntry(payload []byte) (PrefixEntry, error) {
	var entry PrefixEntry
	err := json.Unmarshal(payload, &entry)
	return entry, err
}
