package kvstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/Darren9354/openr/state"
)

// PeerClient is the capability abstraction a KvStoreDb talks to a peer
// through. The real Thrift transport is out of scope (SPEC_FULL.md
// §6); this interface is what a transport implementation would
// satisfy, mirroring the teacher's own thin per-link client interface
// (impl/tcp_link.go) that gets rebuilt on reconnect rather than
// wrapped in retry logic at every call site.
type PeerClient interface {
	// FullSyncRequest asks the peer for everything matching params and
	// returns its KeyDump response.
	FullSyncRequest(ctx context.Context, area state.Area, params state.KeyDumpParams) (map[state.Key]state.Value, error)
	// FinalizeFullSync tells the peer which of the keys it sent us we
	// have processed. KvStoreDb's side only checks the area; no values
	// are sent back to the peer in this step.
	FinalizeFullSync(ctx context.Context, area state.Area, keys []state.Key) error
	// KeepAlive pings the peer to detect liveness outside of the sync
	// cycle.
	KeepAlive(ctx context.Context) error
	// Flood pushes a publication to the peer outside of the full-sync
	// request/response cycle, the steady-state gossip path. The real
	// transport would carry this over a long-lived stream; the
	// in-process client below delivers it directly.
	Flood(ctx context.Context, pub state.Publication) error
}

// LocalPeerClient is an in-process PeerClient that talks directly to
// another node's KvStoreDb in the same process, used by tests and the
// CLI's single-process multi-node demo mode in place of a real network
// transport.
type LocalPeerClient struct {
	target *KvStoreDb

	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// NewLocalPeerClient constructs a client that talks to target.
// compress, when true, round-trips every payload through zstd to
// exercise the "on-wire zstd compression" config knob even though no
// real wire is involved.
func NewLocalPeerClient(target *KvStoreDb, compress bool) (*LocalPeerClient, error) {
	c := &LocalPeerClient{target: target, compress: compress}
	if compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("kvstore: construct zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("kvstore: construct zstd decoder: %w", err)
		}
		c.enc, c.dec = enc, dec
	}
	return c, nil
}

func (c *LocalPeerClient) FullSyncRequest(ctx context.Context, area state.Area, params state.KeyDumpParams) (map[state.Key]state.Value, error) {
	res, err := c.target.DumpKeys(ctx, area, params)
	if err != nil {
		return nil, err
	}
	if c.compress {
		if _, err := c.roundTrip(encodeKeyVals(res)); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (c *LocalPeerClient) FinalizeFullSync(ctx context.Context, area state.Area, keys []state.Key) error {
	return c.target.FinalizeFullSync(ctx, area, keys)
}

func (c *LocalPeerClient) KeepAlive(ctx context.Context) error {
	return nil
}

func (c *LocalPeerClient) Flood(ctx context.Context, pub state.Publication) error {
	if c.compress {
		if _, err := c.roundTrip(encodeKeyVals(pub.KeyVals)); err != nil {
			return err
		}
	}
	c.target.receiveFlood(pub)
	return nil
}

// roundTrip compresses and immediately decompresses payload, the
// simulated "wire" -- there is no real network hop, but the
// compression knob's cost is still paid and exercised.
func (c *LocalPeerClient) roundTrip(payload []byte) ([]byte, error) {
	compressed := c.enc.EncodeAll(payload, nil)
	return c.dec.DecodeAll(compressed, nil)
}

// encodeKeyVals produces a byte encoding of a key/value map, in map
// iteration order, purely so there is something concrete to compress; it carries
// no semantic meaning and is never decoded back into a map.
func encodeKeyVals(kv map[state.Key]state.Value) []byte {
	var out []byte
	for k, v := range kv {
		out = append(out, []byte(k)...)
		out = append(out, v.Value...)
	}
	return out
}

// peerClientRegistry lets the CLI's demo mode and tests look up a
// LocalPeerClient for a given peer NodeId without plumbing transport
// wiring through every constructor.
type peerClientRegistry struct {
	mu      sync.RWMutex
	clients map[state.NodeId]PeerClient
}

func newPeerClientRegistry() *peerClientRegistry {
	return &peerClientRegistry{clients: make(map[state.NodeId]PeerClient)}
}

func (r *peerClientRegistry) register(id state.NodeId, c PeerClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[id] = c
}

func (r *peerClientRegistry) get(id state.NodeId) (PeerClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}
