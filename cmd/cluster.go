package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/Darren9354/openr/decision"
	"github.com/Darren9354/openr/kvstore"
	"github.com/Darren9354/openr/state"
)

// clusterConfig is a single file describing every node to boot in one
// process -- the CLI's stand-in for N separate daemons talking over a
// real transport, since SPEC_FULL.md §6 puts the Thrift wire out of
// scope and kvstore.LocalPeerClient only ever talks in-process.
type clusterConfig struct {
	Nodes []*state.Config `yaml:"nodes"`
}

func loadClusterConfig(path string) (*clusterConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cluster config %s: %w", path, err)
	}
	var cc clusterConfig
	if err := yaml.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("parse cluster config %s: %w", path, err)
	}
	if len(cc.Nodes) == 0 {
		return nil, fmt.Errorf("cluster config %s: at least one node must be configured", path)
	}
	for _, n := range cc.Nodes {
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.NodeId, err)
		}
	}
	return &cc, nil
}

// node bundles one simulated node's KvStore and per-area Decision
// engines, for the CLI's status/key inspection commands.
type node struct {
	cfg       *state.Config
	kv        *kvstore.KvStore
	decisions map[state.Area]*decision.Decision
}

// cluster is every simulated node in one process, wired together.
type cluster struct {
	nodes map[state.NodeId]*node
}

// buildCluster constructs and wires every node in cc: one KvStore +
// one Decision engine per configured area, and an in-process
// LocalPeerClient for every configured peer edge.
func buildCluster(ctx context.Context, log *slog.Logger, cc *clusterConfig) (*cluster, error) {
	cl := &cluster{nodes: make(map[state.NodeId]*node)}

	for _, cfg := range cc.Nodes {
		metrics := state.NewEncodeousMetricSink(string(cfg.NodeId))
		n := &node{
			cfg:       cfg,
			kv:        kvstore.NewKvStore(ctx, cfg, log, metrics),
			decisions: make(map[state.Area]*decision.Decision),
		}
		for area, ac := range cfg.Areas {
			env := state.NewEnv(ctx, area, log.With("node", cfg.NodeId))
			dec := decision.NewDecision(env, area, cfg.NodeId, ac.Decision, metrics)
			go env.RunLoop()

			db, err := n.kv.Area(area)
			if err != nil {
				return nil, err
			}
			db.RegisterUpdateSink(dec.AsKvStoreUpdateSink())
			n.decisions[area] = dec
		}
		cl.nodes[cfg.NodeId] = n
	}

	for _, n := range cl.nodes {
		for area, ac := range n.cfg.Areas {
			db, err := n.kv.Area(area)
			if err != nil {
				return nil, err
			}
			for peerId := range ac.Peers {
				peer, ok := cl.nodes[peerId]
				if !ok {
					return nil, fmt.Errorf("node %s area %s: peer %s is not in the cluster config", n.cfg.NodeId, area, peerId)
				}
				peerDb, err := peer.kv.Area(area)
				if err != nil {
					return nil, fmt.Errorf("node %s area %s: peer %s does not share this area", n.cfg.NodeId, area, peerId)
				}
				client, err := kvstore.NewLocalPeerClient(peerDb, ac.KvStore.EnableWireCompression)
				if err != nil {
					return nil, err
				}
				db.RegisterPeerClient(peerId, client)
			}
		}
	}

	return cl, nil
}
