package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Darren9354/openr/state"
)

var (
	keyNode        string
	keyArea        string
	keyTtl         time.Duration
	keyPersist     bool
	keyPropagation time.Duration
)

var keyCmd = &cobra.Command{
	Use:     "key <key> <value>",
	GroupID: "cluster",
	Short:   "Self-originate a key on one node and watch it propagate across the cluster",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := state.Key(args[0]), args[1]

		log, err := newLogger("openr")
		if err != nil {
			return err
		}
		cc, err := loadClusterConfig(clusterConfigPath)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), keyPropagation+30*time.Second)
		defer cancel()

		cl, err := buildCluster(ctx, log, cc)
		if err != nil {
			return err
		}

		origin, ok := cl.nodes[state.NodeId(keyNode)]
		if !ok {
			return fmt.Errorf("node %q is not in the cluster config", keyNode)
		}
		db, err := origin.kv.Area(state.Area(keyArea))
		if err != nil {
			return err
		}

		ttlMs := int64(keyTtl / time.Millisecond)
		if keyPersist {
			err = db.PersistSelfOriginatedKey(ctx, key, []byte(value), ttlMs)
		} else {
			err = db.SetSelfOriginatedKey(ctx, key, []byte(value), ttlMs)
		}
		if err != nil {
			return err
		}
		log.Info("self-originated key", "node", keyNode, "key", key)

		time.Sleep(keyPropagation)

		for nodeId, n := range cl.nodes {
			otherDb, err := n.kv.Area(state.Area(keyArea))
			if err != nil {
				continue
			}
			v, err := otherDb.GetValue(ctx, key)
			if err != nil {
				log.Warn("key not yet visible", "node", nodeId, "error", err)
				continue
			}
			log.Info("observed key", "node", nodeId, "value", string(v.Value), "version", v.Version)
		}
		return nil
	},
}

func init() {
	keyCmd.Flags().StringVar(&keyNode, "node", "", "node id to originate the key from (required)")
	keyCmd.Flags().StringVar(&keyArea, "area", "", "area to originate the key into (required)")
	keyCmd.Flags().DurationVar(&keyTtl, "ttl", 5*time.Minute, "key TTL")
	keyCmd.Flags().BoolVar(&keyPersist, "persist", false, "use persist semantics instead of one-shot set")
	keyCmd.Flags().DurationVar(&keyPropagation, "propagation-wait", 2*time.Second, "how long to wait for gossip to converge before reporting")
	_ = keyCmd.MarkFlagRequired("node")
	_ = keyCmd.MarkFlagRequired("area")
	rootCmd.AddCommand(keyCmd)
}
