package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

var statusWarmup time.Duration

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "cluster",
	Short:   "Boot the cluster config, let it converge, then print every node's status once",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger("openr")
		if err != nil {
			return err
		}
		cc, err := loadClusterConfig(clusterConfigPath)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), statusWarmup+30*time.Second)
		defer cancel()

		cl, err := buildCluster(ctx, log, cc)
		if err != nil {
			return err
		}
		time.Sleep(statusWarmup)
		logClusterStatus(log, cl)
		return nil
	},
}

func init() {
	statusCmd.Flags().DurationVar(&statusWarmup, "warmup", 3*time.Second, "how long to let the cluster sync before reporting status")
	rootCmd.AddCommand(statusCmd)
}

// logClusterStatus prints every node's per-area KvStore summary and
// computed RIB, the CLI's stand-in for a `breeze kvstore` / `breeze
// decision` inspection command now that there is no daemon to query.
func logClusterStatus(log *slog.Logger, cl *cluster) {
	for nodeId, n := range cl.nodes {
		summaries, err := n.kv.Summary(context.Background())
		if err != nil {
			log.Error("failed to summarize node", "node", nodeId, "error", err)
			continue
		}
		for area, s := range summaries {
			log.Info("kvstore area summary",
				"node", nodeId, "area", area,
				"keys", s.KeyValsCount, "peers", s.PeersCount,
				"initial_synced", s.InitialSynced)
		}
		for area, dec := range n.decisions {
			snap, err := dec.RouteDbSnapshot(context.Background())
			if err != nil {
				log.Error("failed to snapshot routes", "node", nodeId, "area", area, "error", err)
				continue
			}
			for prefix, route := range snap.UnicastRoutes {
				log.Info("route",
					"node", nodeId, "area", area, "prefix", prefix,
					"best_node", route.BestNode, "nexthops", fmt.Sprint(route.NextHops))
			}
		}
	}
}
