package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var statusInterval time.Duration

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "cluster",
	Short:   "Boot every node in the cluster config and run until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger("openr")
		if err != nil {
			return err
		}
		cc, err := loadClusterConfig(clusterConfigPath)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cl, err := buildCluster(ctx, log, cc)
		if err != nil {
			return err
		}
		log.Info("cluster started", "nodes", len(cl.nodes))

		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info("shutting down")
				return nil
			case <-ticker.C:
				logClusterStatus(log, cl)
			}
		}
	},
}

func init() {
	runCmd.Flags().DurationVar(&statusInterval, "status-interval", 10*time.Second, "how often to log a cluster status summary")
	rootCmd.AddCommand(runCmd)
}
