package cmd

import (
	"log/slog"
	"os"

	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"
)

var (
	clusterConfigPath string
	logLevel          = slog.LevelInfo
	logFilePath       string
)

// rootCmd is the base command for the routing-domain CLI: a simulation
// driver for the kvstore/decision engine in place of the real Thrift
// control-plane transport (out of scope per SPEC_FULL.md §6). Every
// subcommand boots its own in-process cluster from clusterConfigPath
// rather than talking to a long-running daemon, since no real network
// client exists -- see DESIGN.md.
var rootCmd = &cobra.Command{
	Use:   "openr",
	Short: "Link-state routing control plane simulator",
	Long: `openr drives an in-process simulation of the gossip KvStore and
link-state Decision engine described by a cluster config file: every
node in the file runs its own dispatch loop, wired to its configured
peers via an in-process transport.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "cluster", Title: "Cluster Simulation"})
	rootCmd.PersistentFlags().StringVarP(&clusterConfigPath, "cluster-config", "c", "cluster.yaml", "cluster config path")
	rootCmd.PersistentFlags().StringVarP(&logFilePath, "log-file", "l", "", "optional log file path, in addition to stderr")
	rootCmd.PersistentFlags().Func("log-level", "log level (debug|info|warn|error)", func(v string) error {
		return logLevel.UnmarshalText([]byte(v))
	})
}

// newLogger builds the console+file fanout logger every subcommand
// uses, grounded on the teacher's core/entrypoint.go Start, which
// fans a tint console handler out to an optional file handler via
// slog-multi.
func newLogger(prefix string) (*slog.Logger, error) {
	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			CustomPrefix: prefix,
		}),
	}
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), nil
}
