// Command outline-sync reconciles a local markdown tree with a remote
// Outline-style document collection: a single no-arg invocation that
// wires config, the HTTP gateway, and the reconciliation Orchestrator
// together and maps the run's outcome to a process exit code.
package main

import (
	"context"
	"os"

	"github.com/odeke-em/log"
	"github.com/spf13/cobra"

	"github.com/mdsync/outline-sync/config"
	"github.com/mdsync/outline-sync/internal/picker"
	"github.com/mdsync/outline-sync/internal/remote"
	"github.com/mdsync/outline-sync/internal/sync"
)

var configPath string

// runLogger adapts odeke-em/log's function-field Logger (whose Logf is
// a struct field, not a method) into the Logf(format, args...) method
// every internal package's Logger interface expects.
type runLogger struct {
	*log.Logger
}

func (r runLogger) Logf(format string, args ...interface{}) (int, error) {
	return r.Logger.Logf(format, args...)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outline-sync",
		Short: "Reconcile a local markdown tree with a remote document collection",
		Args:  cobra.NoArgs,
		RunE:  run,
	}
	cmd.Flags().StringVar(&configPath, "config", "init/config.yaml", "path to the sync config file")
	return cmd
}

// run implements the exit-code mapping in spec.md §6/§7: 0 on a clean
// finish and on ConflictDetected; non-zero on ConfigError or any fatal
// IOError/InvariantViolation/TransportError-at-listing.
func run(cmd *cobra.Command, args []string) error {
	logger := runLogger{log.New(os.Stdin, os.Stdout, os.Stderr)}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.LogErrf("%v\n", err)
		return err
	}

	gw := remote.NewHTTPGateway(cfg.APIBaseURL, cfg.APIToken)
	ctx := context.Background()

	collectionID := cfg.CollectionID
	if collectionID == "" {
		collectionID, err = picker.Pick(ctx, gw, os.Stdin, os.Stdout, picker.IsTerminal(os.Stdin))
		if err != nil {
			wrapped := &config.ConfigError{Path: configPath, Err: err}
			logger.LogErrf("%v\n", wrapped)
			return wrapped
		}
	}

	orch := sync.New(cfg.SyncRoot, collectionID, gw, logger,
		sync.WithStaleness(cfg.StalenessTolerance()),
		sync.WithConflictWindow(cfg.ConflictWindow()),
	)
	report, err := orch.Run(ctx)
	if err != nil {
		if cd, ok := err.(*sync.ConflictDetected); ok {
			logger.Logf("sync halted: %d conflict(s); reconcile manually and rerun\n", len(cd.Conflicts))
			return nil
		}
		logger.LogErrf("sync failed: %v\n", err)
		return err
	}

	logger.Logf("sync complete: %d documents, %d local files\n", report.DocumentCount, report.LocalCount)
	return nil
}
