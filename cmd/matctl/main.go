// Command matctl is a CLI client for driving the engine's stateful
// operators against file-backed inputs, grounded on cmd/memoryctl's
// cobra root/subcommand layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teskje/materialize/internal/config"
)

var (
	asOfFlag  int64
	adminFlag string
	rootCmd   = &cobra.Command{
		Use:   "matctl",
		Short: "CLI for driving join/upsert/render operators against file-backed inputs",
	}
)

func main() {
	// matctl is a one-shot driver, not the long-running worker MATVIEW_*
	// env vars ultimately configure, but it shares that same Config: its
	// defaults (yield budget, upsert backend choice, admin address) are
	// the sensible starting point for an ad-hoc run against the same
	// environment, overridable per-invocation via flags.
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd.PersistentFlags().Int64Var(&asOfFlag, "as-of", 0, "as_of time: suppress output at or below this time")
	rootCmd.PersistentFlags().StringVar(&adminFlag, "admin-addr", cfg.AdminAddr, "if set, serve the probe-frontier/upsert-lag introspection surface on this address")

	// Flags already registered their own literal defaults in each
	// subcommand's init(); override them here with the process-wide
	// Config before any flag parsing happens, so an un-passed flag still
	// reflects MATVIEW_* environment overrides.
	upsertBackendFlag = string(cfg.UpsertBackend)
	upsertDataDirFlag = cfg.UpsertDataDir
	benchYieldItemsFlag = cfg.YieldWorkItems
	letRecDefaultMaxIters = cfg.LetRecDefaultMaxIters

	rootCmd.AddCommand(joinCmd, upsertCmd, inspectCmd, benchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
