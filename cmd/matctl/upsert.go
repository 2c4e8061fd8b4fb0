package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teskje/materialize/internal/admin"
	"github.com/teskje/materialize/internal/shutdown"
	"github.com/teskje/materialize/internal/upsert"
)

var (
	upsertBackendFlag string
	upsertDataDirFlag string
	upsertModeFlag    string
)

var upsertCmd = &cobra.Command{
	Use:   "upsert RECORDS.csv",
	Short: "Drive \"time,key,value\" records through an upsert backend and print retract/add emissions",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpsert,
}

func init() {
	upsertCmd.Flags().StringVar(&upsertBackendFlag, "backend", "hashmap", "noop|hashmap|btree|lsm")
	upsertCmd.Flags().StringVar(&upsertDataDirFlag, "data-dir", "", "on-disk directory for the lsm backend")
	upsertCmd.Flags().StringVar(&upsertModeFlag, "mode", "streaming", "streaming|pre-reduce")
}

func runUpsert(cmd *cobra.Command, args []string) error {
	rows, err := readTKV(args[0])
	if err != nil {
		return err
	}

	dataDir := upsertDataDirFlag
	if upsert.Kind(upsertBackendFlag) == upsert.KindLSM && dataDir == "" {
		dataDir = "./matview-data"
	}
	backend, err := upsert.NewBackend(upsert.Kind(upsertBackendFlag), dataDir, false)
	if err != nil {
		return err
	}
	defer backend.Close()

	mode := upsert.ModeStreaming
	if upsertModeFlag == "pre-reduce" {
		mode = upsert.ModePreReduce
	}

	u := upsert.NewUpserter(backend, mode, shutdown.New())

	if adminFlag != "" {
		reg := admin.NewRegistry()
		reg.RegisterUpsertBackend(upsertBackendFlag, u.LastClosedTime)
		srv := admin.NewServer(reg)
		go func() {
			_ = startAdminServer(adminFlag, srv)
		}()
		fmt.Fprintf(os.Stderr, "admin surface listening on %s\n", adminFlag)
	}

	records := make([]upsert.Record, len(rows))
	for i, row := range rows {
		records[i] = upsert.Record{Key: []byte(row.Key), Value: []byte(row.Value), Time: row.Time}
	}

	out, err := u.Ingest(records)
	if err != nil {
		return err
	}
	for _, e := range out {
		fmt.Fprintf(os.Stdout, "%d,%s,%s,%d\n", e.Time, e.Key, e.Val, e.Diff)
	}
	return nil
}
