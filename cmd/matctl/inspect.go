package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teskje/materialize/internal/trace"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect RECORDS.csv",
	Short: "Build a trace from \"time,key,value\" records and dump its batch list",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	rows, err := readTKV(args[0])
	if err != nil {
		return err
	}

	upper := trace.MinTime + 1
	entries := make([]trace.Entry, len(rows))
	for i, row := range rows {
		entries[i] = trace.Entry{Key: []byte(row.Key), Val: []byte(row.Value), Time: row.Time, Diff: 1}
		if row.Time >= upper {
			upper = row.Time + 1
		}
	}

	tr := trace.New()
	tr.InsertBatch(trace.NewBatch(trace.MinTime, upper, entries))

	n := 0
	tr.MapBatches(func(lower, batchUpper trace.Time, size int) {
		n++
		fmt.Fprintf(os.Stdout, "batch %d: [%d, %d) size=%d\n", n, lower, batchUpper, size)
	})
	fmt.Fprintf(os.Stdout, "upper=%d physical_compaction=%d\n", tr.Upper(), tr.PhysicalCompaction())
	return nil
}
