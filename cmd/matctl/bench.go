package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teskje/materialize/internal/join"
	"github.com/teskje/materialize/internal/shutdown"
	"github.com/teskje/materialize/internal/trace"
)

var (
	benchSizeFlag       int
	benchYieldItemsFlag int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Cross-join two synthetic single-key collections under a small yield budget, reporting activation counts",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchSizeFlag, "size", 1000, "values per side under the shared key")
	benchCmd.Flags().IntVar(&benchYieldItemsFlag, "yield-items", 50, "value-pairs processed before an activation yields")
}

func runBench(cmd *cobra.Command, args []string) error {
	left := syntheticSingleKeyBatch("l", benchSizeFlag)
	right := syntheticSingleKeyBatch("r", benchSizeFlag)

	leftTrace := trace.New()
	leftTrace.InsertBatch(left)
	rightTrace := trace.New()
	rightTrace.InsertBatch(right)

	logic := join.Logic(func(key, v1, v2 []byte) ([]byte, error) {
		return append(append(append([]byte{}, v1...), '|'), v2...), nil
	})
	j := join.NewJoin(leftTrace, rightTrace, logic, shutdown.New())

	// Activate's own workDone counter resets to zero at the start of every
	// call, so the yield predicate only ever needs to compare it against
	// the per-activation budget directly.
	yield := func(workDone int) bool { return workDone >= benchYieldItemsFlag }

	activations := 0
	total := 0
	for {
		activations++
		out, errs, drained := j.Activate(nil, nil, join.ClosedFrontier, join.ClosedFrontier, yield)
		total += len(out)
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "join error: key=%s: %v\n", e.Key, e.Err)
		}
		if drained {
			break
		}
	}

	fmt.Fprintf(os.Stdout, "activations=%d output_rows=%d expected=%d\n", activations, total, benchSizeFlag*benchSizeFlag)
	return nil
}

func syntheticSingleKeyBatch(prefix string, n int) *trace.Batch {
	entries := make([]trace.Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = trace.Entry{Key: []byte("k"), Val: []byte(fmt.Sprintf("%s%d", prefix, i)), Time: trace.MinTime, Diff: 1}
	}
	return trace.NewBatch(trace.MinTime, trace.MinTime+1, entries)
}
