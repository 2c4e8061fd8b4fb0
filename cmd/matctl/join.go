package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teskje/materialize/internal/plan"
	"github.com/teskje/materialize/internal/render"
	"github.com/teskje/materialize/internal/shutdown"
)

// letRecDefaultMaxIters is overridden from Config in main() before flag
// parsing; join has no LetRec nodes of its own but render.New needs a
// value regardless.
var letRecDefaultMaxIters uint64 = 100

var joinCmd = &cobra.Command{
	Use:   "join LEFT.csv RIGHT.csv",
	Short: "Inner-join two \"key,value\" files by key and print matches",
	Args:  cobra.ExactArgs(2),
	RunE:  runJoin,
}

func runJoin(cmd *cobra.Command, args []string) error {
	left, err := readKV(args[0])
	if err != nil {
		return err
	}
	right, err := readKV(args[1])
	if err != nil {
		return err
	}

	leftPlan := &plan.Constant{Rows: kvRowsToRows(left)}
	rightPlan := &plan.Constant{Rows: kvRowsToRows(right)}

	p := &plan.Join{
		Left: leftPlan, Right: rightPlan,
		LeftKey:  keyOfRow,
		RightKey: keyOfRow,
		Logic: func(key, v1, v2 []byte) ([]byte, error) {
			return []byte(fmt.Sprintf("%s,%s,%s", key, valOfRow(v1), valOfRow(v2))), nil
		},
	}

	r := render.New(asOfFlag, shutdown.New(), letRecDefaultMaxIters)
	out, err := r.Render(p)
	if err != nil {
		return err
	}
	for _, e := range out.Oks {
		fmt.Fprintf(os.Stdout, "%s (diff=%d, time=%d)\n", e.Val, e.Diff, e.Time)
	}
	for _, e := range out.Errs {
		fmt.Fprintf(os.Stderr, "error: key=%s: %v\n", e.Key, e.Err)
	}
	return nil
}

// rowFormat encodes a kvRow as "key:value" so a single []byte round-trips
// through keyOfRow/valOfRow without a dedicated wire format.
func rowFormat(k, v string) []byte { return []byte(k + ":" + v) }

func keyOfRow(row []byte) []byte {
	for i, b := range row {
		if b == ':' {
			return row[:i]
		}
	}
	return row
}

func valOfRow(row []byte) []byte {
	for i, b := range row {
		if b == ':' {
			return row[i+1:]
		}
	}
	return nil
}

func kvRowsToRows(rows []kvRow) []plan.RowDiff {
	out := make([]plan.RowDiff, len(rows))
	for i, r := range rows {
		out[i] = plan.RowDiff{Row: rowFormat(r.Key, r.Value), Diff: 1}
	}
	return out
}
