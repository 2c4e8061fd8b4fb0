package join

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teskje/materialize/internal/shutdown"
	"github.com/teskje/materialize/internal/trace"
)

// concat is the join logic used throughout these tests: it matches every
// (v1, v2) pair under a shared key and emits their concatenation.
func concat(key, v1, v2 []byte) ([]byte, error) {
	out := append([]byte(nil), v1...)
	out = append(out, '|')
	out = append(out, v2...)
	return out, nil
}

func neverYield(int) bool { return false }

func TestInnerJoinSingleKey(t *testing.T) {
	t1 := trace.New()
	t1.InsertBatch(trace.NewBatch(0, 1, []trace.Entry{
		{Key: []byte("k"), Val: []byte("a"), Time: 0, Diff: 1},
	}))
	t2 := trace.New()
	t2.InsertBatch(trace.NewBatch(0, 1, []trace.Entry{
		{Key: []byte("k"), Val: []byte("b"), Time: 0, Diff: 1},
	}))

	j := NewJoin(t1, t2, concat, shutdown.New())
	out, errs, drained := j.Activate(nil, nil, 1, 1, neverYield)
	require.True(t, drained)
	require.Empty(t, errs)
	require.Equal(t, []trace.Entry{
		{Key: []byte("k"), Val: []byte("a|b"), Time: 0, Diff: 1},
	}, out)
}

func TestJoinWithRetraction(t *testing.T) {
	t1 := trace.New()
	t1.InsertBatch(trace.NewBatch(0, 1, []trace.Entry{
		{Key: []byte("k"), Val: []byte("a"), Time: 0, Diff: 1},
	}))
	t2 := trace.New()
	t2.InsertBatch(trace.NewBatch(0, 1, []trace.Entry{
		{Key: []byte("k"), Val: []byte("b"), Time: 0, Diff: 1},
	}))

	j := NewJoin(t1, t2, concat, shutdown.New())
	out1, _, _ := j.Activate(nil, nil, 1, 1, neverYield)
	require.Equal(t, 1, len(out1))

	retract := trace.NewBatch(1, 2, []trace.Entry{
		{Key: []byte("k"), Val: []byte("a"), Time: 1, Diff: -1},
	})
	t1.InsertBatch(retract)

	out2, errs, drained := j.Activate([]*trace.Batch{retract}, nil, 2, 1, neverYield)
	require.True(t, drained)
	require.Empty(t, errs)
	require.Equal(t, []trace.Entry{
		{Key: []byte("k"), Val: []byte("a|b"), Time: 1, Diff: -1},
	}, out2)
}

func TestJoinYieldsAndResumes(t *testing.T) {
	var entries1, entries2 []trace.Entry
	for i := 0; i < 3; i++ {
		entries1 = append(entries1, trace.Entry{Key: []byte("k"), Val: []byte{byte('a' + i)}, Time: 0, Diff: 1})
	}
	for i := 0; i < 3; i++ {
		entries2 = append(entries2, trace.Entry{Key: []byte("k"), Val: []byte{byte('x' + i)}, Time: 0, Diff: 1})
	}

	t1 := trace.New()
	t1.InsertBatch(trace.NewBatch(0, 1, entries1))
	t2 := trace.New()
	t2.InsertBatch(trace.NewBatch(0, 1, entries2))

	// 3x3 = 9 value pairs total. Force a yield after every single pair so
	// the join must resume across repeated Activate calls and still
	// produce the full, exact cross product with no duplication.
	yieldAfterOne := func(workDone int) bool { return workDone >= 1 }

	j := NewJoin(t1, t2, concat, shutdown.New())
	var allOut []trace.Entry
	for i := 0; i < 20; i++ {
		out, errs, drained := j.Activate(nil, nil, 1, 1, yieldAfterOne)
		require.Empty(t, errs)
		allOut = append(allOut, out...)
		if drained {
			break
		}
	}

	require.Len(t, allOut, 9, "expected the full 3x3 cross product across resumed activations")
	seen := map[string]bool{}
	for _, e := range allOut {
		seen[string(e.Val)] = true
		require.Equal(t, int64(1), e.Diff)
	}
	require.Len(t, seen, 9, "no value pair should be produced more than once")
}
