package render

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teskje/materialize/internal/join"
	"github.com/teskje/materialize/internal/plan"
	"github.com/teskje/materialize/internal/shutdown"
	"github.com/teskje/materialize/internal/trace"
)

func row(n int) []byte { return []byte(strconv.Itoa(n)) }

func rowInt(b []byte) int {
	n, _ := strconv.Atoi(string(b))
	return n
}

// buildCountUpLetRec constructs X = {0} U {x+1 | x in X, x < 10}.
func buildCountUpLetRec(maxIters uint64, returnAtLimit bool) *plan.LetRec {
	body := &plan.Union{Inputs: []plan.Plan{
		&plan.Constant{Rows: []plan.RowDiff{{Row: row(0), Diff: 1}}},
		&plan.FlatMap{
			Input: &plan.Get{Ident: "X"},
			Eval: func(r []byte) ([][]byte, error) {
				n := rowInt(r)
				if n >= 10 {
					return nil, nil
				}
				return [][]byte{row(n + 1)}, nil
			},
		},
	}}
	return &plan.LetRec{
		Idents: []string{"X"},
		Values: []plan.Plan{body},
		Limits: []*plan.IterLimit{{MaxIters: maxIters, ReturnAtLimit: returnAtLimit}},
		Body:   &plan.Get{Ident: "X"},
	}
}

func TestLetRecLimitExceededEmitsErrorAndFirstIterates(t *testing.T) {
	p := buildCountUpLetRec(5, false)
	r := New(trace.MinTime, shutdown.New(), 1000)

	out, err := r.Render(p)
	require.NoError(t, err)

	vals := map[int]bool{}
	for _, e := range out.Oks {
		require.Equal(t, int64(1), e.Diff)
		vals[rowInt(e.Val)] = true
	}
	require.Equal(t, map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true}, vals)

	require.Len(t, out.Errs, 1)
	limitErr, ok := out.Errs[0].Err.(*LetRecLimitExceeded)
	require.True(t, ok)
	require.Equal(t, uint64(5), limitErr.MaxIters)
}

func TestLetRecReturnAtLimitSuppressesError(t *testing.T) {
	p := buildCountUpLetRec(5, true)
	r := New(trace.MinTime, shutdown.New(), 1000)

	out, err := r.Render(p)
	require.NoError(t, err)
	require.Empty(t, out.Errs)

	vals := map[int]bool{}
	for _, e := range out.Oks {
		vals[rowInt(e.Val)] = true
	}
	require.Equal(t, map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true}, vals)
}

func TestLetRecConvergesWithoutLimit(t *testing.T) {
	// Same recursion but unbounded: it should converge once x>=10 stops
	// producing new values, well under the default iteration cap.
	p := buildCountUpLetRec(0, false)
	p.Limits[0] = nil
	r := New(trace.MinTime, shutdown.New(), 1000)

	out, err := r.Render(p)
	require.NoError(t, err)
	require.Empty(t, out.Errs)

	vals := map[int]bool{}
	for _, e := range out.Oks {
		vals[rowInt(e.Val)] = true
	}
	require.Equal(t, map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true, 8: true, 9: true, 10: true}, vals)
}

func TestLetRecErrorDedupBoundsMemoryAcrossIterations(t *testing.T) {
	// A binding whose body always re-derives the same error every
	// iteration must not accumulate one error row per iteration.
	evalCalls := 0
	body := &plan.Mfp{
		Input: &plan.Constant{Rows: []plan.RowDiff{{Row: row(0), Diff: 1}}},
		Eval: func(r []byte) ([]byte, bool, error) {
			evalCalls++
			return nil, false, errConstant
		},
	}
	p := &plan.LetRec{
		Idents: []string{"E"},
		Values: []plan.Plan{body},
		Limits: []*plan.IterLimit{{MaxIters: 50, ReturnAtLimit: true}},
		Body:   &plan.Get{Ident: "E"},
	}
	r := New(trace.MinTime, shutdown.New(), 1000)

	out, err := r.Render(p)
	require.NoError(t, err)
	require.Len(t, out.Errs, 1, "the idempotent error must be de-duplicated across all 50 iterations")
}

var errConstant = errSentinel{}

type errSentinel struct{}

func (errSentinel) Error() string { return "always fails" }

func TestRenderJoinInnerSingleKey(t *testing.T) {
	left := &plan.Constant{Rows: []plan.RowDiff{{Row: []byte("A:X"), Diff: 1}}}
	right := &plan.Constant{Rows: []plan.RowDiff{{Row: []byte("A:Y"), Diff: 1}}}
	keyOf := func(r []byte) []byte { return r[:1] }
	valOf := func(r []byte) []byte { return r[2:] }

	p := &plan.Join{
		Left: left, Right: right,
		LeftKey: keyOf, RightKey: keyOf,
		Logic: func(key, v1, v2 []byte) ([]byte, error) {
			return append(append(append([]byte{}, valOf(v1)...), '|'), valOf(v2)...), nil
		},
	}

	r := New(trace.MinTime, shutdown.New(), 1000)
	out, err := r.Render(p)
	require.NoError(t, err)
	require.Len(t, out.Oks, 1)
	require.Equal(t, []byte("X|Y"), out.Oks[0].Val)
	require.Empty(t, out.Errs)
}

func TestRenderThresholdDropsNonPositive(t *testing.T) {
	p := &plan.Threshold{Input: &plan.Constant{Rows: []plan.RowDiff{
		{Row: row(1), Diff: 2},
		{Row: row(1), Diff: -1},
		{Row: row(2), Diff: -1},
	}}}
	r := New(trace.MinTime, shutdown.New(), 1000)
	out, err := r.Render(p)
	require.NoError(t, err)
	require.Len(t, out.Oks, 1)
	require.Equal(t, row(1), out.Oks[0].Val)
}

func TestAsOfSuppressionReclocksEarlyData(t *testing.T) {
	p := &plan.Constant{Rows: []plan.RowDiff{{Row: row(1), Diff: 1}}}
	r := New(trace.Time(5), shutdown.New(), 1000)
	out, err := r.Render(p)
	require.NoError(t, err)
	require.Len(t, out.Oks, 1)
	require.Equal(t, trace.MinTime, out.Oks[0].Time)
}

var _ = join.ErrorRow{}
