package trace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertAndCursorThrough(t *testing.T) {
	tr := New()
	tr.InsertBatch(NewBatch(0, 2, []Entry{
		{Key: []byte("A"), Val: []byte("X"), Time: 1, Diff: 1},
	}))
	tr.InsertBatch(NewBatch(2, 4, []Entry{
		{Key: []byte("A"), Val: []byte("X"), Time: 2, Diff: -1},
		{Key: []byte("B"), Val: []byte("Y"), Time: 3, Diff: 1},
	}))

	c := tr.CursorThrough(4)
	defer c.Close()
	c.Rewind()

	require.True(t, c.KeyValid())
	require.Equal(t, []byte("A"), c.Key())
	require.True(t, c.ValValid())
	var tds []timeDiff
	c.MapTimes(func(time Time, diff int64) { tds = append(tds, timeDiff{time, diff}) })
	require.Equal(t, []timeDiff{{1, 1}, {2, -1}}, tds)

	c.StepKey()
	require.True(t, c.KeyValid())
	require.Equal(t, []byte("B"), c.Key())
	c.StepKey()
	require.False(t, c.KeyValid())
}

func TestCursorThroughBoundExcludesLaterTimes(t *testing.T) {
	tr := New()
	tr.InsertBatch(NewBatch(0, 10, []Entry{
		{Key: []byte("A"), Val: []byte("X"), Time: 5, Diff: 1},
	}))
	c := tr.CursorThrough(5)
	defer c.Close()
	c.Rewind()
	require.False(t, c.KeyValid(), "entries at time >= bound must be excluded")
}

func TestNonContiguousInsertPanics(t *testing.T) {
	tr := New()
	tr.InsertBatch(NewBatch(0, 2, nil))
	require.Panics(t, func() {
		tr.InsertBatch(NewBatch(3, 4, nil))
	})
}

func TestBusyCursorPanics(t *testing.T) {
	tr := New()
	tr.InsertBatch(NewBatch(0, 1, nil))
	c := tr.CursorThrough(1)
	require.Panics(t, func() { tr.CursorThrough(1) })
	c.Close()
	c2 := tr.CursorThrough(1)
	c2.Close()
}

func TestCompactionFrontierOrdering(t *testing.T) {
	tr := New()
	require.Panics(t, func() { tr.SetPhysicalCompaction(5) }, "physical must be <= logical")
	tr.SetLogicalCompaction(5)
	tr.SetPhysicalCompaction(5)
	require.Equal(t, Time(5), tr.PhysicalCompaction())
	require.Panics(t, func() { tr.SetLogicalCompaction(3) }, "logical must be >= physical")
}

func TestCursorThroughBelowPhysicalPanics(t *testing.T) {
	tr := New()
	tr.InsertBatch(NewBatch(0, 10, nil))
	tr.SetLogicalCompaction(5)
	tr.SetPhysicalCompaction(5)
	require.Panics(t, func() { tr.CursorThrough(3) })
	c := tr.CursorThrough(5)
	c.Close()
}

func TestAdvanceUpperClosesEmptyGaps(t *testing.T) {
	tr := New()
	tr.InsertBatch(NewBatch(0, 100, nil))
	f := Time(0)
	tr.AdvanceUpper(&f)
	require.Equal(t, Time(100), f)
}

func TestConsolidateCancelsOppositeSigns(t *testing.T) {
	out := Consolidate([]Entry{
		{Key: []byte("A"), Val: []byte("X"), Time: 1, Diff: 2},
		{Key: []byte("A"), Val: []byte("X"), Time: 1, Diff: -2},
		{Key: []byte("A"), Val: []byte("Y"), Time: 1, Diff: 3},
	})
	require.Len(t, out, 1)
	require.Equal(t, []byte("Y"), out[0].Val)
	require.Equal(t, int64(3), out[0].Diff)
}
