// Package trace implements the Arrangement contract: a time-versioned,
// key-indexed multiset of (key, val, time, diff) facts organized as a
// log-structured stack of immutable batches, plus the compaction
// frontiers the join and upsert operators depend on.
//
// This is an in-memory reference implementation of the contract, good
// enough to drive the stateful operators and their tests; a production
// deployment would back it with an on-disk merge tree instead.
package trace

import (
	"fmt"
	"sort"
	"sync"
)

// Time is the flat 64-bit logical timestamp used by traces and the
// operators that read them. Recursive bindings in internal/render iterate
// with a plain round counter rather than a product timestamp, so no
// nested time flows through this package.
type Time = int64

// MinTime is the semilattice's least element.
const MinTime Time = 0

// Entry is one (key, val, time, diff) fact.
type Entry struct {
	Key  []byte
	Val  []byte
	Time Time
	Diff int64
}

// Batch is an immutable fragment of an arrangement covering the
// contiguous time range [Lower, Upper).
type Batch struct {
	Lower, Upper Time
	entries      []Entry // sorted by (Key, Val, Time)
}

// NewBatch builds a Batch over [lower, upper), copying and sorting
// entries. Entries with Time outside [lower, upper) are a caller error
// and panic: a batch must not claim a range it doesn't contain.
func NewBatch(lower, upper Time, entries []Entry) *Batch {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	for _, e := range cp {
		if e.Time < lower || e.Time >= upper {
			panic(fmt.Sprintf("trace: entry time %d outside batch range [%d,%d)", e.Time, lower, upper))
		}
	}
	sortEntries(cp)
	return &Batch{Lower: lower, Upper: upper, entries: cp}
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		if c := compareBytes(es[i].Key, es[j].Key); c != 0 {
			return c < 0
		}
		if c := compareBytes(es[i].Val, es[j].Val); c != 0 {
			return c < 0
		}
		return es[i].Time < es[j].Time
	})
}

func compareBytes(a, b []byte) int {
	switch {
	case string(a) < string(b):
		return -1
	case string(a) > string(b):
		return 1
	default:
		return 0
	}
}

// Cursor returns a cursor over this batch's own entries, independent of
// any trace. Used by the join core to walk a newly-arrived batch without
// needing a trace handle for it.
func (b *Batch) Cursor() *Cursor {
	return &Cursor{groups: mergeGroups([]*Batch{b}, b.Upper), ki: -1}
}

// IsEmpty reports whether the batch carries no facts. The join core
// treats empty batches specially: it still advances the acknowledged
// frontier through them but never enqueues deferred work for them.
func (b *Batch) IsEmpty() bool { return len(b.entries) == 0 }

// Size returns the batch's fact count.
func (b *Batch) Size() int { return len(b.entries) }

// Trace is a reference-counted-by-convention handle onto an arrangement:
// an ordered, contiguous stack of batches plus the compaction frontiers
// operators are required to respect.
type Trace struct {
	mu       sync.Mutex
	busy     bool
	batches  []*Batch
	physical Time
	logical  Time
}

// New returns an empty Trace.
func New() *Trace { return &Trace{} }

// InsertBatch appends b to the trace. Batches must be contiguous:
// b.Lower must equal the trace's current Upper().
func (t *Trace) InsertBatch(b *Batch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	upper := t.upperLocked()
	if b.Lower != upper {
		panic(fmt.Sprintf("trace: non-contiguous batch insert: trace upper=%d, batch lower=%d", upper, b.Lower))
	}
	t.batches = append(t.batches, b)
}

// Upper returns the trace's read-upper: the least time not yet covered
// by any accepted batch.
func (t *Trace) Upper() Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.upperLocked()
}

func (t *Trace) upperLocked() Time {
	if len(t.batches) == 0 {
		return MinTime
	}
	return t.batches[len(t.batches)-1].Upper
}

// Batches returns a snapshot of the trace's currently held batches, in
// order. Used by operators that need per-batch cursors at attach time,
// where MapBatches's (lower, upper, size) summary isn't enough.
func (t *Trace) Batches() []*Batch {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Batch(nil), t.batches...)
}

// MapBatches enumerates the trace's currently held batches in order,
// yielding each one's (lower, upper, size). It does not return cursors
// directly: callers that need to read a batch's facts call CursorThrough.
func (t *Trace) MapBatches(f func(lower, upper Time, size int)) {
	t.mu.Lock()
	batches := append([]*Batch(nil), t.batches...)
	t.mu.Unlock()
	for _, b := range batches {
		f(b.Lower, b.Upper, b.Size())
	}
}

// AdvanceUpper advances the caller-held frontier *f through the trace's
// known-empty tail, up to the trace's read-upper, covering holes left by
// batches that were never transmitted because they were empty.
func (t *Trace) AdvanceUpper(f *Time) {
	upper := t.Upper()
	if *f < upper {
		*f = upper
	}
}

// SetLogicalCompaction sets the frontier below which times may be
// advanced by joining with the frontier when read through a cursor. It
// asserts the new frontier is >= the physical compaction frontier.
func (t *Trace) SetLogicalCompaction(frontier Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if frontier < t.physical {
		panic("trace: logical compaction frontier must be >= physical compaction frontier")
	}
	t.logical = frontier
}

// SetPhysicalCompaction sets the frontier below which batches may be
// merged or consolidated. It asserts physical <= logical; neither
// compaction setter compares its frontier with Upper.
func (t *Trace) SetPhysicalCompaction(frontier Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if frontier > t.logical {
		panic("trace: physical compaction frontier must be <= logical compaction frontier")
	}
	t.physical = frontier
}

// PhysicalCompaction returns the trace's current physical frontier.
func (t *Trace) PhysicalCompaction() Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.physical
}

// CursorThrough returns a cursor over every fact with Time < bound.
// Precondition: bound >= PhysicalCompaction(); violating it is a
// programmer error and panics rather than silently relaxing the
// compaction frontier (see DESIGN.md's Open Question decision).
//
// Only one cursor may be open on a trace at a time: CursorThrough panics
// if a previously returned cursor has not been Closed, enforced with an
// explicit busy flag since Go has no borrow checker to catch this at
// compile time.
func (t *Trace) CursorThrough(bound Time) *Cursor {
	t.mu.Lock()
	if t.busy {
		t.mu.Unlock()
		panic("trace: cursor_through called while another cursor on this trace is still open")
	}
	if bound < t.physical {
		t.mu.Unlock()
		panic(fmt.Sprintf("trace: cursor_through(%d) below physical compaction frontier %d", bound, t.physical))
	}
	batches := append([]*Batch(nil), t.batches...)
	t.busy = true
	t.mu.Unlock()

	groups := mergeGroups(batches, bound)
	return &Cursor{groups: groups, ki: -1, trace: t}
}

// Consolidate collapses (value, time, +d)/(value, time, -d) pairs by
// summation, dropping zero-sum entries. Entries are grouped by
// (Key, Val, Time) regardless of input order.
func Consolidate(entries []Entry) []Entry {
	type cell struct {
		key, val string
		time     Time
	}
	sums := make(map[cell]int64, len(entries))
	order := make([]cell, 0, len(entries))
	for _, e := range entries {
		c := cell{key: string(e.Key), val: string(e.Val), time: e.Time}
		if _, ok := sums[c]; !ok {
			order = append(order, c)
		}
		sums[c] += e.Diff
	}
	out := make([]Entry, 0, len(order))
	for _, c := range order {
		d := sums[c]
		if d == 0 {
			continue
		}
		out = append(out, Entry{Key: []byte(c.key), Val: []byte(c.val), Time: c.time, Diff: d})
	}
	return out
}
