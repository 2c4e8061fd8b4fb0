// Package join implements a linear binary join operator: a nested-loop
// join between two arrangements that yields cooperatively at value-pair
// granularity instead of blocking the worker thread until a whole
// activation's work is done.
package join

import (
	"math"

	"github.com/teskje/materialize/internal/trace"
)

// ClosedFrontier is the sentinel Time value standing for the empty
// antichain: an input whose frontier has reached it will never produce
// another batch. Activate uses it to decide whether to drop the opposite
// trace handle outright instead of merely lowering its compaction
// frontiers.
const ClosedFrontier trace.Time = math.MaxInt64

// Logic computes the output row for one matched (key, v1, v2) triple,
// where v1 comes from side 1 and v2 from side 2. Returning a nil out with
// a nil err means the pair produces no output (e.g. an expression that
// evaluates to false).
type Logic func(key, v1, v2 []byte) (out []byte, err error)

// ErrorRow pairs an error produced by Logic with the key that triggered
// it, for routing onto the parallel error sub-stream.
type ErrorRow struct {
	Key []byte
	Err error
}

// deferredItem is one unit of queued cross-product work: one newly
// readable batch (or pre-existing trace contents, at startup) on the
// "own" side, crossed against the opposite side's trace up through
// oppBound (that side's acknowledged frontier when the item was queued);
// cap is folded into every output time. It carries enough state to
// resume mid-key, mid-value across multiple Work calls.
type deferredItem struct {
	own        *trace.Cursor // batch-level cursor; no busy flag to release
	oppTrace   *trace.Trace  // opened lazily into opp on the first Work call
	oppBound   trace.Time
	opp        *trace.Cursor // trace-level cursor; Close releases opp's busy flag
	cap        trace.Time
	ownIsSide1 bool

	started    bool // own/opp cursors have been opened and Rewound
	oppSought  bool // opp has been Seek()'d to the current own key
	oppMatched bool // the seek found a matching key
}

// newDeferredItem constructs an item whose opposite-side trace cursor is
// opened lazily on first Work call rather than at enqueue time: two items
// queued in the same activation must never hold simultaneous open cursors
// into the same trace (trace.CursorThrough's single-outstanding-cursor
// discipline), and items can sit in a FIFO queue for arbitrarily many
// activations before they are worked.
func newDeferredItem(own *trace.Cursor, oppTrace *trace.Trace, oppBound, capTime trace.Time, ownIsSide1 bool) *deferredItem {
	return &deferredItem{own: own, oppTrace: oppTrace, oppBound: oppBound, cap: capTime, ownIsSide1: ownIsSide1}
}

// pairOrder arranges (ownVal, oppVal) into (v1, v2) Logic argument order.
func pairOrder(ownIsSide1 bool, ownVal, oppVal []byte) (v1, v2 []byte) {
	if ownIsSide1 {
		return ownVal, oppVal
	}
	return oppVal, ownVal
}

// joinTime returns the least time at or after both a and b. Work applies
// it twice to fold both input times and the item's capability into a
// matched pair's output time.
func joinTime(a, b trace.Time) trace.Time {
	if a > b {
		return a
	}
	return b
}

// Work advances the item's nested loop, appending produced entries to
// out and invoking logic once per matched value pair. It returns the
// (possibly grown) out slice and whether the item fully drained. yield is
// consulted once per value pair (the same granularity as a unit of
// "work"); when it reports true, Work stops and returns done=false,
// leaving the cursor state positioned for exact resumption.
func (it *deferredItem) Work(logic Logic, yield func() bool, out []trace.Entry) ([]trace.Entry, []ErrorRow, bool) {
	var errs []ErrorRow

	if !it.started {
		it.own.Rewind()
		it.opp = it.oppTrace.CursorThrough(it.oppBound)
		it.started = true
	}

	for it.own.KeyValid() {
		key := it.own.Key()

		if !it.oppSought {
			it.opp.Seek(key)
			it.oppMatched = it.opp.KeyValid() && it.opp.CompareKey(key) == 0
			if it.oppMatched {
				it.opp.RewindVal()
			}
			it.oppSought = true
		}

		if !it.oppMatched {
			it.own.StepKey()
			it.oppSought = false
			continue
		}

		for it.own.ValValid() {
			ownVal := it.own.Val()

			for it.opp.ValValid() {
				oppVal := it.opp.Val()
				v1, v2 := pairOrder(it.ownIsSide1, ownVal, oppVal)

				outRow, err := logic(key, v1, v2)
				if err != nil {
					errs = append(errs, ErrorRow{Key: append([]byte(nil), key...), Err: err})
				} else if outRow != nil {
					it.own.MapTimes(func(ownTime trace.Time, ownDiff int64) {
						it.opp.MapTimes(func(oppTime trace.Time, oppDiff int64) {
							t := joinTime(joinTime(ownTime, it.cap), oppTime)
							out = append(out, trace.Entry{
								Key:  append([]byte(nil), key...),
								Val:  outRow,
								Time: t,
								Diff: ownDiff * oppDiff,
							})
						})
					})
				}

				it.opp.StepVal()
				if yield() {
					return out, errs, false
				}
			}

			it.opp.RewindVal()
			it.own.StepVal()
		}

		it.own.StepKey()
		it.oppSought = false
	}

	it.opp.Close()
	return out, errs, true
}
