package join

import (
	"github.com/teskje/materialize/internal/shutdown"
	"github.com/teskje/materialize/internal/trace"
)

// Join is a binary linear join operator over two arrangements. It is not
// safe for concurrent use: like every stateful operator in this module it
// is driven by a single cooperative worker goroutine.
type Join struct {
	trace1, trace2 *trace.Trace // nil once the opposite input has closed
	ack1, ack2     trace.Time   // acknowledged frontier: input read up to here
	todo1, todo2   []*deferredItem
	logic          Logic
	token          shutdown.Token
}

// NewJoin constructs a join over trace1 and trace2. It first sets ack1 to
// trace1's current read-upper, then enumerates trace2's pre-existing
// batches into deferred work, each crossed against trace1 up through
// ack1, the way a newly attached operator must catch up on history
// already present in its inputs.
func NewJoin(trace1, trace2 *trace.Trace, logic Logic, token shutdown.Token) *Join {
	j := &Join{trace1: trace1, trace2: trace2, logic: logic, token: token}

	j.ack1 = trace1.Upper()
	if trace1.PhysicalCompaction() > j.ack1 {
		panic("join: trace1 physical compaction frontier exceeds its own upper at attach time")
	}
	j.ack2 = trace2.Upper()
	if trace2.PhysicalCompaction() > j.ack2 {
		panic("join: trace2 physical compaction frontier exceeds its own upper at attach time")
	}

	// Only side 2's pre-existing batches become deferred work here, each
	// crossed against side 1's trace up through ack_1. Side 1's
	// pre-existing content must NOT also be enumerated against side 2:
	// that would cross the same facts against each other twice.
	for _, b := range trace2.Batches() {
		if b.IsEmpty() {
			continue
		}
		j.todo2 = append(j.todo2, newDeferredItem(b.Cursor(), trace1, j.ack1, trace.MinTime, false))
	}

	return j
}

// Activate delivers newly readable batches on both sides, drives queued
// work to completion or the next yield point, and performs compaction
// maintenance. inputFrontier1/2 are the current frontiers of the streams
// feeding trace1/trace2 respectively. Activate returns the join's output
// for this activation plus any Logic errors, and reports whether all
// currently queued work fully drained (false means at least one item
// stopped at a yield point and remains queued for the next Activate).
func (j *Join) Activate(
	newBatches1, newBatches2 []*trace.Batch,
	inputFrontier1, inputFrontier2 trace.Time,
	yield func(workDone int) bool,
) ([]trace.Entry, []ErrorRow, bool) {
	if j.token.Cancelled() {
		return nil, nil, true
	}

	for _, b := range newBatches1 {
		if b.Lower < j.ack1 {
			continue
		}
		if !b.IsEmpty() && j.trace2 != nil {
			j.todo1 = append(j.todo1, newDeferredItem(b.Cursor(), j.trace2, j.ack2, j.ack1, true))
		}
		j.ack1 = b.Upper
	}
	for _, b := range newBatches2 {
		if b.Lower < j.ack2 {
			continue
		}
		if !b.IsEmpty() && j.trace1 != nil {
			j.todo2 = append(j.todo2, newDeferredItem(b.Cursor(), j.trace1, j.ack1, j.ack2, false))
		}
		j.ack2 = b.Upper
	}

	if j.trace1 != nil {
		j.trace1.AdvanceUpper(&j.ack1)
	}
	if j.trace2 != nil {
		j.trace2.AdvanceUpper(&j.ack2)
	}

	var out []trace.Entry
	var errs []ErrorRow
	drained := true
	workDone := 0

	yieldPred := func() bool {
		workDone++
		return yield(workDone)
	}

	for len(j.todo1) > 0 {
		item := j.todo1[0]
		o, e, done := item.Work(j.logic, yieldPred, nil)
		out = append(out, o...)
		errs = append(errs, e...)
		if !done {
			drained = false
			break
		}
		j.todo1 = j.todo1[1:]
	}
	if drained {
		for len(j.todo2) > 0 {
			item := j.todo2[0]
			o, e, done := item.Work(j.logic, yieldPred, nil)
			out = append(out, o...)
			errs = append(errs, e...)
			if !done {
				drained = false
				break
			}
			j.todo2 = j.todo2[1:]
		}
	}

	if inputFrontier2 == ClosedFrontier {
		j.trace1 = nil
	} else if j.trace1 != nil {
		j.trace1.SetLogicalCompaction(inputFrontier2)
		j.trace1.SetPhysicalCompaction(minTime(j.ack1, inputFrontier2))
	}
	if inputFrontier1 == ClosedFrontier {
		j.trace2 = nil
	} else if j.trace2 != nil {
		j.trace2.SetLogicalCompaction(inputFrontier1)
		j.trace2.SetPhysicalCompaction(minTime(j.ack2, inputFrontier1))
	}

	return trace.Consolidate(out), errs, drained
}

// Frontier reports the join's probe frontier: the earliest time either
// input might still deliver a batch at or after. Exposed for dataflow
// progress reporting.
func (j *Join) Frontier() trace.Time {
	return minTime(j.ack1, j.ack2)
}

// minTime bounds own side's physical compaction by the opposite side's
// frontier: physical compaction can never exceed the logical compaction
// frontier it was just set to, even if this side's own read position has
// advanced further (trace.Trace.SetPhysicalCompaction enforces that).
func minTime(a, b trace.Time) trace.Time {
	if a < b {
		return a
	}
	return b
}
