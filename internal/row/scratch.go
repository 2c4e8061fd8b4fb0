package row

import "sync/atomic"

// SharedRow is an amortized scratch Row: one worker goroutine owns a
// SharedRow and reuses its backing array across encodes instead of
// allocating per use. It is purely an optimization, not a correctness
// element; callers are free to allocate a fresh Row instead.
//
// Borrowing is non-reentrant: a second Borrow before the first is
// Released panics loudly. Each worker constructs its own SharedRow under
// the engine's cooperative single-threaded-per-worker model, so there is
// no cross-goroutine contention to arbitrate, only the reentrancy bug
// this guard exists to catch.
type SharedRow struct {
	row      Row
	borrowed atomic.Bool
}

// NewSharedRow returns an empty SharedRow.
func NewSharedRow() *SharedRow { return &SharedRow{} }

// ScratchRow is a borrowed, reset Row. Call Release when done.
type ScratchRow struct {
	owner *SharedRow
}

// Row returns the underlying Row for encoding.
func (s *ScratchRow) Row() *Row { return &s.owner.row }

// Release clears the borrow so a subsequent Borrow succeeds. Using the
// ScratchRow afterward, or calling Release twice, is a programmer error.
func (s *ScratchRow) Release() {
	if !s.owner.borrowed.CompareAndSwap(true, false) {
		panic("row: SharedRow released without a matching borrow")
	}
}

// Borrow checks out the reset scratch Row. A re-entrant borrow, calling
// Borrow again before the first ScratchRow is Released, panics.
func (s *SharedRow) Borrow() *ScratchRow {
	if !s.borrowed.CompareAndSwap(false, true) {
		panic("row: re-entrant SharedRow borrow")
	}
	s.row.Reset()
	return &ScratchRow{owner: s}
}
