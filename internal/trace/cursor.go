package trace

import "sort"

// timeDiff is one (time, diff) pair attached to a (key, val) group.
type timeDiff struct {
	Time Time
	Diff int64
}

type valGroup struct {
	Val   []byte
	Times []timeDiff
}

type keyGroup struct {
	Key  []byte
	Vals []valGroup
}

// mergeGroups merges every batch's entries with Time < bound into a
// single key/val-grouped, key-sorted index. This is the "point-in-time
// cursor" materialization: a real merge-tree trace would merge batches
// lazily during iteration, but a reference spine can afford to build the
// index eagerly (see DESIGN.md).
func mergeGroups(batches []*Batch, bound Time) []keyGroup {
	type kv struct{ key, val string }
	index := map[kv]*valGroup{}
	keyOrder := map[string]*keyGroup{}
	var keys []string

	for _, b := range batches {
		for _, e := range b.entries {
			if e.Time >= bound {
				continue
			}
			k := string(e.Key)
			v := string(e.Val)
			kg, ok := keyOrder[k]
			if !ok {
				kg = &keyGroup{Key: e.Key}
				keyOrder[k] = kg
				keys = append(keys, k)
			}
			vg, ok := index[kv{k, v}]
			if !ok {
				kg.Vals = append(kg.Vals, valGroup{Val: e.Val})
				vg = &kg.Vals[len(kg.Vals)-1]
				index[kv{k, v}] = vg
			}
			vg.Times = append(vg.Times, timeDiff{Time: e.Time, Diff: e.Diff})
		}
	}

	sort.Strings(keys)
	groups := make([]keyGroup, 0, len(keys))
	for _, k := range keys {
		kg := keyOrder[k]
		sort.Slice(kg.Vals, func(i, j int) bool {
			return string(kg.Vals[i].Val) < string(kg.Vals[j].Val)
		})
		groups = append(groups, *kg)
	}
	return groups
}

// Cursor is a resumable iterator over the keys, values, and per-time
// diffs of a point-in-time trace snapshot (spec GLOSSARY: Cursor). Its
// key/value walk is positional (Seek/StepKey/StepVal) so the join core
// can drive two cursors in lockstep without re-reading from the start.
type Cursor struct {
	groups []keyGroup
	ki, vi int
	trace  *Trace // non-nil: owning trace to release on Close
}

// Close releases the cursor's exclusive hold on its owning trace, if
// any, allowing a subsequent CursorThrough to succeed.
func (c *Cursor) Close() {
	if c.trace == nil {
		return
	}
	c.trace.mu.Lock()
	c.trace.busy = false
	c.trace.mu.Unlock()
	c.trace = nil
}

// KeyValid reports whether the cursor is positioned on a key.
func (c *Cursor) KeyValid() bool { return c.ki >= 0 && c.ki < len(c.groups) }

// Key returns the current key. Precondition: KeyValid.
func (c *Cursor) Key() []byte { return c.groups[c.ki].Key }

// Rewind positions the cursor at the first key, if any.
func (c *Cursor) Rewind() {
	c.ki = 0
	c.vi = 0
}

// StepKey advances to the next key, resetting the value position.
func (c *Cursor) StepKey() {
	c.ki++
	c.vi = 0
}

// Seek advances the cursor to the first key >= key (binary search over
// the sorted key groups), matching the join core's Less/Greater/Equal
// lockstep advance.
func (c *Cursor) Seek(key []byte) {
	target := string(key)
	c.ki = sort.Search(len(c.groups), func(i int) bool {
		return string(c.groups[i].Key) >= target
	})
	c.vi = 0
}

// CompareKey compares the cursor's current key to key, in the style of
// the source's Ordering-returning key comparator: negative if the
// cursor's key sorts first, zero if equal, positive otherwise. Calling
// it without a valid key is a programmer error.
func (c *Cursor) CompareKey(key []byte) int {
	ck := string(c.Key())
	switch tk := string(key); {
	case ck < tk:
		return -1
	case ck > tk:
		return 1
	default:
		return 0
	}
}

// ValValid reports whether the cursor is positioned on a value within
// the current key.
func (c *Cursor) ValValid() bool {
	return c.KeyValid() && c.vi >= 0 && c.vi < len(c.groups[c.ki].Vals)
}

// Val returns the current value. Precondition: ValValid.
func (c *Cursor) Val() []byte { return c.groups[c.ki].Vals[c.vi].Val }

// StepVal advances to the next value under the current key.
func (c *Cursor) StepVal() { c.vi++ }

// RewindVal resets the value position to the first value of the current
// key, without re-seeking the key itself. Used by the join core to
// replay the opposite side's values once per own-side value.
func (c *Cursor) RewindVal() { c.vi = 0 }

// MapTimes invokes f once per (time, diff) recorded for the cursor's
// current (key, val) pair.
func (c *Cursor) MapTimes(f func(t Time, diff int64)) {
	for _, td := range c.groups[c.ki].Vals[c.vi].Times {
		f(td.Time, td.Diff)
	}
}
