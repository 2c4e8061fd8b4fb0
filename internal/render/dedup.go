package render

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"

	"github.com/teskje/materialize/internal/join"
)

// errDedup collapses an error collection to distinct rows. renderLetRec
// applies a fresh errDedup to each round's fully re-rendered error
// collection, so an idempotent error re-derived through the binding's own
// Get stays a single row instead of growing every round. A roaring
// bitmap of the low 32 bits of each row's xxhash is a compact pre-filter;
// a collision only ever causes a false "might have seen this" that the
// exact map resolves, so the filter never forgets a real duplicate.
type errDedup struct {
	seenHashes *roaring.Bitmap
	seenExact  map[uint64]struct{}
}

func newErrDedup() *errDedup {
	return &errDedup{seenHashes: roaring.New(), seenExact: map[uint64]struct{}{}}
}

func errRowHash(e join.ErrorRow) uint64 {
	h := xxhash.New()
	h.Write(e.Key)
	h.WriteString(e.Err.Error())
	return h.Sum64()
}

// Filter returns only the rows in errs not already seen by a prior call,
// and records them as seen.
func (d *errDedup) Filter(errs []join.ErrorRow) []join.ErrorRow {
	var fresh []join.ErrorRow
	for _, e := range errs {
		h := errRowHash(e)
		low := uint32(h)
		if d.seenHashes.Contains(low) {
			if _, ok := d.seenExact[h]; ok {
				continue
			}
		}
		d.seenHashes.Add(low)
		d.seenExact[h] = struct{}{}
		fresh = append(fresh, e)
	}
	return fresh
}
