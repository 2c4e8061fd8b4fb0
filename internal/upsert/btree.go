package upsert

import (
	"sync"

	"github.com/google/btree"
)

// btreeEntry is the ordered map's stored element, keyed by the raw key
// bytes as a string for comparison.
type btreeEntry struct {
	key   string
	value []byte
}

func btreeLess(a, b btreeEntry) bool { return a.key < b.key }

// btreeBackend is the ordered in-memory map backend: O(log n) per key,
// backed by a degree-32 B-tree.
type btreeBackend struct {
	mu   sync.Mutex
	tree *btree.BTreeG[btreeEntry]
}

func newBTreeBackend() *btreeBackend {
	return &btreeBackend{tree: btree.NewG(32, btreeLess)}
}

func (b *btreeBackend) Ingest(batches [][]KV) ([]Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Result
	for _, batch := range batches {
		for _, kv := range batch {
			entry := btreeEntry{key: string(kv.Key), value: kv.Value}
			old, hadOld := b.tree.ReplaceOrInsert(entry)
			res := Result{Key: kv.Key, Value: kv.Value}
			if hadOld {
				res.Prev = old.value
				res.HasPrev = true
			}
			out = append(out, res)
		}
	}
	return out, nil
}

func (b *btreeBackend) Close() error { return nil }
