package upsert

import "sync"

// hashMapBackend is the unordered in-memory map backend: amortized O(1)
// per key, no persistence. Go's builtin map is the idiomatic unordered
// map here; wrapping it in a third-party library would be the
// non-idiomatic choice (see DESIGN.md).
type hashMapBackend struct {
	mu    sync.Mutex
	state map[string][]byte
}

func newHashMapBackend() *hashMapBackend {
	return &hashMapBackend{state: make(map[string][]byte)}
}

func (b *hashMapBackend) Ingest(batches [][]KV) ([]Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Result
	for _, batch := range batches {
		for _, kv := range batch {
			prev, hasPrev := b.state[string(kv.Key)]
			b.state[string(kv.Key)] = kv.Value
			out = append(out, Result{Key: kv.Key, Value: kv.Value, Prev: prev, HasPrev: hasPrev})
		}
	}
	return out, nil
}

func (b *hashMapBackend) Close() error { return nil }
