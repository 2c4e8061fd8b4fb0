package upsert

// noopBackend is a benchmarking-only backend: it never actually
// remembers anything, so every ingested value is reported as its own
// predecessor, forcing one retraction and one addition per input
// regardless of whether the value actually changed.
type noopBackend struct{}

func newNoopBackend() *noopBackend { return &noopBackend{} }

func (b *noopBackend) Ingest(batches [][]KV) ([]Result, error) {
	var out []Result
	for _, batch := range batches {
		for _, kv := range batch {
			out = append(out, Result{Key: kv.Key, Value: kv.Value, Prev: kv.Value, HasPrev: true})
		}
	}
	return out, nil
}

func (b *noopBackend) Close() error { return nil }
