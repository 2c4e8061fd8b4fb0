package upsert

import (
	"github.com/dgraph-io/badger/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// lsmBackend is the on-disk backend: a dedicated goroutine owns the
// *badger.DB handle and is reached via a bounded channel, performing one
// multi-get and one write-batch per Ingest call. A read-through LRU
// cache sits in front of the multi-get so a worker that recently wrote a
// key doesn't pay a disk read to learn its own prior value back.
type lsmBackend struct {
	db    *badger.DB
	cache *lru.Cache[string, []byte]
	reqCh chan lsmRequest
}

type lsmRequest struct {
	batches [][]KV
	reply   chan lsmResponse
}

type lsmResponse struct {
	results []Result
	err     error
}

func newLSMBackend(dir string, disableWAL bool) (*lsmBackend, error) {
	opts := badger.DefaultOptions(dir)
	if disableWAL {
		opts = opts.WithSyncWrites(false)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "upsert: open badger db")
	}
	cache, err := lru.New[string, []byte](4096)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "upsert: create read-through cache")
	}

	b := &lsmBackend{db: db, cache: cache, reqCh: make(chan lsmRequest)}
	go b.loop()
	return b, nil
}

func (b *lsmBackend) loop() {
	for req := range b.reqCh {
		results, err := b.ingestSync(req.batches)
		req.reply <- lsmResponse{results: results, err: err}
	}
}

// Ingest hands the batches to the dedicated I/O goroutine and blocks on
// its reply; this is the upsert operator's one channel-await suspension
// point.
func (b *lsmBackend) Ingest(batches [][]KV) ([]Result, error) {
	reply := make(chan lsmResponse, 1)
	b.reqCh <- lsmRequest{batches: batches, reply: reply}
	resp := <-reply
	return resp.results, resp.err
}

func (b *lsmBackend) ingestSync(batches [][]KV) ([]Result, error) {
	var flat []KV
	for _, batch := range batches {
		flat = append(flat, batch...)
	}

	prevs := make([][]byte, len(flat))
	hasPrev := make([]bool, len(flat))

	err := b.db.View(func(txn *badger.Txn) error {
		for i, kv := range flat {
			k := string(kv.Key)
			if cached, ok := b.cache.Get(k); ok {
				prevs[i], hasPrev[i] = cached, true
				continue
			}
			item, err := txn.Get(kv.Key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			decoded, err := snappy.Decode(nil, val)
			if err != nil {
				return err
			}
			prevs[i], hasPrev[i] = decoded, true
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "upsert: lsm multi-get")
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, kv := range flat {
		encoded := snappy.Encode(nil, kv.Value)
		if err := wb.Set(kv.Key, encoded); err != nil {
			return nil, errors.Wrap(err, "upsert: lsm write-batch set")
		}
	}
	if err := wb.Flush(); err != nil {
		return nil, errors.Wrap(err, "upsert: lsm write-batch flush")
	}

	out := make([]Result, len(flat))
	for i, kv := range flat {
		b.cache.Add(string(kv.Key), kv.Value)
		out[i] = Result{Key: kv.Key, Value: kv.Value, Prev: prevs[i], HasPrev: hasPrev[i]}
	}
	return out, nil
}

func (b *lsmBackend) Close() error {
	close(b.reqCh)
	return b.db.Close()
}
