// Package upsert implements the pluggable state-store contract the
// upsert operator drives: for every (key, value) pair it ingests, a
// backend reports the value that key held immediately before, so the
// operator can emit a retract-then-add pair.
package upsert

import (
	"fmt"

	"github.com/pkg/errors"
)

// KV is one input record to a backend's Ingest call.
type KV struct {
	Key, Value []byte
}

// Result is the per-key outcome of an Ingest call: the value now stored
// for Key, and the value stored immediately before (if any).
type Result struct {
	Key, Value []byte
	Prev       []byte
	HasPrev    bool
}

// Backend is the state store an upsert operator drives. Ingest must
// return exactly one Result per input KV across all of batches, though it
// may reorder them; an error aborts the whole call.
type Backend interface {
	// Ingest applies every KV across every batch and reports, for each,
	// the value the key held immediately before this call.
	Ingest(batches [][]KV) ([]Result, error)
	// Close releases any resources the backend holds open.
	Close() error
}

// Kind names a concrete Backend implementation, as selected by
// internal/config.
type Kind string

const (
	KindNoop    Kind = "noop"
	KindHashMap Kind = "hashmap"
	KindBTree   Kind = "btree"
	KindLSM     Kind = "lsm"
)

// NewBackend constructs the Backend named by kind. dir and disableWAL are
// only consulted for KindLSM, where dir names the on-disk data directory
// and disableWAL trades durability for throughput.
func NewBackend(kind Kind, dir string, disableWAL bool) (Backend, error) {
	switch kind {
	case KindNoop:
		return newNoopBackend(), nil
	case KindHashMap:
		return newHashMapBackend(), nil
	case KindBTree:
		return newBTreeBackend(), nil
	case KindLSM:
		return newLSMBackend(dir, disableWAL)
	default:
		return nil, errors.WithStack(fmt.Errorf("upsert: unknown backend kind %q", kind))
	}
}
