// Package upserttest provides a shared compliance suite for
// upsert.Backend implementations, exercising every driver against one
// contract instead of duplicating the same assertions per backend.
package upserttest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teskje/materialize/internal/upsert"
)

// Run exercises the general Backend contract against a fresh backend
// from makeBackend. It is not suitable for upsert.KindNoop, whose
// contract is deliberately degenerate (see TestNoopAlwaysRetracts in
// backend_test.go); do not pass noop's constructor here.
func Run(t *testing.T, makeBackend func(t *testing.T) upsert.Backend) {
	t.Helper()

	t.Run("first write has no predecessor", func(t *testing.T) {
		b := makeBackend(t)
		defer b.Close()

		results, err := b.Ingest([][]upsert.KV{{{Key: []byte("k"), Value: []byte("v1")}}})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.False(t, results[0].HasPrev)
		require.Equal(t, []byte("v1"), results[0].Value)
	})

	t.Run("second write reports the first as predecessor", func(t *testing.T) {
		b := makeBackend(t)
		defer b.Close()

		_, err := b.Ingest([][]upsert.KV{{{Key: []byte("k"), Value: []byte("v1")}}})
		require.NoError(t, err)

		results, err := b.Ingest([][]upsert.KV{{{Key: []byte("k"), Value: []byte("v2")}}})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.True(t, results[0].HasPrev)
		require.Equal(t, []byte("v1"), results[0].Prev)
		require.Equal(t, []byte("v2"), results[0].Value)
	})

	t.Run("distinct keys do not interfere", func(t *testing.T) {
		b := makeBackend(t)
		defer b.Close()

		results, err := b.Ingest([][]upsert.KV{{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("b"), Value: []byte("2")},
		}})
		require.NoError(t, err)
		require.Len(t, results, 2)
		byKey := map[string]upsert.Result{}
		for _, r := range results {
			byKey[string(r.Key)] = r
		}
		require.False(t, byKey["a"].HasPrev)
		require.False(t, byKey["b"].HasPrev)
	})

	t.Run("one result per input across multiple batches in one call", func(t *testing.T) {
		b := makeBackend(t)
		defer b.Close()

		results, err := b.Ingest([][]upsert.KV{
			{{Key: []byte("a"), Value: []byte("1")}},
			{{Key: []byte("b"), Value: []byte("2")}},
			{{Key: []byte("a"), Value: []byte("1b")}},
		})
		require.NoError(t, err)
		require.Len(t, results, 3)
	})
}
