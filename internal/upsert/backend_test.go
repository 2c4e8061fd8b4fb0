package upsert

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teskje/materialize/internal/upsert/upserttest"
)

func TestHashMapBackendCompliance(t *testing.T) {
	upserttest.Run(t, func(t *testing.T) Backend { return newHashMapBackend() })
}

func TestBTreeBackendCompliance(t *testing.T) {
	upserttest.Run(t, func(t *testing.T) Backend { return newBTreeBackend() })
}

func TestLSMBackendCompliance(t *testing.T) {
	upserttest.Run(t, func(t *testing.T) Backend {
		b, err := newLSMBackend(t.TempDir(), true)
		require.NoError(t, err)
		return b
	})
}

func TestNoopAlwaysRetracts(t *testing.T) {
	b := newNoopBackend()
	defer b.Close()

	results, err := b.Ingest([][]KV{{{Key: []byte("k"), Value: []byte("v")}}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].HasPrev)
	require.Equal(t, []byte("v"), results[0].Prev, "noop always reports the new value as its own predecessor")
}

func TestNewBackendUnknownKind(t *testing.T) {
	_, err := NewBackend(Kind("bogus"), "", false)
	require.Error(t, err)
}
