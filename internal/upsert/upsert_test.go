package upsert

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teskje/materialize/internal/shutdown"
	"github.com/teskje/materialize/internal/trace"
)

func TestUpsertEmitsRetraction(t *testing.T) {
	for _, mode := range []Mode{ModeStreaming, ModePreReduce} {
		u := NewUpserter(newHashMapBackend(), mode, shutdown.New())

		out1, err := u.Ingest([]Record{{Key: []byte("K"), Value: []byte("V1"), Time: 1}})
		require.NoError(t, err)
		require.Equal(t, []trace.Entry{
			{Key: []byte("K"), Val: []byte("V1"), Time: 1, Diff: 1},
		}, out1)

		out2, err := u.Ingest([]Record{{Key: []byte("K"), Value: []byte("V2"), Time: 2}})
		require.NoError(t, err)
		require.Equal(t, []trace.Entry{
			{Key: []byte("K"), Val: []byte("V1"), Time: 2, Diff: -1},
			{Key: []byte("K"), Val: []byte("V2"), Time: 2, Diff: 1},
		}, out2)
	}
}

func TestUpsertPreReduceLastWriterWinsBySeq(t *testing.T) {
	u := NewUpserter(newHashMapBackend(), ModePreReduce, shutdown.New())

	seq1, seq2 := uint64(5), uint64(1)
	out, err := u.Ingest([]Record{
		{Key: []byte("K"), Value: []byte("winner"), Time: 1, Seq: &seq1},
		{Key: []byte("K"), Value: []byte("late-arrival-lower-seq"), Time: 1, Seq: &seq2},
	})
	require.NoError(t, err)
	require.Equal(t, []trace.Entry{
		{Key: []byte("K"), Val: []byte("winner"), Time: 1, Diff: 1},
	}, out, "higher sequence number wins regardless of slice order")
}

func TestUpsertStoppedByShutdown(t *testing.T) {
	token := shutdown.New()
	u := NewUpserter(newHashMapBackend(), ModeStreaming, token)
	token.Cancel()

	out, err := u.Ingest([]Record{{Key: []byte("K"), Value: []byte("V"), Time: 1}})
	require.NoError(t, err)
	require.Nil(t, out)
}
