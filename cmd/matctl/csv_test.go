package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadKVSkipsBlankAndCommentLines(t *testing.T) {
	path := writeTemp(t, "left.csv", "# comment\na,1\n\nb,2\n")
	rows, err := readKV(path)
	require.NoError(t, err)
	require.Equal(t, []kvRow{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}, rows)
}

func TestReadKVRejectsMalformedLine(t *testing.T) {
	path := writeTemp(t, "bad.csv", "onlykey\n")
	_, err := readKV(path)
	require.Error(t, err)
}

func TestReadTKVParsesTimeField(t *testing.T) {
	path := writeTemp(t, "recs.csv", "0,k1,v1\n1,k1,v2\n")
	rows, err := readTKV(path)
	require.NoError(t, err)
	require.Equal(t, []tkvRow{{Time: 0, Key: "k1", Value: "v1"}, {Time: 1, Key: "k1", Value: "v2"}}, rows)
}

func TestRowFormatRoundTrip(t *testing.T) {
	row := rowFormat("key", "val")
	require.Equal(t, []byte("key"), keyOfRow(row))
	require.Equal(t, []byte("val"), valOfRow(row))
}
