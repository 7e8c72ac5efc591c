package index

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testDims = 64

// writeFile creates dir/name with the given lines.
func writeFile(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

// contractCorpusDir writes a three-document corpus with one query per
// document and BEIR qrels.
func contractCorpusDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, CorpusFile,
		`{"_id":"D1","title":"","text":"governed by the laws of New York","metadata":{"type":"msa","jurisdiction":"NY"}}`,
		`{"_id":"D2","title":"","text":"neither party shall be liable","metadata":{"type":"nda","jurisdiction":"DE"}}`,
		`{"_id":"D3","title":"","text":"automatic renewal unless terminated"}`,
	)
	writeFile(t, dir, QueriesFile,
		`{"_id":"q1","text":"governed by the laws of New York"}`,
		`{"_id":"q2","text":"neither party shall be liable"}`,
	)
	writeFile(t, dir, filepath.Join(QrelsDir, "test.tsv"),
		"query-id\tcorpus-id\tscore",
		"q1\tD1\t1",
		"q2\tD2\t1",
	)
	return dir
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
