package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// isolate points config, logs and the working directory at a temp dir and
// clears environment overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	for _, name := range []string{
		"INDEX_DIR", "ACORD_DIR", "MODEL_NAME",
		"AMANRAG_INDEX_DIR", "AMANRAG_CORPUS_DIR", "AMANRAG_EMBEDDINGS_PROVIDER",
		"AMANRAG_STATE_BACKEND", "AMANRAG_TRANSPORT",
	} {
		t.Setenv(name, "")
	}
	t.Chdir(dir)
	return dir
}

// writeCorpus writes the three-clause contract corpus with one judged query.
func writeCorpus(t *testing.T, dir string) string {
	t.Helper()
	corpus := filepath.Join(dir, "acord")
	require.NoError(t, os.MkdirAll(filepath.Join(corpus, "qrels"), 0o755))
	files := map[string]string{
		"corpus.jsonl": `{"_id":"D1","title":"","text":"governed by the laws of New York"}
{"_id":"D2","title":"","text":"neither party shall be liable"}
{"_id":"D3","title":"","text":"automatic renewal unless terminated"}
`,
		"queries.jsonl":   `{"_id":"q1","text":"governing law New York"}` + "\n",
		"qrels/test.tsv": "query-id\tcorpus-id\tscore\nq1\tD1\t1\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(corpus, name), []byte(content), 0o644))
	}
	return corpus
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// buildIndex indexes the contract corpus into dir/indices.
func buildIndex(t *testing.T, dir string) string {
	t.Helper()
	corpus := writeCorpus(t, dir)
	idx := filepath.Join(dir, "indices")
	_, err := run(t, "index", "--plain", "--corpus-dir", corpus, "--index-dir", idx)
	require.NoError(t, err)
	return idx
}
