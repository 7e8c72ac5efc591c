package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/pkg/version"
)

func TestRootCmd_RegistersCommands(t *testing.T) {
	root := NewRootCmd()
	for _, path := range [][]string{
		{"search"}, {"stats"}, {"index"}, {"serve"}, {"version"},
		{"queries", "list"}, {"queries", "save"}, {"queries", "delete"},
		{"watchlists", "list"}, {"watchlists", "save"}, {"watchlists", "delete"},
		{"config", "init"}, {"config", "show"}, {"config", "path"},
	} {
		found, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}

func TestIndexCmd_BuildsArtifactsAndScores(t *testing.T) {
	// Given: a corpus with one judged query
	dir := isolate(t)

	// When: indexing it
	idx := buildIndex(t, dir)

	// Then: every artifact is written and the query scores perfectly
	for _, name := range []string{"lexical.gob", "meta.json", "last_results.json"} {
		assert.FileExists(t, filepath.Join(idx, name))
	}
	raw, err := os.ReadFile(filepath.Join(idx, "last_results.json"))
	require.NoError(t, err)
	var results struct {
		Metrics map[string]float64 `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(raw, &results))
	assert.InDelta(t, 1.0, results.Metrics["MRR@10"], 1e-9)
}

func TestIndexCmd_MissingCorpusIsSkipped(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, "index", "--plain", "--corpus-dir", filepath.Join(dir, "nope"), "--index-dir", filepath.Join(dir, "indices"))

	require.NoError(t, err)
	assert.Contains(t, out, "Nothing indexed")
	assert.NoFileExists(t, filepath.Join(dir, "indices", "meta.json"))
}

func TestSearchCmd_LexicalOnlyJSON(t *testing.T) {
	// Given: a built index
	dir := isolate(t)
	idx := buildIndex(t, dir)

	// When: searching lexical-only for one result
	out, err := run(t, "search", "--index-dir", idx, "--json", "-k", "1",
		"--bm25-weight", "1", "--faiss-weight", "0", "governing", "law", "New", "York")
	require.NoError(t, err)

	// Then: D1 is the only hit
	var body struct {
		Results []struct {
			DocID  string `json:"doc_id"`
			Source string `json:"source"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "D1", body.Results[0].DocID)
	assert.Equal(t, "acord", body.Results[0].Source)
}

func TestSearchCmd_TextOutput(t *testing.T) {
	dir := isolate(t)
	idx := buildIndex(t, dir)

	out, err := run(t, "search", "--index-dir", idx, "automatic renewal")

	require.NoError(t, err)
	assert.Contains(t, out, " 1. D3")
}

func TestSearchCmd_WithoutIndexReturnsNothing(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, "search", "--index-dir", filepath.Join(dir, "empty"), "--json", "indemnity")

	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[]}`, out)
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	isolate(t)
	_, err := run(t, "search")
	assert.Error(t, err)
}

func TestSearchCmd_NegativeWeightRejected(t *testing.T) {
	dir := isolate(t)

	_, err := run(t, "search", "--index-dir", filepath.Join(dir, "indices"), "--bm25-weight", "-1", "x")

	assert.Error(t, err)
}

func TestStatsCmd_JSON(t *testing.T) {
	dir := isolate(t)
	idx := buildIndex(t, dir)

	out, err := run(t, "stats", "--index-dir", idx, "--json")
	require.NoError(t, err)

	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 3.0, st["bm25_docs"])
	assert.Equal(t, 3.0, st["faiss_docs"])
	assert.NotNil(t, st["last_build"])
}

func TestQueriesCmd_Lifecycle(t *testing.T) {
	for _, backend := range []string{"json", "sqlite", "badger"} {
		t.Run(backend, func(t *testing.T) {
			dir := isolate(t)
			idx := filepath.Join(dir, "indices")
			flags := []string{"--index-dir", idx, "--state-backend", backend}

			// When: saving then listing a query
			_, err := run(t, append([]string{"queries", "save", "ny", `{"query":"New York"}`}, flags...)...)
			require.NoError(t, err)
			out, err := run(t, append([]string{"queries", "list", "--json"}, flags...)...)
			require.NoError(t, err)

			// Then: it reads back across processes
			assert.JSONEq(t, `{"saved_queries":{"ny":{"query":"New York"}}}`, out)

			// When: deleting it and a missing name
			_, err = run(t, append([]string{"queries", "delete", "ny"}, flags...)...)
			require.NoError(t, err)
			_, err = run(t, append([]string{"queries", "delete", "missing"}, flags...)...)
			require.NoError(t, err)

			out, err = run(t, append([]string{"queries", "list", "--json"}, flags...)...)
			require.NoError(t, err)
			assert.JSONEq(t, `{"saved_queries":{}}`, out)
		})
	}
}

func TestQueriesCmd_RejectsNonObjectPayload(t *testing.T) {
	dir := isolate(t)

	_, err := run(t, "queries", "save", "q", "[1,2]", "--index-dir", filepath.Join(dir, "indices"))

	assert.Error(t, err)
}

func TestWatchlistsCmd_Dedupes(t *testing.T) {
	dir := isolate(t)
	idx := filepath.Join(dir, "indices")

	out, err := run(t, "watchlists", "save", "w", "A", "B", "A", "C", "--index-dir", idx)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved watchlist w (4 ids)")

	out, err = run(t, "watchlists", "list", "--json", "--index-dir", idx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"watchlists":{"w":["A","B","C"]}}`, out)

	out, err = run(t, "watchlists", "list", "--index-dir", idx)
	require.NoError(t, err)
	assert.Contains(t, out, "w (3) A, B, C")
}

func TestServeCmd_RejectsUnknownTransport(t *testing.T) {
	isolate(t)
	_, err := run(t, "serve", "--transport", "grpc")
	assert.Error(t, err)
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))

	out, err = run(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info["version"])
	assert.Contains(t, info, "go_version")

	out, err = run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "amanrag")
}

func TestRootCmd_ProfilesAroundCommand(t *testing.T) {
	dir := isolate(t)
	cpu := filepath.Join(dir, "cpu.prof")
	heap := filepath.Join(dir, "heap.prof")

	_, err := run(t, "version", "--short", "--profile-cpu", cpu, "--profile-mem", heap)

	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, heap)
}

func TestConfigCmd_InitThenShow(t *testing.T) {
	// Given: a fresh working directory
	dir := isolate(t)

	// When: writing the project config and overriding one key
	_, err := run(t, "config", "init")
	require.NoError(t, err)
	path := filepath.Join(dir, ".amanrag.yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), "backend: json", "backend: sqlite", 1)), 0o644))

	// Then: show reports the merged value
	out, err := run(t, "config", "show", "--json")
	require.NoError(t, err)
	var got struct {
		State struct {
			Backend string `json:"backend"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "sqlite", got.State.Backend)
}

func TestConfigCmd_InitKeepsExisting(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, ".amanrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	_, err := run(t, "config", "init")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}
