package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/zhcorpus/internal/models"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  corpus_db_path: "./data/corpus.db"
  dictionary_db_path: "./data/dictionary.db"
  gloss_index_path: "./data/glosses"
metrics:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func writeJSONL(t *testing.T, dir, name string, docs ...models.DocumentInput) string {
	t.Helper()
	var buf bytes.Buffer
	for _, d := range docs {
		b, err := json.Marshal(d)
		require.NoError(t, err)
		buf.Write(b)
		buf.WriteByte('\n')
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func segments(n int, hitEvery int) []string {
	out := make([]string, n)
	for i := range out {
		if hitEvery > 0 && (i+1)%hitEvery == 0 {
			out[i] = fmt.Sprintf("第%d句说豆腐很好吃。", i+1)
		} else {
			out[i] = fmt.Sprintf("第%d句是普通的句子。", i+1)
		}
	}
	return out
}

func TestCLI_ImportSearchCountReport(t *testing.T) {
	cfgPath := writeTestConfig(t)
	dir := filepath.Dir(cfgPath)

	news := writeJSONL(t, dir, "news.jsonl",
		models.DocumentInput{ExternalID: "n1", Title: "新闻一", Segments: segments(10, 5)},
		models.DocumentInput{ExternalID: "n2", Title: "新闻二", Segments: segments(10, 0)},
	)
	wiki := writeJSONL(t, dir, "wiki.jsonl",
		models.DocumentInput{ExternalID: "w1", Title: "维基", Segments: segments(6, 3)},
	)

	out, err := run(t, "--config", cfgPath, "import", "news", news, "--description", "newswire")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Imported 2 documents (0 skipped), 20 segments into news")

	out, err = run(t, "--config", cfgPath, "import", "wiki", wiki)
	require.NoError(t, err, out)
	assert.Contains(t, out, "wiki")

	out, err = run(t, "--config", cfgPath, "-o", "json", "ranges")
	require.NoError(t, err, out)
	var snap models.RangeSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Len(t, snap.Ranges, 2)
	assert.Equal(t, int64(21), snap.Ranges[1].MinID)

	out, err = run(t, "--config", cfgPath, "-o", "json", "search", "豆腐", "-n", "4")
	require.NoError(t, err, out)
	var resp models.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Samples, 4)
	assert.Equal(t, 2, resp.Sources)
	assert.Equal(t, "news", resp.Samples[0].Source)
	assert.Equal(t, "wiki", resp.Samples[3].Source)

	out, err = run(t, "--config", cfgPath, "-o", "json", "count", "豆腐", "--per-source", "--cap", "2")
	require.NoError(t, err, out)
	var counts models.CountResponse
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	require.Len(t, counts.PerSource, 2)
	assert.Equal(t, models.Count{Count: 2, Exact: false}, counts.PerSource[0].Count)
	assert.Equal(t, models.Count{Count: 2, Exact: false}, counts.PerSource[1].Count)

	out, err = run(t, "--config", cfgPath, "report", "豆腐", "--mode", "brief")
	require.NoError(t, err, out)
	assert.Contains(t, out, "豆腐 (brief report)")
	assert.Contains(t, out, "total 4")

	_, err = run(t, "--config", cfgPath, "report", "豆腐", "--mode", "verbose")
	assert.Error(t, err)

	out, err = run(t, "--config", cfgPath, "reindex")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Indexed 26 segments")

	out, err = run(t, "--config", cfgPath, "stats")
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 sources, 3 documents, 26 segments")
}

func TestCLI_InitConfigAndVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zhcorpus.yaml")
	out, err := run(t, "init-config", path)
	require.NoError(t, err, out)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "default_sample_size")

	_, err = run(t, "init-config", path)
	assert.Error(t, err, "refuses to overwrite")

	out, err = run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "zhcorpus version dev\n", out)
}

func TestReadDocuments(t *testing.T) {
	docs, err := readDocuments(strings.NewReader(`{"external_id":"a","title":"A","segments":["一","二"]}

{"external_id":"b","title":"B","segments":["三"]}
`))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, []string{"一", "二"}, docs[0].Segments)

	_, err = readDocuments(strings.NewReader("{not json}\n"))
	assert.ErrorContains(t, err, "line 1")
}

func TestLoadConfig_ExplicitMissingPathFails(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
