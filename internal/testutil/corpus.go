// Package testutil builds small on-disk corpora and dictionaries for tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hyperjump/zhcorpus/internal/corpus"
	"github.com/hyperjump/zhcorpus/internal/models"
)

// Source is a corpus source fixture. Texts become consecutive segments, grouped
// into documents of PerDoc segments (all in one document when PerDoc is 0).
type Source struct {
	Name   string
	Texts  []string
	PerDoc int
}

// Docs splits texts into documents of perDoc segments each.
func Docs(prefix string, texts []string, perDoc int) []models.DocumentInput {
	if perDoc <= 0 {
		perDoc = len(texts)
	}
	var docs []models.DocumentInput
	for start, n := 0, 0; start < len(texts); start, n = start+perDoc, n+1 {
		end := start + perDoc
		if end > len(texts) {
			end = len(texts)
		}
		docs = append(docs, models.DocumentInput{
			ExternalID: fmt.Sprintf("%s-%d", prefix, n),
			Title:      fmt.Sprintf("%s document %d", prefix, n),
			Segments:   texts[start:end],
		})
	}
	return docs
}

// Repeat returns n copies of text.
func Repeat(text string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = text
	}
	return out
}

// Filler returns n segment texts where the positions in hits (1-based, relative
// to the returned slice) contain term and all others contain filler text only.
func Filler(n int, term string, hits ...int) []string {
	out := make([]string, n)
	mark := make(map[int]bool, len(hits))
	for _, h := range hits {
		mark[h] = true
	}
	for i := range out {
		if mark[i+1] {
			out[i] = fmt.Sprintf("第%d句提到%s这个词。", i+1, term)
		} else {
			out[i] = fmt.Sprintf("第%d句只是普通的内容。", i+1)
		}
	}
	return out
}

// NewCorpus opens a corpus database in a temp dir and appends sources in order.
func NewCorpus(t testing.TB, sources ...Source) *corpus.Store {
	t.Helper()
	store, err := corpus.Open(filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatalf("open corpus: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	Append(t, store, sources...)
	return store
}

// Append appends more sources to an existing corpus.
func Append(t testing.TB, store *corpus.Store, sources ...Source) {
	t.Helper()
	w := corpus.NewWriter(store)
	for _, src := range sources {
		if _, err := w.AppendSource(context.Background(), src.Name, "", Docs(src.Name, src.Texts, src.PerDoc)); err != nil {
			t.Fatalf("append source %s: %v", src.Name, err)
		}
	}
}
