package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/zhcorpus/internal/dictionary"
	"github.com/hyperjump/zhcorpus/internal/models"
)

// Entry is a dictionary fixture.
type Entry struct {
	Headword    dictionary.Headword
	Definitions []models.Definition
	Dialects    []models.DialectForm
}

// Tofu is the 豆腐 fixture: three languages, a Cantonese reading and a Hokkien form.
func Tofu() Entry {
	return Entry{
		Headword: dictionary.Headword{Traditional: "豆腐", Simplified: "豆腐", Pinyin: "dou4 fu5", POS: "noun"},
		Definitions: []models.Definition{
			{Lang: "en", Text: "tofu; bean curd", Source: "cedict"},
			{Lang: "fr", Text: "tofu; fromage de soja", Source: "cfdict"},
			{Lang: "de", Text: "Tofu, Sojabohnenquark", Source: "handedict"},
			{Lang: "en", Text: "bean curd made from soy milk", Source: "wiktextract", Confidence: "medium"},
		},
		Dialects: []models.DialectForm{
			models.NewDialectForm(models.DialectFormBase{Dialect: models.DialectCantonese, Reading: "dau6 fu6", Provenance: "cccanto"}, ""),
			models.NewDialectForm(models.DialectFormBase{Dialect: models.DialectHokkien, Reading: "tāu-hū", Gloss: "tofu", Provenance: "moedict-twblg"}, "豆腐"),
		},
	}
}

// Walk is the 走 fixture, whose Hokkien form is written with a different character.
func Walk() Entry {
	return Entry{
		Headword: dictionary.Headword{Traditional: "走", Simplified: "走", Pinyin: "zou3", POS: "verb"},
		Definitions: []models.Definition{
			{Lang: "en", Text: "to walk; to go; to run", Source: "cedict"},
		},
		Dialects: []models.DialectForm{
			models.NewDialectForm(models.DialectFormBase{Dialect: models.DialectHokkien, Reading: "kiânn", Gloss: "to walk", Provenance: "moedict-twblg"}, "行"),
			models.NewDialectForm(models.DialectFormBase{Dialect: models.DialectHokkien, Reading: "kiann5", Gloss: "walk", Provenance: "itaigi"}, "行"),
			models.NewDialectForm(models.DialectFormBase{Dialect: models.DialectCantonese, Reading: "zau2", Provenance: "cccanto"}, ""),
		},
	}
}

// NewDictionary opens a dictionary database in a temp dir and loads entries.
func NewDictionary(t testing.TB, entries ...Entry) *dictionary.Store {
	t.Helper()
	store, err := dictionary.Open(filepath.Join(t.TempDir(), "dictionary.db"))
	if err != nil {
		t.Fatalf("open dictionary: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	for _, e := range entries {
		id, _, err := store.UpsertHeadword(ctx, e.Headword)
		if err != nil {
			t.Fatalf("upsert %s: %v", e.Headword.Simplified, err)
		}
		for _, d := range e.Definitions {
			if _, err := store.AddDefinition(ctx, id, d); err != nil {
				t.Fatalf("definition for %s: %v", e.Headword.Simplified, err)
			}
		}
		for _, f := range e.Dialects {
			if _, err := store.AddDialectForm(ctx, id, f); err != nil {
				t.Fatalf("dialect form for %s: %v", e.Headword.Simplified, err)
			}
		}
	}
	return store
}
