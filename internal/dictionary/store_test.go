package dictionary_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/zhcorpus/internal/dictionary"
	"github.com/hyperjump/zhcorpus/internal/models"
	"github.com/hyperjump/zhcorpus/internal/testutil"
)

func TestLookup(t *testing.T) {
	store := testutil.NewDictionary(t, testutil.Tofu(), testutil.Walk())
	entries, err := store.Lookup(context.Background(), "豆腐")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "dou4 fu5", e.Pinyin)
	assert.Equal(t, "noun", e.POS)
	require.Len(t, e.Definitions, 4)
	// Ordered by language then source.
	assert.Equal(t, []string{"de", "en", "en", "fr"}, []string{
		e.Definitions[0].Lang, e.Definitions[1].Lang, e.Definitions[2].Lang, e.Definitions[3].Lang,
	})
	assert.Equal(t, "cedict", e.Definitions[1].Source)
	assert.Equal(t, "wiktextract", e.Definitions[2].Source)
	assert.Equal(t, "medium", e.Definitions[2].Confidence)
}

func TestLookup_TraditionalAndMissing(t *testing.T) {
	store := testutil.NewDictionary(t, testutil.Entry{
		Headword:    dictionary.Headword{Traditional: "選任", Simplified: "选任", Pinyin: "xuan3 ren4"},
		Definitions: []models.Definition{{Lang: "en", Text: "to select and appoint", Source: "cedict"}},
	})
	ctx := context.Background()

	entries, err := store.Lookup(ctx, "選任")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "选任", entries[0].Simplified)

	entries, err = store.Lookup(ctx, "麒麟")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestDialectForms(t *testing.T) {
	store := testutil.NewDictionary(t, testutil.Tofu(), testutil.Walk())
	ctx := context.Background()

	forms, err := store.DialectForms(ctx, "豆腐")
	require.NoError(t, err)
	require.Len(t, forms, 2)

	// nan sorts before yue.
	div, ok := forms[0].(models.LexicalDivergence)
	require.True(t, ok, "Hokkien form with native characters is a lexical divergence, got %T", forms[0])
	assert.Equal(t, "豆腐", div.NativeChars)
	assert.Equal(t, "tāu-hū", div.Reading)
	assert.Equal(t, "豆腐", div.Headword)

	overlay, ok := forms[1].(models.PronunciationOverlay)
	require.True(t, ok, "Cantonese reading is a pronunciation overlay, got %T", forms[1])
	assert.Equal(t, "dau6 fu6", overlay.Reading)
	assert.Equal(t, "cccanto", overlay.Provenance)
}

func TestDialectForms_ConflictingProvenancesAllReturned(t *testing.T) {
	store := testutil.NewDictionary(t, testutil.Walk())
	forms, err := store.DialectForms(context.Background(), "走")
	require.NoError(t, err)
	require.Len(t, forms, 3)
	assert.Equal(t, "itaigi", forms[0].Base().Provenance)
	assert.Equal(t, "moedict-twblg", forms[1].Base().Provenance)
	assert.Equal(t, models.DialectCantonese, forms[2].Base().Dialect)
}

func TestWrites_Dedup(t *testing.T) {
	store := testutil.NewDictionary(t)
	ctx := context.Background()
	h := dictionary.Headword{Traditional: "豆腐", Simplified: "豆腐", Pinyin: "dou4 fu5"}

	id, inserted, err := store.UpsertHeadword(ctx, h)
	require.NoError(t, err)
	assert.True(t, inserted)
	again, inserted, err := store.UpsertHeadword(ctx, h)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, id, again)

	def := models.Definition{Lang: "en", Text: "tofu", Source: "cedict"}
	ok, err := store.AddDefinition(ctx, id, def)
	require.NoError(t, err)
	assert.True(t, ok)
	def.Text = "bean curd"
	ok, err = store.AddDefinition(ctx, id, def)
	require.NoError(t, err)
	assert.False(t, ok, "one definition per (headword, lang, source)")

	form := models.NewDialectForm(models.DialectFormBase{Dialect: "yue", Reading: "dau6 fu6", Provenance: "cccanto"}, "")
	ok, err = store.AddDialectForm(ctx, id, form)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.AddDialectForm(ctx, id, form)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.AddDialectForm(ctx, id, models.NewDialectForm(models.DialectFormBase{Dialect: "yue"}, ""))
	assert.Error(t, err)
	_, _, err = store.UpsertHeadword(ctx, dictionary.Headword{})
	assert.Error(t, err)
}

func TestEntry(t *testing.T) {
	store := testutil.NewDictionary(t, testutil.Tofu())
	ctx := context.Background()
	e, err := store.Entry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "豆腐", e.Simplified)
	assert.Len(t, e.Definitions, 4)

	_, err = store.Entry(ctx, 99)
	assert.True(t, errors.Is(err, dictionary.ErrNotFound))
}

func TestEachDefinition(t *testing.T) {
	store := testutil.NewDictionary(t, testutil.Tofu(), testutil.Walk())
	var got []dictionary.GlossRecord
	err := store.EachDefinition(context.Background(), func(r dictionary.GlossRecord) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "走", got[4].Simplified)

	stop := errors.New("stop")
	err = store.EachDefinition(context.Background(), func(dictionary.GlossRecord) error { return stop })
	assert.True(t, errors.Is(err, stop))
}

func TestStats(t *testing.T) {
	store := testutil.NewDictionary(t, testutil.Tofu(), testutil.Walk())
	require.NoError(t, store.RegisterSource(context.Background(), "cedict", "CC-CEDICT", "CC BY-SA 4.0", "https://cc-cedict.org/"))
	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Headwords)
	assert.Equal(t, int64(5), st.Definitions)
	assert.Equal(t, int64(5), st.DialectForms)
	assert.Equal(t, int64(3), st.ByLanguage["en"])
	assert.Equal(t, int64(2), st.BySource["cedict"])
	assert.Equal(t, int64(3), st.DialectsByCode["nan"])
	assert.Greater(t, st.DiskBytes, int64(0))
}
