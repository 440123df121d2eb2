package glossindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/zhcorpus/internal/testutil"
)

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"curd", "curd", 0},
		{"", "tofu", 4},
		{"crud", "curd", 2},
		{"kitten", "sitting", 3},
		{"豆腐", "豆府", 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, levenshtein(c.a, c.b), "%q vs %q", c.a, c.b)
		assert.Equal(t, c.want, levenshtein(c.b, c.a), "%q vs %q", c.b, c.a)
	}
}

func TestSuggest(t *testing.T) {
	dict := testutil.NewDictionary(t, testutil.Tofu(), testutil.Walk())
	idx, err := Open(filepath.Join(t.TempDir(), "glosses"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	_, err = idx.Rebuild(context.Background(), dict)
	require.NoError(t, err)

	got, ok, err := idx.Suggest("baen curdd")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bean curd", got)

	_, ok, err = idx.Suggest("bean curd")
	require.NoError(t, err)
	assert.False(t, ok, "known words need no correction")

	_, ok, err = idx.Suggest("xyzzyq")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSuggest_VocabularyRefreshedByRebuild(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "glosses"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	_, ok, err := idx.Suggest("walkk")
	require.NoError(t, err)
	assert.False(t, ok, "empty index has no vocabulary")

	_, err = idx.Rebuild(context.Background(), testutil.NewDictionary(t, testutil.Walk()))
	require.NoError(t, err)
	got, ok, err := idx.Suggest("walkk")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "walk", got)
}
