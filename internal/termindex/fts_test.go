package termindex_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/zhcorpus/internal/termindex"
	"github.com/hyperjump/zhcorpus/internal/testutil"
)

func newIndex(t *testing.T) *termindex.FTSIndex {
	t.Helper()
	store := testutil.NewCorpus(t,
		testutil.Source{Name: "A", Texts: testutil.Filler(100, "豆腐", 5, 40, 77)},
		testutil.Source{Name: "B", Texts: testutil.Filler(50, "豆腐", 20)},
	)
	return termindex.NewFTSIndex(store.DB())
}

func TestScan_RangeBounded(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	ids, err := idx.Scan(ctx, "豆腐", 1, 100, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 40, 77}, ids)

	ids, err = idx.Scan(ctx, "豆腐", 101, 150, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{120}, ids)

	ids, err = idx.Scan(ctx, "豆腐", termindex.MinID, termindex.MaxID, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 40}, ids, "limit applies in ascending id order")
}

func TestScan_Deterministic(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	first, err := idx.Scan(ctx, "豆腐", termindex.MinID, termindex.MaxID, 100)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := idx.Scan(ctx, "豆腐", termindex.MinID, termindex.MaxID, 100)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestScan_PhraseAdjacency(t *testing.T) {
	store := testutil.NewCorpus(t, testutil.Source{Name: "A", Texts: []string{
		"我们选任了新的主席。",
		"任何人都可以选。",
		"他买了绿豆，腐乳也买了。",
		"「绿豆」腐乳",
		"今天吃豆腐。",
		"豆腐，豆腐！",
	}})
	idx := termindex.NewFTSIndex(store.DB())
	ctx := context.Background()

	ids, err := idx.Scan(ctx, "选任", termindex.MinID, termindex.MaxID, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	// Punctuation between the characters breaks adjacency.
	ids, err = idx.Scan(ctx, "豆腐", termindex.MinID, termindex.MaxID, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, ids)

	n, err := idx.CountUpTo(ctx, "豆腐", termindex.MinID, termindex.MaxID, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A term written with the punctuation still finds it.
	ids, err = idx.Scan(ctx, "豆，腐", termindex.MinID, termindex.MaxID, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)
}

func TestScan_EdgeCases(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	_, err := idx.Scan(ctx, "   ", 1, 100, 10)
	assert.True(t, errors.Is(err, termindex.ErrEmptyTerm))

	ids, err := idx.Scan(ctx, "。！", 1, 100, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = idx.Scan(ctx, "豆腐", 1, 100, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = idx.Scan(ctx, "豆腐", 100, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = idx.Scan(ctx, "牛肉面", 1, 150, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCountUpTo(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	n, err := idx.CountUpTo(ctx, "豆腐", termindex.MinID, termindex.MaxID, 100)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = idx.CountUpTo(ctx, "豆腐", termindex.MinID, termindex.MaxID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "count stops at the limit")

	n, err = idx.CountUpTo(ctx, "豆腐", 101, 150, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = idx.CountUpTo(ctx, "豆腐", 1, 150, 0)
	assert.Error(t, err)
}

func TestScanRanked(t *testing.T) {
	store := testutil.NewCorpus(t, testutil.Source{Name: "A", Texts: []string{
		"今天天气很好。",
		"豆腐豆腐豆腐，全是豆腐。",
		"我喜欢吃豆腐和青菜，还有很多别的菜，比如白菜萝卜土豆。",
	}})
	idx := termindex.NewFTSIndex(store.DB())
	hits, err := idx.ScanRanked(context.Background(), "豆腐", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(2), hits[0].SegmentID, "denser match ranks first")
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}
