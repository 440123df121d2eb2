package ranges_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/zhcorpus/internal/models"
	"github.com/hyperjump/zhcorpus/internal/ranges"
	"github.com/hyperjump/zhcorpus/internal/testutil"
)

func TestMaterialize(t *testing.T) {
	store := testutil.NewCorpus(t,
		testutil.Source{Name: "A", Texts: testutil.Filler(100, "x"), PerDoc: 10},
		testutil.Source{Name: "B", Texts: testutil.Filler(50, "x")},
	)
	m, err := ranges.New(store.DB())
	require.NoError(t, err)
	assert.Equal(t, 0, m.Snapshot().Len())

	snap, err := m.Materialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, []models.SourceRange{
		{SourceName: "A", MinID: 1, MaxID: 100, SegmentCount: 100},
		{SourceName: "B", MinID: 101, MaxID: 150, SegmentCount: 50},
	}, snap.Ranges)
	assert.NotEmpty(t, snap.Generation)
	assert.Same(t, snap, m.Snapshot())
}

func TestMaterialize_Idempotent(t *testing.T) {
	store := testutil.NewCorpus(t,
		testutil.Source{Name: "A", Texts: testutil.Filler(10, "x")},
		testutil.Source{Name: "B", Texts: testutil.Filler(10, "x")},
	)
	m, err := ranges.New(store.DB())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := m.Materialize(ctx)
	require.NoError(t, err)
	second, err := m.Materialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Ranges, second.Ranges)
	assert.NotEqual(t, first.Generation, second.Generation)
}

func TestMaterialize_SkipsEmptySources(t *testing.T) {
	store := testutil.NewCorpus(t,
		testutil.Source{Name: "A", Texts: testutil.Filler(3, "x")},
		testutil.Source{Name: "empty"},
	)
	m, err := ranges.New(store.DB())
	require.NoError(t, err)
	snap, err := m.Materialize(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Ranges, 1)
	assert.Equal(t, "A", snap.Ranges[0].SourceName)
}

func TestMaterialize_EmptyCorpus(t *testing.T) {
	store := testutil.NewCorpus(t)
	m, err := ranges.New(store.DB())
	require.NoError(t, err)
	snap, err := m.Materialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())
}

func TestMaterialize_OverlapKeepsPreviousTable(t *testing.T) {
	store := testutil.NewCorpus(t,
		testutil.Source{Name: "A", Texts: testutil.Filler(5, "x")},
		testutil.Source{Name: "B", Texts: testutil.Filler(5, "x")},
	)
	m, err := ranges.New(store.DB())
	require.NoError(t, err)
	ctx := context.Background()
	good, err := m.Materialize(ctx)
	require.NoError(t, err)

	// Bypass the loader's contiguity check to append an A segment after B.
	_, err = store.DB().Exec(`INSERT INTO segments (document_id, segment_index, text, char_count, content_hash)
		VALUES (1, 99, 'late', 4, 'h')`)
	require.NoError(t, err)

	_, err = m.Materialize(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ranges.ErrOverlappingRanges))
	assert.Same(t, good, m.Snapshot())

	reloaded, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, good.Generation, reloaded.Generation)
	assert.Equal(t, good.Ranges, reloaded.Ranges)
}

func TestLoad(t *testing.T) {
	store := testutil.NewCorpus(t,
		testutil.Source{Name: "A", Texts: testutil.Filler(4, "x")},
		testutil.Source{Name: "B", Texts: testutil.Filler(4, "x")},
	)
	ctx := context.Background()
	m1, err := ranges.New(store.DB())
	require.NoError(t, err)
	built, err := m1.Materialize(ctx)
	require.NoError(t, err)

	m2, err := ranges.New(store.DB())
	require.NoError(t, err)
	loaded, err := m2.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, built.Generation, loaded.Generation)
	assert.Equal(t, built.Ranges, loaded.Ranges)
	assert.WithinDuration(t, built.BuiltAt, loaded.BuiltAt, 0)
}

func TestMaterialize_ConcurrentReaders(t *testing.T) {
	store := testutil.NewCorpus(t,
		testutil.Source{Name: "A", Texts: testutil.Filler(20, "x")},
		testutil.Source{Name: "B", Texts: testutil.Filler(20, "x")},
	)
	m, err := ranges.New(store.DB())
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Materialize(ctx)
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 100; i++ {
		snap := m.Snapshot()
		// Readers see either the empty initial snapshot or a complete one.
		assert.Contains(t, []int{0, 2}, snap.Len())
	}
	wg.Wait()
	assert.Equal(t, 2, m.Snapshot().Len())
}
