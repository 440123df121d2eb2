package benchmark

import (
	"context"
	"testing"

	"github.com/hyperjump/zhcorpus/internal/ranges"
	"github.com/hyperjump/zhcorpus/internal/sampling"
	"github.com/hyperjump/zhcorpus/internal/termindex"
	"github.com/hyperjump/zhcorpus/internal/testutil"
)

// newEngine builds three sources of 2000 segments. 豆腐 appears in every
// segment of the first source; 麒麟 appears once, near the end of the last.
func newEngine(b *testing.B) *sampling.Engine {
	b.Helper()
	store := testutil.NewCorpus(b,
		testutil.Source{Name: "dense", Texts: testutil.Repeat("今天中午吃了豆腐。", 2000), PerDoc: 100},
		testutil.Source{Name: "plain", Texts: testutil.Filler(2000, "豆腐"), PerDoc: 100},
		testutil.Source{Name: "rare", Texts: testutil.Filler(2000, "麒麟", 1990), PerDoc: 100},
	)
	mat, err := ranges.New(store.DB())
	if err != nil {
		b.Fatal(err)
	}
	if _, err := mat.Materialize(context.Background()); err != nil {
		b.Fatal(err)
	}
	return sampling.NewEngine(termindex.NewFTSIndex(store.DB()), store, mat)
}

func BenchmarkSearchSamples_FrequentTerm(b *testing.B) {
	e := newEngine(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.SearchSamples(ctx, "豆腐", 20); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearchSamples_RareTerm(b *testing.B) {
	e := newEngine(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.SearchSamples(ctx, "麒麟", 20); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCountPerSource_Capped(b *testing.B) {
	e := newEngine(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.CountPerSource(ctx, "豆腐", 1000); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCountTotal_Capped(b *testing.B) {
	e := newEngine(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.CountTotal(ctx, "豆腐", 1000); err != nil {
			b.Fatal(err)
		}
	}
}
