package report_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/zhcorpus/internal/models"
	"github.com/hyperjump/zhcorpus/internal/ranges"
	"github.com/hyperjump/zhcorpus/internal/report"
	"github.com/hyperjump/zhcorpus/internal/sampling"
	"github.com/hyperjump/zhcorpus/internal/termindex"
	"github.com/hyperjump/zhcorpus/internal/testutil"
)

type fixture struct {
	synth *report.Synthesizer
}

func newFixture(t *testing.T, cfg report.Config) fixture {
	t.Helper()
	corpus := testutil.NewCorpus(t,
		testutil.Source{Name: "news", Texts: testutil.Filler(30, "豆腐", 3, 12, 25), PerDoc: 10},
		testutil.Source{Name: "wiki", Texts: testutil.Filler(20, "豆腐", 8), PerDoc: 10},
	)
	dict := testutil.NewDictionary(t, testutil.Tofu(), testutil.Walk())
	m, err := ranges.New(corpus.DB())
	require.NoError(t, err)
	_, err = m.Materialize(context.Background())
	require.NoError(t, err)
	engine := sampling.NewEngine(termindex.NewFTSIndex(corpus.DB()), corpus, m)
	return fixture{synth: report.NewSynthesizer(dict, engine, corpus, m, cfg)}
}

func TestBuildWordReport_Tofu(t *testing.T) {
	f := newFixture(t, report.Config{})
	rep, err := f.synth.BuildWordReport(context.Background(), "豆腐", models.ModeStandard)
	require.NoError(t, err)
	assert.False(t, rep.Failed())
	assert.NotEmpty(t, rep.Generation)

	require.Len(t, rep.Entries, 1)
	require.Len(t, rep.Senses, 3)
	assert.Equal(t, []string{"de", "en", "fr"}, []string{rep.Senses[0].Lang, rep.Senses[1].Lang, rep.Senses[2].Lang})
	require.Len(t, rep.Senses[1].Senses, 2)
	assert.Equal(t, "cedict", rep.Senses[1].Senses[0].Source)

	require.Len(t, rep.Dialects.PronunciationOverlays, 1)
	assert.Equal(t, models.DialectCantonese, rep.Dialects.PronunciationOverlays[0].Dialect)
	assert.Equal(t, "dau6 fu6", rep.Dialects.PronunciationOverlays[0].Reading)
	require.Len(t, rep.Dialects.LexicalDivergences, 1)
	assert.Equal(t, models.DialectHokkien, rep.Dialects.LexicalDivergences[0].Dialect)
	assert.Equal(t, "豆腐", rep.Dialects.LexicalDivergences[0].NativeChars)
	assert.Equal(t, "tāu-hū", rep.Dialects.LexicalDivergences[0].Reading)

	require.Len(t, rep.Evidence, 4)
	for _, ev := range rep.Evidence {
		assert.Contains(t, ev.Excerpt, "豆腐")
		assert.Empty(t, ev.Context, "standard mode has no context passages")
	}
	assert.Equal(t, "wiki", rep.Evidence[3].Source)

	require.NotNil(t, rep.Counts.Total)
	assert.Equal(t, models.Count{Count: 4, Exact: true}, *rep.Counts.Total)
	require.Len(t, rep.Counts.PerSource, 2)
	assert.Equal(t, 3, rep.Counts.PerSource[0].Count.Count)
}

func TestBuildWordReport_Modes(t *testing.T) {
	f := newFixture(t, report.Config{BriefSampleSize: 2, FullSampleSize: 10, ContextSegments: 1})
	ctx := context.Background()

	brief, err := f.synth.BuildWordReport(ctx, "豆腐", models.ModeBrief)
	require.NoError(t, err)
	assert.Len(t, brief.Evidence, 2)
	assert.Equal(t, []string{"news", "wiki"}, []string{brief.Evidence[0].Source, brief.Evidence[1].Source})

	full, err := f.synth.BuildWordReport(ctx, "豆腐", models.ModeFull)
	require.NoError(t, err)
	require.Len(t, full.Evidence, 4)
	for _, ev := range full.Evidence {
		require.NotEmpty(t, ev.Context)
		assert.Contains(t, ev.Context, "豆腐")
		lines := strings.Split(ev.Context, "\n")
		assert.LessOrEqual(t, len(lines), 3)
	}
}

func TestBuildWordReport_Deterministic(t *testing.T) {
	f := newFixture(t, report.Config{})
	ctx := context.Background()
	a, err := f.synth.BuildWordReport(ctx, "豆腐", models.ModeFull)
	require.NoError(t, err)
	b, err := f.synth.BuildWordReport(ctx, "豆腐", models.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildWordReport_UnknownTerm(t *testing.T) {
	f := newFixture(t, report.Config{})
	rep, err := f.synth.BuildWordReport(context.Background(), "麒麟", models.ModeBrief)
	require.NoError(t, err)
	assert.Empty(t, rep.Entries)
	assert.Empty(t, rep.Evidence)
	assert.Empty(t, rep.Dialects.LexicalDivergences)
	assert.Equal(t, models.Count{Count: 0, Exact: true}, *rep.Counts.Total)
	assert.False(t, rep.Failed())
}

func TestBuildWordReport_InvalidArguments(t *testing.T) {
	f := newFixture(t, report.Config{})
	_, err := f.synth.BuildWordReport(context.Background(), " ", models.ModeBrief)
	assert.True(t, errors.Is(err, sampling.ErrInvalidArgument))
	_, err = f.synth.BuildWordReport(context.Background(), "豆腐", "verbose")
	assert.True(t, errors.Is(err, sampling.ErrInvalidArgument))
}

type brokenDictionary struct{}

func (brokenDictionary) Lookup(context.Context, string) ([]*models.DictionaryEntry, error) {
	return nil, errors.New("dictionary offline")
}

func (brokenDictionary) DialectForms(context.Context, string) ([]models.DialectForm, error) {
	return nil, errors.New("dictionary offline")
}

type brokenSampler struct{}

func (brokenSampler) SearchSamples(context.Context, string, int) ([]*models.Sample, error) {
	return nil, errors.New("index offline")
}

func (brokenSampler) CountPerSource(context.Context, string, int) ([]*models.SourceCount, error) {
	return nil, errors.New("index offline")
}

func (brokenSampler) CountTotal(context.Context, string, int) (models.Count, error) {
	return models.Count{}, errors.New("index offline")
}

type emptyRanges struct{}

func (emptyRanges) Snapshot() *models.RangeSnapshot { return &models.RangeSnapshot{} }

type stubSampler struct{ calls int }

func (s *stubSampler) SearchSamples(context.Context, string, int) ([]*models.Sample, error) {
	s.calls++
	return []*models.Sample{{SegmentID: 7, Source: "A", Excerpt: "豆腐"}}, nil
}

func (s *stubSampler) CountPerSource(context.Context, string, int) ([]*models.SourceCount, error) {
	s.calls++
	return []*models.SourceCount{{Source: "A", Count: models.Count{Count: 1, Exact: true}}}, nil
}

func (s *stubSampler) CountTotal(context.Context, string, int) (models.Count, error) {
	s.calls++
	return models.Count{Count: 1, Exact: true}, nil
}

func TestBuildWordReport_PartialFailure(t *testing.T) {
	synth := report.NewSynthesizer(brokenDictionary{}, &stubSampler{}, nil, emptyRanges{}, report.Config{})
	rep, err := synth.BuildWordReport(context.Background(), "豆腐", models.ModeFull)
	require.NoError(t, err)
	assert.True(t, rep.Failed())

	assert.False(t, rep.Sections[models.SectionDictionary].OK)
	assert.Contains(t, rep.Sections[models.SectionDictionary].Error, "dictionary offline")
	assert.False(t, rep.Sections[models.SectionDialects].OK)
	assert.True(t, rep.Sections[models.SectionEvidence].OK)
	assert.True(t, rep.Sections[models.SectionCounts].OK)
	require.Len(t, rep.Evidence, 1)
	assert.Empty(t, rep.Evidence[0].Context, "no context reader configured")
	assert.NotNil(t, rep.Entries)
}

func TestBuildWordReport_AllSectionsFail(t *testing.T) {
	synth := report.NewSynthesizer(brokenDictionary{}, brokenSampler{}, nil, emptyRanges{}, report.Config{})
	_, err := synth.BuildWordReport(context.Background(), "豆腐", models.ModeBrief)
	require.Error(t, err)
	assert.True(t, errors.Is(err, report.ErrReportFailed))
}

type cancellingDictionary struct {
	cancel context.CancelFunc
}

func (d cancellingDictionary) Lookup(ctx context.Context, _ string) ([]*models.DictionaryEntry, error) {
	d.cancel()
	// The section started before cancellation, so it must still see a live context.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []*models.DictionaryEntry{}, nil
}

func (cancellingDictionary) DialectForms(context.Context, string) ([]models.DialectForm, error) {
	return []models.DialectForm{}, nil
}

func TestBuildWordReport_CancellationBetweenSections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sampler := &stubSampler{}
	synth := report.NewSynthesizer(cancellingDictionary{cancel: cancel}, sampler, nil, emptyRanges{}, report.Config{})

	_, err := synth.BuildWordReport(ctx, "豆腐", models.ModeBrief)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, sampler.calls, "no section starts after cancellation")
}
