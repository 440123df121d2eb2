// Package report synthesizes word reports: dictionary senses, dialect forms,
// corpus evidence and capped counts for one term, with each section produced
// independently so a failing section does not sink the others.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/zhcorpus/internal/metrics"
	"github.com/hyperjump/zhcorpus/internal/models"
	"github.com/hyperjump/zhcorpus/internal/sampling"
)

// ErrReportFailed is returned when every section of a report failed.
var ErrReportFailed = errors.New("every report section failed")

// Dictionary provides entries and dialect forms for a term.
type Dictionary interface {
	Lookup(ctx context.Context, term string) ([]*models.DictionaryEntry, error)
	DialectForms(ctx context.Context, term string) ([]models.DialectForm, error)
}

// Sampler provides evidence samples and capped counts.
type Sampler interface {
	SearchSamples(ctx context.Context, term string, sampleSize int) ([]*models.Sample, error)
	CountPerSource(ctx context.Context, term string, capPerSource int) ([]*models.SourceCount, error)
	CountTotal(ctx context.Context, term string, capTotal int) (models.Count, error)
}

// ContextReader returns neighbouring segments of a segment's document.
type ContextReader interface {
	Context(ctx context.Context, segmentID int64, radius int) ([]*models.Segment, error)
}

// SnapshotProvider returns the current source-range snapshot.
type SnapshotProvider interface {
	Snapshot() *models.RangeSnapshot
}

// Config sizes each report mode.
type Config struct {
	BriefSampleSize    int
	StandardSampleSize int
	FullSampleSize     int
	// ContextSegments is how many segments on each side of a sample full mode includes.
	ContextSegments int
	CapTotal        int
	CapPerSource    int
}

// DefaultConfig returns the sizes used when none are configured.
func DefaultConfig() Config {
	return Config{
		BriefSampleSize:    5,
		StandardSampleSize: 20,
		FullSampleSize:     20,
		ContextSegments:    2,
		CapTotal:           10000,
		CapPerSource:       1000,
	}
}

func (c Config) sampleSize(mode models.ReportMode) int {
	switch mode {
	case models.ModeBrief:
		return c.BriefSampleSize
	case models.ModeFull:
		return c.FullSampleSize
	default:
		return c.StandardSampleSize
	}
}

// Synthesizer builds word reports.
type Synthesizer struct {
	dict     Dictionary
	sampler  Sampler
	passages ContextReader
	ranges   SnapshotProvider
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets the logger. Default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records report latency and section failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synthesizer) { s.metrics = m }
}

// NewSynthesizer returns a Synthesizer. Zero sizes in cfg take DefaultConfig values.
func NewSynthesizer(dict Dictionary, sampler Sampler, passages ContextReader, ranges SnapshotProvider, cfg Config, opts ...Option) *Synthesizer {
	def := DefaultConfig()
	if cfg.BriefSampleSize <= 0 {
		cfg.BriefSampleSize = def.BriefSampleSize
	}
	if cfg.StandardSampleSize <= 0 {
		cfg.StandardSampleSize = def.StandardSampleSize
	}
	if cfg.FullSampleSize <= 0 {
		cfg.FullSampleSize = def.FullSampleSize
	}
	if cfg.ContextSegments < 0 {
		cfg.ContextSegments = 0
	}
	if cfg.CapTotal <= 0 {
		cfg.CapTotal = def.CapTotal
	}
	if cfg.CapPerSource <= 0 {
		cfg.CapPerSource = def.CapPerSource
	}
	s := &Synthesizer{
		dict:     dict,
		sampler:  sampler,
		passages: passages,
		ranges:   ranges,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildWordReport assembles the report for term. The four sections (dictionary,
// dialects, evidence, counts) run in a fixed order; the context is checked
// before each one and a started section runs to completion even if the context
// is cancelled meanwhile. A failed section is recorded in Sections and left
// empty. The report is an error only if every section failed or the context was
// cancelled before the report finished.
func (s *Synthesizer) BuildWordReport(ctx context.Context, term string, mode models.ReportMode) (*models.WordReport, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: term cannot be empty", sampling.ErrInvalidArgument)
	}
	switch mode {
	case models.ModeBrief, models.ModeStandard, models.ModeFull:
	case "":
		mode = models.ModeStandard
	default:
		return nil, fmt.Errorf("%w: unknown report mode %q", sampling.ErrInvalidArgument, mode)
	}

	start := time.Now()
	rep := &models.WordReport{
		Term:       term,
		Mode:       mode,
		Generation: s.ranges.Snapshot().Generation,
		Entries:    []*models.DictionaryEntry{},
		Senses:     []*models.SenseGroup{},
		Dialects: models.DialectSection{
			PronunciationOverlays: []models.PronunciationOverlay{},
			LexicalDivergences:    []models.LexicalDivergence{},
		},
		Evidence: []*models.Evidence{},
		Sections: make(map[string]models.SectionStatus, 4),
	}

	sections := []struct {
		name string
		run  func(context.Context) error
	}{
		{models.SectionDictionary, func(c context.Context) error { return s.dictionarySection(c, term, rep) }},
		{models.SectionDialects, func(c context.Context) error { return s.dialectSection(c, term, rep) }},
		{models.SectionEvidence, func(c context.Context) error { return s.evidenceSection(c, term, mode, rep) }},
		{models.SectionCounts, func(c context.Context) error { return s.countSection(c, term, rep) }},
	}

	var errs []error
	for _, sec := range sections {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("word report for %q cancelled before %s: %w", term, sec.name, err)
		}
		if err := sec.run(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("report section failed",
				zap.String("term", term),
				zap.String("section", sec.name),
				zap.Error(err),
			)
			s.metrics.ReportSectionFailed(sec.name)
			rep.Sections[sec.name] = models.SectionStatus{OK: false, Error: err.Error()}
			errs = append(errs, fmt.Errorf("%s: %w", sec.name, err))
			continue
		}
		rep.Sections[sec.name] = models.SectionStatus{OK: true}
	}

	s.metrics.ObserveReport(string(mode), time.Since(start))
	if len(errs) == len(sections) {
		return nil, fmt.Errorf("%w for %q: %w", ErrReportFailed, term, errors.Join(errs...))
	}
	return rep, nil
}

func (s *Synthesizer) dictionarySection(ctx context.Context, term string, rep *models.WordReport) error {
	entries, err := s.dict.Lookup(ctx, term)
	if err != nil {
		return err
	}
	rep.Entries = entries
	rep.Senses = groupSenses(entries)
	return nil
}

// groupSenses flattens entry definitions into one group per language, ordered
// by language code; senses within a group are ordered by source, then headword.
func groupSenses(entries []*models.DictionaryEntry) []*models.SenseGroup {
	byLang := map[string]*models.SenseGroup{}
	for _, e := range entries {
		for _, d := range e.Definitions {
			g, ok := byLang[d.Lang]
			if !ok {
				g = &models.SenseGroup{Lang: d.Lang}
				byLang[d.Lang] = g
			}
			g.Senses = append(g.Senses, &models.Sense{
				Traditional: e.Traditional,
				Simplified:  e.Simplified,
				Pinyin:      e.Pinyin,
				Definition:  d.Text,
				Source:      d.Source,
				Confidence:  d.Confidence,
			})
		}
	}
	groups := make([]*models.SenseGroup, 0, len(byLang))
	for _, g := range byLang {
		// Stable keeps headword order for senses from the same source.
		sort.SliceStable(g.Senses, func(i, j int) bool { return g.Senses[i].Source < g.Senses[j].Source })
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Lang < groups[j].Lang })
	return groups
}

func (s *Synthesizer) dialectSection(ctx context.Context, term string, rep *models.WordReport) error {
	forms, err := s.dict.DialectForms(ctx, term)
	if err != nil {
		return err
	}
	for _, f := range forms {
		switch v := f.(type) {
		case models.PronunciationOverlay:
			rep.Dialects.PronunciationOverlays = append(rep.Dialects.PronunciationOverlays, v)
		case models.LexicalDivergence:
			rep.Dialects.LexicalDivergences = append(rep.Dialects.LexicalDivergences, v)
		}
	}
	return nil
}

func (s *Synthesizer) evidenceSection(ctx context.Context, term string, mode models.ReportMode, rep *models.WordReport) error {
	samples, err := s.sampler.SearchSamples(ctx, term, s.cfg.sampleSize(mode))
	if err != nil {
		return err
	}
	for _, sm := range samples {
		ev := &models.Evidence{Sample: *sm}
		if mode == models.ModeFull && s.passages != nil && s.cfg.ContextSegments > 0 {
			ev.Context = s.passage(ctx, sm.SegmentID)
		}
		rep.Evidence = append(rep.Evidence, ev)
	}
	return nil
}

// passage returns the sample's neighbouring segments joined by newlines. A
// failed context lookup leaves the passage empty rather than failing the section.
func (s *Synthesizer) passage(ctx context.Context, segmentID int64) string {
	segs, err := s.passages.Context(ctx, segmentID, s.cfg.ContextSegments)
	if err != nil {
		s.logger.Warn("context lookup failed", zap.Int64("segment_id", segmentID), zap.Error(err))
		return ""
	}
	texts := make([]string, len(segs))
	for i, seg := range segs {
		texts[i] = seg.Text
	}
	return strings.Join(texts, "\n")
}

func (s *Synthesizer) countSection(ctx context.Context, term string, rep *models.WordReport) error {
	var errs []error
	total, err := s.sampler.CountTotal(ctx, term, s.cfg.CapTotal)
	if err != nil {
		errs = append(errs, err)
	} else {
		rep.Counts.Total = &total
	}
	perSource, err := s.sampler.CountPerSource(ctx, term, s.cfg.CapPerSource)
	if err != nil {
		errs = append(errs, err)
	} else {
		rep.Counts.PerSource = perSource
	}
	return errors.Join(errs...)
}
