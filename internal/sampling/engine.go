// Package sampling draws source-diverse evidence samples and capped counts for
// a term. Every operation issues at most one bounded term index scan per source,
// so latency depends on the sample size and caps, not on term frequency.
package sampling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/zhcorpus/internal/metrics"
	"github.com/hyperjump/zhcorpus/internal/models"
	"github.com/hyperjump/zhcorpus/internal/termindex"
	"github.com/hyperjump/zhcorpus/pkg/utils"
)

// Upper bounds accepted by the engine regardless of configuration.
const (
	MaxSampleSize = 1000
	MaxCap        = 1_000_000
)

// ErrInvalidArgument is returned for empty terms and out-of-range sizes or caps.
var ErrInvalidArgument = errors.New("invalid argument")

// SegmentReader resolves segment ids for sample hydration.
type SegmentReader interface {
	SegmentsByID(ctx context.Context, ids []int64) (map[int64]*models.SegmentRecord, error)
}

// SnapshotProvider returns the current source-range snapshot.
type SnapshotProvider interface {
	Snapshot() *models.RangeSnapshot
}

// Engine implements sampling and counting over a term index and range snapshot.
type Engine struct {
	index         termindex.Index
	segments      SegmentReader
	ranges        SnapshotProvider
	excerptRadius int
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records capped counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithExcerptRadius sets how many runes of text to keep on each side of the term
// in sample excerpts. Zero keeps the whole segment. Default is 40.
func WithExcerptRadius(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.excerptRadius = n
		}
	}
}

// NewEngine returns an Engine.
func NewEngine(index termindex.Index, segments SegmentReader, ranges SnapshotProvider, opts ...Option) *Engine {
	e := &Engine{
		index:         index,
		segments:      segments,
		ranges:        ranges,
		excerptRadius: 40,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func checkTerm(term string) (string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", invalid("term cannot be empty")
	}
	return term, nil
}

// SearchSamples returns up to sampleSize samples of term spread across sources.
// Each source in the snapshot gets a quota of ceil(sampleSize/sources) and is
// scanned only inside its own id range, so a dense source cannot crowd out a
// sparse one. Samples are ordered by source (ascending range) then by id. When
// the quotas overshoot, samples are removed from the largest group first, so
// every contributing source keeps at least one sample whenever sampleSize is at
// least the number of contributing sources. No matches yields an empty slice.
func (e *Engine) SearchSamples(ctx context.Context, term string, sampleSize int) ([]*models.Sample, error) {
	term, err := checkTerm(term)
	if err != nil {
		return nil, err
	}
	if sampleSize <= 0 || sampleSize > MaxSampleSize {
		return nil, invalid("sample size must be in [1, %d], got %d", MaxSampleSize, sampleSize)
	}

	snap := e.ranges.Snapshot()
	if snap.Len() == 0 {
		e.logger.Warn("no source ranges materialized; returning no samples")
		return []*models.Sample{}, nil
	}
	quota := utils.CeilDiv(sampleSize, snap.Len())

	groups := make([][]int64, snap.Len())
	total := 0
	for i, r := range snap.Ranges {
		ids, err := e.index.Scan(ctx, term, r.MinID, r.MaxID, quota)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", r.SourceName, err)
		}
		groups[i] = ids
		total += len(ids)
	}
	trim(groups, total-sampleSize)

	var ids []int64
	for _, g := range groups {
		ids = append(ids, g...)
	}
	if len(ids) == 0 {
		return []*models.Sample{}, nil
	}

	recs, err := e.segments.SegmentsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate samples: %w", err)
	}
	samples := make([]*models.Sample, 0, len(ids))
	for i, r := range snap.Ranges {
		for _, id := range groups[i] {
			rec, ok := recs[id]
			if !ok {
				// Index ahead of the segment table; skip rather than fail the sample.
				e.logger.Warn("indexed segment missing", zap.Int64("segment_id", id))
				continue
			}
			samples = append(samples, &models.Sample{
				SegmentID:     id,
				Source:        r.SourceName,
				DocumentID:    rec.DocumentID,
				DocumentTitle: rec.DocumentTitle,
				Excerpt:       utils.Excerpt(rec.Text, term, e.excerptRadius),
			})
		}
	}
	return samples, nil
}

// trim removes excess ids, one at a time, from the end of the currently largest
// group, preferring the later group on ties.
func trim(groups [][]int64, excess int) {
	for ; excess > 0; excess-- {
		largest := -1
		for i := range groups {
			if largest < 0 || len(groups[i]) >= len(groups[largest]) {
				largest = i
			}
		}
		if largest < 0 || len(groups[largest]) == 0 {
			return
		}
		groups[largest] = groups[largest][:len(groups[largest])-1]
	}
}

// CountPerSource returns a capped count for every source in the snapshot, in
// range order, including sources with no matches. A count is exact iff it is
// below the cap.
func (e *Engine) CountPerSource(ctx context.Context, term string, capPerSource int) ([]*models.SourceCount, error) {
	term, err := checkTerm(term)
	if err != nil {
		return nil, err
	}
	if capPerSource <= 0 || capPerSource > MaxCap {
		return nil, invalid("cap must be in [1, %d], got %d", MaxCap, capPerSource)
	}

	snap := e.ranges.Snapshot()
	out := make([]*models.SourceCount, 0, snap.Len())
	for _, r := range snap.Ranges {
		n, err := e.index.CountUpTo(ctx, term, r.MinID, r.MaxID, capPerSource)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", r.SourceName, err)
		}
		out = append(out, &models.SourceCount{Source: r.SourceName, Count: e.capped(n, capPerSource)})
	}
	return out, nil
}

// CountTotal returns a capped count of term over the whole corpus.
func (e *Engine) CountTotal(ctx context.Context, term string, capTotal int) (models.Count, error) {
	term, err := checkTerm(term)
	if err != nil {
		return models.Count{}, err
	}
	if capTotal <= 0 || capTotal > MaxCap {
		return models.Count{}, invalid("cap must be in [1, %d], got %d", MaxCap, capTotal)
	}
	n, err := e.index.CountUpTo(ctx, term, termindex.MinID, termindex.MaxID, capTotal)
	if err != nil {
		return models.Count{}, fmt.Errorf("count: %w", err)
	}
	return e.capped(n, capTotal), nil
}

func (e *Engine) capped(n, limit int) models.Count {
	if n >= limit {
		e.metrics.CountCapped()
		return models.Count{Count: limit, Exact: false}
	}
	return models.Count{Count: n, Exact: true}
}

// Ranked returns up to limit relevance-ranked samples, refusing terms with at
// least refuseAt matches since ranking cost grows with match count.
func (e *Engine) Ranked(ctx context.Context, term string, limit, refuseAt int) ([]*RankedSample, error) {
	term, err := checkTerm(term)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxSampleSize {
		return nil, invalid("limit must be in [1, %d], got %d", MaxSampleSize, limit)
	}
	if refuseAt > 0 {
		c, err := e.CountTotal(ctx, term, refuseAt)
		if err != nil {
			return nil, err
		}
		if !c.Exact {
			return nil, invalid("term %q has at least %d matches; use sampled search", term, refuseAt)
		}
	}
	hits, err := e.index.ScanRanked(ctx, term, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.SegmentID
	}
	recs, err := e.segments.SegmentsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate ranked hits: %w", err)
	}
	snap := e.ranges.Snapshot()
	out := make([]*RankedSample, 0, len(hits))
	for _, h := range hits {
		rec, ok := recs[h.SegmentID]
		if !ok {
			continue
		}
		source := rec.SourceName
		if name, ok := snap.SourceFor(h.SegmentID); ok {
			source = name
		}
		out = append(out, &RankedSample{
			Sample: models.Sample{
				SegmentID:     h.SegmentID,
				Source:        source,
				DocumentID:    rec.DocumentID,
				DocumentTitle: rec.DocumentTitle,
				Excerpt:       utils.Excerpt(rec.Text, term, e.excerptRadius),
			},
			Score: h.Score,
		})
	}
	return out, nil
}

// RankedSample is a sample with its relevance score.
type RankedSample struct {
	models.Sample
	Score float64 `json:"score"`
}
