package termindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/zhcorpus/internal/metrics"
)

// FTSIndex implements Index over the corpus database's segments_fts table.
type FTSIndex struct {
	db      *sql.DB
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures an FTSIndex.
type Option func(*FTSIndex)

// WithLogger sets the logger. Default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(f *FTSIndex) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithMetrics records scan latency and result sizes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *FTSIndex) { f.metrics = m }
}

// NewFTSIndex returns an index over db, which must carry the corpus schema.
func NewFTSIndex(db *sql.DB, opts ...Option) *FTSIndex {
	f := &FTSIndex{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// prepare validates term and returns its match expression. ok is false when the
// term can match nothing (punctuation only).
func prepare(term string) (expr string, ok bool, err error) {
	if strings.TrimSpace(term) == "" {
		return "", false, ErrEmptyTerm
	}
	expr, ok = MatchExpr(term)
	return expr, ok, nil
}

// Scan returns up to limit matching ids in [idLo, idHi] in ascending id order.
// The rowid bounds and limit are consumed by the FTS5 cursor, not applied afterwards.
func (f *FTSIndex) Scan(ctx context.Context, term string, idLo, idHi int64, limit int) ([]int64, error) {
	expr, ok, err := prepare(term)
	if err != nil {
		return nil, err
	}
	if !ok || limit <= 0 || idLo > idHi {
		return nil, nil
	}

	start := time.Now()
	rows, err := f.db.QueryContext(ctx,
		`SELECT rowid FROM segments_fts
		 WHERE segments_fts MATCH ? AND rowid BETWEEN ? AND ?
		 ORDER BY rowid LIMIT ?`,
		expr, idLo, idHi, limit)
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", term, err)
	}
	defer rows.Close()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %q: %w", term, err)
	}
	f.metrics.ObserveScan(metrics.ScanUnranked, time.Since(start), len(ids))
	f.logger.Debug("scan",
		zap.String("term", term),
		zap.Int64("lo", idLo),
		zap.Int64("hi", idHi),
		zap.Int("limit", limit),
		zap.Int("results", len(ids)),
		zap.Duration("took", time.Since(start)),
	)
	return ids, nil
}

// ScanRanked returns up to limit hits by bm25. Ties break on ascending id so the
// order is stable for a fixed index.
func (f *FTSIndex) ScanRanked(ctx context.Context, term string, limit int) ([]RankedHit, error) {
	expr, ok, err := prepare(term)
	if err != nil {
		return nil, err
	}
	if !ok || limit <= 0 {
		return nil, nil
	}

	start := time.Now()
	rows, err := f.db.QueryContext(ctx,
		`SELECT rowid, rank FROM segments_fts
		 WHERE segments_fts MATCH ?
		 ORDER BY rank, rowid LIMIT ?`,
		expr, limit)
	if err != nil {
		return nil, fmt.Errorf("ranked scan %q: %w", term, err)
	}
	defer rows.Close()

	var hits []RankedHit
	for rows.Next() {
		var h RankedHit
		var rank float64
		if err := rows.Scan(&h.SegmentID, &rank); err != nil {
			return nil, err
		}
		// bm25 is negative; more negative is better.
		h.Score = -rank
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ranked scan %q: %w", term, err)
	}
	f.metrics.ObserveScan(metrics.ScanRanked, time.Since(start), len(hits))
	return hits, nil
}

// CountUpTo counts matching ids in [idLo, idHi], reading at most limit postings.
func (f *FTSIndex) CountUpTo(ctx context.Context, term string, idLo, idHi int64, limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("count limit must be positive, got %d", limit)
	}
	expr, ok, err := prepare(term)
	if err != nil {
		return 0, err
	}
	if !ok || idLo > idHi {
		return 0, nil
	}

	start := time.Now()
	var n int
	err = f.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (
		   SELECT rowid FROM segments_fts
		   WHERE segments_fts MATCH ? AND rowid BETWEEN ? AND ?
		   LIMIT ?)`,
		expr, idLo, idHi, limit).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", term, err)
	}
	f.metrics.ObserveScan(metrics.ScanCount, time.Since(start), n)
	return n, nil
}
