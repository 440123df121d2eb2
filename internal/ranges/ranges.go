// Package ranges materializes and serves the source-range table: for each
// source, the closed interval of segment ids it owns. The table is rebuilt
// explicitly after ingestion and read lock-free on the request path.
package ranges

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/zhcorpus/internal/metrics"
	"github.com/hyperjump/zhcorpus/internal/models"
)

// ErrOverlappingRanges is returned when two sources' id intervals overlap,
// meaning segments were appended without the one-source-at-a-time discipline.
var ErrOverlappingRanges = errors.New("source ranges overlap")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS source_ranges (
    source_name TEXT PRIMARY KEY,
    min_id INTEGER NOT NULL,
    max_id INTEGER NOT NULL,
    segment_count INTEGER NOT NULL,
    built_at TEXT NOT NULL,
    generation TEXT NOT NULL
);`

// Materializer owns the source_ranges table and the in-process snapshot.
type Materializer struct {
	db      *sql.DB
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex // serializes Materialize
	snapshot atomic.Pointer[models.RangeSnapshot]
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithLogger sets the logger. Default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(m *Materializer) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records materialization duration and range count.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Materializer) { m.metrics = mt }
}

// New creates the source_ranges table if needed. The snapshot starts empty;
// call Load to read the persisted table.
func New(db *sql.DB, opts ...Option) (*Materializer, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize source_ranges: %w", err)
	}
	m := &Materializer{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	m.snapshot.Store(&models.RangeSnapshot{})
	return m, nil
}

// Snapshot returns the current snapshot. It is never nil and must not be modified.
func (m *Materializer) Snapshot() *models.RangeSnapshot {
	return m.snapshot.Load()
}

// Load reads the persisted table into the snapshot. An empty table yields an
// empty snapshot, not an error.
func (m *Materializer) Load(ctx context.Context) (*models.RangeSnapshot, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT source_name, min_id, max_id, segment_count, built_at, generation
		 FROM source_ranges ORDER BY min_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read source_ranges: %w", err)
	}
	defer rows.Close()

	snap := &models.RangeSnapshot{}
	for rows.Next() {
		var r models.SourceRange
		var builtAt string
		if err := rows.Scan(&r.SourceName, &r.MinID, &r.MaxID, &r.SegmentCount, &builtAt, &snap.Generation); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, builtAt); err == nil {
			snap.BuiltAt = t
		}
		snap.Ranges = append(snap.Ranges, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	m.snapshot.Store(snap)
	m.metrics.SetSourceRanges(snap.Len())
	m.logger.Info("source ranges loaded", zap.Int("sources", snap.Len()), zap.String("generation", snap.Generation))
	return snap, nil
}

// Materialize recomputes every source's id interval in one pass over the
// segments, replaces the persisted table in a single transaction, then swaps
// the snapshot. Sources without segments are omitted. Concurrent calls are
// serialized. On any error, including ErrOverlappingRanges, the persisted table
// and the snapshot are left unchanged.
func (m *Materializer) Materialize(ctx context.Context) (snap *models.RangeSnapshot, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	defer func() {
		n := 0
		if snap != nil {
			n = snap.Len()
		}
		m.metrics.ObserveMaterialize(time.Since(start), n, err)
	}()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin materialize: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	computed, err := computeRanges(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := checkDisjoint(computed); err != nil {
		m.logger.Error("source ranges overlap, keeping previous table", zap.Error(err))
		return nil, err
	}

	next := &models.RangeSnapshot{
		Generation: uuid.NewString(),
		BuiltAt:    time.Now().UTC(),
		Ranges:     computed,
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM source_ranges`); err != nil {
		return nil, fmt.Errorf("failed to clear source_ranges: %w", err)
	}
	builtAt := next.BuiltAt.Format(time.RFC3339Nano)
	for _, r := range computed {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO source_ranges (source_name, min_id, max_id, segment_count, built_at, generation)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.SourceName, r.MinID, r.MaxID, r.SegmentCount, builtAt, next.Generation); err != nil {
			return nil, fmt.Errorf("failed to write range for %s: %w", r.SourceName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit source_ranges: %w", err)
	}

	m.snapshot.Store(next)
	m.logger.Info("source ranges materialized",
		zap.Int("sources", next.Len()),
		zap.String("generation", next.Generation),
		zap.Duration("took", time.Since(start)),
	)
	return next, nil
}

func computeRanges(ctx context.Context, tx *sql.Tx) ([]models.SourceRange, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT src.name, MIN(seg.id), MAX(seg.id), COUNT(seg.id)
		 FROM segments seg
		 JOIN documents d ON d.id = seg.document_id
		 JOIN sources src ON src.id = d.source_id
		 GROUP BY src.id
		 ORDER BY MIN(seg.id)`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute source ranges: %w", err)
	}
	defer rows.Close()

	var out []models.SourceRange
	for rows.Next() {
		var r models.SourceRange
		if err := rows.Scan(&r.SourceName, &r.MinID, &r.MaxID, &r.SegmentCount); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// checkDisjoint requires ranges, sorted by MinID, to be pairwise disjoint.
func checkDisjoint(ranges []models.SourceRange) error {
	for i := 1; i < len(ranges); i++ {
		prev, cur := ranges[i-1], ranges[i]
		if cur.MinID <= prev.MaxID {
			return fmt.Errorf("%w: %s [%d, %d] and %s [%d, %d]", ErrOverlappingRanges,
				prev.SourceName, prev.MinID, prev.MaxID, cur.SourceName, cur.MinID, cur.MaxID)
		}
	}
	return nil
}
