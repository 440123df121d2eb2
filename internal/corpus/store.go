// Package corpus is the segment store: sources, documents and append-only
// segments in a SQLite database that also holds the full-text term index.
package corpus

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hyperjump/zhcorpus/internal/models"
	"github.com/hyperjump/zhcorpus/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// lookupBatch bounds the number of ids bound into one IN (...) query.
const lookupBatch = 500

// Store reads the corpus database.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens or creates the corpus database at dbPath and initializes the schema.
func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := storage.OpenSQLite(storage.DriverPure, dbPath, schemaSQL)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	s := &Store{db: db, path: dbPath, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("corpus store opened", zap.String("path", dbPath))
	return s, nil
}

// DB returns the underlying handle, shared with the term index and range materializer.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sources returns all sources ordered by id.
func (s *Store) Sources(ctx context.Context) ([]*models.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, document_count, segment_count FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var out []*models.Source
	for rows.Next() {
		var src models.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.Description, &src.DocumentCount, &src.SegmentCount); err != nil {
			return nil, err
		}
		out = append(out, &src)
	}
	return out, rows.Err()
}

// SegmentsByID resolves segment ids to segments with their document title and
// source name. Unknown ids are absent from the result.
func (s *Store) SegmentsByID(ctx context.Context, ids []int64) (map[int64]*models.SegmentRecord, error) {
	out := make(map[int64]*models.SegmentRecord, len(ids))
	for start := 0; start < len(ids); start += lookupBatch {
		end := start + lookupBatch
		if end > len(ids) {
			end = len(ids)
		}
		if err := s.loadSegments(ctx, ids[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadSegments(ctx context.Context, ids []int64, out map[int64]*models.SegmentRecord) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT seg.id, seg.document_id, seg.segment_index, seg.text, d.title, src.name
		FROM segments seg
		JOIN documents d ON d.id = seg.document_id
		JOIN sources src ON src.id = d.source_id
		WHERE seg.id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load segments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec models.SegmentRecord
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.Index, &rec.Text, &rec.DocumentTitle, &rec.SourceName); err != nil {
			return err
		}
		out[rec.ID] = &rec
	}
	return rows.Err()
}

// Context returns the segments of the same document whose index lies within
// radius of the given segment, in document order. The segment itself is included.
// An unknown segment id yields an empty result.
func (s *Store) Context(ctx context.Context, segmentID int64, radius int) ([]*models.Segment, error) {
	if radius < 0 {
		radius = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.document_id, n.segment_index, n.text
		 FROM segments seg
		 JOIN segments n ON n.document_id = seg.document_id
		 WHERE seg.id = ? AND n.segment_index BETWEEN seg.segment_index - ? AND seg.segment_index + ?
		 ORDER BY n.segment_index`,
		segmentID, radius, radius,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load context: %w", err)
	}
	defer rows.Close()

	var out []*models.Segment
	for rows.Next() {
		var seg models.Segment
		if err := rows.Scan(&seg.ID, &seg.DocumentID, &seg.Index, &seg.Text); err != nil {
			return nil, err
		}
		out = append(out, &seg)
	}
	return out, rows.Err()
}

// Document returns a document by id.
func (s *Store) Document(ctx context.Context, id int64) (*models.Document, error) {
	var doc models.Document
	var metadataJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, source_document_id, title, metadata FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.SourceID, &doc.ExternalID, &doc.Title, &metadataJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

// Stats summarizes the corpus.
type Stats struct {
	Sources    int64            `json:"sources"`
	Documents  int64            `json:"documents"`
	Segments   int64            `json:"segments"`
	Characters int64            `json:"characters"`
	DiskBytes  int64            `json:"disk_bytes"`
	PerSource  []*models.Source `json:"per_source"`
}

// Stats returns corpus totals. Totals come from the per-source counters
// maintained by the loader, so this never scans the segment table.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	sources, err := s.Sources(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{Sources: int64(len(sources)), PerSource: sources}
	for _, src := range sources {
		st.Documents += src.DocumentCount
		st.Segments += src.SegmentCount
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(char_count), 0) FROM sources`).Scan(&st.Characters); err != nil {
		return nil, fmt.Errorf("failed to read char count: %w", err)
	}
	if st.DiskBytes, err = storage.DatabaseBytes(s.path); err != nil {
		s.logger.Warn("failed to measure corpus size", zap.Error(err))
	}
	return st, nil
}
