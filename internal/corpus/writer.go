package corpus

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"modernc.org/sqlite"

	"github.com/hyperjump/zhcorpus/internal/models"
	"github.com/hyperjump/zhcorpus/pkg/utils"
)

// ErrNonContiguousAppend is returned when appending to a source would place its
// new segments after another source's segments, breaking range contiguity.
var ErrNonContiguousAppend = errors.New("append would interleave sources")

func init() {
	// space_cjk lets the index be rebuilt inside SQLite with the same tokenization as the loader.
	if err := sqlite.RegisterDeterministicScalarFunction("space_cjk", 1, spaceCJKFunc); err != nil {
		panic(fmt.Sprintf("corpus: register space_cjk: %v", err))
	}
}

func spaceCJKFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return utils.SpaceCJK(v), nil
	case []byte:
		return utils.SpaceCJK(string(v)), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("space_cjk: unsupported argument type %T", v)
	}
}

// Writer appends sources to the corpus. It is the test and admin loader; bulk
// ingestion pipelines live outside this module.
type Writer struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWriter returns a Writer over the store's database.
func NewWriter(s *Store) *Writer {
	return &Writer{db: s.db, logger: s.logger}
}

// AppendResult describes one AppendSource call.
type AppendResult struct {
	SourceID         int64 `json:"source_id"`
	Documents        int   `json:"documents"`
	Segments         int   `json:"segments"`
	SkippedDocuments int   `json:"skipped_documents"`
	FirstID          int64 `json:"first_id,omitempty"`
	LastID           int64 `json:"last_id,omitempty"`
}

// AppendSource creates the source if needed and appends docs and their segments
// in one transaction. Documents already present for the source (same ExternalID)
// are skipped, so reloading is idempotent. Blank segments are dropped.
// It fails with ErrNonContiguousAppend if the source already has segments and
// another source owns the current highest segment id.
func (w *Writer) AppendSource(ctx context.Context, name, description string, docs []models.DocumentInput) (*AppendResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("source name cannot be empty")
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res := &AppendResult{}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sources (name, description) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, description); err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT id FROM sources WHERE name = ?`, name).Scan(&res.SourceID); err != nil {
		return nil, fmt.Errorf("failed to resolve source: %w", err)
	}
	if err := checkContiguous(ctx, tx, res.SourceID); err != nil {
		return nil, fmt.Errorf("source %q: %w", name, err)
	}

	var chars int64
	for _, doc := range docs {
		docID, inserted, err := insertDocument(ctx, tx, res.SourceID, doc)
		if err != nil {
			return nil, err
		}
		if !inserted {
			res.SkippedDocuments++
			continue
		}
		res.Documents++
		idx := 0
		for _, text := range doc.Segments {
			if strings.TrimSpace(text) == "" {
				continue
			}
			segID, err := insertSegment(ctx, tx, docID, idx, text)
			if err != nil {
				return nil, err
			}
			if res.FirstID == 0 {
				res.FirstID = segID
			}
			res.LastID = segID
			res.Segments++
			chars += int64(utf8.RuneCountInString(text))
			idx++
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sources SET document_count = document_count + ?, segment_count = segment_count + ?,
		 char_count = char_count + ?, import_date = ? WHERE id = ?`,
		res.Documents, res.Segments, chars, time.Now().UTC().Format(time.RFC3339), res.SourceID); err != nil {
		return nil, fmt.Errorf("failed to update source counters: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit append: %w", err)
	}

	w.logger.Info("source appended",
		zap.String("source", name),
		zap.Int("documents", res.Documents),
		zap.Int("segments", res.Segments),
		zap.Int("skipped", res.SkippedDocuments),
	)
	return res, nil
}

func checkContiguous(ctx context.Context, tx *sql.Tx, sourceID int64) error {
	var owner int64
	err := tx.QueryRowContext(ctx,
		`SELECT d.source_id FROM segments seg JOIN documents d ON d.id = seg.document_id
		 ORDER BY seg.id DESC LIMIT 1`).Scan(&owner)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find last segment owner: %w", err)
	}
	if owner == sourceID {
		return nil
	}
	var existing int64
	if err := tx.QueryRowContext(ctx,
		`SELECT segment_count FROM sources WHERE id = ?`, sourceID).Scan(&existing); err != nil {
		return fmt.Errorf("failed to read source counters: %w", err)
	}
	if existing > 0 {
		return ErrNonContiguousAppend
	}
	return nil
}

func insertDocument(ctx context.Context, tx *sql.Tx, sourceID int64, doc models.DocumentInput) (int64, bool, error) {
	var metadata sql.NullString
	if len(doc.Metadata) > 0 {
		b, err := json.Marshal(doc.Metadata)
		if err != nil {
			return 0, false, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO documents (source_id, source_document_id, title, metadata) VALUES (?, ?, ?, ?)
		 ON CONFLICT(source_id, source_document_id) DO NOTHING`,
		sourceID, doc.ExternalID, doc.Title, metadata)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert document %q: %w", doc.ExternalID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return 0, false, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func insertSegment(ctx context.Context, tx *sql.Tx, docID int64, index int, text string) (int64, error) {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO segments (document_id, segment_index, text, char_count, content_hash) VALUES (?, ?, ?, ?, ?)`,
		docID, index, text, utf8.RuneCountInString(text), ContentHash(text))
	if err != nil {
		return 0, fmt.Errorf("failed to insert segment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO segments_fts (rowid, body) VALUES (?, ?)`, id, utils.SpaceCJK(text)); err != nil {
		return 0, fmt.Errorf("failed to index segment %d: %w", id, err)
	}
	return id, nil
}

// RebuildIndex drops every term index entry and re-indexes all segments in one
// transaction. Returns the number of segments indexed.
func (w *Writer) RebuildIndex(ctx context.Context) (int64, error) {
	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO segments_fts (segments_fts) VALUES ('delete-all')`); err != nil {
		return 0, fmt.Errorf("failed to clear term index: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO segments_fts (rowid, body) SELECT id, space_cjk(text) FROM segments ORDER BY id`); err != nil {
		return 0, fmt.Errorf("failed to rebuild term index: %w", err)
	}
	var n int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count segments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO segments_fts (segments_fts) VALUES ('optimize')`); err != nil {
		return 0, fmt.Errorf("failed to optimize term index: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rebuild: %w", err)
	}
	w.logger.Info("term index rebuilt", zap.Int64("segments", n), zap.Duration("took", time.Since(start)))
	return n, nil
}

// ContentHash returns the hex sha256 of a segment's text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
