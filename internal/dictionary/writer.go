package dictionary

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/zhcorpus/internal/models"
	"github.com/hyperjump/zhcorpus/internal/storage"
)

// Headword identifies a lemma by its script variants and romanization.
type Headword struct {
	Traditional string `json:"traditional"`
	Simplified  string `json:"simplified"`
	Pinyin      string `json:"pinyin"`
	POS         string `json:"pos,omitempty"`
}

// UpsertHeadword returns the id of the headword, inserting it if absent.
// inserted is false when an identical (traditional, simplified, pinyin) row existed.
func (s *Store) UpsertHeadword(ctx context.Context, h Headword) (id int64, inserted bool, err error) {
	h.Traditional = strings.TrimSpace(h.Traditional)
	h.Simplified = strings.TrimSpace(h.Simplified)
	if h.Simplified == "" && h.Traditional == "" {
		return 0, false, fmt.Errorf("headword needs a simplified or traditional form")
	}
	if h.Simplified == "" {
		h.Simplified = h.Traditional
	}
	if h.Traditional == "" {
		h.Traditional = h.Simplified
	}
	var pos sql.NullString
	if h.POS != "" {
		pos = sql.NullString{String: h.POS, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO headwords (traditional, simplified, pinyin, pos) VALUES (?, ?, ?, ?)
		 ON CONFLICT(traditional, simplified, pinyin) DO NOTHING`,
		h.Traditional, h.Simplified, h.Pinyin, pos)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert headword %s: %w", h.Simplified, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		id, err = res.LastInsertId()
		return id, true, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM headwords WHERE traditional = ? AND simplified = ? AND pinyin = ?`,
		h.Traditional, h.Simplified, h.Pinyin).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve headword %s: %w", h.Simplified, err)
	}
	return id, false, nil
}

// AddDefinition attaches a definition to a headword. A second definition for the
// same (headword, lang, source) is ignored and reported as inserted=false.
func (s *Store) AddDefinition(ctx context.Context, headwordID int64, d models.Definition) (bool, error) {
	if strings.TrimSpace(d.Lang) == "" || strings.TrimSpace(d.Source) == "" {
		return false, fmt.Errorf("definition needs a language and a source")
	}
	var confidence sql.NullString
	if d.Confidence != "" {
		confidence = sql.NullString{String: d.Confidence, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO definitions (headword_id, lang, definition, source, confidence) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(headword_id, lang, source) DO NOTHING`,
		headwordID, d.Lang, d.Text, d.Source, confidence)
	if err != nil {
		return false, fmt.Errorf("failed to insert definition: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AddDialectForm attaches a dialect form to a headword. Forms are unique per
// (headword, dialect, provenance); duplicates are ignored and reported as
// inserted=false. The Headword field of the form is not stored.
func (s *Store) AddDialectForm(ctx context.Context, headwordID int64, f models.DialectForm) (bool, error) {
	base := f.Base()
	if base.Dialect == "" || base.Provenance == "" || base.Reading == "" {
		return false, fmt.Errorf("dialect form needs a dialect, a reading and a provenance")
	}
	var native sql.NullString
	if ld, ok := f.(models.LexicalDivergence); ok {
		native = sql.NullString{String: ld.NativeChars, Valid: true}
	}
	var gloss sql.NullString
	if base.Gloss != "" {
		gloss = sql.NullString{String: base.Gloss, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dialect_forms (headword_id, dialect, native_chars, pronunciation, gloss, source)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(headword_id, dialect, source) DO NOTHING`,
		headwordID, base.Dialect, native, base.Reading, gloss, base.Provenance)
	if err != nil {
		return false, fmt.Errorf("failed to insert dialect form: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RegisterSource records dictionary source metadata, replacing any earlier row.
func (s *Store) RegisterSource(ctx context.Context, name, description, license, url string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (name, description, license, url, entry_count, import_date)
		 VALUES (?, ?, ?, ?, (SELECT COUNT(*) FROM definitions WHERE source = ?), ?)
		 ON CONFLICT(name) DO UPDATE SET description = excluded.description, license = excluded.license,
		   url = excluded.url, entry_count = excluded.entry_count, import_date = excluded.import_date`,
		name, description, license, url, name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to register source %s: %w", name, err)
	}
	return nil
}

// Stats summarizes the dictionary.
type Stats struct {
	Headwords      int64            `json:"headwords"`
	Definitions    int64            `json:"definitions"`
	DialectForms   int64            `json:"dialect_forms"`
	ByLanguage     map[string]int64 `json:"by_language"`
	BySource       map[string]int64 `json:"by_source"`
	DialectsByCode map[string]int64 `json:"dialects"`
	DiskBytes      int64            `json:"disk_bytes"`
}

// Stats returns dictionary totals.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByLanguage:     map[string]int64{},
		BySource:       map[string]int64{},
		DialectsByCode: map[string]int64{},
	}
	for _, q := range []struct {
		query string
		dst   *int64
	}{
		{`SELECT COUNT(*) FROM headwords`, &st.Headwords},
		{`SELECT COUNT(*) FROM definitions`, &st.Definitions},
		{`SELECT COUNT(*) FROM dialect_forms`, &st.DialectForms},
	} {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("failed to read dictionary stats: %w", err)
		}
	}
	for _, g := range []struct {
		query string
		dst   map[string]int64
	}{
		{`SELECT lang, COUNT(*) FROM definitions GROUP BY lang`, st.ByLanguage},
		{`SELECT source, COUNT(*) FROM definitions GROUP BY source`, st.BySource},
		{`SELECT dialect, COUNT(*) FROM dialect_forms GROUP BY dialect`, st.DialectsByCode},
	} {
		if err := s.groupCounts(ctx, g.query, g.dst); err != nil {
			return nil, err
		}
	}
	var err error
	if st.DiskBytes, err = storage.DatabaseBytes(s.path); err != nil {
		s.logger.Warn("failed to measure dictionary size", zap.Error(err))
	}
	return st, nil
}

func (s *Store) groupCounts(ctx context.Context, query string, dst map[string]int64) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to read dictionary stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var n int64
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		dst[k] = n
	}
	return rows.Err()
}
