// Package dictionary reads the multilingual, multi-dialect dictionary database.
package dictionary

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/zhcorpus/internal/models"
	"github.com/hyperjump/zhcorpus/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a headword id does not exist.
var ErrNotFound = errors.New("headword not found")

// Store reads and (for the admin loader) writes the dictionary database.
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

// Open opens or creates the dictionary database at dbPath.
func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := storage.OpenSQLite(storage.DriverCGO, dbPath, schemaSQL)
	if err != nil {
		return nil, fmt.Errorf("dictionary: %w", err)
	}
	s := &Store{db: db, path: dbPath, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Lookup returns every headword whose simplified or traditional form equals term,
// ordered by id, each with its definitions ordered by language then source.
// An unknown term yields an empty slice.
func (s *Store) Lookup(ctx context.Context, term string) ([]*models.DictionaryEntry, error) {
	term = strings.TrimSpace(term)
	entries := []*models.DictionaryEntry{}
	if term == "" {
		return entries, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, traditional, simplified, pinyin, COALESCE(pos, '')
		 FROM headwords WHERE simplified = ? OR traditional = ? ORDER BY id`, term, term)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %q: %w", term, err)
	}
	byID := map[int64]*models.DictionaryEntry{}
	for rows.Next() {
		var e models.DictionaryEntry
		if err := rows.Scan(&e.ID, &e.Traditional, &e.Simplified, &e.Pinyin, &e.POS); err != nil {
			rows.Close()
			return nil, err
		}
		e.Definitions = []models.Definition{}
		entries = append(entries, &e)
		byID[e.ID] = &e
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT d.headword_id, d.lang, d.definition, d.source, COALESCE(d.confidence, '')
		 FROM definitions d JOIN headwords h ON h.id = d.headword_id
		 WHERE h.simplified = ? OR h.traditional = ?
		 ORDER BY d.headword_id, d.lang, d.source`, term, term)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions for %q: %w", term, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var d models.Definition
		if err := rows.Scan(&id, &d.Lang, &d.Text, &d.Source, &d.Confidence); err != nil {
			return nil, err
		}
		if e, ok := byID[id]; ok {
			e.Definitions = append(e.Definitions, d)
		}
	}
	return entries, rows.Err()
}

// Entry returns one headword by id with its definitions.
func (s *Store) Entry(ctx context.Context, id int64) (*models.DictionaryEntry, error) {
	var e models.DictionaryEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT id, traditional, simplified, pinyin, COALESCE(pos, '') FROM headwords WHERE id = ?`, id,
	).Scan(&e.ID, &e.Traditional, &e.Simplified, &e.Pinyin, &e.POS)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT lang, definition, source, COALESCE(confidence, '') FROM definitions
		 WHERE headword_id = ? ORDER BY lang, source`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	e.Definitions = []models.Definition{}
	for rows.Next() {
		var d models.Definition
		if err := rows.Scan(&d.Lang, &d.Text, &d.Source, &d.Confidence); err != nil {
			return nil, err
		}
		e.Definitions = append(e.Definitions, d)
	}
	return &e, rows.Err()
}

// DialectForms returns every dialect form attached to a headword matching term,
// ordered by dialect, then provenance, then headword. Forms from different
// provenances are all returned; none is preferred.
func (s *Store) DialectForms(ctx context.Context, term string) ([]models.DialectForm, error) {
	term = strings.TrimSpace(term)
	forms := []models.DialectForm{}
	if term == "" {
		return forms, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.simplified, f.dialect, COALESCE(f.native_chars, ''), f.pronunciation, COALESCE(f.gloss, ''), f.source
		 FROM dialect_forms f JOIN headwords h ON h.id = f.headword_id
		 WHERE h.simplified = ? OR h.traditional = ?
		 ORDER BY f.dialect, f.source, h.id`, term, term)
	if err != nil {
		return nil, fmt.Errorf("failed to load dialect forms for %q: %w", term, err)
	}
	defer rows.Close()
	for rows.Next() {
		var base models.DialectFormBase
		var native string
		if err := rows.Scan(&base.Headword, &base.Dialect, &native, &base.Reading, &base.Gloss, &base.Provenance); err != nil {
			return nil, err
		}
		forms = append(forms, models.NewDialectForm(base, native))
	}
	return forms, rows.Err()
}

// GlossRecord is one definition row with its headword, as fed to the gloss index.
type GlossRecord struct {
	HeadwordID  int64
	Traditional string
	Simplified  string
	Pinyin      string
	Lang        string
	Definition  string
	Source      string
}

// EachDefinition streams every definition in headword order to fn, stopping at
// the first error fn returns.
func (s *Store) EachDefinition(ctx context.Context, fn func(GlossRecord) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.traditional, h.simplified, h.pinyin, d.lang, d.definition, d.source
		 FROM definitions d JOIN headwords h ON h.id = d.headword_id
		 ORDER BY h.id, d.lang, d.source`)
	if err != nil {
		return fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r GlossRecord
		if err := rows.Scan(&r.HeadwordID, &r.Traditional, &r.Simplified, &r.Pinyin, &r.Lang, &r.Definition, &r.Source); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}
