// Package glossindex is a reverse dictionary: a Bleve full-text index over every
// definition, answering "which headwords are glossed with these words".
package glossindex

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hyperjump/zhcorpus/internal/dictionary"
)

const (
	batchSize = 500
	// phraseBoost favours definitions containing the query words adjacently.
	phraseBoost = 2.0
)

// DefinitionSource streams every dictionary definition.
type DefinitionSource interface {
	EachDefinition(ctx context.Context, fn func(dictionary.GlossRecord) error) error
}

// Hit is one headword matched through its definitions. Definition and Lang
// describe the best-scoring matching definition.
type Hit struct {
	HeadwordID  int64   `json:"headword_id"`
	Simplified  string  `json:"simplified"`
	Traditional string  `json:"traditional"`
	Pinyin      string  `json:"pinyin"`
	Lang        string  `json:"lang"`
	Definition  string  `json:"definition"`
	Source      string  `json:"source"`
	Score       float64 `json:"score"`
}

// Index wraps an on-disk Bleve index. Searches may run concurrently with Rebuild.
type Index struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	index bleve.Index
	// terms caches the definition term dictionary for Suggest; reset on rebuild.
	terms map[string]uint64
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger. Default is zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(i *Index) {
		if l != nil {
			i.logger = l
		}
	}
}

// Open opens the index at path, creating an empty one if none exists.
// If you change the mapping, rebuild to pick it up.
func Open(path string, opts ...Option) (*Index, error) {
	i := &Index{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(i)
	}
	idx, err := openOrCreate(path)
	if err != nil {
		return nil, err
	}
	i.index = idx
	return i, nil
}

func openOrCreate(path string) (bleve.Index, error) {
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open gloss index: %w", err)
		}
		return idx, nil
	}
	idx, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create gloss index: %w", err)
	}
	return idx, nil
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	definition := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase, no stemming, so "curd" does not also match "curdle".
	definition.Analyzer = standard.Name
	doc.AddFieldMappingsAt("definition", definition)

	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name
	for _, f := range []string{"lang", "source", "simplified", "traditional", "headword_id"} {
		doc.AddFieldMappingsAt(f, kw)
	}
	stored := bleve.NewTextFieldMapping()
	stored.Index = false
	doc.AddFieldMappingsAt("pinyin", stored)

	im.DefaultMapping = doc
	return im
}

func docID(r dictionary.GlossRecord) string {
	return fmt.Sprintf("%d/%s/%s", r.HeadwordID, r.Lang, r.Source)
}

func docFields(r dictionary.GlossRecord) map[string]interface{} {
	return map[string]interface{}{
		"headword_id": strconv.FormatInt(r.HeadwordID, 10),
		"simplified":  r.Simplified,
		"traditional": r.Traditional,
		"pinyin":      r.Pinyin,
		"lang":        r.Lang,
		"source":      r.Source,
		"definition":  r.Definition,
	}
}

// Close closes the index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}

// DocCount returns the number of indexed definitions.
func (i *Index) DocCount() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.DocCount()
}

// Search returns up to limit headwords whose definitions match query, best
// first. lang restricts matching to definitions in that language when non-empty.
func (i *Index) Search(ctx context.Context, query, lang string, limit int) ([]*Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []*Hit{}, nil
	}

	match := bleve.NewMatchQuery(query)
	match.SetField("definition")
	phrase := bleve.NewMatchPhraseQuery(query)
	phrase.SetField("definition")
	phrase.SetBoost(phraseBoost)
	var q blevequery.Query = bleve.NewDisjunctionQuery(match, phrase)
	if lang != "" {
		lq := bleve.NewTermQuery(lang)
		lq.SetField("lang")
		q = bleve.NewConjunctionQuery(q, lq)
	}

	// Several definitions can share a headword; over-fetch before grouping.
	req := bleve.NewSearchRequest(q)
	req.Size = limit * 4
	if req.Size < 50 {
		req.Size = 50
	}
	req.Fields = []string{"*"}

	i.mu.RLock()
	res, err := i.index.SearchInContext(ctx, req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("gloss search failed: %w", err)
	}

	best := map[int64]*Hit{}
	for _, h := range res.Hits {
		hit := hitFromFields(h.Fields)
		hit.Score = h.Score
		if prev, ok := best[hit.HeadwordID]; !ok || hit.Score > prev.Score {
			best[hit.HeadwordID] = hit
		}
	}
	out := make([]*Hit, 0, len(best))
	for _, h := range best {
		out = append(out, h)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].HeadwordID < out[b].HeadwordID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func hitFromFields(f map[string]interface{}) *Hit {
	str := func(k string) string {
		s, _ := f[k].(string)
		return s
	}
	id, _ := strconv.ParseInt(str("headword_id"), 10, 64)
	return &Hit{
		HeadwordID:  id,
		Simplified:  str("simplified"),
		Traditional: str("traditional"),
		Pinyin:      str("pinyin"),
		Lang:        str("lang"),
		Definition:  str("definition"),
		Source:      str("source"),
	}
}

// Rebuild indexes every definition from src into a fresh index beside the
// current one, then swaps it in. Searches keep using the old index until the
// swap. Returns the number of definitions indexed.
func (i *Index) Rebuild(ctx context.Context, src DefinitionSource) (int, error) {
	start := time.Now()
	tmpPath := i.path + ".building"
	if err := os.RemoveAll(tmpPath); err != nil {
		return 0, fmt.Errorf("failed to clear staging index: %w", err)
	}
	next, err := bleve.New(tmpPath, newMapping())
	if err != nil {
		return 0, fmt.Errorf("failed to create staging index: %w", err)
	}

	n := 0
	batch := next.NewBatch()
	err = src.EachDefinition(ctx, func(r dictionary.GlossRecord) error {
		if err := batch.Index(docID(r), docFields(r)); err != nil {
			return err
		}
		n++
		if batch.Size() >= batchSize {
			if err := next.Batch(batch); err != nil {
				return err
			}
			batch.Reset()
		}
		return ctx.Err()
	})
	if err == nil && batch.Size() > 0 {
		err = next.Batch(batch)
	}
	if err != nil {
		_ = next.Close()
		_ = os.RemoveAll(tmpPath)
		return 0, fmt.Errorf("failed to build gloss index: %w", err)
	}
	if err := next.Close(); err != nil {
		return 0, fmt.Errorf("failed to close staging index: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.install(tmpPath); err != nil {
		// Keep serving whatever index is on disk.
		if idx, openErr := openOrCreate(i.path); openErr == nil {
			i.index = idx
		}
		return 0, err
	}
	i.logger.Info("gloss index rebuilt", zap.Int("definitions", n), zap.Duration("took", time.Since(start)))
	return n, nil
}

// install replaces the live index with the one at tmpPath. Caller holds mu.
func (i *Index) install(tmpPath string) error {
	if err := i.index.Close(); err != nil {
		i.logger.Warn("failed to close previous gloss index", zap.Error(err))
	}
	if err := os.RemoveAll(i.path); err != nil {
		return fmt.Errorf("failed to remove previous gloss index: %w", err)
	}
	if err := os.Rename(tmpPath, i.path); err != nil {
		return fmt.Errorf("failed to install gloss index: %w", err)
	}
	idx, err := bleve.Open(i.path)
	if err != nil {
		return fmt.Errorf("failed to open rebuilt gloss index: %w", err)
	}
	i.index = idx
	i.terms = nil
	return nil
}
