// Package models defines core data structures for corpus segments, dictionary entries, and reports.
package models

import "time"

// Source is a named corpus provenance (e.g. "wikipedia", "classical").
type Source struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	DocumentCount int64  `json:"document_count"`
	SegmentCount  int64  `json:"segment_count"`
}

// Document is a run of segments taken from one source item (an article, a poem, a chapter).
type Document struct {
	ID         int64                  `json:"id"`
	SourceID   int64                  `json:"source_id"`
	ExternalID string                 `json:"external_id,omitempty"`
	Title      string                 `json:"title"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Segment is the smallest indexed text unit. Segments are append-only and
// their ids increase monotonically within a source at import time.
type Segment struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	Index      int    `json:"index"`
	Text       string `json:"text"`
}

// SegmentRecord is a segment joined with its owning document and source.
type SegmentRecord struct {
	Segment
	DocumentTitle string `json:"document_title"`
	SourceName    string `json:"source"`
}

// DocumentInput is one document handed to the loader, already split into segments.
type DocumentInput struct {
	ExternalID string                 `json:"external_id"`
	Title      string                 `json:"title"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Segments   []string               `json:"segments"`
}

// SourceRange is the closed interval of segment ids that belong to a source.
type SourceRange struct {
	SourceName   string `json:"source"`
	MinID        int64  `json:"min_id"`
	MaxID        int64  `json:"max_id"`
	SegmentCount int64  `json:"segment_count"`
}

// Contains reports whether id falls inside the range.
func (r SourceRange) Contains(id int64) bool {
	return id >= r.MinID && id <= r.MaxID
}

// RangeSnapshot is an immutable, fully built source-range table.
// Ranges are ordered by MinID.
type RangeSnapshot struct {
	Generation string        `json:"generation"`
	BuiltAt    time.Time     `json:"built_at"`
	Ranges     []SourceRange `json:"ranges"`
}

// Len returns the number of sources in the snapshot. A nil snapshot has none.
func (s *RangeSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Ranges)
}

// SourceFor returns the name of the source whose range contains id.
func (s *RangeSnapshot) SourceFor(id int64) (string, bool) {
	if s == nil {
		return "", false
	}
	for _, r := range s.Ranges {
		if r.Contains(id) {
			return r.SourceName, true
		}
	}
	return "", false
}
