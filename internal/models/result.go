package models

// Sample is one corpus hit returned by the sampling engine.
type Sample struct {
	SegmentID     int64  `json:"segment_id"`
	Source        string `json:"source"`
	DocumentID    int64  `json:"document_id"`
	DocumentTitle string `json:"document_title,omitempty"`
	Excerpt       string `json:"excerpt"`
}

// Count is a capped count. Exact is false when Count reached the cap, meaning "at least Count".
type Count struct {
	Count int  `json:"count"`
	Exact bool `json:"exact"`
}

// SourceCount is a capped count attributed to one source.
type SourceCount struct {
	Source string `json:"source"`
	Count
}

// SearchResponse is the response for a sampling search.
type SearchResponse struct {
	Term       string    `json:"term"`
	Samples    []*Sample `json:"samples"`
	Sources    int       `json:"sources"`
	Generation string    `json:"generation,omitempty"`
	QueryTime  int64     `json:"query_time_ms"`
}

// CountResponse is the response for a count request. Exactly one of Total and PerSource is set.
type CountResponse struct {
	Term      string         `json:"term"`
	Cap       int            `json:"cap"`
	Total     *Count         `json:"total,omitempty"`
	PerSource []*SourceCount `json:"per_source,omitempty"`
	QueryTime int64          `json:"query_time_ms"`
}

// Evidence is a source-attributed sample with an optional context passage.
type Evidence struct {
	Sample
	Context string `json:"context,omitempty"`
}

// Sense is one definition in a report, attributed to its headword and source.
type Sense struct {
	Traditional string `json:"traditional"`
	Simplified  string `json:"simplified"`
	Pinyin      string `json:"pinyin"`
	Definition  string `json:"definition"`
	Source      string `json:"source"`
	Confidence  string `json:"confidence,omitempty"`
}

// SenseGroup holds all senses for one target language.
type SenseGroup struct {
	Lang   string   `json:"lang"`
	Senses []*Sense `json:"senses"`
}

// DialectSection splits dialect forms by kind.
type DialectSection struct {
	PronunciationOverlays []PronunciationOverlay `json:"pronunciation_overlays"`
	LexicalDivergences    []LexicalDivergence    `json:"lexical_divergences"`
}

// CountStats holds the capped counts of a report.
type CountStats struct {
	Total     *Count         `json:"total,omitempty"`
	PerSource []*SourceCount `json:"per_source,omitempty"`
}

// SectionStatus marks whether a report section was produced.
type SectionStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Report section names.
const (
	SectionDictionary = "dictionary"
	SectionDialects   = "dialects"
	SectionEvidence   = "evidence"
	SectionCounts     = "counts"
)

// WordReport is the synthesized multi-section response for one term.
type WordReport struct {
	Term       string                   `json:"term"`
	Mode       ReportMode               `json:"mode"`
	Generation string                   `json:"generation,omitempty"`
	Entries    []*DictionaryEntry       `json:"entries"`
	Senses     []*SenseGroup            `json:"senses"`
	Dialects   DialectSection           `json:"dialects"`
	Evidence   []*Evidence              `json:"evidence"`
	Counts     CountStats               `json:"counts"`
	Sections   map[string]SectionStatus `json:"sections"`
}

// Failed reports whether any section failed.
func (r *WordReport) Failed() bool {
	for _, s := range r.Sections {
		if !s.OK {
			return true
		}
	}
	return false
}
