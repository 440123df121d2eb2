package models

import (
	"fmt"
	"strings"
)

// SearchQuery is a request for source-diverse samples of a term.
type SearchQuery struct {
	Term       string `json:"term"`
	SampleSize int    `json:"sample_size,omitempty"`
}

// Validate trims the term, applies defaultSize when SampleSize is unset and caps it at maxSize.
func (q *SearchQuery) Validate(defaultSize, maxSize int) error {
	q.Term = strings.TrimSpace(q.Term)
	if q.Term == "" {
		return fmt.Errorf("term cannot be empty")
	}
	if q.SampleSize < 0 {
		return fmt.Errorf("sample_size must be positive, got %d", q.SampleSize)
	}
	if q.SampleSize == 0 {
		q.SampleSize = defaultSize
	}
	if maxSize > 0 && q.SampleSize > maxSize {
		q.SampleSize = maxSize
	}
	return nil
}

// CountQuery is a request for a capped count of a term, globally or per source.
type CountQuery struct {
	Term      string `json:"term"`
	Cap       int    `json:"cap,omitempty"`
	PerSource bool   `json:"per_source,omitempty"`
}

// Validate trims the term and applies defaultCap when Cap is unset. Caps above maxCap are clamped.
func (q *CountQuery) Validate(defaultCap, maxCap int) error {
	q.Term = strings.TrimSpace(q.Term)
	if q.Term == "" {
		return fmt.Errorf("term cannot be empty")
	}
	if q.Cap < 0 {
		return fmt.Errorf("cap must be positive, got %d", q.Cap)
	}
	if q.Cap == 0 {
		q.Cap = defaultCap
	}
	if maxCap > 0 && q.Cap > maxCap {
		q.Cap = maxCap
	}
	return nil
}

// ReportMode controls how much evidence a word report carries.
type ReportMode string

const (
	// ModeBrief returns counts, senses, dialect forms and a handful of samples.
	ModeBrief ReportMode = "brief"
	// ModeStandard returns the full sample set without context passages.
	ModeStandard ReportMode = "standard"
	// ModeFull returns the full sample set with surrounding context for each sample.
	ModeFull ReportMode = "full"
)

// ParseReportMode parses s, defaulting to ModeStandard when s is empty.
func ParseReportMode(s string) (ReportMode, error) {
	switch ReportMode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return ModeStandard, nil
	case ModeBrief:
		return ModeBrief, nil
	case ModeStandard:
		return ModeStandard, nil
	case ModeFull:
		return ModeFull, nil
	default:
		return "", fmt.Errorf("unknown report mode %q (use brief, standard or full)", s)
	}
}
