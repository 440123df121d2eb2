// Package termindex wraps the corpus full-text index. Scans are bounded by a
// segment id range and a limit that SQLite applies inside the full-text cursor,
// so their cost depends on the limit rather than on term frequency.
package termindex

import (
	"context"
	"errors"
	"math"
)

// Whole-corpus id bounds.
const (
	MinID int64 = 1
	MaxID int64 = math.MaxInt64
)

// ErrEmptyTerm is returned for a term with no non-space characters.
var ErrEmptyTerm = errors.New("term is empty")

// Index defines the term index operations used by the sampling engine.
type Index interface {
	// Scan returns up to limit ids of segments containing term with id in [idLo, idHi],
	// in ascending id order.
	Scan(ctx context.Context, term string, idLo, idHi int64, limit int) ([]int64, error)
	// ScanRanked returns up to limit hits ordered by relevance. Its cost grows with
	// the number of matches; it is never used for sampling.
	ScanRanked(ctx context.Context, term string, limit int) ([]RankedHit, error)
	// CountUpTo counts matches in [idLo, idHi], stopping at limit.
	CountUpTo(ctx context.Context, term string, idLo, idHi int64, limit int) (int, error)
}

// RankedHit is a single ranked search hit. Higher scores rank first.
type RankedHit struct {
	SegmentID int64   `json:"segment_id"`
	Score     float64 `json:"score"`
}
