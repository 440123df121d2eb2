// Package cli formats zhcorpus results for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/zhcorpus/internal/corpus"
	"github.com/hyperjump/zhcorpus/internal/dictionary"
	"github.com/hyperjump/zhcorpus/internal/glossindex"
	"github.com/hyperjump/zhcorpus/internal/models"
	"github.com/hyperjump/zhcorpus/internal/sampling"
	"github.com/hyperjump/zhcorpus/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────"

// ParseOutputFormat accepts "text" (or empty) and "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

// write encodes v as indented JSON for OutputJSON and calls text otherwise.
func write(w io.Writer, format OutputFormat, v interface{}, text func(io.Writer)) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func exactMark(c models.Count) string {
	if c.Exact {
		return fmt.Sprintf("%d", c.Count)
	}
	return fmt.Sprintf("≥%d", c.Count)
}

// WriteSearchResults writes sampled search results.
func WriteSearchResults(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	return write(w, format, resp, func(w io.Writer) {
		fmt.Fprintf(w, "\n%d samples of %q from %d sources in %dms\n\n", len(resp.Samples), resp.Term, resp.Sources, resp.QueryTime)
		for _, s := range resp.Samples {
			writeSample(w, s, "")
		}
	})
}

func writeSample(w io.Writer, s *models.Sample, context string) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "[%s] segment %d", s.Source, s.SegmentID)
	if s.DocumentTitle != "" {
		fmt.Fprintf(w, " | %s", utils.Truncate(s.DocumentTitle, 60))
	}
	fmt.Fprintf(w, "\n%s\n", s.Excerpt)
	if context != "" {
		fmt.Fprintf(w, "\n%s\n", context)
	}
	fmt.Fprintln(w)
}

// WriteCounts writes a capped count response.
func WriteCounts(w io.Writer, resp *models.CountResponse, format OutputFormat) error {
	return write(w, format, resp, func(w io.Writer) {
		if resp.Total != nil {
			fmt.Fprintf(w, "%s\t%s\n", resp.Term, exactMark(*resp.Total))
			return
		}
		for _, c := range resp.PerSource {
			fmt.Fprintf(w, "%-20s %s\n", c.Source, exactMark(c.Count))
		}
	})
}

// WriteRanked writes relevance-ranked samples.
func WriteRanked(w io.Writer, term string, hits []*sampling.RankedSample, format OutputFormat) error {
	v := map[string]interface{}{"term": term, "results": hits}
	return write(w, format, v, func(w io.Writer) {
		fmt.Fprintf(w, "\n%d ranked results for %q\n\n", len(hits), term)
		for i, h := range hits {
			fmt.Fprintf(w, "%d. (%.4f) ", i+1, h.Score)
			writeSample(w, &h.Sample, "")
		}
	})
}

// WriteWordReport writes a word report section by section.
func WriteWordReport(w io.Writer, rep *models.WordReport, format OutputFormat) error {
	return write(w, format, rep, func(w io.Writer) {
		fmt.Fprintf(w, "\n%s (%s report)\n", rep.Term, rep.Mode)
		for _, e := range rep.Entries {
			fmt.Fprintf(w, "  %s / %s  [%s]", e.Simplified, e.Traditional, e.Pinyin)
			if e.POS != "" {
				fmt.Fprintf(w, "  %s", e.POS)
			}
			fmt.Fprintln(w)
		}

		writeSection(w, rep, models.SectionDictionary, "Senses")
		for _, g := range rep.Senses {
			fmt.Fprintf(w, "  [%s]\n", g.Lang)
			for _, s := range g.Senses {
				fmt.Fprintf(w, "    %s  (%s)\n", s.Definition, s.Source)
			}
		}

		writeSection(w, rep, models.SectionDialects, "Dialects")
		for _, o := range rep.Dialects.PronunciationOverlays {
			fmt.Fprintf(w, "  %s  %s  (%s)\n", models.DialectName(o.Dialect), o.Reading, o.Provenance)
		}
		for _, d := range rep.Dialects.LexicalDivergences {
			fmt.Fprintf(w, "  %s  %s %s  (%s)\n", models.DialectName(d.Dialect), d.NativeChars, d.Reading, d.Provenance)
		}

		writeSection(w, rep, models.SectionCounts, "Counts")
		if rep.Counts.Total != nil {
			fmt.Fprintf(w, "  total %s\n", exactMark(*rep.Counts.Total))
		}
		for _, c := range rep.Counts.PerSource {
			fmt.Fprintf(w, "  %-20s %s\n", c.Source, exactMark(c.Count))
		}

		writeSection(w, rep, models.SectionEvidence, "Evidence")
		for _, ev := range rep.Evidence {
			writeSample(w, &ev.Sample, ev.Context)
		}
	})
}

func writeSection(w io.Writer, rep *models.WordReport, name, title string) {
	fmt.Fprintf(w, "\n%s\n", title)
	if st, ok := rep.Sections[name]; ok && !st.OK {
		fmt.Fprintf(w, "  (unavailable: %s)\n", st.Error)
	}
}

// WriteRanges writes a source-range snapshot.
func WriteRanges(w io.Writer, snap *models.RangeSnapshot, format OutputFormat) error {
	return write(w, format, snap, func(w io.Writer) {
		if snap.Len() == 0 {
			fmt.Fprintln(w, "No source ranges materialized.")
			return
		}
		fmt.Fprintf(w, "Generation %s (built %s)\n", snap.Generation, snap.BuiltAt.Format("2006-01-02 15:04:05"))
		for _, r := range snap.Ranges {
			fmt.Fprintf(w, "%-20s %10d - %-10d %d segments\n", r.SourceName, r.MinID, r.MaxID, r.SegmentCount)
		}
	})
}

// WriteEntries writes dictionary entries and the headword's dialect forms.
func WriteEntries(w io.Writer, headword string, entries []*models.DictionaryEntry, dialects models.DialectSection, format OutputFormat) error {
	v := map[string]interface{}{"headword": headword, "entries": entries, "dialects": dialects}
	return write(w, format, v, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintf(w, "No entries for %s\n", headword)
			return
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%s / %s  [%s]\n", e.Simplified, e.Traditional, e.Pinyin)
			for _, d := range e.Definitions {
				fmt.Fprintf(w, "  %s: %s  (%s)\n", d.Lang, d.Text, d.Source)
			}
		}
		fmt.Fprintln(w, "\nDialects")
		for _, o := range dialects.PronunciationOverlays {
			fmt.Fprintf(w, "  %s  %s  (%s)\n", models.DialectName(o.Dialect), o.Reading, o.Provenance)
		}
		for _, d := range dialects.LexicalDivergences {
			fmt.Fprintf(w, "  %s  %s %s  (%s)\n", models.DialectName(d.Dialect), d.NativeChars, d.Reading, d.Provenance)
		}
	})
}

// WriteGlossHits writes reverse-lookup results. suggestion is only shown when
// there are no hits.
func WriteGlossHits(w io.Writer, query string, hits []*glossindex.Hit, suggestion string, format OutputFormat) error {
	v := map[string]interface{}{"query": query, "results": hits}
	if len(hits) == 0 && suggestion != "" {
		v["suggestion"] = suggestion
	}
	return write(w, format, v, func(w io.Writer) {
		if len(hits) == 0 {
			fmt.Fprintf(w, "No headwords match %q\n", query)
			if suggestion != "" {
				fmt.Fprintf(w, "Did you mean %q?\n", suggestion)
			}
			return
		}
		for _, h := range hits {
			fmt.Fprintf(w, "%s / %s  [%s]  %s: %s  (%s, %.3f)\n",
				h.Simplified, h.Traditional, h.Pinyin, h.Lang, utils.Truncate(h.Definition, 80), h.Source, h.Score)
		}
	})
}

// Stats is the combined output of the stats command.
type Stats struct {
	Corpus       *corpus.Stats     `json:"corpus"`
	Dictionary   *dictionary.Stats `json:"dictionary,omitempty"`
	SourceRanges int               `json:"source_ranges"`
	Glosses      uint64            `json:"glosses"`
}

// WriteStats writes corpus and dictionary statistics.
func WriteStats(w io.Writer, st *Stats, format OutputFormat) error {
	return write(w, format, st, func(w io.Writer) {
		c := st.Corpus
		fmt.Fprintf(w, "Corpus: %d sources, %d documents, %d segments, %d characters (%s on disk)\n",
			c.Sources, c.Documents, c.Segments, c.Characters, HumanBytes(c.DiskBytes))
		for _, s := range c.PerSource {
			fmt.Fprintf(w, "  %-20s %8d documents %10d segments\n", s.Name, s.DocumentCount, s.SegmentCount)
		}
		fmt.Fprintf(w, "Source ranges: %d\n", st.SourceRanges)
		if d := st.Dictionary; d != nil {
			fmt.Fprintf(w, "Dictionary: %d headwords, %d definitions, %d dialect forms (%s on disk)\n",
				d.Headwords, d.Definitions, d.DialectForms, HumanBytes(d.DiskBytes))
		}
		fmt.Fprintf(w, "Gloss index: %d definitions\n", st.Glosses)
	})
}

// HumanBytes formats n with a binary unit suffix.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
