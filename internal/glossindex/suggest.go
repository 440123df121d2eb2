package glossindex

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

const (
	maxSuggestDistance = 2
	// Shorter words are left alone: at distance 2 almost anything matches them.
	minSuggestRunes = 4
)

// Suggest returns query with each word missing from the definition vocabulary
// replaced by its closest indexed term (edit distance at most 2; ties go to the
// more frequent term). ok is false when nothing was corrected.
func (i *Index) Suggest(query string) (suggestion string, ok bool, err error) {
	terms, err := i.termFreqs()
	if err != nil {
		return "", false, err
	}
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	changed := false
	for n, w := range words {
		if _, known := terms[w]; known || len([]rune(w)) < minSuggestRunes {
			continue
		}
		if best, found := closestTerm(w, terms); found {
			words[n] = best
			changed = true
		}
	}
	if !changed {
		return "", false, nil
	}
	return strings.Join(words, " "), true, nil
}

func closestTerm(word string, terms map[string]uint64) (string, bool) {
	type candidate struct {
		term string
		dist int
		freq uint64
	}
	var cands []candidate
	wl := len([]rune(word))
	for t, freq := range terms {
		diff := len([]rune(t)) - wl
		if diff < -maxSuggestDistance || diff > maxSuggestDistance {
			continue
		}
		if d := levenshtein(word, t); d <= maxSuggestDistance {
			cands = append(cands, candidate{t, d, freq})
		}
	}
	if len(cands) == 0 {
		return "", false
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].dist != cands[b].dist {
			return cands[a].dist < cands[b].dist
		}
		if cands[a].freq != cands[b].freq {
			return cands[a].freq > cands[b].freq
		}
		return cands[a].term < cands[b].term
	})
	return cands[0].term, true
}

func (i *Index) termFreqs() (map[string]uint64, error) {
	i.mu.RLock()
	t := i.terms
	i.mu.RUnlock()
	if t != nil {
		return t, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.terms != nil {
		return i.terms, nil
	}
	dict, err := i.index.FieldDict("definition")
	if err != nil {
		return nil, fmt.Errorf("failed to read gloss vocabulary: %w", err)
	}
	defer dict.Close()
	t = make(map[string]uint64)
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to read gloss vocabulary: %w", err)
		}
		if entry == nil {
			break
		}
		t[entry.Term] = entry.Count
	}
	i.terms = t
	return t, nil
}

// levenshtein is the rune-wise edit distance between a and b.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
