// Package utils provides shared utilities for text, math, and logging.
package utils

import (
	"strings"
	"unicode"
)

// Truncate returns s truncated to maxLen runes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// Excerpt returns a window of text around the first occurrence of term,
// keeping at most radius runes on each side. Elided ends are marked with "…".
// When term does not occur, the head of text is returned, truncated to 2*radius
// runes plus the term length. Radius <= 0 returns text unchanged.
func Excerpt(text, term string, radius int) string {
	if radius <= 0 {
		return text
	}
	runes := []rune(text)
	termLen := len([]rune(term))
	byteIdx := -1
	if term != "" {
		byteIdx = strings.Index(text, term)
	}
	if byteIdx < 0 {
		limit := 2*radius + termLen
		if len(runes) <= limit {
			return text
		}
		return string(runes[:limit]) + "…"
	}
	start := len([]rune(text[:byteIdx]))
	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	hi := start + termLen + radius
	if hi > len(runes) {
		hi = len(runes)
	}
	var b strings.Builder
	if lo > 0 {
		b.WriteString("…")
	}
	b.WriteString(string(runes[lo:hi]))
	if hi < len(runes) {
		b.WriteString("…")
	}
	return b.String()
}

// IsCJK reports whether r is an ideograph or kana that is indexed as its own token.
func IsCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Bopomofo, r)
}

// Barrier is the token that stands in for punctuation and symbols in the term
// index. It is a private-use rune, so the FTS5 unicode61 tokenizer keeps it as a
// token, and it never occurs in a query term's letters. Characters on either
// side of a barrier are therefore never adjacent in a phrase match.
const Barrier = "\uE000"

// IsBarrier reports whether r is indexed as a Barrier.
func IsBarrier(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// SpaceCJK surrounds every CJK rune in s with spaces so that a word-splitting
// tokenizer sees one ideograph per token, and replaces each punctuation or
// symbol rune with a spaced Barrier. Runs of other text are left intact.
func SpaceCJK(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 2)
	prevSpace := true
	for _, r := range s {
		var tok string
		switch {
		case IsCJK(r):
			tok = string(r)
		case IsBarrier(r):
			tok = Barrier
		default:
			b.WriteRune(r)
			prevSpace = unicode.IsSpace(r)
			continue
		}
		if !prevSpace {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
		b.WriteByte(' ')
		prevSpace = true
	}
	return strings.TrimSpace(b.String())
}
