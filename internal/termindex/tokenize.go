package termindex

import (
	"strings"
	"unicode"

	"github.com/hyperjump/zhcorpus/pkg/utils"
)

// Tokenize splits text the way the index sees it: every CJK rune is its own token
// and other runs of letters and digits form one token each. Each punctuation or
// symbol rune becomes a utils.Barrier token so that a phrase never spans a clause
// break; barriers at either end are dropped. Spaces separate tokens. Latin tokens
// are lowercased.
func Tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case utils.IsCJK(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r):
			cur.WriteRune(r)
		case utils.IsBarrier(r):
			flush()
			tokens = append(tokens, utils.Barrier)
		default:
			flush()
		}
	}
	flush()

	for len(tokens) > 0 && tokens[0] == utils.Barrier {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && tokens[len(tokens)-1] == utils.Barrier {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// MatchExpr returns the FTS5 phrase query for term: its tokens in order, quoted
// as one phrase, so a multi-character term only matches where its characters are
// adjacent. ok is false when the term has no indexable tokens.
func MatchExpr(term string) (expr string, ok bool) {
	tokens := Tokenize(term)
	if len(tokens) == 0 {
		return "", false
	}
	for i, t := range tokens {
		tokens[i] = strings.ReplaceAll(t, `"`, `""`)
	}
	return `"` + strings.Join(tokens, " ") + `"`, true
}
