package models

// Dialect codes used by the dictionary.
const (
	DialectCantonese = "yue"
	DialectHokkien   = "nan"
)

// DialectName returns a display name for a dialect code.
func DialectName(code string) string {
	switch code {
	case DialectCantonese:
		return "Cantonese"
	case DialectHokkien:
		return "Hokkien"
	default:
		return code
	}
}

// Definition is one gloss of a headword in a target language, attributed to a dictionary source.
type Definition struct {
	Lang       string `json:"lang"`
	Text       string `json:"definition"`
	Source     string `json:"source"`
	Confidence string `json:"confidence,omitempty"`
}

// DictionaryEntry is a canonical lemma with its script variants, romanization and definitions.
type DictionaryEntry struct {
	ID          int64        `json:"id"`
	Traditional string       `json:"traditional"`
	Simplified  string       `json:"simplified"`
	Pinyin      string       `json:"pinyin"`
	POS         string       `json:"pos,omitempty"`
	Definitions []Definition `json:"definitions"`
}

// DialectFormKind distinguishes the two variants of DialectForm.
type DialectFormKind string

const (
	// KindPronunciationOverlay is the same written form read differently.
	KindPronunciationOverlay DialectFormKind = "pronunciation_overlay"
	// KindLexicalDivergence is a different written form for the same concept.
	KindLexicalDivergence DialectFormKind = "lexical_divergence"
)

// DialectForm associates a headword with a non-Mandarin variety. It is a closed
// sum type: the only implementations are PronunciationOverlay and LexicalDivergence.
type DialectForm interface {
	Kind() DialectFormKind
	Base() DialectFormBase
	dialectForm()
}

// DialectFormBase holds the fields shared by both dialect form variants.
type DialectFormBase struct {
	Headword   string `json:"headword"`
	Dialect    string `json:"dialect"`
	Reading    string `json:"reading"`
	Gloss      string `json:"gloss,omitempty"`
	Provenance string `json:"provenance"`
}

// PronunciationOverlay is a dialect reading of the Mandarin headword's own characters.
type PronunciationOverlay struct {
	DialectFormBase
}

// LexicalDivergence is a dialect-specific written form for the headword's concept.
type LexicalDivergence struct {
	DialectFormBase
	NativeChars string `json:"native_chars"`
}

func (PronunciationOverlay) Kind() DialectFormKind   { return KindPronunciationOverlay }
func (f PronunciationOverlay) Base() DialectFormBase { return f.DialectFormBase }
func (PronunciationOverlay) dialectForm()            {}

func (LexicalDivergence) Kind() DialectFormKind   { return KindLexicalDivergence }
func (f LexicalDivergence) Base() DialectFormBase { return f.DialectFormBase }
func (LexicalDivergence) dialectForm()            {}

// NewDialectForm builds the variant implied by nativeChars: an empty value
// yields a PronunciationOverlay, anything else a LexicalDivergence.
func NewDialectForm(base DialectFormBase, nativeChars string) DialectForm {
	if nativeChars == "" {
		return PronunciationOverlay{DialectFormBase: base}
	}
	return LexicalDivergence{DialectFormBase: base, NativeChars: nativeChars}
}
