// Package tokenize turns Japanese sentences into (dictionary form, reading)
// pairs using the kagome morphological analyzer and the IPA dictionary.
package tokenize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Token represents a single analyzed unit of text.
type Token struct {
	Surface        string   // The text as it appears (e.g. "行っ")
	DictionaryForm string   // The dictionary form (e.g. "行く")
	Reading        string   // Katakana reading of the dictionary form (e.g. "イク")
	PartsOfSpeech  []string // e.g. ["動詞", "自立", "*", "*"] (Kagome POS labels)
}

// PrimaryPOS returns the first (primary) part of speech if available.
func (t Token) PrimaryPOS() string {
	if len(t.PartsOfSpeech) == 0 {
		return ""
	}
	return t.PartsOfSpeech[0]
}

// TokenizationError is returned for input the analyzer cannot process.
type TokenizationError struct {
	Reason string
}

func (e *TokenizationError) Error() string { return "tokenize: " + e.Reason }

// Filter decides whether a token is kept.
type Filter func(Token) bool

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithFilter replaces the default content-word filter.
func WithFilter(f Filter) Option {
	return func(a *Analyzer) { a.keep = f }
}

// WithAllTokens keeps every non-blank morpheme, particles and symbols included.
func WithAllTokens() Option {
	return WithFilter(func(t Token) bool { return true })
}

// Analyzer wraps one kagome tokenizer. It is read-only after construction and
// safe for concurrent use.
type Analyzer struct {
	t    *tokenizer.Tokenizer
	keep Filter
}

// NewAnalyzer creates a new tokenizer instance.
func NewAnalyzer(opts ...Option) (*Analyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	a := &Analyzer{t: t, keep: ContentWords}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Kagome IPA features:
// 0: Part of Speech
// 1-3: Sub-POS
// 4: Conjugation Type
// 5: Conjugation Form
// 6: Base Form (Lemma)
// 7: Reading
// 8: Pronunciation
const (
	featBaseForm = 6
	featReading  = 7
)

func feature(features []string, i int) string {
	if len(features) > i && features[i] != "*" {
		return features[i]
	}
	return ""
}

// Tokenize breaks text into tokens keyed by dictionary form and reading, in
// sentence order. Repeated words are returned once per occurrence.
func (a *Analyzer) Tokenize(text string) ([]Token, error) {
	if !utf8.ValidString(text) {
		return nil, &TokenizationError{Reason: "text is not valid UTF-8"}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &TokenizationError{Reason: "text is empty"}
	}

	result := []Token{}
	for _, token := range a.t.Tokenize(text) {
		if token.Class == tokenizer.DUMMY || strings.TrimSpace(token.Surface) == "" {
			continue
		}
		features := token.Features()

		base := feature(features, featBaseForm)
		if base == "" {
			base = token.Surface
		}
		reading := feature(features, featReading)
		if base != token.Surface {
			if r := a.readingOf(base); r != "" {
				reading = r
			}
		}
		if reading == "" {
			reading = token.Surface
		}

		t := Token{
			Surface:        token.Surface,
			DictionaryForm: base,
			Reading:        reading,
			PartsOfSpeech:  features,
		}
		if a.keep != nil && !a.keep(t) {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

// readingOf re-analyzes a dictionary form so inflected surfaces ("行っ")
// share the reading of their lemma ("イク"). It returns "" unless the form
// is a single morpheme with a known reading.
func (a *Analyzer) readingOf(form string) string {
	tokens := a.t.Tokenize(form)
	if len(tokens) != 1 || tokens[0].Class == tokenizer.DUMMY {
		return ""
	}
	return feature(tokens[0].Features(), featReading)
}

var asciiRegex = regexp.MustCompile(`^[a-zA-Z0-9\s[:punct:]]+$`)

// ContentWords is the default filter: it drops symbols, particles, auxiliary
// verbs, numerals and ASCII-only tokens.
func ContentWords(t Token) bool {
	switch t.PrimaryPOS() {
	case "記号", "補助記号", "助詞", "助動詞":
		return false
	}
	if len(t.PartsOfSpeech) > 1 && t.PartsOfSpeech[1] == "数" {
		return false
	}
	return !asciiRegex.MatchString(t.Surface)
}

// SplitSentences splits a document on Japanese sentence delimiters and
// newlines, dropping blank pieces.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	for _, r := range text {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		// 。(3002), ！(FF01), ？(FF1F)
		if r == '。' || r == '！' || r == '？' {
			flush()
		}
	}
	flush()
	return sentences
}

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>...</rt>) and ruby parentheses (<rp>...</rp>)
// from HTML content, so furigana is not extracted next to its base text
// ("漢字" would otherwise become "漢字かんじ").
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	cleaned = reRP.ReplaceAll(cleaned, []byte{})
	return cleaned
}
